// Package errors defines the error taxonomy for the harness.
//
// Launch and premature-exit errors are fatal to session startup. Framing,
// decoding, timeout, and process-exit errors are recoverable outcomes the
// caller is expected to branch on.
package errors
