package lspdbg

import "github.com/lspdbg/lspdbg-go/internal/errors"

// Re-export error types from internal package

// LaunchError indicates the server binary could not be spawned.
type LaunchError = errors.LaunchError

// PrematureExitError indicates the server exited before becoming ready.
type PrematureExitError = errors.PrematureExitError

// FramingError indicates a malformed or truncated frame on the wire.
type FramingError = errors.FramingError

// DecodingError indicates a frame body that is not valid JSON-RPC.
type DecodingError = errors.DecodingError

// EncodingError indicates an outgoing message could not be serialized.
type EncodingError = errors.EncodingError

// TimeoutError indicates no matching response arrived within the budget.
type TimeoutError = errors.TimeoutError

// ProcessExitedError indicates the server ended while a call was pending.
type ProcessExitedError = errors.ProcessExitedError

// HarnessError is the base interface for all harness errors.
type HarnessError = errors.HarnessError

// Re-export sentinel errors from internal package.
var (
	// ErrNotRunning indicates the server process is not running.
	ErrNotRunning = errors.ErrNotRunning

	// ErrNotReady indicates the protocol state machine does not permit
	// sending this request type yet.
	ErrNotReady = errors.ErrNotReady

	// ErrClientClosed indicates the client has been closed and cannot be
	// reused. Clients are single-use; create a new one with NewClient.
	ErrClientClosed = errors.ErrClientClosed

	// ErrAlreadyStarted indicates Start was called twice.
	ErrAlreadyStarted = errors.ErrAlreadyStarted
)
