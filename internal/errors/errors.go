package errors

import (
	"errors"
	"fmt"
	"time"
)

// HarnessError is the base interface for all harness errors.
type HarnessError interface {
	error
	IsHarnessError() bool
}

// Compile-time verification that all error types implement HarnessError.
var (
	_ HarnessError = (*LaunchError)(nil)
	_ HarnessError = (*PrematureExitError)(nil)
	_ HarnessError = (*FramingError)(nil)
	_ HarnessError = (*DecodingError)(nil)
	_ HarnessError = (*EncodingError)(nil)
	_ HarnessError = (*TimeoutError)(nil)
	_ HarnessError = (*ProcessExitedError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrNotRunning indicates the server process is not in the Running state.
	ErrNotRunning = errors.New("server process not running")

	// ErrNotReady indicates the client state machine does not permit sending
	// this request type yet (e.g. a completion request before initialize).
	ErrNotReady = errors.New("client not ready for this request")

	// ErrClientClosed indicates the client has been closed and cannot be
	// reused. Clients are single-use; create a new one with New().
	ErrClientClosed = errors.New("client closed")

	// ErrAlreadyStarted indicates Start was called on a running client.
	ErrAlreadyStarted = errors.New("client already started")
)

// LaunchError indicates the server process could not be spawned.
type LaunchError struct {
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %q: %v", e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// IsHarnessError implements HarnessError.
func (e *LaunchError) IsHarnessError() bool { return true }

// PrematureExitError indicates the server process exited before becoming
// ready, typically a missing dependency or fatal startup error.
type PrematureExitError struct {
	ExitCode int
	Stderr   string
}

func (e *PrematureExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("server exited during startup (exit %d): %s", e.ExitCode, e.Stderr)
	}

	return fmt.Sprintf("server exited during startup (exit %d)", e.ExitCode)
}

// IsHarnessError implements HarnessError.
func (e *PrematureExitError) IsHarnessError() bool { return true }

// FramingError indicates a malformed or truncated frame header, or a body
// shorter than its declared Content-Length.
type FramingError struct {
	Reason string
	Err    error
}

func (e *FramingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("framing error: %s: %v", e.Reason, e.Err)
	}

	return fmt.Sprintf("framing error: %s", e.Reason)
}

func (e *FramingError) Unwrap() error {
	return e.Err
}

// IsHarnessError implements HarnessError.
func (e *FramingError) IsHarnessError() bool { return true }

// DecodingError indicates a frame body that is not valid JSON-RPC.
// The raw body is preserved for diagnostics.
type DecodingError struct {
	Raw []byte
	Err error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("failed to decode frame body: %v (raw: %q)", e.Err, e.Raw)
}

func (e *DecodingError) Unwrap() error {
	return e.Err
}

// IsHarnessError implements HarnessError.
func (e *DecodingError) IsHarnessError() bool { return true }

// EncodingError indicates an outgoing message could not be serialized.
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("failed to encode message: %v", e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// IsHarnessError implements HarnessError.
func (e *EncodingError) IsHarnessError() bool { return true }

// TimeoutError indicates no matching response arrived within the budget.
// The session is left intact; the caller decides whether to retry or close.
type TimeoutError struct {
	Method  string
	Timeout time.Duration
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no response to %q within %s (waited %s)", e.Method, e.Timeout, e.Elapsed)
}

// IsHarnessError implements HarnessError.
func (e *TimeoutError) IsHarnessError() bool { return true }

// ProcessExitedError indicates the server process ended while a call was
// pending. Stderr carries the tail of the diagnostic stream when available.
type ProcessExitedError struct {
	ExitCode int
	Stderr   string
}

func (e *ProcessExitedError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("server process exited (exit %d): %s", e.ExitCode, e.Stderr)
	}

	return fmt.Sprintf("server process exited (exit %d)", e.ExitCode)
}

// IsHarnessError implements HarnessError.
func (e *ProcessExitedError) IsHarnessError() bool { return true }
