package errors

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "launch error",
			err:  &LaunchError{Command: "bkmr-lsp", Err: errors.New("no such file")},
			want: `failed to launch "bkmr-lsp": no such file`,
		},
		{
			name: "premature exit with stderr",
			err:  &PrematureExitError{ExitCode: 127, Stderr: "bkmr: not found"},
			want: "server exited during startup (exit 127): bkmr: not found",
		},
		{
			name: "premature exit without stderr",
			err:  &PrematureExitError{ExitCode: 1},
			want: "server exited during startup (exit 1)",
		},
		{
			name: "framing error",
			err:  &FramingError{Reason: "missing Content-Length header"},
			want: "framing error: missing Content-Length header",
		},
		{
			name: "decoding error preserves raw body",
			err:  &DecodingError{Raw: []byte("{oops"), Err: errors.New("invalid character 'o'")},
			want: `failed to decode frame body: invalid character 'o' (raw: "{oops")`,
		},
		{
			name: "timeout error",
			err:  &TimeoutError{Method: "textDocument/completion", Timeout: 2 * time.Second, Elapsed: 2 * time.Second},
			want: `no response to "textDocument/completion" within 2s (waited 2s)`,
		},
		{
			name: "process exited",
			err:  &ProcessExitedError{ExitCode: 143},
			want: "server process exited (exit 143)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.EqualError(t, tt.err, tt.want)
		})
	}
}

func TestUnwrap(t *testing.T) {
	launch := &LaunchError{Command: "srv", Err: io.ErrClosedPipe}
	require.ErrorIs(t, launch, io.ErrClosedPipe)

	framing := &FramingError{Reason: "truncated body", Err: io.ErrUnexpectedEOF}
	require.ErrorIs(t, framing, io.ErrUnexpectedEOF)

	decoding := &DecodingError{Raw: []byte("x"), Err: io.EOF}
	require.ErrorIs(t, decoding, io.EOF)
}

func TestHarnessErrorMarker(t *testing.T) {
	var err error = &TimeoutError{Method: "initialize", Timeout: time.Second, Elapsed: time.Second}

	var he HarnessError
	require.ErrorAs(t, err, &he)
	require.True(t, he.IsHarnessError())
}
