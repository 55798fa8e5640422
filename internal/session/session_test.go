package session

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lspdbg/lspdbg-go/internal/errors"
)

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStart_CommandNotFound(t *testing.T) {
	s := New(nopLogger(), "definitely-not-a-real-binary-12345", nil)

	err := s.Start(context.Background(), 100*time.Millisecond)
	require.Error(t, err)

	var launchErr *errors.LaunchError
	require.ErrorAs(t, err, &launchErr)
	require.Equal(t, "definitely-not-a-real-binary-12345", launchErr.Command)
}

func TestStart_PrematureExitCarriesCode(t *testing.T) {
	s := New(nopLogger(), "sh", []string{"-c", "echo doomed >&2; exit 3"})

	err := s.Start(context.Background(), 2*time.Second)
	require.Error(t, err)

	var exitErr *errors.PrematureExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 3, exitErr.ExitCode)
	require.Contains(t, exitErr.Stderr, "doomed")
}

func TestSession_EchoRoundTrip(t *testing.T) {
	s := New(nopLogger(), "cat", nil)

	require.NoError(t, s.Start(context.Background(), 50*time.Millisecond))
	require.True(t, s.Alive())
	require.Equal(t, Running, s.State())

	_, err := s.Write([]byte("hello\n"))
	require.NoError(t, err)
	require.NoError(t, s.CloseInput())

	out, err := io.ReadAll(s.Output())
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(out))

	select {
	case <-s.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("cat did not exit after stdin close")
	}

	require.False(t, s.Alive())
	require.Equal(t, 0, s.ExitCode())
}

func TestWrite_AfterExitFails(t *testing.T) {
	s := New(nopLogger(), "true", nil)

	// `true` exits immediately, so Start reports a premature exit.
	err := s.Start(context.Background(), 500*time.Millisecond)

	var exitErr *errors.PrematureExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 0, exitErr.ExitCode)

	_, err = s.Write([]byte("late"))
	require.ErrorIs(t, err, errors.ErrNotRunning)
}

func TestTerminate_GracefulThenIdempotent(t *testing.T) {
	s := New(nopLogger(), "sleep", []string{"60"})

	require.NoError(t, s.Start(context.Background(), 50*time.Millisecond))

	start := time.Now()
	require.NoError(t, s.Terminate(2*time.Second))
	require.Less(t, time.Since(start), 2*time.Second, "SIGTERM should end sleep before the kill deadline")

	require.Equal(t, Exited, s.State())

	// Terminating an exited session is a no-op.
	require.NoError(t, s.Terminate(time.Second))
}

func TestTerminate_KillsStubbornProcess(t *testing.T) {
	// The child traps SIGTERM, forcing the kill path.
	s := New(nopLogger(), "sh", []string{"-c", `trap "" TERM; sleep 60`})

	require.NoError(t, s.Start(context.Background(), 100*time.Millisecond))

	done := make(chan struct{})

	go func() {
		defer close(done)

		_ = s.Terminate(200 * time.Millisecond)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Terminate did not return after kill")
	}

	require.False(t, s.Alive())
}

func TestTerminate_NeverStarted(t *testing.T) {
	s := New(nopLogger(), "cat", nil)
	require.NoError(t, s.Terminate(time.Second))
}

func TestSessionIDsAreUnique(t *testing.T) {
	a := New(nopLogger(), "cat", nil)
	b := New(nopLogger(), "cat", nil)
	require.NotEqual(t, a.ID(), b.ID())
}
