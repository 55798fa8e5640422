// Package session owns the lifecycle of the language-server child process:
// launch, liveness, and termination, plus the three byte streams the rest
// of the harness borrows.
package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/lspdbg/lspdbg-go/internal/errors"
)

// State is the lifecycle of the child process.
type State int32

const (
	// NotStarted means Start has not been called.
	NotStarted State = iota

	// Running means the process is alive and accepting input.
	Running

	// Terminating means shutdown has begun; the input stream is closed to
	// writes but output may still be drained.
	Terminating

	// Exited means the process has ended and its exit code is known.
	Exited
)

// prematureStderrLimit caps how much stderr is attached to a
// PrematureExitError.
const prematureStderrLimit = 8 * 1024

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Terminating:
		return "terminating"
	case Exited:
		return "exited"
	default:
		return "not_started"
	}
}

// Session manages one child process and exclusively owns its handle and all
// three stream ends. Callers borrow the streams; they never own the process.
type Session struct {
	log *slog.Logger

	id      string
	command string
	args    []string
	env     []string
	cwd     string

	cmd    *exec.Cmd
	stdin  *os.File
	stdout *os.File
	stderr *os.File

	state    atomic.Int32
	exitCode atomic.Int32
	exited   chan struct{}

	termOnce sync.Once
}

// New creates a session for the given command. The command is not launched
// until Start.
func New(log *slog.Logger, command string, args []string) *Session {
	id := ulid.Make().String()

	return &Session{
		log:     log.With("component", "session", "session_id", id),
		id:      id,
		command: command,
		args:    args,
		exited:  make(chan struct{}),
	}
}

// SetEnv supplies extra environment variables (appended to the parent's).
func (s *Session) SetEnv(env []string) { s.env = env }

// SetCwd sets the child's working directory.
func (s *Session) SetCwd(cwd string) { s.cwd = cwd }

// ID returns the session's unique identifier, used for log correlation.
func (s *Session) ID() string { return s.id }

// Start launches the command, wiring input, output, and diagnostic streams,
// then watches for startupGrace: a process that has already exited by then
// fails with PrematureExitError carrying the observed exit code. This
// catches missing dependencies and fatal startup errors before any protocol
// exchange is attempted.
func (s *Session) Start(ctx context.Context, startupGrace time.Duration) error {
	path, err := exec.LookPath(s.command)
	if err != nil {
		s.log.Error("Server binary not found", "command", s.command, "error", err)

		return &errors.LaunchError{Command: s.command, Err: err}
	}

	// The command deliberately does not take ctx: the session outlives the
	// Start call and is torn down explicitly via Terminate.
	//nolint:gosec // G204: launching a caller-supplied server binary is the point
	cmd := exec.Command(path, s.args...)
	if s.cwd != "" {
		cmd.Dir = s.cwd
	}

	if len(s.env) > 0 {
		cmd.Env = append(os.Environ(), s.env...)
	}

	// Pipes are created by hand instead of cmd.StdinPipe and friends so that
	// exec.Cmd.Wait never closes our read ends: buffered output stays
	// drainable after the process exits, and readers see a plain EOF.
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return &errors.LaunchError{Command: s.command, Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return &errors.LaunchError{Command: s.command, Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		return &errors.LaunchError{Command: s.command, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	s.log.Info("Starting server process", "path", path, "args", s.args)

	if err := cmd.Start(); err != nil {
		s.log.Error("Failed to start server process", "error", err)

		return &errors.LaunchError{Command: s.command, Err: err}
	}

	// Close the child's ends in the parent so EOFs propagate.
	_ = stdinR.Close()
	_ = stdoutW.Close()
	_ = stderrW.Close()

	s.cmd = cmd
	s.stdin = stdinW
	s.stdout = stdoutR
	s.stderr = stderrR
	s.state.Store(int32(Running))

	s.log.Info("Server process started", "pid", cmd.Process.Pid)

	go s.wait()

	// Liveness grace period: wait on process exit, not a fixed sleep loop.
	select {
	case <-s.exited:
		code := s.ExitCode()
		tail, _ := io.ReadAll(io.LimitReader(s.stderr, prematureStderrLimit))
		s.log.Error("Server exited during startup grace period", "exit_code", code)

		return &errors.PrematureExitError{ExitCode: code, Stderr: strings.TrimSpace(string(tail))}

	case <-time.After(startupGrace):
		return nil

	case <-ctx.Done():
		_ = s.Terminate(0)

		return ctx.Err()
	}
}

// wait blocks on process exit, records the code, and broadcasts.
func (s *Session) wait() {
	err := s.cmd.Wait()

	code := 0

	if err != nil {
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1

			s.log.Debug("Process wait error", "error", err)
		}
	}

	s.exitCode.Store(int32(code))
	s.state.Store(int32(Exited))
	close(s.exited)

	s.log.Info("Server process exited", "exit_code", code)
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Alive reports whether the process is still running. Non-blocking; used
// before blocking reads to avoid waiting on a dead process's stream.
func (s *Session) Alive() bool {
	select {
	case <-s.exited:
		return false
	default:
		return s.State() == Running
	}
}

// Exited returns a channel closed when the process has ended.
func (s *Session) Exited() <-chan struct{} {
	return s.exited
}

// ExitCode returns the recorded exit code. Only meaningful once Exited.
func (s *Session) ExitCode() int {
	return int(s.exitCode.Load())
}

// Write sends bytes to the child's input stream. Writes are only valid
// while Running.
func (s *Session) Write(p []byte) (int, error) {
	if s.State() != Running {
		return 0, errors.ErrNotRunning
	}

	return s.stdin.Write(p)
}

// Output returns the child's output stream. Reads remain valid after exit
// until buffered frames are drained.
func (s *Session) Output() io.Reader {
	return s.stdout
}

// Diagnostics returns the child's stderr stream, read exclusively by the
// stderr monitor.
func (s *Session) Diagnostics() io.Reader {
	return s.stderr
}

// CloseInput closes the child's stdin, signalling end of input.
func (s *Session) CloseInput() error {
	if s.stdin == nil {
		return nil
	}

	return s.stdin.Close()
}

// Terminate requests a graceful shutdown (SIGTERM), then kills the process
// if it has not exited within grace. Idempotent: terminating an already
// exited or never-started session is a no-op.
func (s *Session) Terminate(grace time.Duration) error {
	if s.cmd == nil {
		return nil
	}

	select {
	case <-s.exited:
		return nil
	default:
	}

	s.termOnce.Do(func() {
		s.state.Store(int32(Terminating))
		s.log.Info("Terminating server process", "grace", grace)

		_ = s.CloseInput()

		if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			s.log.Debug("SIGTERM failed", "error", err)
		}

		select {
		case <-s.exited:
			return
		case <-time.After(grace):
		}

		s.log.Warn("Server did not exit within grace period, killing", "grace", grace)

		if err := s.cmd.Process.Kill(); err != nil {
			s.log.Debug("Kill failed", "error", err)
		}
	})

	<-s.exited

	return nil
}
