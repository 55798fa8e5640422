package lspdbg

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lspdbg/lspdbg-go/internal/client"
	"github.com/lspdbg/lspdbg-go/internal/session"
	"github.com/lspdbg/lspdbg-go/internal/stderrmon"
)

// Client drives one language-server process over stdio. It owns the process
// lifecycle, the framed protocol exchange on stdin/stdout, and the stderr
// monitor.
//
// A Client is single-use: Start it once, Close it once. Call and Notify are
// safe for concurrent use after Start.
type Client struct {
	opts *Options

	mu      sync.Mutex
	started bool
	session *session.Session
	monitor *stderrmon.Monitor
	core    *client.Client
}

// NewClient creates an unstarted client. The server is not launched until
// Start.
func NewClient(opts ...Option) *Client {
	return &Client{opts: applyOptions(opts)}
}

// Start launches the configured server process, attaches the stderr monitor,
// and begins frame dispatch. A server that exits within the startup grace
// window fails with PrematureExitError; a missing binary fails with
// LaunchError.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return ErrAlreadyStarted
	}

	if c.opts.ServerCommand == "" {
		return fmt.Errorf("no server command configured (use WithServerCommand)")
	}

	log := c.opts.Logger
	if log == nil {
		log = NopLogger()
	}

	sess := session.New(log, c.opts.ServerCommand, c.opts.ServerArgs)

	if len(c.opts.Env) > 0 {
		env := make([]string, 0, len(c.opts.Env))
		for k, v := range c.opts.Env {
			env = append(env, k+"="+v)
		}

		sess.SetEnv(env)
	}

	if c.opts.Cwd != "" {
		sess.SetCwd(c.opts.Cwd)
	}

	if err := sess.Start(ctx, c.opts.StartupGrace); err != nil {
		return err
	}

	monitor := stderrmon.New(log, c.opts.StderrClassifier, c.opts.StderrObserver)
	monitor.Start(sess.Diagnostics())

	core := client.New(client.Config{
		Logger:          log,
		Session:         sess,
		Observer:        c.opts.EventObserver,
		StderrTail:      monitor.Tail,
		ShutdownTimeout: c.opts.ShutdownTimeout,
		TerminateGrace:  c.opts.TerminateGrace,
	})
	core.Start()

	c.session = sess
	c.monitor = monitor
	c.core = core
	c.started = true

	return nil
}

// Call sends a request and blocks until the matching response arrives or
// the configured call timeout elapses. Use CallTimeout to override the
// budget for a single call.
//
// A returned Message may still carry a server-side Error; transport-level
// failures (timeout, process exit, framing) come back as the error return.
func (c *Client) Call(ctx context.Context, method string, params any) (*Message, error) {
	return c.CallTimeout(ctx, method, params, c.opts.CallTimeout)
}

// CallTimeout is Call with an explicit response budget. The budget covers
// the whole wait: interleaved notifications are routed to the event observer
// without resetting it. A timed-out call leaves the session usable.
func (c *Client) CallTimeout(ctx context.Context, method string, params any, timeout time.Duration) (*Message, error) {
	core, err := c.running()
	if err != nil {
		return nil, err
	}

	return core.Call(ctx, method, params, timeout)
}

// Notify sends a notification. No identifier is allocated and no response
// is awaited.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	core, err := c.running()
	if err != nil {
		return err
	}

	return core.Notify(ctx, method, params)
}

// Close shuts the session down: a cooperative shutdown/exit exchange when
// the protocol is Ready, then unconditional process termination. Close is
// idempotent and best-effort; it never returns a shutdown-sequence error.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	core := c.core
	monitor := c.monitor
	c.mu.Unlock()

	if core == nil {
		return nil
	}

	err := core.Close(ctx)

	// The terminated process closed its stderr pipe, so the monitor drains
	// to EOF and exits.
	monitor.Wait()

	return err
}

// State reports the protocol state. Before Start it is Uninitialized.
func (c *Client) State() State {
	c.mu.Lock()
	core := c.core
	c.mu.Unlock()

	if core == nil {
		return Uninitialized
	}

	return core.State()
}

// SessionID returns the launched session's identifier for log correlation,
// or "" before Start.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return ""
	}

	return c.session.ID()
}

// ServerAlive reports whether the server process is still running.
func (c *Client) ServerAlive() bool {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()

	return sess != nil && sess.Alive()
}

// ServerExited returns a channel closed when the server process ends.
// Only valid after Start.
func (c *Client) ServerExited() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil
	}

	return c.session.Exited()
}

// ServerExitCode returns the exit code recorded for the server process.
// Only meaningful once the process has exited.
func (c *Client) ServerExitCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return 0
	}

	return c.session.ExitCode()
}

// StderrTail returns the server's buffered diagnostic output collected so
// far.
func (c *Client) StderrTail() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.monitor == nil {
		return ""
	}

	return c.monitor.Tail()
}

// running returns the protocol core, or an error before Start.
func (c *Client) running() (*client.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.core == nil {
		return nil, ErrNotRunning
	}

	return c.core, nil
}
