// Package client implements the request/response correlation layer and the
// session-level protocol state machine on top of the frame codec and the
// process session.
package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lspdbg/lspdbg-go/internal/errors"
	"github.com/lspdbg/lspdbg-go/internal/frame"
	"github.com/lspdbg/lspdbg-go/internal/message"
)

// Lifecycle methods the state machine treats specially. The gate controls
// what the client will send, never which responses it will accept.
const (
	methodInitialize = "initialize"
	methodShutdown   = "shutdown"
	methodExit       = "exit"
)

// Default budgets for the cooperative shutdown sequence in Close.
const (
	DefaultShutdownTimeout = 2 * time.Second
	DefaultTerminateGrace  = 2 * time.Second
)

// State is the protocol-level lifecycle of the client.
type State int32

const (
	// Uninitialized means no initialize request has been sent yet.
	Uninitialized State = iota

	// Initializing means initialize was sent and its response is awaited.
	Initializing

	// Ready means the server acknowledged initialize.
	Ready

	// ShuttingDown means a shutdown request has been sent.
	ShuttingDown

	// Closed means the session has been terminated.
	Closed
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case ShuttingDown:
		return "shutting_down"
	case Closed:
		return "closed"
	default:
		return "uninitialized"
	}
}

// Session is the slice of the process session the protocol client borrows:
// the writable input stream, the readable output stream, and exit signals.
// The client never owns the process itself.
type Session interface {
	io.Writer
	Output() io.Reader
	Exited() <-chan struct{}
	ExitCode() int
	Alive() bool
	Terminate(grace time.Duration) error
}

// ServerEvent is a frame arriving from the server that is not a direct
// reply to a pending call: a notification, or a server-initiated request
// (ID set in that case).
type ServerEvent struct {
	Method string
	Params json.RawMessage
	ID     *int64
}

// EventObserver receives asynchronous server events. It runs on the frame
// dispatch goroutine; a slow observer delays dispatch, so keep it cheap.
type EventObserver func(ServerEvent)

// Config assembles a Client's collaborators.
type Config struct {
	Logger   *slog.Logger
	Session  Session
	Observer EventObserver

	// StderrTail, when set, supplies diagnostic output to attach to
	// process-exit errors.
	StderrTail func() string

	// ShutdownTimeout bounds the cooperative shutdown call in Close.
	ShutdownTimeout time.Duration

	// TerminateGrace is the SIGTERM-to-SIGKILL budget used by Close.
	TerminateGrace time.Duration
}

// callResult is what a pending call eventually receives: a matched frame
// or the decode error of the frame that should have been the reply.
type callResult struct {
	frame *message.Frame
	err   error
}

// pendingCall tracks an outstanding request awaiting its response.
type pendingCall struct {
	id     int64
	method string
	sentAt time.Time
	result chan callResult
}

// Client correlates responses to requests by identifier, routes
// asynchronous server events, and enforces per-call timeouts.
//
// Identifiers are strictly increasing and scoped to one Client instance, so
// a late response to an abandoned identifier is discarded rather than
// misattributed, and concurrent sessions never collide.
type Client struct {
	log      *slog.Logger
	session  Session
	writer   *frame.Writer
	observer EventObserver
	tail     func() string

	shutdownTimeout time.Duration
	terminateGrace  time.Duration

	seq   atomic.Int64
	state atomic.Int32

	pendingMu sync.Mutex
	pending   map[int64]*pendingCall

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// New creates a protocol client over an established session. Call Start to
// begin frame dispatch.
func New(cfg Config) *Client {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}

	terminateGrace := cfg.TerminateGrace
	if terminateGrace <= 0 {
		terminateGrace = DefaultTerminateGrace
	}

	return &Client{
		log:             log.With("component", "protocol_client"),
		session:         cfg.Session,
		writer:          frame.NewWriter(cfg.Session),
		observer:        cfg.Observer,
		tail:            cfg.StderrTail,
		shutdownTimeout: shutdownTimeout,
		terminateGrace:  terminateGrace,
		pending:         make(map[int64]*pendingCall, 4),
		done:            make(chan struct{}),
	}
}

// Start launches the dispatch goroutine: the single consumer of the
// session's output stream. Frames are processed strictly in arrival order.
func (c *Client) Start() {
	c.wg.Add(1)

	go c.dispatchLoop()
}

// State reports the protocol state. The state gates which request types the
// client will send; responses are correlated regardless of state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// NextID peeks at the identifier the next Call would use. Test hook.
func (c *Client) NextID() int64 {
	return c.seq.Load() + 1
}

// Call sends a request and blocks until the matching response arrives, the
// timeout elapses, or the session ends.
//
// Asynchronous frames interleaved before the matching response are routed
// to the event observer and do not consume the timeout budget reset: the
// budget covers the whole wait, so a stream of notifications cannot defeat
// it. A timed-out call leaves the session usable; the caller decides
// whether to retry, continue, or close.
func (c *Client) Call(ctx context.Context, method string, params any, timeout time.Duration) (*message.Frame, error) {
	if err := c.gateRequest(method); err != nil {
		return nil, err
	}

	id := c.seq.Add(1)

	pc := &pendingCall{
		id:     id,
		method: method,
		sentAt: time.Now(),
		result: make(chan callResult, 1),
	}

	c.pendingMu.Lock()
	c.pending[id] = pc
	c.pendingMu.Unlock()

	c.log.Debug("Sending request", "id", id, "method", method, "timeout", timeout)

	if err := c.writer.Write(message.NewRequest(id, method, params)); err != nil {
		c.unregister(id)
		c.abortSend(method)

		c.log.Error("Failed to send request", "id", id, "method", method, "error", err)

		return nil, err
	}

	if method == methodShutdown {
		// Ready -> ShuttingDown happens on send, per the protocol.
		c.state.CompareAndSwap(int32(Ready), int32(ShuttingDown))
	}

	select {
	case res := <-pc.result:
		if res.err != nil {
			c.abortSend(method)

			return nil, res.err
		}

		c.settle(method, res.frame)
		c.log.Debug("Request resolved", "id", id, "method", method,
			"elapsed", time.Since(pc.sentAt), "is_error", res.frame.Error != nil)

		return res.frame, nil

	case <-time.After(timeout):
		c.unregister(id)
		c.abortSend(method)

		elapsed := time.Since(pc.sentAt)
		c.log.Warn("Request timed out", "id", id, "method", method, "elapsed", elapsed)

		return nil, &errors.TimeoutError{Method: method, Timeout: timeout, Elapsed: elapsed}

	case <-c.session.Exited():
		c.unregister(id)

		return nil, c.processExited()

	case <-c.done:
		// Close has already terminated the session, so a call it
		// interrupted resolves the same way as a process exit.
		c.unregister(id)

		return nil, c.processExited()

	case <-ctx.Done():
		c.unregister(id)
		c.abortSend(method)

		return nil, ctx.Err()
	}
}

// Notify sends a notification frame. No identifier is allocated, no
// pending call is created, and no reply is expected.
func (c *Client) Notify(_ context.Context, method string, params any) error {
	if err := c.gateNotification(method); err != nil {
		return err
	}

	c.log.Debug("Sending notification", "method", method)

	return c.writer.Write(message.NewNotification(method, params))
}

// Close runs the cooperative shutdown sequence (shutdown call, exit
// notification) under a bounded timeout, then unconditionally terminates
// the session. Best-effort: failures along the way are logged, never
// returned, and any still-pending call resolves with a process-exit
// outcome rather than hanging.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.log.Debug("Closing client", "state", c.State())

		if c.State() == Ready {
			if _, err := c.Call(ctx, methodShutdown, nil, c.shutdownTimeout); err != nil {
				c.log.Warn("Shutdown request failed during close", "error", err)
			}

			if err := c.Notify(ctx, methodExit, nil); err != nil {
				c.log.Warn("Exit notification failed during close", "error", err)
			}
		}

		if err := c.session.Terminate(c.terminateGrace); err != nil {
			c.log.Warn("Terminate failed during close", "error", err)
		}

		c.state.Store(int32(Closed))
		close(c.done)
		c.wg.Wait()

		c.log.Info("Client closed")
	})

	return nil
}

// dispatchLoop is the sole consumer of the output stream. It resolves
// pending calls by identifier and forwards everything else to the event
// observer, preserving arrival order.
func (c *Client) dispatchLoop() {
	defer c.wg.Done()
	defer c.log.Debug("Dispatch loop stopped")

	r := frame.NewReader(c.session.Output())

	for {
		body, err := r.Next()
		if err != nil {
			if err != io.EOF {
				// Framing errors cannot be realigned; the stream is done.
				c.log.Error("Frame read failed", "error", err)
				c.failPending(err)
			}

			break
		}

		f, err := message.Decode(body)
		if err != nil {
			// The body was fully consumed, so the stream stays aligned.
			// Report to the in-flight call and keep reading.
			c.log.Warn("Undecodable frame body", "error", err)
			c.failPending(err)

			continue
		}

		c.dispatch(f)
	}

	// Stream ended: resolve anything still pending as a process exit.
	c.failPending(nil)
}

func (c *Client) dispatch(f *message.Frame) {
	switch f.Kind() {
	case message.KindResponse:
		c.resolve(f)

	case message.KindNotification, message.KindRequest:
		c.log.Debug("Server event", "method", f.Method, "kind", f.Kind().String())

		if c.observer != nil {
			c.observer(ServerEvent{Method: f.Method, Params: f.Params, ID: f.ID})
		}

	case message.KindInvalid:
		c.log.Debug("Discarding frame with neither id nor method")
	}
}

// resolve delivers a response to its pending call. A response whose id
// matches no pending call (late reply to a timed-out request) is discarded
// silently without affecting other pending calls.
func (c *Client) resolve(f *message.Frame) {
	c.pendingMu.Lock()

	pc, ok := c.pending[*f.ID]
	if ok {
		delete(c.pending, *f.ID)
	}

	c.pendingMu.Unlock()

	if !ok {
		c.log.Debug("Discarding unmatched response", "id", *f.ID)

		return
	}

	// Buffered channel and map ownership make this send safe.
	pc.result <- callResult{frame: f}
}

// failPending resolves every outstanding call with err, or with the
// process-exit outcome when err is nil.
func (c *Client) failPending(err error) {
	c.pendingMu.Lock()

	calls := make([]*pendingCall, 0, len(c.pending))
	for id, pc := range c.pending {
		calls = append(calls, pc)
		delete(c.pending, id)
	}

	c.pendingMu.Unlock()

	for _, pc := range calls {
		outcome := err
		if outcome == nil {
			outcome = c.processExited()
		}

		select {
		case pc.result <- callResult{err: outcome}:
		default:
		}
	}
}

func (c *Client) unregister(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// processExited builds the exit outcome, waiting briefly for the exit code
// to be recorded when the stream EOF races ahead of process reaping.
func (c *Client) processExited() *errors.ProcessExitedError {
	select {
	case <-c.session.Exited():
	case <-time.After(time.Second):
	}

	perr := &errors.ProcessExitedError{ExitCode: c.session.ExitCode()}
	if c.tail != nil {
		perr.Stderr = c.tail()
	}

	return perr
}

// gateRequest enforces which request types may be sent in the current
// state. Initialize moves Uninitialized -> Initializing here; the Ready
// transition happens when its response arrives (see settle).
func (c *Client) gateRequest(method string) error {
	switch method {
	case methodInitialize:
		if !c.state.CompareAndSwap(int32(Uninitialized), int32(Initializing)) {
			return errors.ErrNotReady
		}

		return nil

	case methodShutdown:
		if c.State() != Ready {
			return c.gateViolation()
		}

		return nil

	default:
		if c.State() != Ready {
			return c.gateViolation()
		}

		return nil
	}
}

func (c *Client) gateNotification(method string) error {
	if method == methodExit {
		// Exit is the one message that is legal on the way down.
		if c.State() == Closed {
			return errors.ErrClientClosed
		}

		return nil
	}

	if c.State() != Ready {
		return c.gateViolation()
	}

	return nil
}

func (c *Client) gateViolation() error {
	if c.State() == Closed {
		return errors.ErrClientClosed
	}

	return errors.ErrNotReady
}

// settle applies state transitions driven by received responses.
func (c *Client) settle(method string, f *message.Frame) {
	if method != methodInitialize {
		return
	}

	if f.Error == nil {
		c.state.CompareAndSwap(int32(Initializing), int32(Ready))
	} else {
		// Failed initialize is retryable.
		c.state.CompareAndSwap(int32(Initializing), int32(Uninitialized))
	}
}

// abortSend reverts the Initializing transition when an initialize request
// never produced a response (send failure, timeout, cancellation).
func (c *Client) abortSend(method string) {
	if method == methodInitialize {
		c.state.CompareAndSwap(int32(Initializing), int32(Uninitialized))
	}
}
