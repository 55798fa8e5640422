package lspdbg

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lspdbg/lspdbg-go/internal/frame"
	"github.com/lspdbg/lspdbg-go/internal/message"
)

// The end-to-end tests run against a scripted language server implemented by
// this very test binary: helperOptions re-execs it with -test.run targeting
// TestHelperLSPServer, which never returns control to the test framework.

const (
	helperEnv     = "LSPDBG_HELPER"
	helperModeEnv = "LSPDBG_FAKE_MODE"
)

// Fake server behaviors, selected per test.
const (
	modeNormal = "normal"  // answers the full debug sequence
	modeMute   = "mute"    // reads frames, never replies
	modeCrash  = "crash"   // exits 7 upon the first request
	modeDieNow = "die-now" // exits 12 before reading anything
	modeChatty = "chatty"  // streams notifications before each response
)

func TestHelperLSPServer(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		t.Skip("helper process entry point, not a test")
	}

	runFakeServer(os.Getenv(helperModeEnv))
	os.Exit(0)
}

func helperOptions(mode string, extra ...Option) []Option {
	opts := []Option{
		WithServerCommand(os.Args[0], "-test.run=TestHelperLSPServer$"),
		WithEnv(map[string]string{helperEnv: "1", helperModeEnv: mode}),
		WithStartupGrace(50 * time.Millisecond),
		WithShutdownTimeout(time.Second),
		WithTerminateGrace(time.Second),
	}

	return append(opts, extra...)
}

func runFakeServer(mode string) {
	fmt.Fprintln(os.Stderr, "fake-server: starting up")

	if mode == modeDieNow {
		fmt.Fprintln(os.Stderr, "fake-server: FATAL missing configuration")
		os.Exit(12)
	}

	r := frame.NewReader(os.Stdin)
	w := frame.NewWriter(os.Stdout)

	reply := func(id *int64, result any) {
		_ = w.Write(map[string]any{"jsonrpc": "2.0", "id": *id, "result": result})
	}

	for {
		body, err := r.Next()
		if err != nil {
			os.Exit(0)
		}

		f, err := message.Decode(body)
		if err != nil {
			continue
		}

		if f.ID != nil && mode == modeCrash {
			fmt.Fprintln(os.Stderr, "fake-server: ERROR irrecoverable state, aborting")
			os.Exit(7)
		}

		if mode == modeMute {
			continue
		}

		switch f.Method {
		case "initialize":
			if mode == modeChatty {
				_ = w.Write(message.NewNotification("window/logMessage",
					map[string]any{"type": 3, "message": "warming caches"}))
				_ = w.Write(message.NewNotification("window/logMessage",
					map[string]any{"type": 3, "message": "caches warm"}))
			}

			reply(f.ID, map[string]any{
				"capabilities": map[string]any{
					"completionProvider": map[string]any{"triggerCharacters": []string{":"}},
				},
				"serverInfo": map[string]any{"name": "fake-lsp", "version": "9.9"},
			})

		case "textDocument/didOpen":
			fmt.Fprintln(os.Stderr, "fake-server: WARN slow parse on open")

		case "textDocument/completion":
			reply(f.ID, map[string]any{
				"isIncomplete": false,
				"items": []map[string]any{
					{"label": "alpha", "kind": 1},
					{"label": "beta", "kind": 1},
				},
			})

		case "shutdown":
			reply(f.ID, nil)

		case "exit":
			os.Exit(0)

		default:
			if f.ID != nil {
				_ = w.Write(map[string]any{
					"jsonrpc": "2.0",
					"id":      *f.ID,
					"error":   map[string]any{"code": -32601, "message": "method not found"},
				})
			}
		}
	}
}

func TestClient_FullSession(t *testing.T) {
	ctx := context.Background()

	var mu sync.Mutex

	var stderrLines []string

	c := NewClient(helperOptions(modeNormal,
		WithStderrKeywords("WARN", "ERROR"),
		WithStderrObserver(func(e StderrEvent) {
			mu.Lock()
			defer mu.Unlock()

			stderrLines = append(stderrLines, e.Line)
		}),
	)...)

	require.NoError(t, c.Start(ctx))
	require.True(t, c.ServerAlive())
	require.NotEmpty(t, c.SessionID())

	result, err := c.Initialize(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, result.ServerInfo)
	require.Equal(t, "fake-lsp", result.ServerInfo.Name)
	require.Equal(t, Ready, c.State())

	require.NoError(t, c.Initialized(ctx))

	doc := FileURI("/tmp/scratch.md")
	require.NoError(t, c.DidOpen(ctx, doc, "markdown", ":snip"))

	list, err := c.Completion(ctx, doc, 0, 5)
	require.NoError(t, err)
	require.Len(t, list.Items, 2)
	require.Equal(t, "alpha", list.Items[0].Label)

	require.NoError(t, c.Close(ctx))
	require.Equal(t, Closed, c.State())
	require.False(t, c.ServerAlive())

	// The WARN line from didOpen was classified; the tail kept everything.
	mu.Lock()
	defer mu.Unlock()

	require.NotEmpty(t, stderrLines)
	require.Contains(t, stderrLines[len(stderrLines)-1], "slow parse")
	require.Contains(t, c.StderrTail(), "starting up")
}

func TestClient_InterleavedNotificationsObserved(t *testing.T) {
	ctx := context.Background()

	events := make(chan ServerEvent, 16)

	c := NewClient(helperOptions(modeChatty,
		WithEventObserver(func(e ServerEvent) { events <- e }),
	)...)

	require.NoError(t, c.Start(ctx))

	t.Cleanup(func() { _ = c.Close(context.Background()) })

	_, err := c.Initialize(ctx, nil)
	require.NoError(t, err)

	// Both notifications interleaved before the initialize response arrive
	// in order and exactly once.
	for _, want := range []string{"warming caches", "caches warm"} {
		select {
		case e := <-events:
			require.Equal(t, "window/logMessage", e.Method)
			require.Contains(t, string(e.Params), want)
		case <-time.After(2 * time.Second):
			t.Fatalf("notification %q not observed", want)
		}
	}
}

func TestClient_CallTimeoutKeepsSessionUsable(t *testing.T) {
	ctx := context.Background()

	c := NewClient(helperOptions(modeMute)...)
	require.NoError(t, c.Start(ctx))

	t.Cleanup(func() { _ = c.Close(context.Background()) })

	start := time.Now()
	_, err := c.CallTimeout(ctx, "initialize", DefaultInitializeParams(""), 150*time.Millisecond)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	require.Equal(t, "initialize", timeoutErr.Method)
	require.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)

	// The server never answered but is still alive; the handshake can be
	// retried on the same session.
	require.True(t, c.ServerAlive())
	require.Equal(t, Uninitialized, c.State())
}

func TestClient_ServerCrashDuringCall(t *testing.T) {
	ctx := context.Background()

	c := NewClient(helperOptions(modeCrash)...)
	require.NoError(t, c.Start(ctx))

	t.Cleanup(func() { _ = c.Close(context.Background()) })

	_, err := c.Initialize(ctx, nil)

	var exitErr *ProcessExitedError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 7, exitErr.ExitCode)

	// After Close the monitor has drained stderr completely, so the tail
	// holds the server's last words.
	require.NoError(t, c.Close(ctx))
	require.Contains(t, c.StderrTail(), "irrecoverable state")
}

func TestClient_PrematureExitFailsStart(t *testing.T) {
	c := NewClient(helperOptions(modeDieNow, WithStartupGrace(2*time.Second))...)

	err := c.Start(context.Background())

	var exitErr *PrematureExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 12, exitErr.ExitCode)
	require.Contains(t, exitErr.Stderr, "FATAL missing configuration")
}

func TestClient_StartErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing binary", func(t *testing.T) {
		c := NewClient(WithServerCommand("no-such-language-server-xyz"))

		err := c.Start(ctx)

		var launchErr *LaunchError
		require.ErrorAs(t, err, &launchErr)
	})

	t.Run("no command configured", func(t *testing.T) {
		c := NewClient()
		require.Error(t, c.Start(ctx))
	})

	t.Run("double start", func(t *testing.T) {
		c := NewClient(helperOptions(modeNormal)...)
		require.NoError(t, c.Start(ctx))

		t.Cleanup(func() { _ = c.Close(context.Background()) })

		require.ErrorIs(t, c.Start(ctx), ErrAlreadyStarted)
	})
}

func TestClient_UseBeforeStart(t *testing.T) {
	ctx := context.Background()
	c := NewClient(helperOptions(modeNormal)...)

	_, err := c.Call(ctx, "initialize", nil)
	require.ErrorIs(t, err, ErrNotRunning)

	require.ErrorIs(t, c.Notify(ctx, "initialized", nil), ErrNotRunning)
	require.Equal(t, Uninitialized, c.State())
	require.NoError(t, c.Close(ctx))
}

func TestClient_CloseIdempotent(t *testing.T) {
	ctx := context.Background()

	c := NewClient(helperOptions(modeNormal)...)
	require.NoError(t, c.Start(ctx))

	_, err := c.Initialize(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, c.Close(ctx))
	require.NoError(t, c.Close(ctx))

	_, err = c.Call(ctx, "textDocument/completion", nil)
	require.ErrorIs(t, err, ErrClientClosed)
}

func TestClient_StateGates(t *testing.T) {
	ctx := context.Background()

	c := NewClient(helperOptions(modeNormal)...)
	require.NoError(t, c.Start(ctx))

	t.Cleanup(func() { _ = c.Close(context.Background()) })

	// Requests other than initialize are rejected until the handshake.
	_, err := c.Completion(ctx, FileURI("/tmp/x.md"), 0, 0)
	require.ErrorIs(t, err, ErrNotReady)

	require.ErrorIs(t, c.Initialized(ctx), ErrNotReady)

	_, err = c.Initialize(ctx, nil)
	require.NoError(t, err)

	// A second handshake on the same session is rejected.
	_, err = c.Initialize(ctx, nil)
	require.ErrorIs(t, err, ErrNotReady)
}

func TestWithClient_Lifecycle(t *testing.T) {
	ctx := context.Background()

	var c *Client

	err := WithClient(ctx, func(inner *Client) error {
		c = inner

		result, err := inner.Initialize(ctx, nil)
		if err != nil {
			return err
		}

		if result.ServerInfo.Name != "fake-lsp" {
			return fmt.Errorf("unexpected server %q", result.ServerInfo.Name)
		}

		return inner.Initialized(ctx)
	}, helperOptions(modeNormal)...)
	require.NoError(t, err)

	// Closed even though the callback succeeded.
	require.Equal(t, Closed, c.State())
	require.False(t, c.ServerAlive())
}

func TestWithClient_CallbackErrorPropagates(t *testing.T) {
	ctx := context.Background()

	wantErr := fmt.Errorf("probe failed")

	err := WithClient(ctx, func(*Client) error {
		return wantErr
	}, helperOptions(modeNormal)...)
	require.ErrorIs(t, err, wantErr)
}

func TestClient_RawCallSurfacesServerError(t *testing.T) {
	ctx := context.Background()

	c := NewClient(helperOptions(modeNormal)...)
	require.NoError(t, c.Start(ctx))

	t.Cleanup(func() { _ = c.Close(context.Background()) })

	_, err := c.Initialize(ctx, nil)
	require.NoError(t, err)

	resp, err := c.Call(ctx, "workspace/unknownThing", nil)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestClient_InitializeParamsOnTheWire(t *testing.T) {
	params := DefaultInitializeParams("/tmp/workspace")

	raw, err := json.Marshal(params)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	info, ok := decoded["clientInfo"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, clientName, info["name"])

	rootURI, ok := decoded["rootUri"].(string)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(rootURI, "file://"), "rootUri %q", rootURI)
	require.Equal(t, string(FileURI("/tmp/workspace")), rootURI)
}
