// Package lspdbg provides a diagnostic harness for language servers that
// speak JSON-RPC over stdio.
//
// The harness launches a server binary as a child process, frames and
// correlates JSON-RPC traffic on its standard streams, and keeps the stderr
// diagnostic stream under observation, so that protocol behavior can be
// exercised and inspected without an editor in the loop.
//
// # Basic Usage
//
// Create a client, start the server, and drive the protocol with the typed
// helpers:
//
//	ctx := context.Background()
//	client := lspdbg.NewClient(
//	    lspdbg.WithServerCommand("gopls"),
//	    lspdbg.WithLogger(slog.Default()),
//	)
//	if err := client.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close(ctx)
//
//	result, err := client.Initialize(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("server: %s\n", result.ServerInfo.Name)
//
// Arbitrary methods go through Call and Notify directly:
//
//	resp, err := client.Call(ctx, "workspace/symbol", params)
//
// # Lifecycle
//
// For scoped sessions, WithClient handles startup and cleanup:
//
//	err := lspdbg.WithClient(ctx, func(c *lspdbg.Client) error {
//	    if _, err := c.Initialize(ctx, nil); err != nil {
//	        return err
//	    }
//	    return c.Initialized(ctx)
//	}, lspdbg.WithServerCommand("bkmr-lsp"))
//
// # Stderr Observation
//
// The server's stderr is drained continuously on its own goroutine. Notable
// lines can be surfaced as they happen:
//
//	lspdbg.WithStderrKeywords("ERROR", "panic"),
//	lspdbg.WithStderrObserver(func(e lspdbg.StderrEvent) {
//	    fmt.Printf("[%s] %s\n", e.Tag, e.Line)
//	}),
//
// The full stderr tail is also attached to process-exit errors, so a server
// crash mid-call reports what the server said on the way down.
//
// # Error Handling
//
// Failures carry typed errors:
//
//	_, err := client.Call(ctx, "textDocument/completion", params)
//	var timeoutErr *lspdbg.TimeoutError
//	if errors.As(err, &timeoutErr) {
//	    // The session is still usable after a timeout.
//	}
//	var exitErr *lspdbg.ProcessExitedError
//	if errors.As(err, &exitErr) {
//	    log.Fatalf("server died (exit %d): %s", exitErr.ExitCode, exitErr.Stderr)
//	}
package lspdbg
