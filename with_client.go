package lspdbg

import (
	"context"
	"fmt"
)

// WithClient manages client lifecycle with automatic cleanup.
//
// This helper creates a client, starts the configured server, executes the
// callback, and ensures the session is closed when done. The callback
// receives a started Client; driving the protocol (Initialize and so on) is
// up to the callback.
//
// If the callback returns an error, it is returned to the caller. Close runs
// even then, on a context detached from ctx's cancellation so the
// cooperative shutdown still gets its budget.
//
// Example usage:
//
//	err := lspdbg.WithClient(ctx, func(c *lspdbg.Client) error {
//	    if _, err := c.Initialize(ctx, nil); err != nil {
//	        return err
//	    }
//	    if err := c.Initialized(ctx); err != nil {
//	        return err
//	    }
//	    list, err := c.Completion(ctx, lspdbg.FileURI("/tmp/scratch.md"), 0, 0)
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Printf("%d completions\n", len(list.Items))
//	    return nil
//	},
//	    lspdbg.WithServerCommand("bkmr-lsp"),
//	    lspdbg.WithLogger(log),
//	)
func WithClient(ctx context.Context, fn func(*Client) error, opts ...Option) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	client := NewClient(opts...)
	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("failed to start client: %w", err)
	}

	defer func() {
		_ = client.Close(context.WithoutCancel(ctx))
	}()

	return fn(client)
}
