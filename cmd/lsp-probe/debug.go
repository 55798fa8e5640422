package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lspdbg/lspdbg-go"
)

func newDebugCommand() *cobra.Command {
	var (
		language string
		text     string
		line     uint32
		char     uint32
	)

	cmd := &cobra.Command{
		Use:   "debug <server> [args...]",
		Short: "Run the canonical debug sequence against a server",
		Long: `Runs the full diagnostic sequence: initialize, initialized, open a
scratch document, request completion at a position, then shut the
server down cooperatively. Every step and every asynchronous server
message is reported.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			return runDebug(cmd.Context(), cfg, args[0], args[1:], language, text, line, char)
		},
	}

	cmd.Flags().StringVar(&language, "language", "markdown", "language id of the scratch document")
	cmd.Flags().StringVar(&text, "text", ":", "initial text of the scratch document")
	cmd.Flags().Uint32Var(&line, "line", 0, "completion position line (zero-based)")
	cmd.Flags().Uint32Var(&char, "char", 1, "completion position character (zero-based)")

	return cmd
}

func runDebug(parent context.Context, cfg *probeConfig, command string, args []string, language, text string, line, char uint32) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := make(chan lspdbg.ServerEvent, 64)

	opts := buildOptions(cfg, command, args)
	opts = append(opts, lspdbg.WithEventObserver(func(e lspdbg.ServerEvent) {
		select {
		case events <- e:
		default:
		}
	}))

	return lspdbg.WithClient(ctx, func(c *lspdbg.Client) error {
		g, ctx := errgroup.WithContext(ctx)

		// Print asynchronous server messages as they arrive, alongside the
		// sequence itself.
		g.Go(func() error {
			for {
				select {
				case e := <-events:
					fmt.Printf("  <- %s %s\n", e.Method, compactJSON(e.Params))
				case <-ctx.Done():
					return nil
				}
			}
		})

		g.Go(func() error {
			defer stop()

			return debugSequence(ctx, cfg, c, language, text, line, char)
		})

		return g.Wait()
	}, opts...)
}

func debugSequence(ctx context.Context, cfg *probeConfig, c *lspdbg.Client, language, text string, line, char uint32) error {
	fmt.Printf("session %s\n", c.SessionID())

	fmt.Println("-> initialize")

	result, err := c.Initialize(ctx, lspdbg.DefaultInitializeParams(cfg.Workspace))
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	if result.ServerInfo != nil {
		fmt.Printf("   server: %s %s\n", result.ServerInfo.Name, result.ServerInfo.Version)
	}

	caps, _ := json.MarshalIndent(result.Capabilities, "   ", "  ")
	fmt.Printf("   capabilities: %s\n", caps)

	fmt.Println("-> initialized")

	if err := c.Initialized(ctx); err != nil {
		return fmt.Errorf("initialized: %w", err)
	}

	doc := lspdbg.FileURI("/tmp/lsp-probe-scratch." + language)
	fmt.Printf("-> didOpen %s (%d bytes, %s)\n", doc, len(text), language)

	if err := c.DidOpen(ctx, doc, language, text); err != nil {
		return fmt.Errorf("didOpen: %w", err)
	}

	fmt.Printf("-> completion at %d:%d\n", line, char)

	list, err := c.Completion(ctx, doc, line, char)
	if err != nil {
		return fmt.Errorf("completion: %w", err)
	}

	fmt.Printf("   %d items (incomplete=%v)\n", len(list.Items), list.IsIncomplete)

	for i, item := range list.Items {
		if i == 10 {
			fmt.Printf("   ... %d more\n", len(list.Items)-i)

			break
		}

		fmt.Printf("   - %s\n", item.Label)
	}

	fmt.Println("-> shutdown / exit")

	if err := c.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	if err := c.Exit(ctx); err != nil {
		return fmt.Errorf("exit: %w", err)
	}

	fmt.Println("done")

	return nil
}

func compactJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	const maxShown = 120

	s := string(raw)
	if len(s) > maxShown {
		s = s[:maxShown] + "..."
	}

	return s
}
