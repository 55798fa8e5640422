package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lspdbg/lspdbg-go"
)

func newCompletionCommand() *cobra.Command {
	var (
		language string
		query    string
	)

	cmd := &cobra.Command{
		Use:   "completion <server> [args...]",
		Short: "Probe completion filtering as a query is typed",
		Long: `Opens a scratch document and types the query one character at a time,
requesting completion after each keystroke (full-text didChange, the
way a simple editor integration would). Reports how the result set
narrows, which is the quickest way to see whether the server filters
server-side or returns everything and expects client-side filtering.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			return runCompletionProbe(cmd.Context(), cfg, args[0], args[1:], language, query)
		},
	}

	cmd.Flags().StringVar(&language, "language", "markdown", "language id of the scratch document")
	cmd.Flags().StringVar(&query, "query", ":snippet", "text to type, one character per round")

	return cmd
}

func runCompletionProbe(parent context.Context, cfg *probeConfig, command string, args []string, language, query string) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := buildOptions(cfg, command, args)

	return lspdbg.WithClient(ctx, func(c *lspdbg.Client) error {
		if _, err := c.Initialize(ctx, lspdbg.DefaultInitializeParams(cfg.Workspace)); err != nil {
			return fmt.Errorf("initialize: %w", err)
		}

		if err := c.Initialized(ctx); err != nil {
			return fmt.Errorf("initialized: %w", err)
		}

		doc := lspdbg.FileURI("/tmp/lsp-probe-typing." + language)
		if err := c.DidOpen(ctx, doc, language, ""); err != nil {
			return fmt.Errorf("didOpen: %w", err)
		}

		version := int32(1)

		for i := 1; i <= len(query); i++ {
			typed := query[:i]
			version++

			if err := c.DidChange(ctx, doc, version, typed); err != nil {
				return fmt.Errorf("didChange %q: %w", typed, err)
			}

			list, err := c.Completion(ctx, doc, 0, uint32(i))
			if err != nil {
				return fmt.Errorf("completion after %q: %w", typed, err)
			}

			fmt.Printf("%-20q %4d items", typed, len(list.Items))

			if len(list.Items) > 0 {
				labels := make([]string, 0, 3)
				for j, item := range list.Items {
					if j == 3 {
						break
					}

					labels = append(labels, item.Label)
				}

				fmt.Printf("  (%s)", strings.Join(labels, ", "))
			}

			fmt.Println()
		}

		if err := c.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}

		return c.Exit(ctx)
	}, opts...)
}
