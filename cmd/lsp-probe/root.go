package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lspdbg/lspdbg-go"
)

// probeConfig holds the settings shared by all probe subcommands. Values
// come from flags, or from LSP_PROBE_* environment variables.
type probeConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	StartupGrace time.Duration `mapstructure:"startup-grace"`
	Keywords     []string      `mapstructure:"keyword"`
	Workspace    string        `mapstructure:"workspace"`
	Verbose      bool          `mapstructure:"verbose"`
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lsp-probe",
		Short: "Diagnostic harness for stdio language servers",
		Long: `lsp-probe launches a language server as a child process, speaks the
LSP base protocol to it over stdin/stdout, and reports the exchange.

It is meant for answering questions an editor gets in the way of:
does the server initialize, what does it answer at a given position,
and what does it print on stderr while doing so.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Duration("timeout", lspdbg.DefaultCallTimeout, "per-request response budget")
	rootCmd.PersistentFlags().Duration("startup-grace", lspdbg.DefaultStartupGrace, "premature-exit watch window after launch")
	rootCmd.PersistentFlags().StringSlice("keyword", []string{"ERROR", "WARN"}, "stderr keywords to surface as they happen")
	rootCmd.PersistentFlags().String("workspace", "", "workspace root sent in the initialize request")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging of the protocol exchange")

	rootCmd.AddCommand(newDebugCommand())
	rootCmd.AddCommand(newCompletionCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "lsp-probe %s\n", lspdbg.Version)
		},
	}
}

// loadConfig resolves the shared settings for cmd, flags taking precedence
// over LSP_PROBE_* environment variables over defaults.
func loadConfig(cmd *cobra.Command) (*probeConfig, error) {
	v := viper.New()

	v.SetEnvPrefix("LSP_PROBE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	var cfg probeConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// buildOptions assembles the client options for a probe run. Stderr events
// print immediately; everything else the server logs is kept in the tail.
func buildOptions(cfg *probeConfig, command string, args []string) []lspdbg.Option {
	opts := []lspdbg.Option{
		lspdbg.WithServerCommand(command, args...),
		lspdbg.WithStartupGrace(cfg.StartupGrace),
		lspdbg.WithCallTimeout(cfg.Timeout),
		lspdbg.WithStderrKeywords(cfg.Keywords...),
		lspdbg.WithStderrObserver(func(e lspdbg.StderrEvent) {
			fmt.Fprintf(os.Stderr, "  [server %s] %s\n", e.Tag, e.Line)
		}),
	}

	if cfg.Verbose {
		opts = append(opts, lspdbg.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))))
	}

	return opts
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)

		return err
	}

	return nil
}
