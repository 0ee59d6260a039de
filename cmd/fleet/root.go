package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentive-ai/fleet/internal/config"
	"github.com/agentive-ai/fleet/pkg/version"
)

var (
	configPath string
	verbose    bool

	// cfg is loaded once in the persistent pre-run and read by subcommands.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Fleet - multi-agent workflow orchestration",
	Long: `Fleet plans, executes, and replans multi-step workflows across a
pool of agents. Goals are decomposed into dependency-ordered plans by a
language model, or supplied directly as YAML plan files.`,
	PersistentPreRunE: loadConfig,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute runs the root command with signal handling.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

// loadConfig loads configuration before any command runs. A missing file
// falls back to defaults so fleet works without prior setup.
func loadConfig(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" || cmd.Name() == "help" {
		return nil
	}

	loader := config.NewLoader(config.NewValidator())
	loaded, err := loader.LoadWithDefaults(configPath)
	if err != nil {
		return err
	}
	cfg = loaded

	slog.SetDefault(slog.New(newLogHandler(cfg.Logging)))
	return nil
}

// newLogHandler builds the slog handler described by the logging config.
// The --verbose flag forces debug level.
func newLogHandler(lc config.LoggingConfig) slog.Handler {
	level := slog.LevelInfo
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.NewTextHandler(os.Stderr, opts)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "fleet.yaml", "Path to the config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(version.String())
	},
}
