package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"quiz-session-engine/internal/config"
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "quiz-session",
		Short:         "Timed quiz attempt server with proctoring and leaderboards",
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "path to YAML config")
	cmd.PersistentFlags().String("port", "8080", "port to listen on")
	cmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	cmd.AddCommand(newStartCmd(&configPath))
	cmd.AddCommand(newMigrateCmd(&configPath))
	return cmd
}

// loadConfig reads configuration for a subcommand and installs the default logger.
func loadConfig(cmd *cobra.Command, path string) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return cfg, nil, err
	}
	logger := newLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	if cfg.File == "" {
		logger.Debug("no config file found, using defaults", "path", path)
	} else {
		logger.Debug("config loaded", "path", cfg.File)
	}
	return cfg, logger, nil
}
