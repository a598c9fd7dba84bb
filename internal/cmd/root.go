package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"computeruse-backend/internal/config"
	"computeruse-backend/internal/log"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug logging (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().String("log-file", "", "Write JSON logs to a rotating file (overrides LOG_FILE)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

var rootCmd = &cobra.Command{
	Use:   "computeruse-backend",
	Short: "Session relay and persistence backend for a computer-use agent",
	Long: `computeruse-backend serves the session REST API and the per-session WebSocket
that relays user messages to the agent loop and streams its output back.`,
	Example: `
	# Apply migrations and start the server
	computeruse-backend serve

	# Use an embedded SQLite database
	DATABASE_URL=sqlite:sessions.db computeruse-backend serve

	# Only apply migrations
	computeruse-backend migrate`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads config and installs the logger, honoring the persistent flags.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	debug, err := cmd.Flags().GetBool("debug")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get debug flag: %w", err)
	}
	if debug {
		cfg.LogLevel = "debug"
	}
	if logFile, _ := cmd.Flags().GetString("log-file"); logFile != "" {
		cfg.LogFile = logFile
	}

	logger, err := log.Setup(log.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
