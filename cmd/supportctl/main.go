// Command supportctl runs and pokes at the support assistant from a terminal.
package main

import (
	"fmt"
	"os"

	"github.com/boddenberg/support-assistant-bfa-go/internal/config"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/observability"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	envFile  string
	logLevel string

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "supportctl",
	Short: "Shameless Collective support assistant",
	Long: `supportctl runs the support assistant HTTP server and offers
local tools around it.

Configuration comes from the environment (see .env.example); --env-file
loads a dotenv file first without overriding variables already set.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = config.LoadDotEnv(envFile)
		if logLevel != "" {
			logger = observability.NewLogger(logLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); silent when empty")

	rootCmd.AddCommand(serveCmd, classifyCmd, chatCmd, adminTokenCmd, hashPasswordCmd)
}

// loadConfig reads and validates the environment.
func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func main() {
	defer func() { _ = logger.Sync() }()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
