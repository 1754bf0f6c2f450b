package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arcline/adsync/cmd/adsync/commands"
	"github.com/arcline/adsync/logger"
)

var rootCmd = &cobra.Command{
	Use:   "adsync",
	Short: "adsync - Ads performance ingestion service",
	Long: `adsync - Ads performance data ingestion with engine fallback.

adsync pulls advertising performance reports into a local warehouse
through one of two interchangeable engines: a typed SDK report client,
or a managed ELT pipeline connection. A per-account state machine falls
back from SDK to pipeline after repeated failures and returns only
after a parity-validated SDK run.

Available commands:
  serve   - Start the adsync server and job workers
  db      - Manage database operations
  jobs    - Inspect async sync jobs
  version - Show version information

Examples:
  adsync serve                  # Start the server
  adsync jobs ls                # List recent sync jobs
  adsync db stats               # Show database statistics`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(false); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to config file (default: search for adsync.toml)")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
