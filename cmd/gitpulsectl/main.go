// cmd/gitpulsectl/main.go

// gitpulsectl is the operator CLI: one-shot ingestion runs (handy for cron
// backfills and for retrying after a rate-limit reset) and repo management
// without going through the HTTP API.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gitpulsectl",
	Short: "Operator CLI for the gitpulse ingestion service.",
	Long: `gitpulsectl runs one-shot operations against the gitpulse database:
ingest a repository's commit history from GitHub, or untrack a repository.
Configuration (DB_URL, GITHUB_TOKEN, ...) is read from the environment and an
optional .env file, the same way the service reads it.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose/debug logging")
}
