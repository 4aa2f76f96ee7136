package commands

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "breadth",
	Short: "Market breadth engine and quality-momentum screen",
	Long: `Incremental new-high/new-low breadth statistics over a persistent
price cache, plus an on-demand quality-momentum screen.

Examples:
  go run ./cmd/breadth update
  go run ./cmd/breadth backfill --end 20250411
  go run ./cmd/breadth screen
  go run ./cmd/breadth serve --port 8080
  go run ./cmd/breadth schedule`,
	SilenceUsage: true,
}

// Execute runs the CLI. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}
