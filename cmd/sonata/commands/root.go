package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "sonata",
	Short: "Sonata - rules-driven portfolio symphonies",
	Long: `Sonata evaluates symphonies: declarative strategy trees that turn
daily closing prices into target portfolio weights.

Usage:
  go run ./cmd/sonata [command]

Examples:
  go run ./cmd/sonata validate configs/symphonies/momentum.yaml
  go run ./cmd/sonata backtest --symphony configs/symphonies/momentum.yaml --from 2020-01-02
  go run ./cmd/sonata serve`,
}

// Execute runs the CLI. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
