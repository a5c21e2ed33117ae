package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sonatalabs/sonata/internal/symphony"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file...]",
	Short: "Validate symphony YAML files",
	Long: `Parses and validates symphony YAML files without running them.

Prints the config hash, tickers and indicator periods for each file.
Unknown YAML fields, malformed node trees and weight violations are
all rejected.

Example:
  go run ./cmd/sonata validate configs/symphonies/momentum.yaml
  go run ./cmd/sonata validate configs/symphonies/*.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	failures := 0
	for _, path := range args {
		cfg, _, err := symphony.Load(path)
		if err != nil {
			fmt.Printf("✗ %s\n  %v\n", path, err)
			failures++
			continue
		}

		hash, err := symphony.Hash(cfg)
		if err != nil {
			fmt.Printf("✗ %s\n  %v\n", path, err)
			failures++
			continue
		}

		fmt.Printf("✓ %s\n", path)
		fmt.Printf("  name:      %s\n", cfg.Meta.Name)
		fmt.Printf("  rebalance: %s @ %s\n", cfg.Meta.Rebalance, cfg.Meta.ExecutionTime)
		fmt.Printf("  hash:      %s\n", hash[:12])
		fmt.Printf("  tickers:   %s\n", strings.Join(cfg.Tickers(), ", "))
		if periods := cfg.Periods(); len(periods) > 0 {
			fmt.Printf("  periods:   %v\n", periods)
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d files failed validation", failures, len(args))
	}
	return nil
}
