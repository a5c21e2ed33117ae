package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sonatalabs/sonata/internal/contracts"
	"github.com/sonatalabs/sonata/internal/indicator"
	"github.com/sonatalabs/sonata/internal/marketdata"
	"github.com/sonatalabs/sonata/internal/symphony"
	"github.com/sonatalabs/sonata/pkg/config"
	"github.com/sonatalabs/sonata/pkg/database"
	"github.com/sonatalabs/sonata/pkg/logger"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a symphony once",
	Long: `Warms the symphony's indicators from stored bars and prints the
target weights for one date.

Flags:
  --symphony  symphony YAML file (required)
  --date      evaluation date (YYYY-MM-DD, default: today)

Example:
  go run ./cmd/sonata evaluate --symphony configs/symphonies/momentum.yaml
  go run ./cmd/sonata evaluate --symphony configs/symphonies/momentum.yaml --date 2024-06-28`,
	RunE: runEvaluate,
}

var (
	evaluateSymphony string
	evaluateDate     string
)

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVar(&evaluateSymphony, "symphony", "", "symphony YAML file (required)")
	evaluateCmd.Flags().StringVar(&evaluateDate, "date", "", "evaluation date (YYYY-MM-DD)")

	evaluateCmd.MarkFlagRequired("symphony")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	sym, _, err := symphony.Load(evaluateSymphony)
	if err != nil {
		return fmt.Errorf("load symphony: %w", err)
	}

	date := contracts.Day(time.Now())
	if evaluateDate != "" {
		date, err = time.Parse("2006-01-02", evaluateDate)
		if err != nil {
			return fmt.Errorf("invalid date: %w", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	repo := marketdata.NewPostgresBarRepository(db.Pool)
	ctx := cmd.Context()

	universe, err := warmFromBars(ctx, repo, sym, date)
	if err != nil {
		return err
	}

	evaluator := symphony.NewEvaluator(sym, universe, log)

	eval, err := evaluator.Evaluate(ctx, date)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	fmt.Printf("%s @ %s\n", sym.Meta.Name, date.Format("2006-01-02"))
	for _, target := range eval.Targets {
		fmt.Printf("  %-6s %6.2f%%\n", target.Symbol, target.Weight*100)
	}
	if cash := 1 - eval.TotalWeight(); cash > 1e-9 {
		fmt.Printf("  %-6s %6.2f%%\n", "CASH", cash*100)
	}
	return nil
}

// warmFromBars registers every ticker and replays its stored closes up
// to and including date.
func warmFromBars(ctx context.Context, repo contracts.BarRepository, sym *symphony.Config, date time.Time) (*indicator.Universe, error) {
	periods := sym.Periods()
	if len(periods) == 0 {
		periods = []int{1}
	}

	universe := indicator.NewUniverse()
	for _, ticker := range sym.Tickers() {
		if _, err := universe.Register(ticker, periods); err != nil {
			return nil, err
		}

		bars, err := repo.Range(ctx, ticker, date.AddDate(-3, 0, 0), date)
		if err != nil {
			return nil, fmt.Errorf("load bars for %s: %w", ticker, err)
		}
		if len(bars) == 0 {
			return nil, fmt.Errorf("no bars stored for %s, run fetch first", ticker)
		}
		for _, bar := range bars {
			if err := universe.Update(ticker, bar.Close); err != nil {
				return nil, err
			}
		}
	}
	return universe, nil
}
