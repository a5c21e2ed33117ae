package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sonatalabs/sonata/internal/backtest"
	"github.com/sonatalabs/sonata/internal/calendar"
	"github.com/sonatalabs/sonata/internal/marketdata"
	"github.com/sonatalabs/sonata/internal/symphony"
	"github.com/sonatalabs/sonata/pkg/config"
	"github.com/sonatalabs/sonata/pkg/database"
	"github.com/sonatalabs/sonata/pkg/logger"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run a symphony backtest",
	Long: `Replays stored daily bars through a symphony and a paper account.

Flags:
  --symphony    symphony YAML file (required)
  --from        start date (YYYY-MM-DD, default: the symphony's backtest_start)
  --to          end date (YYYY-MM-DD, default: today)
  --capital     initial capital (default: 10000)
  --commission  commission rate (default: 0)
  --slippage    slippage rate (default: 0)

Example:
  go run ./cmd/sonata backtest --symphony configs/symphonies/momentum.yaml
  go run ./cmd/sonata backtest --symphony configs/symphonies/momentum.yaml --from 2020-01-02 --to 2023-12-29`,
	RunE: runBacktestCmd,
}

var (
	backtestSymphony   string
	backtestFrom       string
	backtestTo         string
	backtestCapital    float64
	backtestCommission float64
	backtestSlippage   float64
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVar(&backtestSymphony, "symphony", "", "symphony YAML file (required)")
	backtestCmd.Flags().StringVar(&backtestFrom, "from", "", "start date (YYYY-MM-DD)")
	backtestCmd.Flags().StringVar(&backtestTo, "to", "", "end date (YYYY-MM-DD)")
	backtestCmd.Flags().Float64Var(&backtestCapital, "capital", 10_000, "initial capital")
	backtestCmd.Flags().Float64Var(&backtestCommission, "commission", 0, "commission rate")
	backtestCmd.Flags().Float64Var(&backtestSlippage, "slippage", 0, "slippage rate")

	backtestCmd.MarkFlagRequired("symphony")
}

func runBacktestCmd(cmd *cobra.Command, args []string) error {
	sym, _, err := symphony.Load(backtestSymphony)
	if err != nil {
		return fmt.Errorf("load symphony: %w", err)
	}

	btCfg := backtest.Config{
		InitialCapital: backtestCapital,
		CommissionRate: backtestCommission,
		SlippageRate:   backtestSlippage,
	}
	if backtestFrom != "" {
		btCfg.Start, err = time.Parse("2006-01-02", backtestFrom)
		if err != nil {
			return fmt.Errorf("invalid start date: %w", err)
		}
	}
	if backtestTo != "" {
		btCfg.End, err = time.Parse("2006-01-02", backtestTo)
		if err != nil {
			return fmt.Errorf("invalid end date: %w", err)
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
	exchange := calendar.NewExchange(sym.Meta.Exchange, log)
	engine := backtest.NewEngine(repo, exchange, log)

	fmt.Printf("Backtesting %s (%s rebalance)\n", sym.Meta.Name, sym.Meta.Rebalance)

	result, err := engine.Run(cmd.Context(), sym, btCfg)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	printBacktestResult(result)
	return nil
}

func printBacktestResult(result *backtest.Result) {
	fmt.Println()
	fmt.Println(strings.Repeat("=", 56))
	fmt.Printf("Symphony:   %s (hash %s)\n", result.Symphony, result.ConfigHash[:12])
	fmt.Printf("Period:     %s ~ %s (%d trading days)\n",
		result.Start.Format("2006-01-02"),
		result.End.Format("2006-01-02"),
		result.TradingDays)
	fmt.Printf("Rebalances: %d\n", result.RebalanceCount)
	fmt.Printf("Duration:   %.2fs\n", result.Duration.Seconds())
	fmt.Println(strings.Repeat("-", 56))
	fmt.Printf("Capital:    %.2f -> %.2f\n", result.InitialCapital, result.FinalCapital)
	fmt.Printf("Return:     %+.2f%% total, %+.2f%% CAGR\n",
		result.Metrics.TotalReturn*100, result.Metrics.CAGR*100)
	fmt.Printf("Volatility: %.2f%%\n", result.Metrics.Volatility*100)
	fmt.Printf("Sharpe:     %.2f   Sortino: %.2f\n",
		result.Metrics.SharpeRatio, result.Metrics.SortinoRatio)
	fmt.Printf("Max DD:     %.2f%%\n", result.Metrics.MaxDrawdown*100)
	fmt.Println(strings.Repeat("=", 56))
}
