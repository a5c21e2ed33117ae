package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sonatalabs/sonata/internal/contracts"
	"github.com/sonatalabs/sonata/internal/external/stooq"
	"github.com/sonatalabs/sonata/internal/marketdata"
	"github.com/sonatalabs/sonata/pkg/config"
	"github.com/sonatalabs/sonata/pkg/database"
	"github.com/sonatalabs/sonata/pkg/httputil"
	"github.com/sonatalabs/sonata/pkg/logger"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch historical daily bars",
	Long: `Downloads daily bars from the history provider and stores them in
the bar repository.

Flags:
  --symbols   comma-separated ticker list (required)
  --from      start date (YYYY-MM-DD, default: 1 year ago)
  --to        end date (YYYY-MM-DD, default: today)

Example:
  go run ./cmd/sonata fetch --symbols VTI,BND --from 2020-01-02`,
	RunE: runFetch,
}

var (
	fetchSymbols string
	fetchFrom    string
	fetchTo      string
)

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVar(&fetchSymbols, "symbols", "", "comma-separated tickers (required)")
	fetchCmd.Flags().StringVar(&fetchFrom, "from", "", "start date (YYYY-MM-DD)")
	fetchCmd.Flags().StringVar(&fetchTo, "to", "", "end date (YYYY-MM-DD)")

	fetchCmd.MarkFlagRequired("symbols")
}

func runFetch(cmd *cobra.Command, args []string) error {
	symbols := strings.Split(fetchSymbols, ",")
	for i := range symbols {
		symbols[i] = strings.TrimSpace(symbols[i])
	}

	to := contracts.Day(time.Now())
	from := to.AddDate(-1, 0, 0)
	var err error
	if fetchFrom != "" {
		from, err = time.Parse("2006-01-02", fetchFrom)
		if err != nil {
			return fmt.Errorf("invalid start date: %w", err)
		}
	}
	if fetchTo != "" {
		to, err = time.Parse("2006-01-02", fetchTo)
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
	httpClient := httputil.New(log).WithRateLimit(cfg.Stooq.RateLimit, cfg.Stooq.RateBurst)
	client := stooq.NewClient(httpClient, cfg.Stooq.BaseURL, log)

	ctx := cmd.Context()
	for _, symbol := range symbols {
		bars, err := client.FetchDaily(ctx, symbol, from, to)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", symbol, err)
		}
		if err := repo.Save(ctx, bars); err != nil {
			return fmt.Errorf("save %s: %w", symbol, err)
		}
		fmt.Printf("✓ %s: %d bars\n", symbol, len(bars))
	}
	return nil
}
