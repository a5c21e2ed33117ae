package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sonatalabs/sonata/internal/allocation"
	"github.com/sonatalabs/sonata/internal/api"
	"github.com/sonatalabs/sonata/internal/api/handlers"
	"github.com/sonatalabs/sonata/internal/backtest"
	"github.com/sonatalabs/sonata/internal/calendar"
	"github.com/sonatalabs/sonata/internal/contracts"
	"github.com/sonatalabs/sonata/internal/external/stooq"
	"github.com/sonatalabs/sonata/internal/feed"
	"github.com/sonatalabs/sonata/internal/marketdata"
	"github.com/sonatalabs/sonata/internal/scheduler"
	"github.com/sonatalabs/sonata/internal/scheduler/jobs"
	"github.com/sonatalabs/sonata/internal/symphony"
	"github.com/sonatalabs/sonata/pkg/config"
	"github.com/sonatalabs/sonata/pkg/database"
	"github.com/sonatalabs/sonata/pkg/httputil"
	"github.com/sonatalabs/sonata/pkg/logger"
	"github.com/sonatalabs/sonata/pkg/redis"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server, scheduler and live feed",
	Long: `Loads every symphony from the config directory and serves them:
evaluation jobs fire at each symphony's execution time, the bar refresh
job keeps history current, and the HTTP API exposes state and backtests.

Flags:
  --symphonies  directory of symphony YAML files (default: configs/symphonies)
  --port        HTTP port (overrides PORT)
  --capital     paper account capital per symphony (default: 10000)

Example:
  go run ./cmd/sonata serve
  go run ./cmd/sonata serve --symphonies configs/symphonies --port 8087`,
	RunE: runServe,
}

var (
	serveSymphonyDir string
	servePort        string
	serveCapital     float64
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveSymphonyDir, "symphonies", "configs/symphonies", "symphony YAML directory")
	serveCmd.Flags().StringVar(&servePort, "port", "", "HTTP port")
	serveCmd.Flags().Float64Var(&serveCapital, "capital", 10_000, "paper capital per symphony")
}

// repoPrices serves the latest stored close as the execution price.
type repoPrices struct {
	repo contracts.BarRepository
}

func (p *repoPrices) Price(symbol string) (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bars, err := p.repo.Latest(ctx, symbol, 1)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, fmt.Errorf("no bars stored for %s", symbol)
	}
	return bars[0].Close, nil
}

// registrySink publishes each evaluation to the registry before handing
// it to the paper account.
type registrySink struct {
	name     string
	registry *symphony.Registry
	inner    contracts.AllocationSink
}

func (s *registrySink) Rebalance(ctx context.Context, eval *contracts.Evaluation, liquidate bool) error {
	if err := s.registry.SetEvaluation(s.name, eval); err != nil {
		return err
	}
	return s.inner.Rebalance(ctx, eval, liquidate)
}

// paperHoldings adapts a paper sink to the liquidation check.
type paperHoldings struct {
	sink *allocation.PaperSink
}

func (h *paperHoldings) HeldSymbols() []string {
	positions := h.sink.Positions()
	symbols := make([]string, 0, len(positions))
	for _, pos := range positions {
		symbols = append(symbols, pos.Symbol)
	}
	return symbols
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if servePort != "" {
		cfg.Port = servePort
	}
	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	repo := marketdata.NewPostgresBarRepository(db.Pool)

	var (
		quotes      *redis.QuoteCache
		redisClient *redis.Client
	)
	if cfg.Redis.Enabled {
		redisClient, err = redis.New(cfg)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer redisClient.Close()
		quotes = redis.NewQuoteCache(redisClient, "sonata", cfg.Feed.QuoteTTL)
	}

	registry := symphony.NewRegistry()
	configs, err := loadSymphonyDir(serveSymphonyDir, registry, log)
	if err != nil {
		return err
	}
	if len(configs) == 0 {
		return fmt.Errorf("no symphonies found in %s", serveSymphonyDir)
	}

	ctx := cmd.Context()
	sched := scheduler.New(log)
	feedHTTP := httputil.New(log).WithRateLimit(cfg.Feed.RateLimit, cfg.Feed.RateBurst)

	// The live feed is optional; without one, evaluation runs off the
	// bars the refresh job stores.
	var feedManager *feed.Manager
	if cfg.Feed.WebSocketURL != "" || cfg.Feed.PollURL != "" {
		feedManager, err = feed.NewManager(cfg, feedHTTP, quotes, log)
		if err != nil {
			return fmt.Errorf("build feed: %w", err)
		}
	}

	allTickers := map[string]bool{}
	for _, sym := range configs {
		if err := wireSymphony(ctx, sym, repo, feedManager, registry, sched, log); err != nil {
			return fmt.Errorf("wire %s: %w", sym.Meta.Name, err)
		}
		for _, ticker := range sym.Tickers() {
			allTickers[ticker] = true
		}
	}

	refreshTickers := make([]string, 0, len(allTickers))
	for ticker := range allTickers {
		refreshTickers = append(refreshTickers, ticker)
	}
	// Stooq tolerates very little traffic; the shared limiter keeps the
	// cap across processes when Redis is available.
	stooqHTTP := httputil.New(log).WithRateLimit(cfg.Stooq.RateLimit, cfg.Stooq.RateBurst)
	if redisClient != nil {
		stooqHTTP = stooqHTTP.WithSharedRateLimiter(redis.NewRateLimiter(redisClient, "sonata"), redis.StooqRateLimit)
	}
	stooqClient := stooq.NewClient(stooqHTTP, cfg.Stooq.BaseURL, log)
	refreshJob, err := jobs.NewBarRefreshJob(stooqClient, repo, refreshTickers, 7, "0 30 21 * * MON-FRI", log)
	if err != nil {
		return fmt.Errorf("build refresh job: %w", err)
	}
	if err := sched.AddJob(refreshJob); err != nil {
		return err
	}

	if feedManager != nil {
		if err := feedManager.Start(ctx); err != nil {
			return fmt.Errorf("start feed: %w", err)
		}
		defer feedManager.Stop()
	}
	sched.Start()
	defer sched.Stop()

	engine := backtest.NewEngine(repo, calendar.NewExchange("", log), log)
	router := api.NewRouter(
		handlers.NewSymphonyHandler(registry, log),
		handlers.NewBarHandler(repo, log),
		handlers.NewBacktestHandler(registry, engine, log),
		handlers.NewJobHandler(sched, log),
		log,
	)
	server := api.New(cfg, log, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("Shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// loadSymphonyDir loads every YAML file in dir into the registry.
func loadSymphonyDir(dir string, registry *symphony.Registry, log *logger.Logger) ([]*symphony.Config, error) {
	patterns := []string{"*.yaml", "*.yml"}
	var paths []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}

	var configs []*symphony.Config
	for _, path := range paths {
		cfg, _, err := symphony.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		hash, err := registry.Add(cfg)
		if err != nil {
			return nil, err
		}
		log.WithFields(map[string]interface{}{
			"symphony": cfg.Meta.Name,
			"hash":     hash[:12],
			"file":     path,
		}).Info("Symphony loaded")
		configs = append(configs, cfg)
	}
	return configs, nil
}

// wireSymphony builds the evaluation path for one symphony: warm
// universe, paper account, evaluation job, and optionally the live
// consolidation pipeline.
func wireSymphony(
	ctx context.Context,
	sym *symphony.Config,
	repo contracts.BarRepository,
	feedManager *feed.Manager,
	registry *symphony.Registry,
	sched *scheduler.Scheduler,
	log *logger.Logger,
) error {
	universe, err := warmFromBars(ctx, repo, sym, contracts.Day(time.Now()))
	if err != nil {
		return err
	}

	sink, err := allocation.NewPaperSink(serveCapital, 0, 0, &repoPrices{repo: repo}, log)
	if err != nil {
		return err
	}

	evaluator := symphony.NewEvaluator(sym, universe, log)
	exchange := calendar.NewExchange(sym.Meta.Exchange, log)

	job, err := jobs.NewEvaluationJob(
		sym,
		evaluator,
		&registrySink{name: sym.Meta.Name, registry: registry, inner: sink},
		universe,
		exchange,
		&paperHoldings{sink: sink},
		log,
	)
	if err != nil {
		return err
	}
	if err := sched.AddJob(job); err != nil {
		return err
	}

	if feedManager != nil {
		boundary, err := sym.Meta.ConsolidationClock()
		if err != nil {
			return err
		}
		pipeline, err := feed.NewPipeline(feedManager, universe, repo, boundary, log)
		if err != nil {
			return err
		}
		for _, ticker := range sym.Tickers() {
			if err := pipeline.Track(ctx, ticker, periodsOrDefault(sym)); err != nil {
				log.WithError(err).WithField("symbol", ticker).Warn("Live tracking unavailable")
			}
		}
	}
	return nil
}

func periodsOrDefault(sym *symphony.Config) []int {
	periods := sym.Periods()
	if len(periods) == 0 {
		periods = []int{1}
	}
	return periods
}
