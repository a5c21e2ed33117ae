package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/sonatalabs/sonata/internal/allocation"
	"github.com/sonatalabs/sonata/internal/calendar"
	"github.com/sonatalabs/sonata/internal/contracts"
	"github.com/sonatalabs/sonata/internal/indicator"
	"github.com/sonatalabs/sonata/internal/symphony"
	"github.com/sonatalabs/sonata/pkg/logger"
)

// Config tunes one backtest run. Zero Start falls back to the symphony's
// declared backtest start.
type Config struct {
	Start          time.Time
	End            time.Time
	InitialCapital float64
	CommissionRate float64
	SlippageRate   float64
}

// EquityPoint is one day on the equity curve.
type EquityPoint struct {
	Date   time.Time `json:"date"`
	Equity float64   `json:"equity"`
}

// Result is the full outcome of a run.
type Result struct {
	Symphony       string        `json:"symphony"`
	ConfigHash     string        `json:"config_hash"`
	Start          time.Time     `json:"start"`
	End            time.Time     `json:"end"`
	TradingDays    int           `json:"trading_days"`
	RebalanceCount int           `json:"rebalance_count"`
	InitialCapital float64       `json:"initial_capital"`
	FinalCapital   float64       `json:"final_capital"`
	Metrics        Metrics       `json:"metrics"`
	EquityCurve    []EquityPoint `json:"equity_curve"`
	Duration       time.Duration `json:"duration"`
}

// Engine replays stored daily bars through a symphony and a paper
// account. Bars come from the repository; which days count comes from the
// trading calendar.
type Engine struct {
	repo contracts.BarRepository
	cal  contracts.TradingCalendar
	log  *logger.Logger
}

// NewEngine wires a backtest engine.
func NewEngine(repo contracts.BarRepository, cal contracts.TradingCalendar, log *logger.Logger) *Engine {
	return &Engine{
		repo: repo,
		cal:  cal,
		log:  log.WithComponent("backtest"),
	}
}

// closeSource serves the engine's latest observed closes to the paper
// sink, so rebalances fill at the evaluation date's close.
type closeSource struct {
	closes map[string]float64
}

func (s *closeSource) Price(symbol string) (float64, error) {
	price, ok := s.closes[symbol]
	if !ok {
		return 0, fmt.Errorf("no close observed for %s", symbol)
	}
	return price, nil
}

// Run walks every trading day in range: updates indicators from that
// day's bars, and on calendar-rule dates past warm-up evaluates the
// symphony and rebalances the paper account at the day's closes.
func (e *Engine) Run(ctx context.Context, sym *symphony.Config, cfg Config) (*Result, error) {
	began := time.Now()

	start := contracts.Day(cfg.Start)
	if cfg.Start.IsZero() {
		declared, ok, err := sym.Meta.BacktestStartDate()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("symphony %s declares no backtest start and none was given", sym.Meta.Name)
		}
		start = declared
	}
	end := contracts.Day(cfg.End)
	if cfg.End.IsZero() {
		end = contracts.Day(time.Now())
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("backtest range inverted: %s to %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	if cfg.InitialCapital <= 0 {
		return nil, fmt.Errorf("initial capital must be positive, got %v", cfg.InitialCapital)
	}

	freq, err := calendar.ParseFrequency(sym.Meta.Rebalance)
	if err != nil {
		return nil, err
	}
	rule, err := calendar.NewRule(freq)
	if err != nil {
		return nil, err
	}

	tradingDays, err := e.cal.TradingDays(start, end)
	if err != nil {
		return nil, err
	}
	if len(tradingDays) == 0 {
		return nil, fmt.Errorf("no trading days between %s and %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	rebalanceDays := make(map[time.Time]bool)
	for _, d := range rule.RebalanceDays(tradingDays) {
		rebalanceDays[d] = true
	}

	closes, err := e.loadCloses(ctx, sym.Tickers(), start, end)
	if err != nil {
		return nil, err
	}

	// Warm-up: return-based statistics need one close beyond the longest
	// lookback. A symphony with no lookbacks evaluates from day one.
	periods := sym.Periods()
	warm := 0
	if len(periods) > 0 {
		warm = periods[len(periods)-1] + 1
		periods = append([]int(nil), periods...)
	} else {
		periods = []int{1}
	}

	universe := indicator.NewUniverse()
	for _, ticker := range sym.Tickers() {
		if _, err := universe.Register(ticker, periods); err != nil {
			return nil, err
		}
	}

	latest := &closeSource{closes: make(map[string]float64)}
	sink, err := allocation.NewPaperSink(cfg.InitialCapital, cfg.CommissionRate, cfg.SlippageRate, latest, e.log)
	if err != nil {
		return nil, err
	}

	evaluator := symphony.NewEvaluator(sym, universe, e.log)
	hash, err := symphony.Hash(sym)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Symphony:       sym.Meta.Name,
		ConfigHash:     hash,
		Start:          start,
		End:            end,
		TradingDays:    len(tradingDays),
		InitialCapital: cfg.InitialCapital,
	}

	for _, day := range tradingDays {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for _, ticker := range sym.Tickers() {
			close, ok := closes[ticker][day]
			if !ok {
				continue
			}
			if err := universe.Update(ticker, close); err != nil {
				return nil, err
			}
			latest.closes[ticker] = close
		}

		if rebalanceDays[day] && universe.MinBars() >= warm {
			eval, err := evaluator.Evaluate(ctx, day)
			if err != nil {
				return nil, fmt.Errorf("backtest aborted on %s: %w", day.Format("2006-01-02"), err)
			}
			if err := sink.Rebalance(ctx, eval, dropsHolding(sink, eval)); err != nil {
				return nil, fmt.Errorf("backtest aborted on %s: %w", day.Format("2006-01-02"), err)
			}
			result.RebalanceCount++
		}

		equity, err := sink.Equity()
		if err != nil {
			return nil, err
		}
		result.EquityCurve = append(result.EquityCurve, EquityPoint{Date: day, Equity: equity})
	}

	result.FinalCapital = result.EquityCurve[len(result.EquityCurve)-1].Equity
	result.Metrics = computeMetrics(result.InitialCapital, result.FinalCapital, start, end, result.EquityCurve)
	result.Duration = time.Since(began)

	e.log.WithFields(map[string]interface{}{
		"symphony":     sym.Meta.Name,
		"trading_days": result.TradingDays,
		"rebalances":   result.RebalanceCount,
		"total_return": fmt.Sprintf("%.2f%%", result.Metrics.TotalReturn*100),
		"sharpe":       fmt.Sprintf("%.2f", result.Metrics.SharpeRatio),
		"max_drawdown": fmt.Sprintf("%.2f%%", result.Metrics.MaxDrawdown*100),
	}).Info("backtest completed")

	return result, nil
}

// loadCloses indexes each ticker's bars by date.
func (e *Engine) loadCloses(ctx context.Context, tickers []string, start, end time.Time) (map[string]map[time.Time]float64, error) {
	closes := make(map[string]map[time.Time]float64, len(tickers))
	for _, ticker := range tickers {
		bars, err := e.repo.Range(ctx, ticker, start, end)
		if err != nil {
			return nil, fmt.Errorf("loading bars for %s: %w", ticker, err)
		}
		if len(bars) == 0 {
			return nil, fmt.Errorf("no bars for %s between %s and %s",
				ticker, start.Format("2006-01-02"), end.Format("2006-01-02"))
		}
		byDate := make(map[time.Time]float64, len(bars))
		for _, b := range bars {
			byDate[contracts.Day(b.Date)] = b.Close
		}
		closes[ticker] = byDate
	}
	return closes, nil
}

// dropsHolding reports whether any currently held position is absent
// from the new target list.
func dropsHolding(sink *allocation.PaperSink, eval *contracts.Evaluation) bool {
	targets := make(map[string]bool, len(eval.Targets))
	for _, t := range eval.Targets {
		targets[t.Symbol] = true
	}
	for _, pos := range sink.Positions() {
		if !targets[pos.Symbol] {
			return true
		}
	}
	return false
}
