package backtest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/sonatalabs/sonata/internal/contracts"
	"github.com/sonatalabs/sonata/internal/marketdata"
	"github.com/sonatalabs/sonata/internal/symphony"
	"github.com/sonatalabs/sonata/pkg/logger"
)

// weekdayCalendar treats every weekday as a trading day.
type weekdayCalendar struct{}

func (weekdayCalendar) TradingDays(start, end time.Time) ([]time.Time, error) {
	var days []time.Time
	for d := contracts.Day(start); !d.After(contracts.Day(end)); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days = append(days, d)
		}
	}
	return days, nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// seedBars writes one bar per weekday with the given per-day growth.
func seedBars(t *testing.T, repo contracts.BarRepository, symbol string, start time.Time, days int, first, growth float64) {
	t.Helper()
	var bars []contracts.DailyBar
	price := first
	d := contracts.Day(start)
	for len(bars) < days {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			bars = append(bars, contracts.DailyBar{Symbol: symbol, Date: d, Close: price})
			price *= 1 + growth
		}
		d = d.AddDate(0, 0, 1)
	}
	if err := repo.Save(context.Background(), bars); err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func staticConfig(t *testing.T) *symphony.Config {
	t.Helper()
	cfg := &symphony.Config{
		Meta: symphony.Meta{
			Name:          "static-60-40",
			Rebalance:     "monthly",
			ExecutionTime: "15:59",
			BacktestStart: "2024-01-01",
		},
		Strategy: &symphony.Node{
			Kind: symphony.KindStaticWeight,
			Children: []*symphony.Node{
				{Kind: symphony.KindAsset, Ticker: "VTI", Weight: 0.6},
				{Kind: symphony.KindAsset, Ticker: "BND", Weight: 0.4},
			},
		},
	}
	if err := symphony.Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg
}

func TestRunStaticSymphony(t *testing.T) {
	repo := marketdata.NewMemoryBarRepository()
	seedBars(t, repo, "VTI", day(2024, time.January, 1), 90, 100, 0.001)
	seedBars(t, repo, "BND", day(2024, time.January, 1), 90, 80, 0.0002)

	engine := NewEngine(repo, weekdayCalendar{}, logger.NewNop())
	result, err := engine.Run(context.Background(), staticConfig(t), Config{
		End:            day(2024, time.April, 30),
		InitialCapital: 10000,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Symphony != "static-60-40" {
		t.Errorf("symphony = %q", result.Symphony)
	}
	if result.ConfigHash == "" {
		t.Error("config hash missing")
	}
	// Monthly rule over Jan..Apr start dates; bars stop in early May, but
	// rebalances only need closes, so four months fire.
	if result.RebalanceCount < 3 {
		t.Errorf("rebalances = %d, want at least 3", result.RebalanceCount)
	}
	if len(result.EquityCurve) != result.TradingDays {
		t.Errorf("curve has %d points over %d trading days", len(result.EquityCurve), result.TradingDays)
	}

	// Both assets only rise, so the account can only gain.
	if result.FinalCapital <= result.InitialCapital {
		t.Errorf("final capital %v should exceed initial %v", result.FinalCapital, result.InitialCapital)
	}
	if result.Metrics.TotalReturn <= 0 {
		t.Errorf("total return = %v", result.Metrics.TotalReturn)
	}
	if result.Metrics.MaxDrawdown > 0 {
		t.Errorf("max drawdown = %v, can never be positive", result.Metrics.MaxDrawdown)
	}
}

func TestRunWaitsForWarmUp(t *testing.T) {
	repo := marketdata.NewMemoryBarRepository()
	seedBars(t, repo, "SPY", day(2024, time.January, 1), 30, 100, 0.01)
	seedBars(t, repo, "BIL", day(2024, time.January, 1), 30, 100, 0)

	cfg := &symphony.Config{
		Meta: symphony.Meta{Name: "trend", Rebalance: "daily", ExecutionTime: "15:59"},
		Strategy: &symphony.Node{
			Kind: symphony.KindIf,
			Condition: &symphony.Condition{
				Left: symphony.IndicatorRef{Ticker: "SPY", Indicator: "current-price"},
				Op:   symphony.OpGT,
				Right: &symphony.IndicatorRef{
					Ticker: "SPY", Indicator: "moving-average-price", Period: 10,
				},
			},
			Then: []*symphony.Node{{Kind: symphony.KindAsset, Ticker: "SPY"}},
			Else: []*symphony.Node{{Kind: symphony.KindAsset, Ticker: "BIL"}},
		},
	}
	if err := symphony.Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	engine := NewEngine(repo, weekdayCalendar{}, logger.NewNop())
	result, err := engine.Run(context.Background(), cfg, Config{
		Start:          day(2024, time.January, 1),
		End:            day(2024, time.February, 12),
		InitialCapital: 10000,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Eleven bars of warm-up on a daily rule: the first evaluations are
	// skipped, not failed.
	if result.RebalanceCount >= result.TradingDays {
		t.Errorf("rebalances = %d over %d days, warm-up should skip some",
			result.RebalanceCount, result.TradingDays)
	}
	if result.RebalanceCount == 0 {
		t.Error("no rebalance ever fired")
	}
}

func TestRunValidation(t *testing.T) {
	repo := marketdata.NewMemoryBarRepository()
	engine := NewEngine(repo, weekdayCalendar{}, logger.NewNop())
	ctx := context.Background()
	cfg := staticConfig(t)

	if _, err := engine.Run(ctx, cfg, Config{End: day(2024, time.April, 30)}); err == nil {
		t.Error("zero capital should fail")
	}
	if _, err := engine.Run(ctx, cfg, Config{
		Start: day(2024, time.May, 1), End: day(2024, time.January, 1), InitialCapital: 1000,
	}); err == nil {
		t.Error("inverted range should fail")
	}
	// Empty repository.
	if _, err := engine.Run(ctx, cfg, Config{
		End: day(2024, time.April, 30), InitialCapital: 1000,
	}); err == nil {
		t.Error("missing bars should fail")
	}

	noStart := staticConfig(t)
	noStart.Meta.BacktestStart = ""
	if _, err := engine.Run(ctx, noStart, Config{
		End: day(2024, time.April, 30), InitialCapital: 1000,
	}); err == nil {
		t.Error("no start anywhere should fail")
	}
}

func TestComputeMetricsFlatCurve(t *testing.T) {
	curve := []EquityPoint{
		{Date: day(2024, time.January, 1), Equity: 1000},
		{Date: day(2024, time.January, 2), Equity: 1000},
		{Date: day(2024, time.January, 3), Equity: 1000},
	}
	m := computeMetrics(1000, 1000, day(2024, time.January, 1), day(2025, time.January, 1), curve)

	if m.TotalReturn != 0 || m.CAGR != 0 || m.Volatility != 0 || m.MaxDrawdown != 0 {
		t.Errorf("flat curve metrics = %+v, want zeros", m)
	}
}

func TestComputeMetricsDrawdown(t *testing.T) {
	curve := []EquityPoint{
		{Date: day(2024, time.January, 1), Equity: 1000},
		{Date: day(2024, time.January, 2), Equity: 1200},
		{Date: day(2024, time.January, 3), Equity: 900},
		{Date: day(2024, time.January, 4), Equity: 1100},
	}
	m := computeMetrics(1000, 1100, day(2024, time.January, 1), day(2024, time.December, 31), curve)

	want := (900.0 - 1200.0) / 1200.0
	if math.Abs(m.MaxDrawdown-want) > 1e-12 {
		t.Errorf("max drawdown = %v, want %v", m.MaxDrawdown, want)
	}
	if m.TotalReturn <= 0 {
		t.Errorf("total return = %v, want positive", m.TotalReturn)
	}
}

func TestComputeMetricsDoublingYear(t *testing.T) {
	start := day(2023, time.January, 1)
	end := start.AddDate(1, 0, 0)
	curve := []EquityPoint{
		{Date: start, Equity: 1000},
		{Date: end, Equity: 2000},
	}
	m := computeMetrics(1000, 2000, start, end, curve)

	if math.Abs(m.TotalReturn-1.0) > 1e-9 {
		t.Errorf("total return = %v, want 1.0", m.TotalReturn)
	}
	// One year of doubling: CAGR close to 100%.
	if math.Abs(m.CAGR-1.0) > 0.01 {
		t.Errorf("CAGR = %v, want about 1.0", m.CAGR)
	}
}
