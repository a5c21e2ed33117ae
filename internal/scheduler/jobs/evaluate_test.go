package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonatalabs/sonata/internal/calendar"
	"github.com/sonatalabs/sonata/internal/contracts"
	"github.com/sonatalabs/sonata/internal/indicator"
	"github.com/sonatalabs/sonata/internal/symphony"
	"github.com/sonatalabs/sonata/pkg/logger"
)

type stubStrategy struct {
	name    string
	eval    *contracts.Evaluation
	evalErr error
	dates   []time.Time
}

func (s *stubStrategy) Name() string      { return s.name }
func (s *stubStrategy) Tickers() []string { return nil }
func (s *stubStrategy) Periods() []int    { return nil }

func (s *stubStrategy) Evaluate(ctx context.Context, date time.Time) (*contracts.Evaluation, error) {
	s.dates = append(s.dates, date)
	if s.evalErr != nil {
		return nil, s.evalErr
	}
	return s.eval, nil
}

type stubSink struct {
	rebalances int
	liquidated []bool
}

func (s *stubSink) Rebalance(ctx context.Context, eval *contracts.Evaluation, liquidate bool) error {
	s.rebalances++
	s.liquidated = append(s.liquidated, liquidate)
	return nil
}

type stubHoldings struct {
	symbols []string
}

func (s *stubHoldings) HeldSymbols() []string { return s.symbols }

func staticConfig() *symphony.Config {
	return &symphony.Config{
		Meta: symphony.Meta{
			Name:          "all-vti",
			Rebalance:     "daily",
			ExecutionTime: "15:59",
		},
		Strategy: &symphony.Node{Kind: symphony.KindAsset, Ticker: "VTI"},
	}
}

func momentumConfig() *symphony.Config {
	return &symphony.Config{
		Meta: symphony.Meta{
			Name:          "momentum",
			Rebalance:     "daily",
			ExecutionTime: "15:59",
		},
		Strategy: &symphony.Node{
			Kind: symphony.KindFilter,
			Filter: &symphony.Filter{
				Candidates: []string{"VTI", "QQQ"},
				Indicator:  "cumulative-return",
				Period:     5,
				Select:     "top",
				Count:      1,
			},
		},
	}
}

func warmUniverse(t *testing.T, symbols []string, closes int) *indicator.Universe {
	t.Helper()
	u := indicator.NewUniverse()
	for _, sym := range symbols {
		_, err := u.Register(sym, []int{1})
		require.NoError(t, err)
		for i := 0; i < closes; i++ {
			require.NoError(t, u.Update(sym, 100+float64(i)))
		}
	}
	return u
}

// The stub exchange MIC is unknown to the holiday calendar, so trading
// days degrade to plain weekdays and the tests stay deterministic.
func newJob(t *testing.T, cfg *symphony.Config, strat *stubStrategy, sink *stubSink, u *indicator.Universe, holdings HoldingsLister) *EvaluationJob {
	t.Helper()
	exchange := calendar.NewExchange("xtest", logger.NewNop())
	job, err := NewEvaluationJob(cfg, strat, sink, u, exchange, holdings, logger.NewNop())
	require.NoError(t, err)
	return job
}

func TestEvaluationJobSchedule(t *testing.T) {
	strat := &stubStrategy{name: "all-vti"}
	job := newJob(t, staticConfig(), strat, &stubSink{}, warmUniverse(t, []string{"VTI"}, 1), nil)

	assert.Equal(t, "0 59 15 * * MON-FRI", job.Schedule())
	assert.Equal(t, "evaluate:all-vti", job.Name())
}

func TestEvaluationJobRebalancesOnTradingDay(t *testing.T) {
	eval := &contracts.Evaluation{Targets: []contracts.TargetWeight{{Symbol: "VTI", Weight: 1}}}
	strat := &stubStrategy{name: "all-vti", eval: eval}
	sink := &stubSink{}
	job := newJob(t, staticConfig(), strat, sink, warmUniverse(t, []string{"VTI"}, 1), nil)
	job.now = func() time.Time {
		return time.Date(2026, 8, 26, 15, 59, 0, 0, time.UTC) // Wednesday
	}

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, sink.rebalances)
	require.Len(t, strat.dates, 1)
	assert.Equal(t, time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC), strat.dates[0])
	assert.Equal(t, []bool{false}, sink.liquidated)
}

func TestEvaluationJobSkipsWeekend(t *testing.T) {
	strat := &stubStrategy{name: "all-vti"}
	sink := &stubSink{}
	job := newJob(t, staticConfig(), strat, sink, warmUniverse(t, []string{"VTI"}, 1), nil)
	job.now = func() time.Time {
		return time.Date(2026, 8, 29, 15, 59, 0, 0, time.UTC) // Saturday
	}

	require.NoError(t, job.Run(context.Background()))
	assert.Zero(t, sink.rebalances)
	assert.Empty(t, strat.dates)
}

func TestEvaluationJobSkipsMidPeriodDays(t *testing.T) {
	cfg := staticConfig()
	cfg.Meta.Rebalance = "monthly"

	strat := &stubStrategy{name: "all-vti", eval: &contracts.Evaluation{}}
	sink := &stubSink{}
	job := newJob(t, cfg, strat, sink, warmUniverse(t, []string{"VTI"}, 1), nil)

	// August 2026 opens on Saturday, so Monday the 3rd rebalances and
	// the 26th does not.
	job.now = func() time.Time {
		return time.Date(2026, 8, 26, 15, 59, 0, 0, time.UTC)
	}
	require.NoError(t, job.Run(context.Background()))
	assert.Zero(t, sink.rebalances)

	job.now = func() time.Time {
		return time.Date(2026, 8, 3, 15, 59, 0, 0, time.UTC)
	}
	strat.eval = &contracts.Evaluation{Targets: []contracts.TargetWeight{{Symbol: "VTI", Weight: 1}}}
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, sink.rebalances)
}

func TestEvaluationJobWaitsForWarmUp(t *testing.T) {
	strat := &stubStrategy{name: "momentum"}
	sink := &stubSink{}
	// 5-period cumulative return needs 6 closes; seed only 2.
	job := newJob(t, momentumConfig(), strat, sink, warmUniverse(t, []string{"VTI", "QQQ"}, 2), nil)
	job.now = func() time.Time {
		return time.Date(2026, 8, 26, 15, 59, 0, 0, time.UTC)
	}

	require.NoError(t, job.Run(context.Background()))
	assert.Zero(t, sink.rebalances)
	assert.Empty(t, strat.dates)
}

func TestEvaluationJobLiquidatesDroppedHoldings(t *testing.T) {
	eval := &contracts.Evaluation{Targets: []contracts.TargetWeight{{Symbol: "VTI", Weight: 1}}}
	strat := &stubStrategy{name: "all-vti", eval: eval}
	sink := &stubSink{}
	holdings := &stubHoldings{symbols: []string{"QQQ"}}
	job := newJob(t, staticConfig(), strat, sink, warmUniverse(t, []string{"VTI"}, 1), holdings)
	job.now = func() time.Time {
		return time.Date(2026, 8, 26, 15, 59, 0, 0, time.UTC)
	}

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []bool{true}, sink.liquidated)
}

func TestNewEvaluationJobValidation(t *testing.T) {
	cfg := staticConfig()
	cfg.Meta.Rebalance = "hourly"
	exchange := calendar.NewExchange("xtest", logger.NewNop())
	_, err := NewEvaluationJob(cfg, &stubStrategy{name: "x"}, &stubSink{}, indicator.NewUniverse(), exchange, nil, logger.NewNop())
	require.Error(t, err)

	cfg = staticConfig()
	cfg.Meta.ExecutionTime = "25:00"
	_, err = NewEvaluationJob(cfg, &stubStrategy{name: "x"}, &stubSink{}, indicator.NewUniverse(), exchange, nil, logger.NewNop())
	require.Error(t, err)

	_, err = NewEvaluationJob(staticConfig(), nil, &stubSink{}, indicator.NewUniverse(), exchange, nil, logger.NewNop())
	require.Error(t, err)
}
