// Package jobs holds the scheduled work units wired into the scheduler.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/sonatalabs/sonata/internal/calendar"
	"github.com/sonatalabs/sonata/internal/contracts"
	"github.com/sonatalabs/sonata/internal/indicator"
	"github.com/sonatalabs/sonata/internal/symphony"
	"github.com/sonatalabs/sonata/pkg/logger"
)

// rebalanceLookback bounds how far back the job scans for the current
// rebalance period. Wide enough to cover a yearly rule.
const rebalanceLookback = 400

// HoldingsLister reports the symbols currently held, used to decide
// whether a rebalance must liquidate dropped positions.
type HoldingsLister interface {
	HeldSymbols() []string
}

// EvaluationJob evaluates a symphony at its execution time and pushes
// the resulting targets to the allocation sink. It only acts on days
// the rebalance rule selects, and skips until indicators are warm.
type EvaluationJob struct {
	strategy contracts.Strategy
	sink     contracts.AllocationSink
	exchange *calendar.Exchange
	rule     *calendar.Rule
	universe *indicator.Universe
	holdings HoldingsLister
	schedule string
	warm     int
	now      func() time.Time
	log      *logger.Logger
}

// NewEvaluationJob builds the job from a loaded symphony. The schedule
// fires at the symphony's execution time on weekdays; the calendar rule
// decides which of those days actually rebalance. holdings may be nil
// when the sink never liquidates.
func NewEvaluationJob(
	cfg *symphony.Config,
	strategy contracts.Strategy,
	sink contracts.AllocationSink,
	universe *indicator.Universe,
	exchange *calendar.Exchange,
	holdings HoldingsLister,
	log *logger.Logger,
) (*EvaluationJob, error) {
	if strategy == nil || sink == nil || universe == nil || exchange == nil {
		return nil, fmt.Errorf("strategy, sink, universe and exchange are required")
	}

	freq, err := calendar.ParseFrequency(cfg.Meta.Rebalance)
	if err != nil {
		return nil, err
	}
	rule, err := calendar.NewRule(freq)
	if err != nil {
		return nil, err
	}

	clock, err := cfg.Meta.ExecutionClock()
	if err != nil {
		return nil, err
	}
	hour := int(clock / time.Hour)
	minute := int(clock % time.Hour / time.Minute)

	warm := 0
	for _, p := range cfg.Periods() {
		if p+1 > warm {
			warm = p + 1
		}
	}
	if warm == 0 {
		warm = 1
	}

	return &EvaluationJob{
		strategy: strategy,
		sink:     sink,
		exchange: exchange,
		rule:     rule,
		universe: universe,
		holdings: holdings,
		schedule: fmt.Sprintf("0 %d %d * * MON-FRI", minute, hour),
		warm:     warm,
		now:      time.Now,
		log:      log.WithComponent("evaluation_job"),
	}, nil
}

// Name returns the job name.
func (j *EvaluationJob) Name() string {
	return "evaluate:" + j.strategy.Name()
}

// Schedule returns the cron schedule derived from the execution time.
func (j *EvaluationJob) Schedule() string {
	return j.schedule
}

// Run evaluates the symphony for today and rebalances the sink.
func (j *EvaluationJob) Run(ctx context.Context) error {
	today := contracts.Day(j.now())

	if !j.exchange.IsTradingDay(today) {
		j.log.WithField("date", today.Format("2006-01-02")).Debug("Not a trading day, skipping")
		return nil
	}

	due, err := j.rebalanceDue(today)
	if err != nil {
		return err
	}
	if !due {
		j.log.WithField("date", today.Format("2006-01-02")).Debug("Not a rebalance day, skipping")
		return nil
	}

	if bars := j.universe.MinBars(); bars < j.warm {
		j.log.WithFields(map[string]interface{}{
			"bars":   bars,
			"needed": j.warm,
		}).Warn("Indicators still warming up, skipping rebalance")
		return nil
	}

	eval, err := j.strategy.Evaluate(ctx, today)
	if err != nil {
		return fmt.Errorf("evaluate %s: %w", j.strategy.Name(), err)
	}

	if err := j.sink.Rebalance(ctx, eval, j.dropsHolding(eval)); err != nil {
		return fmt.Errorf("rebalance %s: %w", j.strategy.Name(), err)
	}

	j.log.WithFields(map[string]interface{}{
		"symphony": j.strategy.Name(),
		"date":     today.Format("2006-01-02"),
		"targets":  len(eval.Targets),
	}).Info("Rebalance executed")
	return nil
}

// rebalanceDue reports whether date is the first trading day of its
// rebalance period.
func (j *EvaluationJob) rebalanceDue(date time.Time) (bool, error) {
	start := date.AddDate(0, 0, -rebalanceLookback)
	days, err := j.exchange.TradingDays(start, date)
	if err != nil {
		return false, fmt.Errorf("trading days: %w", err)
	}

	for _, d := range j.rule.RebalanceDays(days) {
		if d.Equal(date) {
			return true, nil
		}
	}
	return false, nil
}

// dropsHolding reports whether the evaluation leaves out a currently
// held symbol, which forces a liquidating rebalance.
func (j *EvaluationJob) dropsHolding(eval *contracts.Evaluation) bool {
	if j.holdings == nil {
		return false
	}
	for _, symbol := range j.holdings.HeldSymbols() {
		if _, ok := eval.Get(symbol); !ok {
			return true
		}
	}
	return false
}
