package symphony

import (
	"context"
	"fmt"
	"time"

	"github.com/sonatalabs/sonata/internal/contracts"
	"github.com/sonatalabs/sonata/internal/indicator"
	"github.com/sonatalabs/sonata/internal/selection"
	"github.com/sonatalabs/sonata/pkg/logger"
)

// Evaluator walks a symphony's node tree against live indicator state and
// produces one target-weight list per evaluation date. It holds no timers;
// a driver (scheduler or backtest engine) decides when a date fires.
type Evaluator struct {
	cfg      *Config
	universe *indicator.Universe
	selector *selection.Engine
	log      *logger.Logger
}

var _ contracts.Strategy = (*Evaluator)(nil)

// NewEvaluator binds a validated symphony to its indicator universe.
func NewEvaluator(cfg *Config, universe *indicator.Universe, log *logger.Logger) *Evaluator {
	return &Evaluator{
		cfg:      cfg,
		universe: universe,
		selector: selection.NewEngine(universe, log),
		log:      log.WithComponent("evaluator"),
	}
}

// Name returns the symphony name.
func (e *Evaluator) Name() string {
	return e.cfg.Meta.Name
}

// Tickers returns the symphony's full subscription set.
func (e *Evaluator) Tickers() []string {
	return e.cfg.Tickers()
}

// Periods returns every lookback the tree reads.
func (e *Evaluator) Periods() []int {
	return e.cfg.Periods()
}

// Evaluate walks the tree with a budget of 1.0 and returns the complete
// target list. Any unreadable indicator fails the whole evaluation; there
// is no partial result.
func (e *Evaluator) Evaluate(ctx context.Context, date time.Time) (*contracts.Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	targets, err := e.walk([]*Node{e.cfg.Strategy}, 1.0)
	if err != nil {
		return nil, fmt.Errorf("evaluating %s on %s: %w",
			e.cfg.Meta.Name, date.Format("2006-01-02"), err)
	}

	eval := &contracts.Evaluation{
		Date:    contracts.Day(date),
		Targets: merge(targets),
	}
	if err := eval.Validate(); err != nil {
		return nil, fmt.Errorf("evaluating %s on %s: %w",
			e.cfg.Meta.Name, date.Format("2006-01-02"), err)
	}

	e.log.WithFields(map[string]interface{}{
		"symphony": e.cfg.Meta.Name,
		"date":     eval.Date.Format("2006-01-02"),
		"targets":  len(eval.Targets),
		"invested": eval.TotalWeight(),
	}).Info("symphony evaluated")

	return eval, nil
}

// walk distributes budget across a sibling group. Siblings always split
// the budget equally; static weights instead scale each child by its own
// declared fraction, leaving any remainder as cash.
func (e *Evaluator) walk(nodes []*Node, budget float64) ([]contracts.TargetWeight, error) {
	if len(nodes) == 0 || budget == 0 {
		return nil, nil
	}

	share := budget / float64(len(nodes))
	var out []contracts.TargetWeight
	for _, n := range nodes {
		targets, err := e.walkNode(n, share)
		if err != nil {
			return nil, err
		}
		out = append(out, targets...)
	}
	return out, nil
}

func (e *Evaluator) walkNode(n *Node, budget float64) ([]contracts.TargetWeight, error) {
	switch n.Kind {
	case KindAsset:
		return []contracts.TargetWeight{{Symbol: n.Ticker, Weight: budget}}, nil

	case KindEqualWeight:
		return e.walk(n.Children, budget)

	case KindStaticWeight:
		var out []contracts.TargetWeight
		for _, child := range n.Children {
			targets, err := e.walkNode(child, budget*child.Weight)
			if err != nil {
				return nil, err
			}
			out = append(out, targets...)
		}
		return out, nil

	case KindIf:
		taken, err := e.condition(n.Condition)
		if err != nil {
			return nil, err
		}
		if taken {
			return e.walk(n.Then, budget)
		}
		// An absent else branch parks the budget in cash.
		return e.walk(n.Else, budget)

	case KindFilter:
		return e.filter(n.Filter, budget)
	}

	return nil, fmt.Errorf("unknown node kind %q", n.Kind)
}

func (e *Evaluator) condition(c *Condition) (bool, error) {
	left, err := e.ref(c.Left)
	if err != nil {
		return false, err
	}

	var right float64
	if c.Right != nil {
		right, err = e.ref(*c.Right)
		if err != nil {
			return false, err
		}
	} else {
		right = *c.Value
	}

	switch c.Op {
	case OpGT:
		return left > right, nil
	case OpGTE:
		return left >= right, nil
	case OpLT:
		return left < right, nil
	case OpLTE:
		return left <= right, nil
	}
	return false, fmt.Errorf("unknown operator %q", c.Op)
}

func (e *Evaluator) ref(r IndicatorRef) (float64, error) {
	kind, err := indicator.ParseKind(r.Indicator)
	if err != nil {
		return 0, err
	}
	return e.universe.Value(r.Ticker, kind, r.Period)
}

func (e *Evaluator) filter(f *Filter, budget float64) ([]contracts.TargetWeight, error) {
	kind, err := indicator.ParseKind(f.Indicator)
	if err != nil {
		return nil, err
	}

	kept, err := e.selector.Select(f.Candidates,
		selection.Criterion{Kind: kind, Period: f.Period},
		selection.Mode(f.Select), f.Count)
	if err != nil {
		return nil, err
	}

	// Survivors split the budget equally.
	share := budget / float64(len(kept))
	out := make([]contracts.TargetWeight, len(kept))
	for i, r := range kept {
		out[i] = contracts.TargetWeight{Symbol: r.Symbol, Weight: share}
	}
	return out, nil
}

// merge folds duplicate tickers, summing weights, preserving first-seen
// order. The same asset can appear on both sides of a static split.
func merge(targets []contracts.TargetWeight) []contracts.TargetWeight {
	index := make(map[string]int, len(targets))
	var out []contracts.TargetWeight
	for _, t := range targets {
		if i, ok := index[t.Symbol]; ok {
			out[i].Weight += t.Weight
			continue
		}
		index[t.Symbol] = len(out)
		out = append(out, t)
	}
	return out
}
