package symphony

import (
	"fmt"
	"math"

	"github.com/sonatalabs/sonata/internal/calendar"
	"github.com/sonatalabs/sonata/internal/indicator"
	"github.com/sonatalabs/sonata/internal/selection"
)

// ValidationError names the failing field. Validation failures abort the
// load; a symphony is never repaired or defaulted into running.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var operators = map[string]bool{
	OpGT:  true,
	OpGTE: true,
	OpLT:  true,
	OpLTE: true,
}

// Validate checks meta and the whole node tree.
func Validate(cfg *Config) error {
	if cfg.Meta.Name == "" {
		return ValidationError{"meta.name", "required"}
	}
	if _, err := calendar.ParseFrequency(cfg.Meta.Rebalance); err != nil {
		return ValidationError{"meta.rebalance", err.Error()}
	}
	if _, err := cfg.Meta.ExecutionClock(); err != nil {
		return ValidationError{"meta.execution_time", err.Error()}
	}
	if off := cfg.Meta.ConsolidationOffsetMinutes; off != nil && (*off < 0 || *off >= 24*60) {
		return ValidationError{"meta.consolidation_offset_minutes", "must be within a day"}
	}
	if _, _, err := cfg.Meta.BacktestStartDate(); err != nil {
		return ValidationError{"meta.backtest_start", err.Error()}
	}

	if cfg.Strategy == nil {
		return ValidationError{"strategy", "required"}
	}
	return validateNode(cfg.Strategy, "strategy")
}

func validateNode(n *Node, path string) error {
	switch n.Kind {
	case KindAsset:
		if n.Ticker == "" {
			return ValidationError{path + ".ticker", "required for asset"}
		}
		if len(n.Children) > 0 || n.Condition != nil || n.Filter != nil {
			return ValidationError{path, "asset node cannot have children, condition or filter"}
		}

	case KindEqualWeight:
		if len(n.Children) == 0 {
			return ValidationError{path + ".children", "equal-weight needs children"}
		}
		for i, child := range n.Children {
			if err := validateNode(child, fmt.Sprintf("%s.children[%d]", path, i)); err != nil {
				return err
			}
		}

	case KindStaticWeight:
		if len(n.Children) == 0 {
			return ValidationError{path + ".children", "static-weight needs children"}
		}
		total := 0.0
		for i, child := range n.Children {
			childPath := fmt.Sprintf("%s.children[%d]", path, i)
			if child.Weight < 0 {
				return ValidationError{childPath + ".weight", "must be >= 0"}
			}
			total += child.Weight
			if err := validateNode(child, childPath); err != nil {
				return err
			}
		}
		if total > 1.0+1e-9 {
			return ValidationError{path + ".children", fmt.Sprintf("weights sum to %.4f, must be <= 1", total)}
		}

	case KindIf:
		if n.Condition == nil {
			return ValidationError{path + ".condition", "required for if"}
		}
		if err := validateCondition(n.Condition, path+".condition"); err != nil {
			return err
		}
		if len(n.Then) == 0 {
			return ValidationError{path + ".then", "if needs a then branch"}
		}
		for i, child := range n.Then {
			if err := validateNode(child, fmt.Sprintf("%s.then[%d]", path, i)); err != nil {
				return err
			}
		}
		for i, child := range n.Else {
			if err := validateNode(child, fmt.Sprintf("%s.else[%d]", path, i)); err != nil {
				return err
			}
		}

	case KindFilter:
		if n.Filter == nil {
			return ValidationError{path + ".filter", "required for filter node"}
		}
		return validateFilter(n.Filter, path+".filter")

	default:
		return ValidationError{path + ".kind", fmt.Sprintf("unknown node kind %q", n.Kind)}
	}

	return nil
}

func validateCondition(c *Condition, path string) error {
	if !operators[c.Op] {
		return ValidationError{path + ".op", fmt.Sprintf("unknown operator %q", c.Op)}
	}
	if err := validateRef(c.Left, path+".left"); err != nil {
		return err
	}

	hasRight := c.Right != nil
	hasValue := c.Value != nil
	if hasRight == hasValue {
		return ValidationError{path, "exactly one of right and value must be set"}
	}
	if hasRight {
		return validateRef(*c.Right, path+".right")
	}
	if math.IsNaN(*c.Value) || math.IsInf(*c.Value, 0) {
		return ValidationError{path + ".value", "must be finite"}
	}
	return nil
}

func validateRef(r IndicatorRef, path string) error {
	if r.Ticker == "" {
		return ValidationError{path + ".ticker", "required"}
	}
	kind, err := indicator.ParseKind(r.Indicator)
	if err != nil {
		return ValidationError{path + ".indicator", err.Error()}
	}
	if kind != indicator.CurrentPrice && r.Period < 1 {
		return ValidationError{path + ".period", "must be >= 1"}
	}
	return nil
}

func validateFilter(f *Filter, path string) error {
	if len(f.Candidates) == 0 {
		return ValidationError{path + ".candidates", "required"}
	}
	seen := map[string]bool{}
	for _, t := range f.Candidates {
		if t == "" {
			return ValidationError{path + ".candidates", "empty ticker"}
		}
		if seen[t] {
			return ValidationError{path + ".candidates", fmt.Sprintf("duplicate ticker %s", t)}
		}
		seen[t] = true
	}

	kind, err := indicator.ParseKind(f.Indicator)
	if err != nil {
		return ValidationError{path + ".indicator", err.Error()}
	}
	if kind != indicator.CurrentPrice && f.Period < 1 {
		return ValidationError{path + ".period", "must be >= 1"}
	}
	if _, err := selection.ParseMode(f.Select); err != nil {
		return ValidationError{path + ".select", err.Error()}
	}
	if f.Count < 1 || f.Count > len(f.Candidates) {
		return ValidationError{path + ".count", fmt.Sprintf("must be in [1, %d]", len(f.Candidates))}
	}
	return nil
}
