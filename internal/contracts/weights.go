package contracts

import (
	"fmt"
	"time"
)

// TargetWeight assigns a fraction of portfolio value to one ticker.
// Weights are non-negative; a list that sums to less than 1.0 leaves the
// remainder in cash.
type TargetWeight struct {
	Symbol string  `json:"symbol"`
	Weight float64 `json:"weight"`
}

// Evaluation is the atomic output of one strategy evaluation: the complete
// target-weight list for one date. An evaluation either carries the full
// list or does not exist; there is no partial result.
type Evaluation struct {
	Date    time.Time      `json:"date"`
	Targets []TargetWeight `json:"targets"`
}

// TotalWeight returns the sum of all target weights.
func (e *Evaluation) TotalWeight() float64 {
	total := 0.0
	for _, t := range e.Targets {
		total += t.Weight
	}
	return total
}

// Get finds a target by symbol.
func (e *Evaluation) Get(symbol string) (TargetWeight, bool) {
	for _, t := range e.Targets {
		if t.Symbol == symbol {
			return t, true
		}
	}
	return TargetWeight{}, false
}

// Validate checks the weight invariants: every weight non-negative, no
// duplicate symbols, and the total not meaningfully above 1.0.
func (e *Evaluation) Validate() error {
	seen := make(map[string]bool, len(e.Targets))
	for _, t := range e.Targets {
		if t.Weight < 0 {
			return fmt.Errorf("negative weight %.6f for %s", t.Weight, t.Symbol)
		}
		if seen[t.Symbol] {
			return fmt.Errorf("duplicate target for %s", t.Symbol)
		}
		seen[t.Symbol] = true
	}
	if total := e.TotalWeight(); total > 1.0+1e-9 {
		return fmt.Errorf("total weight %.6f exceeds 1.0", total)
	}
	return nil
}
