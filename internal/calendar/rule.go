package calendar

import (
	"fmt"
	"time"
)

// Frequency selects how trading days are grouped for rebalancing.
type Frequency string

const (
	Daily     Frequency = "daily"
	Weekly    Frequency = "weekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Yearly    Frequency = "yearly"
)

var frequencies = map[Frequency]bool{
	Daily:     true,
	Weekly:    true,
	Monthly:   true,
	Quarterly: true,
	Yearly:    true,
}

// ParseFrequency validates a rebalance frequency from configuration.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(s)
	if !frequencies[f] {
		return "", fmt.Errorf("unknown rebalance frequency %q", s)
	}
	return f, nil
}

// Key returns the group a date belongs to. Two dates share a key exactly
// when they fall in the same rebalance period. Weeks follow ISO 8601, so
// the year component comes from ISOWeek rather than the calendar year.
func (f Frequency) Key(t time.Time) string {
	switch f {
	case Daily:
		return t.Format("2006-01-02")
	case Weekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case Monthly:
		return t.Format("2006-01")
	case Quarterly:
		quarter := (int(t.Month())-1)/3 + 1
		return fmt.Sprintf("%04d-Q%d", t.Year(), quarter)
	case Yearly:
		return t.Format("2006")
	}
	return t.Format("2006-01-02")
}

// Rule marks the first trading day of every rebalance period.
type Rule struct {
	freq Frequency
}

// NewRule builds a rule for the given frequency.
func NewRule(freq Frequency) (*Rule, error) {
	if !frequencies[freq] {
		return nil, fmt.Errorf("unknown rebalance frequency %q", freq)
	}
	return &Rule{freq: freq}, nil
}

// Frequency returns the configured grouping.
func (r *Rule) Frequency() Frequency {
	return r.freq
}

// RebalanceDays filters a sorted trading-day sequence down to the first
// day of each period. At most one day survives per period.
func (r *Rule) RebalanceDays(tradingDays []time.Time) []time.Time {
	var out []time.Time
	lastKey := ""
	for _, d := range tradingDays {
		key := r.freq.Key(d)
		if key != lastKey {
			out = append(out, d)
			lastKey = key
		}
	}
	return out
}
