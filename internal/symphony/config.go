package symphony

import (
	"fmt"
	"sort"
	"time"
)

// Node kinds.
const (
	KindAsset        = "asset"
	KindEqualWeight  = "equal-weight"
	KindStaticWeight = "static-weight"
	KindIf           = "if"
	KindFilter       = "filter"
)

// Condition operators.
const (
	OpGT  = "gt"
	OpGTE = "gte"
	OpLT  = "lt"
	OpLTE = "lte"
)

// Config is one symphony: meta plus the strategy node tree.
type Config struct {
	Meta     Meta  `yaml:"meta" json:"meta"`
	Strategy *Node `yaml:"strategy" json:"strategy"`
}

// Meta carries everything about a symphony that is not branch logic.
type Meta struct {
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version,omitempty" json:"version,omitempty"`
	// Exchange is the venue MIC whose trading days drive evaluation.
	Exchange string `yaml:"exchange,omitempty" json:"exchange,omitempty"`
	// Rebalance is the calendar-rule frequency.
	Rebalance string `yaml:"rebalance" json:"rebalance"`
	// ExecutionTime is the HH:MM time of day evaluation fires.
	ExecutionTime string `yaml:"execution_time" json:"execution_time"`
	// ConsolidationOffsetMinutes places the bar boundary this many
	// minutes before the execution time. Unset means the default of 1;
	// an explicit 0 puts the boundary at the execution time itself.
	ConsolidationOffsetMinutes *int `yaml:"consolidation_offset_minutes,omitempty" json:"consolidation_offset_minutes,omitempty"`
	// BacktestStart is the default YYYY-MM-DD start date for backtests.
	BacktestStart string `yaml:"backtest_start,omitempty" json:"backtest_start,omitempty"`
}

// Node is one vertex of the strategy tree. Which fields apply depends on
// Kind; Validate rejects mixtures.
type Node struct {
	Kind string `yaml:"kind" json:"kind"`

	// asset
	Ticker string `yaml:"ticker,omitempty" json:"ticker,omitempty"`

	// static-weight: fraction of the parent's budget this child takes.
	Weight float64 `yaml:"weight,omitempty" json:"weight,omitempty"`

	// equal-weight, static-weight
	Children []*Node `yaml:"children,omitempty" json:"children,omitempty"`

	// if
	Condition *Condition `yaml:"condition,omitempty" json:"condition,omitempty"`
	Then      []*Node    `yaml:"then,omitempty" json:"then,omitempty"`
	Else      []*Node    `yaml:"else,omitempty" json:"else,omitempty"`

	// filter
	Filter *Filter `yaml:"filter,omitempty" json:"filter,omitempty"`
}

// IndicatorRef names one indicator reading on one ticker.
type IndicatorRef struct {
	Ticker    string `yaml:"ticker" json:"ticker"`
	Indicator string `yaml:"indicator" json:"indicator"`
	Period    int    `yaml:"period,omitempty" json:"period,omitempty"`
}

// Condition compares an indicator reading against another reading or a
// constant. Exactly one of Right and Value is set.
type Condition struct {
	Left  IndicatorRef  `yaml:"left" json:"left"`
	Op    string        `yaml:"op" json:"op"`
	Right *IndicatorRef `yaml:"right,omitempty" json:"right,omitempty"`
	Value *float64      `yaml:"value,omitempty" json:"value,omitempty"`
}

// Filter ranks candidates by one indicator and keeps a slice, which is
// then allocated equal weight.
type Filter struct {
	Candidates []string `yaml:"candidates" json:"candidates"`
	Indicator  string   `yaml:"indicator" json:"indicator"`
	Period     int      `yaml:"period" json:"period"`
	Select     string   `yaml:"select" json:"select"`
	Count      int      `yaml:"count" json:"count"`
}

// ExecutionClock parses the HH:MM execution time into an offset from
// midnight.
func (m Meta) ExecutionClock() (time.Duration, error) {
	t, err := time.Parse("15:04", m.ExecutionTime)
	if err != nil {
		return 0, fmt.Errorf("invalid execution_time %q: %w", m.ExecutionTime, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// ConsolidationOffset returns the gap between the bar boundary and the
// execution time.
func (m Meta) ConsolidationOffset() time.Duration {
	if m.ConsolidationOffsetMinutes == nil {
		return time.Minute
	}
	return time.Duration(*m.ConsolidationOffsetMinutes) * time.Minute
}

// ConsolidationClock places the bar boundary as an offset from midnight,
// wrapping to the previous day when the offset crosses it.
func (m Meta) ConsolidationClock() (time.Duration, error) {
	exec, err := m.ExecutionClock()
	if err != nil {
		return 0, err
	}
	boundary := exec - m.ConsolidationOffset()
	if boundary < 0 {
		boundary += 24 * time.Hour
	}
	return boundary, nil
}

// BacktestStartDate parses the declared start date. A symphony without
// one returns ok=false and backtests must be given an explicit start.
func (m Meta) BacktestStartDate() (time.Time, bool, error) {
	if m.BacktestStart == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse("2006-01-02", m.BacktestStart)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid backtest_start %q: %w", m.BacktestStart, err)
	}
	return t.UTC(), true, nil
}

// Tickers lists every ticker the tree can ever allocate or read, sorted
// and de-duplicated. This is the feed subscription set.
func (c *Config) Tickers() []string {
	seen := map[string]bool{}
	walkNodes([]*Node{c.Strategy}, func(n *Node) {
		if n.Ticker != "" {
			seen[n.Ticker] = true
		}
		if n.Condition != nil {
			seen[n.Condition.Left.Ticker] = true
			if n.Condition.Right != nil {
				seen[n.Condition.Right.Ticker] = true
			}
		}
		if n.Filter != nil {
			for _, t := range n.Filter.Candidates {
				seen[t] = true
			}
		}
	})

	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Periods lists every lookback period the tree reads, sorted and
// de-duplicated. Indicator state is sized from this set.
func (c *Config) Periods() []int {
	seen := map[int]bool{}
	add := func(p int) {
		if p > 0 {
			seen[p] = true
		}
	}
	walkNodes([]*Node{c.Strategy}, func(n *Node) {
		if n.Condition != nil {
			add(n.Condition.Left.Period)
			if n.Condition.Right != nil {
				add(n.Condition.Right.Period)
			}
		}
		if n.Filter != nil {
			add(n.Filter.Period)
		}
	})

	out := make([]int, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// walkNodes visits every node reachable from roots, depth first.
func walkNodes(roots []*Node, visit func(*Node)) {
	for _, n := range roots {
		if n == nil {
			continue
		}
		visit(n)
		walkNodes(n.Children, visit)
		walkNodes(n.Then, visit)
		walkNodes(n.Else, visit)
	}
}
