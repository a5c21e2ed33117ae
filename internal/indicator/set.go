package indicator

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrWarmingUp is returned when an indicator is read before its lookback
// window has filled. Callers must not evaluate before the warm-up period
// has elapsed; the read is failed rather than answered with a default.
var ErrWarmingUp = errors.New("indicator warming up")

// Set owns the rolling statistics for one symbol. Statistics are computed
// over a shared price History sized to the largest configured lookback;
// exponential moving averages carry incremental state updated on every bar.
// A Set is exclusively owned by the strategy that registered the symbol and
// must not be shared across symbols.
type Set struct {
	symbol  string
	periods []int
	history *History

	// ema holds the running EMA per configured period, seeded with the
	// first close.
	ema    map[int]float64
	seeded bool
}

// NewSet creates the indicator state for a symbol from its configured
// lookback periods. The history holds maxPeriod+1 closes so return-based
// statistics can difference across the full window.
func NewSet(symbol string, periods []int) (*Set, error) {
	if symbol == "" {
		return nil, errors.New("symbol must not be empty")
	}
	if len(periods) == 0 {
		return nil, fmt.Errorf("no lookback periods configured for %s", symbol)
	}

	cleaned := make([]int, 0, len(periods))
	seen := make(map[int]bool, len(periods))
	maxPeriod := 0
	for _, p := range periods {
		if p < 1 {
			return nil, fmt.Errorf("invalid lookback period %d for %s", p, symbol)
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		cleaned = append(cleaned, p)
		if p > maxPeriod {
			maxPeriod = p
		}
	}
	sort.Ints(cleaned)

	ema := make(map[int]float64, len(cleaned))

	return &Set{
		symbol:  symbol,
		periods: cleaned,
		history: NewHistory(maxPeriod + 1),
		ema:     ema,
	}, nil
}

// Symbol returns the symbol this set belongs to.
func (s *Set) Symbol() string {
	return s.symbol
}

// Periods returns the configured lookback periods, ascending.
func (s *Set) Periods() []int {
	out := make([]int, len(s.periods))
	copy(out, s.periods)
	return out
}

// Bars returns the number of closes recorded so far.
func (s *Set) Bars() int {
	return s.history.Len()
}

// Update records a new daily close and advances the incremental
// statistics. Exactly one Update happens per consolidated bar.
func (s *Set) Update(close float64) {
	if !s.seeded {
		for _, p := range s.periods {
			s.ema[p] = close
		}
		s.seeded = true
	} else {
		for _, p := range s.periods {
			alpha := 2.0 / (float64(p) + 1.0)
			s.ema[p] = alpha*close + (1.0-alpha)*s.ema[p]
		}
	}

	s.history.Push(close)
}

// Value computes the named statistic over the current window. It returns
// an error wrapping ErrWarmingUp until the window holds MinBars closes.
func (s *Set) Value(kind Kind, period int) (float64, error) {
	if !kinds[kind] {
		return 0, fmt.Errorf("unknown indicator kind %q", kind)
	}
	if kind != CurrentPrice {
		if period < 1 {
			return 0, fmt.Errorf("invalid period %d for %s", period, kind)
		}
		if period+1 > s.history.Cap() {
			return 0, fmt.Errorf("period %d for %s exceeds configured maximum %d",
				period, kind, s.history.Cap()-1)
		}
	}

	if need := kind.MinBars(period); s.history.Len() < need {
		return 0, fmt.Errorf("%s(%d) for %s needs %d bars, have %d: %w",
			kind, period, s.symbol, need, s.history.Len(), ErrWarmingUp)
	}

	switch kind {
	case CurrentPrice:
		return s.history.At(0), nil
	case CumulativeReturn:
		return s.cumulativeReturn(period)
	case MovingAverage:
		return s.movingAverage(period)
	case ExpMovingAverage:
		return s.expMovingAverage(period)
	case MovingAverageOfReturn:
		return s.movingAverageOfReturn(period)
	case StdDevPrice:
		return s.stdDevPrice(period)
	case StdDevReturn:
		return s.stdDevReturn(period)
	case RSI:
		return s.rsi(period)
	case MaxDrawdown:
		return s.maxDrawdown(period)
	}

	return 0, fmt.Errorf("unknown indicator kind %q", kind)
}

// cumulativeReturn compounds the most recent period single-step returns:
// each adjacent pair of closes contributes a multiplicative factor.
func (s *Set) cumulativeReturn(period int) (float64, error) {
	product := 1.0
	for i := 0; i < period; i++ {
		product *= s.history.At(i) / s.history.At(i+1)
	}
	return product - 1.0, nil
}

func (s *Set) movingAverage(period int) (float64, error) {
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += s.history.At(i)
	}
	return sum / float64(period), nil
}

func (s *Set) expMovingAverage(period int) (float64, error) {
	value, ok := s.ema[period]
	if !ok {
		return 0, fmt.Errorf("period %d not configured for %s on %s", period, ExpMovingAverage, s.symbol)
	}
	return value, nil
}

func (s *Set) movingAverageOfReturn(period int) (float64, error) {
	returns, err := s.history.Returns(period)
	if err != nil {
		return 0, err
	}
	return mean(returns), nil
}

func (s *Set) stdDevPrice(period int) (float64, error) {
	window, err := s.history.Window(period)
	if err != nil {
		return 0, err
	}
	return populationStdDev(window), nil
}

func (s *Set) stdDevReturn(period int) (float64, error) {
	returns, err := s.history.Returns(period)
	if err != nil {
		return 0, err
	}
	return populationStdDev(returns), nil
}

// rsi computes the relative strength index from the gains and losses among
// the most recent period closes.
func (s *Set) rsi(period int) (float64, error) {
	var gains, losses float64
	for i := 0; i < period-1; i++ {
		change := s.history.At(i) - s.history.At(i+1)
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	if gains == 0 && losses == 0 {
		// A window with no movement has no directional strength.
		return 50.0, nil
	}
	if losses == 0 {
		return 100.0, nil
	}

	rs := gains / losses
	return 100.0 - 100.0/(1.0+rs), nil
}

// maxDrawdown reports (min-max)/max over the window; zero when the window
// never declined.
func (s *Set) maxDrawdown(period int) (float64, error) {
	min, max := s.history.At(0), s.history.At(0)
	for i := 1; i < period; i++ {
		v := s.history.At(i)
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	if max == min {
		return 0.0, nil
	}
	return (min - max) / max, nil
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func populationStdDev(values []float64) float64 {
	m := mean(values)
	variance := 0.0
	for _, v := range values {
		diff := v - m
		variance += diff * diff
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}
