// Package indicator maintains rolling-window technical statistics over
// consolidated daily closes. Each symbol owns one Set; a Set owns one
// price History and computes every supported statistic from it.
package indicator

import "fmt"

// Kind identifies one statistic family. A concrete indicator is a
// (kind, period) pair.
type Kind string

const (
	// CurrentPrice is the latest consolidated close.
	CurrentPrice Kind = "current-price"

	// CumulativeReturn is the compounded product of single-period returns
	// over the lookback window, minus one.
	CumulativeReturn Kind = "cumulative-return"

	// MovingAverage is the simple arithmetic mean of closes.
	MovingAverage Kind = "moving-average-price"

	// ExpMovingAverage is the exponentially weighted moving average of
	// closes with smoothing factor 2/(period+1).
	ExpMovingAverage Kind = "exp-moving-average-price"

	// MovingAverageOfReturn is the simple mean of per-bar rate of change.
	MovingAverageOfReturn Kind = "moving-average-return"

	// StdDevPrice is the population standard deviation of closes.
	StdDevPrice Kind = "std-dev-price"

	// StdDevReturn is the population standard deviation of per-bar rate
	// of change.
	StdDevReturn Kind = "std-dev-return"

	// RSI is the relative strength index over the lookback window.
	RSI Kind = "rsi"

	// MaxDrawdown is (min-max)/max over the lookback window, a
	// non-positive fraction.
	MaxDrawdown Kind = "max-drawdown"
)

var kinds = map[Kind]bool{
	CurrentPrice:          true,
	CumulativeReturn:      true,
	MovingAverage:         true,
	ExpMovingAverage:      true,
	MovingAverageOfReturn: true,
	StdDevPrice:           true,
	StdDevReturn:          true,
	RSI:                   true,
	MaxDrawdown:           true,
}

// ParseKind validates a kind name from configuration. Unknown names are a
// configuration error, never defaulted.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !kinds[k] {
		return "", fmt.Errorf("unknown indicator kind %q", s)
	}
	return k, nil
}

// ReturnBased reports whether the kind differences adjacent closes, which
// raises its warm-up requirement by one bar.
func (k Kind) ReturnBased() bool {
	switch k {
	case CumulativeReturn, MovingAverageOfReturn, StdDevReturn:
		return true
	}
	return false
}

// MinBars returns the number of closes required before a (kind, period)
// indicator is defined.
func (k Kind) MinBars(period int) int {
	switch {
	case k == CurrentPrice:
		return 1
	case k.ReturnBased():
		return period + 1
	default:
		return period
	}
}

func (k Kind) String() string {
	return string(k)
}
