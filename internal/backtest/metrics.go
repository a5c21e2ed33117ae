package backtest

import (
	"math"
	"time"
)

// tradingDaysPerYear annualizes daily return statistics.
const tradingDaysPerYear = 252

// Metrics summarizes an equity curve.
type Metrics struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	CAGR             float64 `json:"cagr"`
	Volatility       float64 `json:"volatility"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
}

// computeMetrics derives performance numbers from the completed curve.
// Ratios assume a zero risk-free rate.
func computeMetrics(initial, final float64, start, end time.Time, curve []EquityPoint) Metrics {
	var m Metrics
	if len(curve) == 0 || initial <= 0 {
		return m
	}

	m.TotalReturn = (final - initial) / initial

	years := end.Sub(start).Hours() / 24 / 365.25
	if years > 0 {
		m.AnnualizedReturn = m.TotalReturn / years
		if final > 0 {
			m.CAGR = math.Pow(final/initial, 1.0/years) - 1.0
		}
	}

	dailyReturns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev <= 0 {
			continue
		}
		dailyReturns = append(dailyReturns, (curve[i].Equity-prev)/prev)
	}

	m.Volatility = stdDev(dailyReturns) * math.Sqrt(tradingDaysPerYear)
	if m.Volatility > 0 {
		m.SharpeRatio = m.AnnualizedReturn / m.Volatility
	}

	var downside []float64
	for _, r := range dailyReturns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if dd := stdDev(downside) * math.Sqrt(tradingDaysPerYear); dd > 0 {
		m.SortinoRatio = m.AnnualizedReturn / dd
	}

	m.MaxDrawdown = maxDrawdown(curve)
	return m
}

func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

// maxDrawdown finds the deepest peak-to-trough loss, as a negative
// fraction.
func maxDrawdown(curve []EquityPoint) float64 {
	worst := 0.0
	peak := 0.0
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			dd := (p.Equity - peak) / peak
			if dd < worst {
				worst = dd
			}
		}
	}
	return worst
}
