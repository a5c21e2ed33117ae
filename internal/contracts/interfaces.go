package contracts

import (
	"context"
	"time"
)

// PriceFeed delivers raw price points for subscribed symbols. A symbol may
// have several concurrent subscribers, each with its own channel. Subscribe
// and Unsubscribe must be paired: a strategy that registers a symbol at
// setup releases its own channel at teardown, including on early
// termination.
type PriceFeed interface {
	Subscribe(ctx context.Context, symbol string) (<-chan PricePoint, error)
	Unsubscribe(symbol string, points <-chan PricePoint) error
}

// TradingCalendar enumerates the trading days of an exchange. The returned
// dates are normalized with Day, strictly increasing, and confined to
// [start, end].
type TradingCalendar interface {
	TradingDays(start, end time.Time) ([]time.Time, error)
}

// BarRepository stores and retrieves consolidated daily bars.
type BarRepository interface {
	Save(ctx context.Context, bars []DailyBar) error
	Range(ctx context.Context, symbol string, from, to time.Time) ([]DailyBar, error)
	Latest(ctx context.Context, symbol string, n int) ([]DailyBar, error)
}

// Strategy is the capability a symphony exposes to its drivers (backtest
// engine, scheduler). Evaluate reads current indicator state and produces
// the full target-weight list for the given date.
type Strategy interface {
	Name() string
	Tickers() []string
	Periods() []int
	Evaluate(ctx context.Context, date time.Time) (*Evaluation, error)
}

// AllocationSink consumes an evaluation and reconciles it against current
// holdings. liquidate is true when a currently held position is absent from
// the new target list. Rebalancing mechanics are outside the core: the
// paper simulator implements this for backtests, live brokers are out of
// scope.
type AllocationSink interface {
	Rebalance(ctx context.Context, eval *Evaluation, liquidate bool) error
}
