package marketdata

import (
	"errors"
	"fmt"
	"time"

	"github.com/sonatalabs/sonata/internal/contracts"
)

// ErrOutOfOrder is returned when a tick arrives with a timestamp earlier
// than one already consolidated. The stream contract is monotone time;
// a violation means the feed is broken and the bar must not absorb it.
var ErrOutOfOrder = errors.New("tick out of order")

// BarHandler receives each completed daily bar.
type BarHandler func(contracts.DailyBar)

// Consolidator folds a stream of raw price points into one bar per day.
// The day boundary sits at a fixed time of day; a period closes when the
// first tick at or past the boundary arrives, and the previous period's
// last tick becomes the close. One consolidator serves one symbol.
type Consolidator struct {
	symbol  string
	offset  time.Duration // boundary as a time of day, from midnight
	handler BarHandler

	open      bool
	periodEnd time.Time
	last      contracts.PricePoint
}

// NewConsolidator creates a consolidator with the boundary at the given
// offset from midnight. The handler must not be nil.
func NewConsolidator(symbol string, offset time.Duration, handler BarHandler) (*Consolidator, error) {
	if symbol == "" {
		return nil, errors.New("consolidator needs a symbol")
	}
	if offset < 0 || offset >= 24*time.Hour {
		return nil, fmt.Errorf("boundary offset %s outside a day", offset)
	}
	if handler == nil {
		return nil, errors.New("consolidator needs a bar handler")
	}
	return &Consolidator{symbol: symbol, offset: offset, handler: handler}, nil
}

// Symbol returns the symbol this consolidator serves.
func (c *Consolidator) Symbol() string {
	return c.symbol
}

// periodEndAfter finds the first boundary strictly after t. A tick before
// today's boundary belongs to the period that started yesterday.
func (c *Consolidator) periodEndAfter(t time.Time) time.Time {
	boundary := contracts.Day(t).Add(c.offset)
	if t.Before(boundary) {
		return boundary
	}
	return boundary.AddDate(0, 0, 1)
}

// Update absorbs one tick. When the tick lands at or past the open
// period's boundary, the period closes first and the handler fires with
// the completed bar.
func (c *Consolidator) Update(p contracts.PricePoint) error {
	if p.Symbol != c.symbol {
		return fmt.Errorf("tick for %s routed to %s consolidator", p.Symbol, c.symbol)
	}

	if !c.open {
		c.open = true
		c.periodEnd = c.periodEndAfter(p.Time)
		c.last = p
		return nil
	}

	if p.Time.Before(c.last.Time) {
		return fmt.Errorf("tick at %s for %s after %s: %w",
			p.Time.Format(time.RFC3339), c.symbol, c.last.Time.Format(time.RFC3339), ErrOutOfOrder)
	}

	if !p.Time.Before(c.periodEnd) {
		c.emit()
		// Gaps can skip whole periods, so the next boundary comes from
		// the new tick rather than from the old period.
		c.periodEnd = c.periodEndAfter(p.Time)
	}

	c.last = p
	return nil
}

// Flush closes the open period early, emitting the partial bar. Used at
// the end of a replayed stream where no later tick will cross the
// boundary.
func (c *Consolidator) Flush() {
	if !c.open {
		return
	}
	c.emit()
	c.open = false
}

// emit publishes the open period as a bar. The bar carries the date of
// the last tick actually observed, which keeps replayed daily closes on
// their own dates even though the boundary sits later.
func (c *Consolidator) emit() {
	c.handler(contracts.DailyBar{
		Symbol: c.symbol,
		Date:   contracts.Day(c.last.Time),
		Close:  c.last.Price,
	})
}
