package marketdata

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sonatalabs/sonata/internal/contracts"
)

// MemoryBarRepository keeps bars in a map, for backtests and tests that
// run without Postgres. Semantics mirror PostgresBarRepository, including
// the overwrite on duplicate (symbol, date).
type MemoryBarRepository struct {
	mu   sync.RWMutex
	bars map[string]map[time.Time]float64
}

var _ contracts.BarRepository = (*MemoryBarRepository)(nil)

// NewMemoryBarRepository creates an empty in-memory store.
func NewMemoryBarRepository() *MemoryBarRepository {
	return &MemoryBarRepository{
		bars: make(map[string]map[time.Time]float64),
	}
}

// Save upserts a batch of bars.
func (r *MemoryBarRepository) Save(_ context.Context, bars []contracts.DailyBar) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, b := range bars {
		if r.bars[b.Symbol] == nil {
			r.bars[b.Symbol] = make(map[time.Time]float64)
		}
		r.bars[b.Symbol][contracts.Day(b.Date)] = b.Close
	}
	return nil
}

// Range returns the bars for a symbol in [from, to], ascending by date.
func (r *MemoryBarRepository) Range(_ context.Context, symbol string, from, to time.Time) ([]contracts.DailyBar, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	from, to = contracts.Day(from), contracts.Day(to)
	var bars []contracts.DailyBar
	for date, close := range r.bars[symbol] {
		if date.Before(from) || date.After(to) {
			continue
		}
		bars = append(bars, contracts.DailyBar{Symbol: symbol, Date: date, Close: close})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// Latest returns the n most recent bars for a symbol, ascending by date.
func (r *MemoryBarRepository) Latest(_ context.Context, symbol string, n int) ([]contracts.DailyBar, error) {
	if n < 1 {
		return nil, fmt.Errorf("latest bar count must be positive, got %d", n)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var bars []contracts.DailyBar
	for date, close := range r.bars[symbol] {
		bars = append(bars, contracts.DailyBar{Symbol: symbol, Date: date, Close: close})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	if len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	return bars, nil
}
