package marketdata

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sonatalabs/sonata/internal/contracts"
)

// ReplayFeed plays stored daily bars back as a price stream, one tick per
// bar. Backtests consume it through the same PriceFeed interface the live
// feed implements, so the consolidator path is identical in both modes.
type ReplayFeed struct {
	mu         sync.Mutex
	bars       map[string][]contracts.DailyBar
	tickOffset time.Duration
	stops      map[<-chan contracts.PricePoint]replaySub
}

type replaySub struct {
	symbol string
	stop   chan struct{}
}

var _ contracts.PriceFeed = (*ReplayFeed)(nil)

// NewReplayFeed indexes bars by symbol. tickOffset places each synthetic
// tick at an intraday time so consolidation boundaries behave as they
// would live.
func NewReplayFeed(bars []contracts.DailyBar, tickOffset time.Duration) *ReplayFeed {
	bySymbol := make(map[string][]contracts.DailyBar)
	for _, b := range bars {
		bySymbol[b.Symbol] = append(bySymbol[b.Symbol], b)
	}
	for sym := range bySymbol {
		sort.Slice(bySymbol[sym], func(i, j int) bool {
			return bySymbol[sym][i].Date.Before(bySymbol[sym][j].Date)
		})
	}
	return &ReplayFeed{
		bars:       bySymbol,
		tickOffset: tickOffset,
		stops:      make(map[<-chan contracts.PricePoint]replaySub),
	}
}

// Subscribe streams the symbol's bars in date order and closes the channel
// when the history is exhausted. Each subscription replays the full
// history independently.
func (f *ReplayFeed) Subscribe(ctx context.Context, symbol string) (<-chan contracts.PricePoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bars, ok := f.bars[symbol]
	if !ok {
		return nil, fmt.Errorf("no replay history for %s", symbol)
	}

	stop := make(chan struct{})
	out := make(chan contracts.PricePoint)
	f.stops[out] = replaySub{symbol: symbol, stop: stop}
	go func() {
		defer close(out)
		for _, bar := range bars {
			point := contracts.PricePoint{
				Symbol: symbol,
				Time:   bar.Date.Add(f.tickOffset),
				Price:  bar.Close,
			}
			select {
			case out <- point:
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Unsubscribe stops the given subscription's stream. Unsubscribing a
// channel that is not subscribed is an error.
func (f *ReplayFeed) Unsubscribe(symbol string, points <-chan contracts.PricePoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub, ok := f.stops[points]
	if !ok || sub.symbol != symbol {
		return fmt.Errorf("%s not subscribed", symbol)
	}
	close(sub.stop)
	delete(f.stops, points)
	return nil
}
