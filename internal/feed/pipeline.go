package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sonatalabs/sonata/internal/contracts"
	"github.com/sonatalabs/sonata/internal/indicator"
	"github.com/sonatalabs/sonata/internal/marketdata"
	"github.com/sonatalabs/sonata/pkg/logger"
)

// Pipeline consolidates live price points into daily bars and feeds the
// closes into the indicator universe. Completed bars are also persisted
// when a repository is attached.
type Pipeline struct {
	feed     contracts.PriceFeed
	universe *indicator.Universe
	repo     contracts.BarRepository
	boundary time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	tracked map[string]<-chan contracts.PricePoint
	wg      sync.WaitGroup
}

// NewPipeline wires a price feed into the universe. repo may be nil when
// bars only exist for in-memory evaluation. boundary is the bar cutoff
// as an offset from midnight.
func NewPipeline(feed contracts.PriceFeed, universe *indicator.Universe, repo contracts.BarRepository, boundary time.Duration, log *logger.Logger) (*Pipeline, error) {
	if feed == nil || universe == nil {
		return nil, fmt.Errorf("feed and universe are required")
	}
	if boundary < 0 || boundary >= 24*time.Hour {
		return nil, fmt.Errorf("boundary %v out of range", boundary)
	}
	return &Pipeline{
		feed:     feed,
		universe: universe,
		repo:     repo,
		boundary: boundary,
		log:      log.WithComponent("pipeline"),
		tracked:  make(map[string]<-chan contracts.PricePoint),
	}, nil
}

// Track subscribes a symbol and starts consolidating its ticks. periods
// are the indicator periods the symbol's statistics must serve.
func (p *Pipeline) Track(ctx context.Context, symbol string, periods []int) error {
	p.mu.Lock()
	if _, exists := p.tracked[symbol]; exists {
		p.mu.Unlock()
		return fmt.Errorf("symbol %s already tracked", symbol)
	}
	p.tracked[symbol] = nil
	p.mu.Unlock()

	// A symbol warmed from stored bars or re-tracked after Untrack is
	// already registered; its indicator state carries over.
	registered := false
	if _, exists := p.universe.Get(symbol); !exists {
		if _, err := p.universe.Register(symbol, periods); err != nil {
			p.forget(symbol)
			return err
		}
		registered = true
	}

	unwind := func() {
		p.forget(symbol)
		if registered {
			p.universe.Remove(symbol)
		}
	}

	cons, err := marketdata.NewConsolidator(symbol, p.boundary, p.onBar)
	if err != nil {
		unwind()
		return err
	}

	points, err := p.feed.Subscribe(ctx, symbol)
	if err != nil {
		unwind()
		return fmt.Errorf("subscribe %s: %w", symbol, err)
	}
	p.mu.Lock()
	p.tracked[symbol] = points
	p.mu.Unlock()

	p.wg.Add(1)
	go p.consume(symbol, cons, points)
	return nil
}

// Untrack releases a symbol's subscription. Its indicator state is kept
// so a re-track resumes warm.
func (p *Pipeline) Untrack(symbol string) error {
	p.mu.Lock()
	points, exists := p.tracked[symbol]
	delete(p.tracked, symbol)
	p.mu.Unlock()

	if !exists {
		return fmt.Errorf("symbol %s not tracked", symbol)
	}
	return p.feed.Unsubscribe(symbol, points)
}

// Wait blocks until every consumer goroutine has drained. Callers stop
// the feed first so the point channels close.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) forget(symbol string) {
	p.mu.Lock()
	delete(p.tracked, symbol)
	p.mu.Unlock()
}

func (p *Pipeline) consume(symbol string, cons *marketdata.Consolidator, points <-chan contracts.PricePoint) {
	defer p.wg.Done()

	for point := range points {
		if err := cons.Update(point); err != nil {
			if errors.Is(err, marketdata.ErrOutOfOrder) {
				p.log.WithFields(map[string]interface{}{
					"symbol": symbol,
					"time":   point.Time,
				}).Warn("Dropped out-of-order price point")
				continue
			}
			p.log.WithError(err).WithField("symbol", symbol).Error("Consolidator rejected price point")
		}
	}
	cons.Flush()
}

// onBar records a completed bar in the universe and the repository.
func (p *Pipeline) onBar(bar contracts.DailyBar) {
	if err := p.universe.Update(bar.Symbol, bar.Close); err != nil {
		p.log.WithError(err).WithField("symbol", bar.Symbol).Error("Indicator update failed")
	}

	if p.repo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.repo.Save(ctx, []contracts.DailyBar{bar}); err != nil {
			p.log.WithError(err).WithField("symbol", bar.Symbol).Error("Bar save failed")
		}
	}

	p.log.WithFields(map[string]interface{}{
		"symbol": bar.Symbol,
		"date":   bar.Date.Format("2006-01-02"),
		"close":  bar.Close,
	}).Debug("Bar consolidated")
}
