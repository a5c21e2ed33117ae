package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sonatalabs/sonata/internal/contracts"
	"github.com/sonatalabs/sonata/pkg/config"
	"github.com/sonatalabs/sonata/pkg/httputil"
	"github.com/sonatalabs/sonata/pkg/logger"
	"github.com/sonatalabs/sonata/pkg/redis"
)

// subscriberBuffer absorbs short consumer stalls; a full buffer drops
// the tick rather than blocking the source.
const subscriberBuffer = 256

// source is the capability both tick sources share.
type source interface {
	Start(ctx context.Context) error
	Stop()
	Subscribe(symbol string) error
	Unsubscribe(symbol string) error
}

// Manager is the live contracts.PriceFeed: it owns the websocket stream
// when one is configured, the REST poller otherwise, fans each tick out
// to every subscriber of its symbol, and mirrors the latest quote into
// the Redis cache. Symbols shared by several consumers hold one source
// registration and as many channels as there are subscribers.
type Manager struct {
	log    *logger.Logger
	quotes *redis.QuoteCache

	sources []source

	subscribers map[string][]chan contracts.PricePoint
	mu          sync.RWMutex

	started bool
}

var _ contracts.PriceFeed = (*Manager)(nil)

// NewManager builds the feed stack from configuration.
func NewManager(cfg *config.Config, httpClient *httputil.Client, quotes *redis.QuoteCache, log *logger.Logger) (*Manager, error) {
	m := &Manager{
		log:         log.WithComponent("feed"),
		quotes:      quotes,
		subscribers: make(map[string][]chan contracts.PricePoint),
	}

	if cfg.Feed.WebSocketURL != "" {
		m.sources = append(m.sources, NewWSClient(cfg.Feed.WebSocketURL, m.dispatch, log))
	}
	if cfg.Feed.PollURL != "" {
		m.sources = append(m.sources, NewPoller(httpClient, cfg.Feed.PollURL, cfg.Feed.PollInterval, m.dispatch, log))
	}
	if len(m.sources) == 0 {
		return nil, fmt.Errorf("no feed source configured: set FEED_WS_URL or FEED_POLL_URL")
	}
	return m, nil
}

// Start brings every source up.
func (m *Manager) Start(ctx context.Context) error {
	for _, s := range m.sources {
		if err := s.Start(ctx); err != nil {
			return err
		}
	}
	m.started = true
	m.log.Infof("feed manager started with %d source(s)", len(m.sources))
	return nil
}

// Stop halts the sources and closes every subscriber channel.
func (m *Manager) Stop() {
	for _, s := range m.sources {
		s.Stop()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for symbol, channels := range m.subscribers {
		for _, ch := range channels {
			close(ch)
		}
		delete(m.subscribers, symbol)
	}
	m.started = false
}

// Subscribe adds a tick channel for the symbol, registering it with the
// sources on the first subscription.
func (m *Manager) Subscribe(ctx context.Context, symbol string) (<-chan contracts.PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if symbol == "" {
		return nil, fmt.Errorf("empty symbol")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.subscribers[symbol]) == 0 {
		for _, s := range m.sources {
			if err := s.Subscribe(symbol); err != nil {
				return nil, fmt.Errorf("subscribing %s: %w", symbol, err)
			}
		}
	}

	ch := make(chan contracts.PricePoint, subscriberBuffer)
	m.subscribers[symbol] = append(m.subscribers[symbol], ch)
	return ch, nil
}

// Unsubscribe closes the given subscriber channel, dropping the symbol
// from the sources when it was the last one.
func (m *Manager) Unsubscribe(symbol string, points <-chan contracts.PricePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	channels := m.subscribers[symbol]
	idx := -1
	for i, ch := range channels {
		if (<-chan contracts.PricePoint)(ch) == points {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%s not subscribed", symbol)
	}

	close(channels[idx])
	channels = append(channels[:idx], channels[idx+1:]...)
	if len(channels) > 0 {
		m.subscribers[symbol] = channels
		return nil
	}
	delete(m.subscribers, symbol)

	for _, s := range m.sources {
		if err := s.Unsubscribe(symbol); err != nil {
			m.log.WithError(err).WithField("symbol", symbol).Warn("source unsubscribe failed")
		}
	}
	return nil
}

// dispatch fans one tick out to every subscriber and the quote cache.
func (m *Manager) dispatch(point contracts.PricePoint) {
	if m.quotes != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, err := m.quotes.Update(ctx, contracts.Quote{
			Symbol:    point.Symbol,
			Price:     point.Price,
			Timestamp: point.Time,
			Source:    "feed",
		})
		cancel()
		if err != nil {
			m.log.WithError(err).WithField("symbol", point.Symbol).Debug("quote cache update failed")
		}
	}

	// Sends stay under the read lock so Unsubscribe cannot close a
	// channel mid-send; the sends never block.
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, ch := range m.subscribers[point.Symbol] {
		select {
		case ch <- point:
		default:
			m.log.WithField("symbol", point.Symbol).Warn("subscriber slow, tick dropped")
		}
	}
}
