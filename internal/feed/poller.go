package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sonatalabs/sonata/internal/contracts"
	"github.com/sonatalabs/sonata/pkg/httputil"
	"github.com/sonatalabs/sonata/pkg/logger"
)

// Poller fetches quotes over REST on a fixed interval, as the fallback
// when no streaming source is configured or the stream is down. Request
// pacing comes from the shared HTTP client's rate limiter.
type Poller struct {
	client   *httputil.Client
	url      string
	interval time.Duration
	handler  TickHandler
	log      *logger.Logger

	symbols   map[string]bool
	symbolsMu sync.RWMutex

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewPoller creates a polling tick source.
func NewPoller(client *httputil.Client, pollURL string, interval time.Duration, handler TickHandler, log *logger.Logger) *Poller {
	return &Poller{
		client:   client,
		url:      pollURL,
		interval: interval,
		handler:  handler,
		log:      log.WithComponent("feed_poll"),
		symbols:  make(map[string]bool),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	if p.url == "" {
		return fmt.Errorf("poll url not configured")
	}
	if p.interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", p.interval)
	}

	go p.loop(ctx)
	return nil
}

// Stop halts the loop and waits for it to finish.
func (p *Poller) Stop() {
	close(p.stopCh)
	<-p.doneCh
}

// Subscribe adds a symbol to the poll set.
func (p *Poller) Subscribe(symbol string) error {
	p.symbolsMu.Lock()
	p.symbols[symbol] = true
	p.symbolsMu.Unlock()
	return nil
}

// Unsubscribe drops a symbol from the poll set.
func (p *Poller) Unsubscribe(symbol string) error {
	p.symbolsMu.Lock()
	delete(p.symbols, symbol)
	p.symbolsMu.Unlock()
	return nil
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.poll(ctx); err != nil {
				p.log.WithError(err).Warn("poll failed")
			}
		}
	}
}

// poll fetches the whole subscription set in one request.
func (p *Poller) poll(ctx context.Context) error {
	p.symbolsMu.RLock()
	symbols := make([]string, 0, len(p.symbols))
	for s := range p.symbols {
		symbols = append(symbols, s)
	}
	p.symbolsMu.RUnlock()

	if len(symbols) == 0 {
		return nil
	}
	sort.Strings(symbols)

	u, err := url.Parse(p.url)
	if err != nil {
		return fmt.Errorf("invalid poll url: %w", err)
	}
	q := u.Query()
	q.Set("symbols", strings.Join(symbols, ","))
	u.RawQuery = q.Encode()

	resp, err := p.client.Get(ctx, u.String())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("poll returned status %d", resp.StatusCode)
	}

	var quotes []tickMessage
	if err := json.NewDecoder(resp.Body).Decode(&quotes); err != nil {
		return fmt.Errorf("decoding poll response: %w", err)
	}

	now := time.Now().UTC()
	for _, quote := range quotes {
		if quote.Symbol == "" || quote.Price <= 0 {
			continue
		}
		ts := now
		if quote.Timestamp > 0 {
			ts = time.UnixMilli(quote.Timestamp).UTC()
		}
		p.handler(contracts.PricePoint{Symbol: quote.Symbol, Time: ts, Price: quote.Price})
	}
	return nil
}
