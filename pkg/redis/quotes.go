package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sonatalabs/sonata/internal/contracts"
)

// QuoteCache stores the latest quote per symbol with a TTL. Updates carrying
// a timestamp older than the cached one are rejected, so a slow REST poll
// can never overwrite a fresher websocket tick.
type QuoteCache struct {
	client *Client
	prefix string
	ttl    time.Duration
}

// NewQuoteCache creates a quote cache helper.
func NewQuoteCache(client *Client, prefix string, ttl time.Duration) *QuoteCache {
	return &QuoteCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Update stores a quote unless a newer one is already cached. Returns
// whether the quote was written.
func (c *QuoteCache) Update(ctx context.Context, quote contracts.Quote) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	existing, found, err := c.Get(ctx, quote.Symbol)
	if err != nil {
		return false, err
	}
	if found && quote.Timestamp.Before(existing.Timestamp) {
		return false, nil
	}

	data, err := json.Marshal(quote)
	if err != nil {
		return false, fmt.Errorf("quote marshal failed: %w", err)
	}

	key := c.key(quote.Symbol)
	if err := c.client.Redis().Set(ctx, key, data, c.ttl*2).Err(); err != nil {
		return false, err
	}
	return true, nil
}

// Get retrieves a quote. Stale is set when the quote is older than the TTL.
func (c *QuoteCache) Get(ctx context.Context, symbol string) (contracts.Quote, bool, error) {
	var quote contracts.Quote
	if !c.client.Enabled() {
		return quote, false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.key(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return quote, false, nil
	}
	if err != nil {
		return quote, false, fmt.Errorf("quote read failed: %w", err)
	}

	if err := json.Unmarshal(data, &quote); err != nil {
		return quote, false, fmt.Errorf("quote unmarshal failed: %w", err)
	}

	quote.Stale = time.Since(quote.Timestamp) > c.ttl
	return quote, true, nil
}

// Delete removes a cached quote.
func (c *QuoteCache) Delete(ctx context.Context, symbol string) error {
	if !c.client.Enabled() {
		return nil
	}
	return c.client.Redis().Del(ctx, c.key(symbol)).Err()
}

func (c *QuoteCache) key(symbol string) string {
	return fmt.Sprintf("%s:quote:%s", c.prefix, symbol)
}
