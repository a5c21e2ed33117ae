package stooq

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sonatalabs/sonata/internal/contracts"
	"github.com/sonatalabs/sonata/pkg/httputil"
	"github.com/sonatalabs/sonata/pkg/logger"
)

// DefaultBaseURL is the public Stooq endpoint.
const DefaultBaseURL = "https://stooq.com"

// Client fetches daily bar history from Stooq. The CSV download endpoint
// is the primary path; when it returns no data the quote page's HTML
// table is scraped instead.
type Client struct {
	httpClient *httputil.Client
	log        *logger.Logger
	baseURL    string
}

// NewClient creates a Stooq client. An empty baseURL uses the public
// endpoint.
func NewClient(httpClient *httputil.Client, baseURL string, log *logger.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		log:        log.WithComponent("stooq"),
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// normalizeSymbol maps plain US tickers to Stooq's venue-suffixed form.
func normalizeSymbol(symbol string) string {
	s := strings.ToLower(strings.TrimSpace(symbol))
	if !strings.Contains(s, ".") {
		s += ".us"
	}
	return s
}

// FetchDaily returns the symbol's daily closes in [from, to], ascending
// by date.
func (c *Client) FetchDaily(ctx context.Context, symbol string, from, to time.Time) ([]contracts.DailyBar, error) {
	if symbol == "" {
		return nil, fmt.Errorf("empty symbol")
	}
	if to.Before(from) {
		return nil, fmt.Errorf("history range inverted: %s after %s",
			from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	body, err := c.fetch(ctx, c.csvURL(symbol, from, to))
	if err != nil {
		return nil, err
	}

	bars, csvErr := parseCSV(symbol, body)
	if csvErr == nil && len(bars) > 0 {
		c.log.WithFields(map[string]interface{}{
			"symbol": symbol,
			"bars":   len(bars),
		}).Debug("fetched daily history")
		return bars, nil
	}

	// The download endpoint answers "No data" for some symbols the quote
	// page still renders; scrape the page before giving up.
	c.log.WithField("symbol", symbol).Debug("csv download empty, scraping quote page")

	page, err := c.fetch(ctx, c.pageURL(symbol))
	if err != nil {
		return nil, fmt.Errorf("csv failed (%v) and page fetch failed: %w", csvErr, err)
	}
	bars, err = parseHTML(symbol, page)
	if err != nil {
		return nil, fmt.Errorf("no usable history for %s: %w", symbol, err)
	}

	// The page shows recent history only; keep the requested window.
	fromDay, toDay := contracts.Day(from), contracts.Day(to)
	kept := bars[:0]
	for _, b := range bars {
		if !b.Date.Before(fromDay) && !b.Date.After(toDay) {
			kept = append(kept, b)
		}
	}
	return kept, nil
}

func (c *Client) csvURL(symbol string, from, to time.Time) string {
	return fmt.Sprintf("%s/q/d/l/?s=%s&d1=%s&d2=%s&i=d",
		c.baseURL, normalizeSymbol(symbol),
		from.Format("20060102"), to.Format("20060102"))
}

func (c *Client) pageURL(symbol string) string {
	return fmt.Sprintf("%s/q/d/?s=%s", c.baseURL, normalizeSymbol(symbol))
}

func (c *Client) fetch(ctx context.Context, url string) (string, error) {
	resp, err := c.httpClient.Get(ctx, url)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	return string(body), nil
}
