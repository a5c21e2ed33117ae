// Package contracts defines the shared data types and collaborator
// interfaces passed between sonata's subsystems. Types here are plain
// values; behavior lives in the packages that own each stage.
package contracts

import "time"

// PricePoint is a single raw price observation from a feed. Points for one
// symbol must arrive in non-decreasing time order.
type PricePoint struct {
	Symbol string    `json:"symbol"`
	Time   time.Time `json:"time"`
	Price  float64   `json:"price"`
}

// DailyBar is the consolidated closing price for one symbol on one trading
// day. Bars are immutable once emitted; exactly one bar exists per symbol
// per trading day.
type DailyBar struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"` // normalized to midnight UTC
	Close  float64   `json:"close"`
}

// Quote is the latest known price snapshot for a symbol, kept in the quote
// cache. Stale is set when the snapshot is older than the cache TTL.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Stale     bool      `json:"stale"`
}

// Day normalizes a timestamp to its calendar date at midnight UTC. Bars,
// evaluation dates and calendar output all use this normalization so date
// equality is a plain == on time.Time.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
