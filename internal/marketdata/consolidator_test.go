package marketdata

import (
	"errors"
	"testing"
	"time"

	"github.com/sonatalabs/sonata/internal/contracts"
)

func tick(symbol string, t time.Time, price float64) contracts.PricePoint {
	return contracts.PricePoint{Symbol: symbol, Time: t, Price: price}
}

func at(y int, m time.Month, d, hour int) time.Time {
	return time.Date(y, m, d, hour, 0, 0, 0, time.UTC)
}

func collector(bars *[]contracts.DailyBar) BarHandler {
	return func(b contracts.DailyBar) {
		*bars = append(*bars, b)
	}
}

func TestNewConsolidatorValidation(t *testing.T) {
	handler := func(contracts.DailyBar) {}

	if _, err := NewConsolidator("", time.Hour, handler); err == nil {
		t.Error("empty symbol should fail")
	}
	if _, err := NewConsolidator("SPY", -time.Hour, handler); err == nil {
		t.Error("negative offset should fail")
	}
	if _, err := NewConsolidator("SPY", 24*time.Hour, handler); err == nil {
		t.Error("offset of a full day should fail")
	}
	if _, err := NewConsolidator("SPY", time.Hour, nil); err == nil {
		t.Error("nil handler should fail")
	}
}

func TestConsolidatorEmitsLastTickAsClose(t *testing.T) {
	var bars []contracts.DailyBar
	c, err := NewConsolidator("SPY", time.Hour, collector(&bars))
	if err != nil {
		t.Fatalf("NewConsolidator: %v", err)
	}

	// Ticks through Jan 1, then one past the Jan 2 01:00 boundary.
	c.Update(tick("SPY", at(2024, time.January, 1, 10), 100))
	c.Update(tick("SPY", at(2024, time.January, 1, 14), 101))
	c.Update(tick("SPY", at(2024, time.January, 1, 20), 102))
	if len(bars) != 0 {
		t.Fatalf("no bar should emit before the boundary, got %v", bars)
	}

	c.Update(tick("SPY", at(2024, time.January, 2, 10), 105))
	if len(bars) != 1 {
		t.Fatalf("got %d bars, want 1", len(bars))
	}
	bar := bars[0]
	if bar.Close != 102 {
		t.Errorf("close = %v, want last tick of the period 102", bar.Close)
	}
	if !bar.Date.Equal(contracts.Day(at(2024, time.January, 1, 20))) {
		t.Errorf("bar date = %v, want Jan 1", bar.Date)
	}
	if bar.Symbol != "SPY" {
		t.Errorf("bar symbol = %q", bar.Symbol)
	}
}

func TestConsolidatorFirstTickBeforeBoundary(t *testing.T) {
	var bars []contracts.DailyBar
	// Boundary at 17:00; a 9:00 first tick belongs to the period that
	// opened at 17:00 the previous day.
	c, _ := NewConsolidator("SPY", 17*time.Hour, collector(&bars))

	c.Update(tick("SPY", at(2024, time.January, 2, 9), 100))
	c.Update(tick("SPY", at(2024, time.January, 2, 16), 101))
	if len(bars) != 0 {
		t.Fatalf("period should still be open, got %v", bars)
	}

	// Crossing 17:00 the same day closes it.
	c.Update(tick("SPY", at(2024, time.January, 2, 17), 103))
	if len(bars) != 1 {
		t.Fatalf("got %d bars, want 1", len(bars))
	}
	if bars[0].Close != 101 {
		t.Errorf("close = %v, want 101", bars[0].Close)
	}
}

func TestConsolidatorMultiDayGap(t *testing.T) {
	var bars []contracts.DailyBar
	c, _ := NewConsolidator("SPY", time.Hour, collector(&bars))

	c.Update(tick("SPY", at(2024, time.January, 1, 10), 100))
	// Weekend gap: next tick lands three days later and closes only the
	// one open period.
	c.Update(tick("SPY", at(2024, time.January, 4, 10), 110))
	if len(bars) != 1 {
		t.Fatalf("got %d bars, want 1", len(bars))
	}
	if bars[0].Close != 100 {
		t.Errorf("close = %v, want 100", bars[0].Close)
	}

	// The new period closes at its own boundary, not the stale one.
	c.Update(tick("SPY", at(2024, time.January, 5, 10), 111))
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(bars))
	}
	if bars[1].Close != 110 {
		t.Errorf("close = %v, want 110", bars[1].Close)
	}
}

func TestConsolidatorRejectsOutOfOrder(t *testing.T) {
	var bars []contracts.DailyBar
	c, _ := NewConsolidator("SPY", time.Hour, collector(&bars))

	c.Update(tick("SPY", at(2024, time.January, 1, 12), 100))
	err := c.Update(tick("SPY", at(2024, time.January, 1, 11), 99))
	if !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("error = %v, want ErrOutOfOrder", err)
	}

	// The rejected tick must not affect the close.
	c.Update(tick("SPY", at(2024, time.January, 2, 12), 101))
	if len(bars) != 1 || bars[0].Close != 100 {
		t.Errorf("bars = %v, want one bar closing at 100", bars)
	}
}

func TestConsolidatorRejectsWrongSymbol(t *testing.T) {
	c, _ := NewConsolidator("SPY", time.Hour, func(contracts.DailyBar) {})
	if err := c.Update(tick("QQQ", at(2024, time.January, 1, 12), 100)); err == nil {
		t.Error("tick for another symbol should fail")
	}
}

func TestConsolidatorFlush(t *testing.T) {
	var bars []contracts.DailyBar
	c, _ := NewConsolidator("SPY", time.Hour, collector(&bars))

	c.Flush() // nothing open yet
	if len(bars) != 0 {
		t.Fatalf("flush of an empty consolidator emitted %v", bars)
	}

	c.Update(tick("SPY", at(2024, time.January, 1, 12), 100))
	c.Flush()
	if len(bars) != 1 || bars[0].Close != 100 {
		t.Fatalf("bars = %v, want partial bar closing at 100", bars)
	}

	// Repeated flush must not duplicate the bar.
	c.Flush()
	if len(bars) != 1 {
		t.Errorf("double flush emitted %d bars", len(bars))
	}
}

func TestConsolidatorIdenticalTimestamps(t *testing.T) {
	var bars []contracts.DailyBar
	c, _ := NewConsolidator("SPY", time.Hour, collector(&bars))

	ts := at(2024, time.January, 1, 12)
	c.Update(tick("SPY", ts, 100))
	if err := c.Update(tick("SPY", ts, 101)); err != nil {
		t.Fatalf("equal timestamps should be accepted: %v", err)
	}
	c.Flush()
	if bars[0].Close != 101 {
		t.Errorf("close = %v, want the later-arriving 101", bars[0].Close)
	}
}
