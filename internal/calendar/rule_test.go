package calendar

import (
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// weekdaysBetween mimics a holiday-free exchange so rule behavior can be
// tested without real calendar data.
func weekdaysBetween(start, end time.Time) []time.Time {
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days = append(days, d)
		}
	}
	return days
}

func TestParseFrequency(t *testing.T) {
	for _, s := range []string{"daily", "weekly", "monthly", "quarterly", "yearly"} {
		if _, err := ParseFrequency(s); err != nil {
			t.Errorf("ParseFrequency(%q): %v", s, err)
		}
	}
	if _, err := ParseFrequency("fortnightly"); err == nil {
		t.Error("unknown frequency should fail")
	}
	if _, err := ParseFrequency("Weekly"); err == nil {
		t.Error("frequency parsing is case sensitive")
	}
}

func TestDailyRule(t *testing.T) {
	rule, err := NewRule(Daily)
	if err != nil {
		t.Fatalf("NewRule: %v", err)
	}

	days := weekdaysBetween(day(2024, time.January, 1), day(2024, time.January, 12))
	got := rule.RebalanceDays(days)
	if len(got) != len(days) {
		t.Errorf("daily rule kept %d of %d days, want all", len(got), len(days))
	}
}

func TestWeeklyRule(t *testing.T) {
	rule, err := NewRule(Weekly)
	if err != nil {
		t.Fatalf("NewRule: %v", err)
	}

	// 2024-01-01 is a Monday; three full weeks follow.
	days := weekdaysBetween(day(2024, time.January, 1), day(2024, time.January, 19))
	got := rule.RebalanceDays(days)

	want := []time.Time{
		day(2024, time.January, 1),
		day(2024, time.January, 8),
		day(2024, time.January, 15),
	}
	if len(got) != len(want) {
		t.Fatalf("weekly rule = %v, want %v", got, want)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("weekly rule[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	// Each ISO week contributes at most one day.
	seen := map[string]bool{}
	for _, d := range got {
		key := Weekly.Key(d)
		if seen[key] {
			t.Errorf("week %s produced more than one rebalance day", key)
		}
		seen[key] = true
	}
}

func TestWeeklyRuleSkipsMondayHoliday(t *testing.T) {
	rule, _ := NewRule(Weekly)

	// Drop Monday 2024-01-08 as a holiday; Tuesday becomes the first
	// trading day of that week.
	var days []time.Time
	for _, d := range weekdaysBetween(day(2024, time.January, 1), day(2024, time.January, 12)) {
		if d.Equal(day(2024, time.January, 8)) {
			continue
		}
		days = append(days, d)
	}

	got := rule.RebalanceDays(days)
	if len(got) != 2 {
		t.Fatalf("got %d rebalance days, want 2", len(got))
	}
	if !got[1].Equal(day(2024, time.January, 9)) {
		t.Errorf("second rebalance day = %v, want Tuesday Jan 9", got[1])
	}
}

func TestMonthlyRule(t *testing.T) {
	rule, _ := NewRule(Monthly)

	days := weekdaysBetween(day(2024, time.January, 1), day(2024, time.March, 31))
	got := rule.RebalanceDays(days)

	want := []time.Time{
		day(2024, time.January, 1),
		day(2024, time.February, 1),
		day(2024, time.March, 1),
	}
	if len(got) != len(want) {
		t.Fatalf("monthly rule = %v, want %v", got, want)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("monthly rule[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestQuarterlyRule(t *testing.T) {
	rule, _ := NewRule(Quarterly)

	days := weekdaysBetween(day(2024, time.January, 1), day(2024, time.December, 31))
	got := rule.RebalanceDays(days)

	want := []time.Time{
		day(2024, time.January, 1),
		day(2024, time.April, 1),
		day(2024, time.July, 1),
		day(2024, time.October, 1),
	}
	if len(got) != len(want) {
		t.Fatalf("quarterly rule = %v, want %v", got, want)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("quarterly rule[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestYearlyRule(t *testing.T) {
	rule, _ := NewRule(Yearly)

	days := weekdaysBetween(day(2023, time.December, 20), day(2024, time.January, 10))
	got := rule.RebalanceDays(days)

	if len(got) != 2 {
		t.Fatalf("got %d rebalance days, want 2", len(got))
	}
	if !got[0].Equal(day(2023, time.December, 20)) {
		t.Errorf("first rebalance day = %v", got[0])
	}
	if !got[1].Equal(day(2024, time.January, 1)) {
		t.Errorf("second rebalance day = %v, want Jan 1", got[1])
	}
}

func TestISOWeekYearBoundary(t *testing.T) {
	// 2024-12-30 (Monday) and 2025-01-03 (Friday) share ISO week 2025-W01
	// even though the calendar year changes between them.
	if Weekly.Key(day(2024, time.December, 30)) != Weekly.Key(day(2025, time.January, 3)) {
		t.Error("dates in the same ISO week should share a group key")
	}

	rule, _ := NewRule(Weekly)
	days := weekdaysBetween(day(2024, time.December, 30), day(2025, time.January, 3))
	got := rule.RebalanceDays(days)
	if len(got) != 1 {
		t.Errorf("one ISO week should yield one rebalance day, got %v", got)
	}
}
