package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/scmhub/calendar"

	"github.com/sonatalabs/sonata/internal/contracts"
	"github.com/sonatalabs/sonata/pkg/logger"
)

// Exchange enumerates the trading days of one venue, identified by its ISO
// 10383 MIC. Holiday data comes from the embedded exchange calendars; when
// a MIC is unknown the exchange degrades to a Monday-through-Friday
// schedule so evaluation can proceed.
type Exchange struct {
	mic      string
	cal      *calendar.Calendar
	loc      *time.Location
	fallback bool
	log      *logger.Logger
}

// compile-time interface check
var _ contracts.TradingCalendar = (*Exchange)(nil)

// NewExchange resolves a MIC to its holiday calendar. The default venue is
// XNYS.
func NewExchange(mic string, log *logger.Logger) *Exchange {
	if mic == "" {
		mic = "xnys"
	}
	mic = strings.ToLower(mic)

	cal := calendar.GetCalendar(mic)
	if cal == nil {
		log.WithComponent("calendar").Warnf("no holiday calendar for MIC %q, using weekday schedule", mic)
		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			loc = time.UTC
		}
		return &Exchange{mic: mic, loc: loc, fallback: true, log: log}
	}

	return &Exchange{mic: mic, cal: cal, loc: cal.Loc, log: log}
}

// MIC returns the venue identifier this exchange was built from.
func (e *Exchange) MIC() string {
	return e.mic
}

// Fallback reports whether holiday data was unavailable and the exchange is
// running on a weekday-only schedule.
func (e *Exchange) Fallback() bool {
	return e.fallback
}

// IsTradingDay reports whether the venue is open on the given date. The
// argument is date-valued, so the calendar day is rebuilt in the venue's
// zone instead of converting the instant, which would shift it across
// midnight.
func (e *Exchange) IsTradingDay(date time.Time) bool {
	y, m, d := date.Date()
	local := time.Date(y, m, d, 12, 0, 0, 0, e.loc)
	if e.fallback {
		wd := local.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	}
	return e.cal.IsBusinessDay(local)
}

// TradingDays lists the venue's open days in [start, end], normalized and
// strictly increasing.
func (e *Exchange) TradingDays(start, end time.Time) ([]time.Time, error) {
	start = contracts.Day(start)
	end = contracts.Day(end)
	if end.Before(start) {
		return nil, fmt.Errorf("trading days range inverted: %s after %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if e.IsTradingDay(d) {
			days = append(days, d)
		}
	}
	return days, nil
}
