package stooq

import (
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sonatalabs/sonata/internal/contracts"
)

// parseCSV reads the download endpoint's format:
// Date,Open,High,Low,Close,Volume with ISO dates.
func parseCSV(symbol, body string) ([]contracts.DailyBar, error) {
	body = strings.TrimSpace(body)
	if body == "" || strings.EqualFold(body, "no data") {
		return nil, fmt.Errorf("no data for %s", symbol)
	}

	reader := csv.NewReader(strings.NewReader(body))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("malformed csv: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("no data rows for %s", symbol)
	}

	header := records[0]
	dateCol, closeCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "date":
			dateCol = i
		case "close":
			closeCol = i
		}
	}
	if dateCol < 0 || closeCol < 0 {
		return nil, fmt.Errorf("csv header %v missing date or close", header)
	}

	var bars []contracts.DailyBar
	for _, row := range records[1:] {
		if len(row) <= dateCol || len(row) <= closeCol {
			return nil, fmt.Errorf("short csv row %v", row)
		}
		date, err := time.Parse("2006-01-02", strings.TrimSpace(row[dateCol]))
		if err != nil {
			return nil, fmt.Errorf("bad date in row %v: %w", row, err)
		}
		close, err := strconv.ParseFloat(strings.TrimSpace(row[closeCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("bad close in row %v: %w", row, err)
		}
		if close <= 0 {
			return nil, fmt.Errorf("non-positive close in row %v", row)
		}
		bars = append(bars, contracts.DailyBar{
			Symbol: symbol,
			Date:   contracts.Day(date.UTC()),
			Close:  close,
		})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// parseHTML scrapes the quote page's history table. Rows whose first two
// parsed cells are not a date and a price are ignored; the table carries
// navigation and summary rows too.
func parseHTML(symbol, page string) ([]contracts.DailyBar, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parsing page: %w", err)
	}

	var bars []contracts.DailyBar
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 5 {
			return
		}

		date, err := parseCellDate(cells.Eq(0).Text())
		if err != nil {
			return
		}
		// Columns run date, open, high, low, close.
		close, err := parseCellPrice(cells.Eq(4).Text())
		if err != nil {
			return
		}

		bars = append(bars, contracts.DailyBar{
			Symbol: symbol,
			Date:   date,
			Close:  close,
		})
	})

	if len(bars) == 0 {
		return nil, fmt.Errorf("no history rows on page for %s", symbol)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

func parseCellDate(text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	for _, layout := range []string{"2006-01-02", "2 Jan 2006"} {
		if t, err := time.Parse(layout, text); err == nil {
			return contracts.Day(t.UTC()), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", text)
}

func parseCellPrice(text string) (float64, error) {
	text = strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	price, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, err
	}
	if price <= 0 {
		return 0, fmt.Errorf("non-positive price %q", text)
	}
	return price, nil
}
