package selection

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sonatalabs/sonata/internal/indicator"
	"github.com/sonatalabs/sonata/pkg/logger"
)

// Mode picks which end of the ranking survives.
type Mode string

const (
	Top    Mode = "top"
	Bottom Mode = "bottom"
)

// ParseMode validates a selection mode from configuration.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case Top, Bottom:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown selection mode %q", s)
}

// Criterion names the statistic candidates are ranked by.
type Criterion struct {
	Kind   indicator.Kind
	Period int
}

func (c Criterion) String() string {
	return fmt.Sprintf("%s(%d)", c.Kind, c.Period)
}

// Ranked is one candidate with its computed criterion value.
type Ranked struct {
	Symbol string
	Value  float64
}

// ValueSource resolves a criterion for a symbol. The indicator universe
// satisfies this.
type ValueSource interface {
	Value(symbol string, kind indicator.Kind, period int) (float64, error)
}

// Engine ranks candidate symbols by one indicator and keeps a slice of
// the ranking. A single unreadable candidate fails the whole selection;
// ranking a partial universe would silently change which symbols win.
type Engine struct {
	source ValueSource
	log    *logger.Logger
}

// NewEngine creates a selection engine over the given value source.
func NewEngine(source ValueSource, log *logger.Logger) *Engine {
	return &Engine{
		source: source,
		log:    log.WithComponent("selection"),
	}
}

// Rank computes the criterion for every candidate and sorts descending.
// The sort is stable, so candidates with equal values keep their input
// order.
func (e *Engine) Rank(symbols []string, criterion Criterion) ([]Ranked, error) {
	if len(symbols) == 0 {
		return nil, errors.New("no candidates to rank")
	}

	ranked := make([]Ranked, 0, len(symbols))
	for _, sym := range symbols {
		value, err := e.source.Value(sym, criterion.Kind, criterion.Period)
		if err != nil {
			return nil, fmt.Errorf("ranking %s by %s: %w", sym, criterion, err)
		}
		ranked = append(ranked, Ranked{Symbol: sym, Value: value})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Value > ranked[j].Value
	})

	return ranked, nil
}

// Select ranks the candidates and keeps count of them from the chosen
// end. Top keeps the highest values, Bottom the lowest; both return
// their slice in descending value order.
func (e *Engine) Select(symbols []string, criterion Criterion, mode Mode, count int) ([]Ranked, error) {
	if count < 1 {
		return nil, fmt.Errorf("selection count must be positive, got %d", count)
	}
	if count > len(symbols) {
		return nil, fmt.Errorf("selection count %d exceeds %d candidates", count, len(symbols))
	}

	ranked, err := e.Rank(symbols, criterion)
	if err != nil {
		return nil, err
	}

	var kept []Ranked
	switch mode {
	case Top:
		kept = ranked[:count]
	case Bottom:
		kept = ranked[len(ranked)-count:]
	default:
		return nil, fmt.Errorf("unknown selection mode %q", mode)
	}

	e.log.WithFields(map[string]interface{}{
		"criterion":  criterion.String(),
		"mode":       string(mode),
		"candidates": len(symbols),
		"kept":       len(kept),
	}).Debug("selection complete")

	return kept, nil
}
