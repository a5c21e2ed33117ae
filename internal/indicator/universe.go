package indicator

import (
	"fmt"
	"sort"
)

// Universe holds the indicator state for every symbol a strategy tracks.
// Symbol state is acquired when a ticker is added and released on
// teardown; the two must be paired even when a run terminates early.
type Universe struct {
	sets map[string]*Set
}

// NewUniverse creates an empty symbol registry.
func NewUniverse() *Universe {
	return &Universe{
		sets: make(map[string]*Set),
	}
}

// Register creates indicator state for a symbol. Registering the same
// symbol twice is a configuration error.
func (u *Universe) Register(symbol string, periods []int) (*Set, error) {
	if _, exists := u.sets[symbol]; exists {
		return nil, fmt.Errorf("symbol %s already registered", symbol)
	}

	set, err := NewSet(symbol, periods)
	if err != nil {
		return nil, err
	}

	u.sets[symbol] = set
	return set, nil
}

// Remove releases the state for a symbol.
func (u *Universe) Remove(symbol string) {
	delete(u.sets, symbol)
}

// Get returns the indicator set for a symbol.
func (u *Universe) Get(symbol string) (*Set, bool) {
	set, ok := u.sets[symbol]
	return set, ok
}

// Update records a consolidated close for a symbol.
func (u *Universe) Update(symbol string, close float64) error {
	set, ok := u.sets[symbol]
	if !ok {
		return fmt.Errorf("symbol %s not registered", symbol)
	}
	set.Update(close)
	return nil
}

// Value reads one indicator for a symbol. Unregistered symbols fail fast;
// warm-up errors propagate from the set.
func (u *Universe) Value(symbol string, kind Kind, period int) (float64, error) {
	set, ok := u.sets[symbol]
	if !ok {
		return 0, fmt.Errorf("symbol %s not registered", symbol)
	}
	return set.Value(kind, period)
}

// Symbols returns the registered symbols, sorted.
func (u *Universe) Symbols() []string {
	symbols := make([]string, 0, len(u.sets))
	for s := range u.sets {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// MinBars returns the smallest bar count across all registered symbols,
// used by drivers to decide when warm-up is complete.
func (u *Universe) MinBars() int {
	min := -1
	for _, set := range u.sets {
		if min == -1 || set.Bars() < min {
			min = set.Bars()
		}
	}
	if min == -1 {
		return 0
	}
	return min
}
