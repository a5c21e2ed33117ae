package symphony

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sonatalabs/sonata/internal/contracts"
)

// Entry is one registered symphony plus its latest evaluation.
type Entry struct {
	Config     *Config               `json:"config"`
	Hash       string                `json:"hash"`
	Evaluation *contracts.Evaluation `json:"evaluation,omitempty"`
}

// Registry holds the symphonies a running process serves. It is safe
// for concurrent use by the API, the scheduler and the loader.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Add registers a symphony under its meta name. Re-adding a name
// replaces the entry, which is how config reloads land.
func (r *Registry) Add(cfg *Config) (string, error) {
	if cfg == nil || cfg.Meta.Name == "" {
		return "", fmt.Errorf("symphony config with a name is required")
	}
	hash, err := Hash(cfg)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.entries[cfg.Meta.Name] = &Entry{Config: cfg, Hash: hash}
	r.mu.Unlock()
	return hash, nil
}

// Get looks up a symphony by name.
func (r *Registry) Get(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	copied := *entry
	return &copied, true
}

// Names returns all registered symphony names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetEvaluation records the latest evaluation for a symphony.
func (r *Registry) SetEvaluation(name string, eval *contracts.Evaluation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("symphony %q not registered", name)
	}
	entry.Evaluation = eval
	return nil
}
