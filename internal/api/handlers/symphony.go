package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sonatalabs/sonata/internal/symphony"
	"github.com/sonatalabs/sonata/pkg/logger"
)

// SymphonyHandler serves the symphony registry.
type SymphonyHandler struct {
	registry *symphony.Registry
	log      *logger.Logger
}

// NewSymphonyHandler creates the handler.
func NewSymphonyHandler(registry *symphony.Registry, log *logger.Logger) *SymphonyHandler {
	return &SymphonyHandler{registry: registry, log: log}
}

// symphonySummary is the list-view projection of one entry.
type symphonySummary struct {
	Name      string   `json:"name"`
	Hash      string   `json:"hash"`
	Rebalance string   `json:"rebalance"`
	Exchange  string   `json:"exchange,omitempty"`
	Tickers   []string `json:"tickers"`
}

// List returns all registered symphonies.
// GET /api/symphonies
func (h *SymphonyHandler) List(w http.ResponseWriter, r *http.Request) {
	names := h.registry.Names()
	summaries := make([]symphonySummary, 0, len(names))
	for _, name := range names {
		entry, ok := h.registry.Get(name)
		if !ok {
			continue
		}
		summaries = append(summaries, symphonySummary{
			Name:      entry.Config.Meta.Name,
			Hash:      entry.Hash,
			Rebalance: entry.Config.Meta.Rebalance,
			Exchange:  entry.Config.Meta.Exchange,
			Tickers:   entry.Config.Tickers(),
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"symphonies": summaries,
		"count":      len(summaries),
	})
}

// Get returns one symphony's full config, hash and indicator demands.
// GET /api/symphonies/{name}
func (h *SymphonyHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	entry, ok := h.registry.Get(name)
	if !ok {
		respondError(w, http.StatusNotFound, "Symphony not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"config":  entry.Config,
		"hash":    entry.Hash,
		"tickers": entry.Config.Tickers(),
		"periods": entry.Config.Periods(),
	})
}

// GetEvaluation returns the latest evaluation for one symphony.
// GET /api/symphonies/{name}/evaluation
func (h *SymphonyHandler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	entry, ok := h.registry.Get(name)
	if !ok {
		respondError(w, http.StatusNotFound, "Symphony not found")
		return
	}
	if entry.Evaluation == nil {
		respondError(w, http.StatusNotFound, "No evaluation yet")
		return
	}

	respondJSON(w, http.StatusOK, entry.Evaluation)
}
