package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sonatalabs/sonata/internal/backtest"
	"github.com/sonatalabs/sonata/internal/symphony"
	"github.com/sonatalabs/sonata/pkg/logger"
)

// BacktestHandler runs backtests over registered symphonies.
type BacktestHandler struct {
	registry *symphony.Registry
	engine   *backtest.Engine
	log      *logger.Logger
}

// NewBacktestHandler creates the handler.
func NewBacktestHandler(registry *symphony.Registry, engine *backtest.Engine, log *logger.Logger) *BacktestHandler {
	return &BacktestHandler{registry: registry, engine: engine, log: log}
}

// BacktestRequest selects a symphony and overrides run parameters.
// Dates are YYYY-MM-DD; zero values fall back to the symphony's own
// backtest_start and today.
type BacktestRequest struct {
	Symphony       string  `json:"symphony"`
	Start          string  `json:"start,omitempty"`
	End            string  `json:"end,omitempty"`
	InitialCapital float64 `json:"initial_capital,omitempty"`
	CommissionRate float64 `json:"commission_rate,omitempty"`
	SlippageRate   float64 `json:"slippage_rate,omitempty"`
}

// Run executes a backtest synchronously and returns the result.
// POST /api/backtests
func (h *BacktestHandler) Run(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Symphony == "" {
		respondError(w, http.StatusBadRequest, "symphony is required")
		return
	}

	entry, ok := h.registry.Get(req.Symphony)
	if !ok {
		respondError(w, http.StatusNotFound, "Symphony not found")
		return
	}

	cfg := backtest.Config{
		InitialCapital: req.InitialCapital,
		CommissionRate: req.CommissionRate,
		SlippageRate:   req.SlippageRate,
	}
	if cfg.InitialCapital == 0 {
		cfg.InitialCapital = 10_000
	}

	var err error
	if req.Start != "" {
		cfg.Start, err = time.Parse("2006-01-02", req.Start)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid start date")
			return
		}
	}
	if req.End != "" {
		cfg.End, err = time.Parse("2006-01-02", req.End)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid end date")
			return
		}
	}

	result, err := h.engine.Run(ctx, entry.Config, cfg)
	if err != nil {
		h.log.WithError(err).WithField("symphony", req.Symphony).Error("Backtest failed")
		respondError(w, http.StatusUnprocessableEntity, "Backtest failed: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, result)
}
