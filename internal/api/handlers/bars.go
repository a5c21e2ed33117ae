package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/sonatalabs/sonata/internal/contracts"
	"github.com/sonatalabs/sonata/pkg/logger"
)

// BarHandler serves stored daily bars.
type BarHandler struct {
	repo contracts.BarRepository
	log  *logger.Logger
}

// NewBarHandler creates the handler.
func NewBarHandler(repo contracts.BarRepository, log *logger.Logger) *BarHandler {
	return &BarHandler{repo: repo, log: log}
}

// Range returns bars for one symbol. Without from/to it falls back to
// the latest n bars (default 30).
// GET /api/bars/{symbol}?from=YYYY-MM-DD&to=YYYY-MM-DD
// GET /api/bars/{symbol}?limit=n
func (h *BarHandler) Range(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	symbol := mux.Vars(r)["symbol"]

	fromStr := r.URL.Query().Get("from")
	toStr := r.URL.Query().Get("to")

	var (
		bars []contracts.DailyBar
		err  error
	)
	switch {
	case fromStr != "" || toStr != "":
		from, parseErr := parseDate(fromStr)
		if parseErr != nil {
			respondError(w, http.StatusBadRequest, "Invalid from date")
			return
		}
		to, parseErr := parseDate(toStr)
		if parseErr != nil {
			respondError(w, http.StatusBadRequest, "Invalid to date")
			return
		}
		if to.IsZero() {
			to = contracts.Day(time.Now())
		}
		bars, err = h.repo.Range(ctx, symbol, from, to)
	default:
		limit := 30
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			limit, err = strconv.Atoi(limitStr)
			if err != nil || limit < 1 {
				respondError(w, http.StatusBadRequest, "Invalid limit")
				return
			}
		}
		bars, err = h.repo.Latest(ctx, symbol, limit)
	}

	if err != nil {
		h.log.WithError(err).WithField("symbol", symbol).Error("Bar query failed")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve bars")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"bars":   bars,
		"count":  len(bars),
	})
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}
