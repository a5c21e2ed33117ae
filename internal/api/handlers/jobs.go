package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/sonatalabs/sonata/internal/scheduler"
	"github.com/sonatalabs/sonata/pkg/logger"
)

// JobHandler exposes scheduler control and history.
type JobHandler struct {
	sched *scheduler.Scheduler
	log   *logger.Logger
}

// NewJobHandler creates the handler.
func NewJobHandler(sched *scheduler.Scheduler, log *logger.Logger) *JobHandler {
	return &JobHandler{sched: sched, log: log}
}

// List returns the registered job names.
// GET /api/jobs
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"jobs": h.sched.JobNames(),
	})
}

// Run triggers a job immediately.
// POST /api/jobs/{name}/run
func (h *JobHandler) Run(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if err := h.sched.RunJob(r.Context(), name); err != nil {
		h.log.WithError(err).WithField("job", name).Error("Manual job run failed")
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "completed",
		"job":    name,
	})
}

// History returns recent results for a job, newest first.
// GET /api/jobs/{name}/history?limit=n
func (h *JobHandler) History(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	results, err := h.sched.History(name, limit)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"job":     name,
		"results": results,
	})
}
