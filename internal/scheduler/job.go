package scheduler

import (
	"context"
	"sync"
	"time"
)

// Job is a unit of scheduled work.
type Job interface {
	// Name returns a unique job name used for lookup and history.
	Name() string

	// Run executes the job. A non-nil error triggers the retry policy.
	Run(ctx context.Context) error

	// Schedule returns the cron expression (with seconds field).
	Schedule() string
}

// JobResult records a single job execution.
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// JobHistory keeps the most recent results for one job.
type JobHistory struct {
	mu      sync.RWMutex
	results []JobResult
	maxSize int
}

// NewJobHistory creates a history buffer holding up to maxSize results.
func NewJobHistory(maxSize int) *JobHistory {
	return &JobHistory{
		results: make([]JobResult, 0, maxSize),
		maxSize: maxSize,
	}
}

// AddResult appends a result, evicting the oldest entry when full.
func (h *JobHistory) AddResult(result JobResult) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.results = append(h.results, result)
	if len(h.results) > h.maxSize {
		h.results = h.results[1:]
	}
}

// LatestResults returns up to n most recent results, newest first.
func (h *JobHistory) LatestResults(n int) []JobResult {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n > len(h.results) {
		n = len(h.results)
	}

	out := make([]JobResult, n)
	for i := 0; i < n; i++ {
		out[i] = h.results[len(h.results)-1-i]
	}
	return out
}
