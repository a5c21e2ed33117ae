// Package scheduler runs recurring jobs on cron schedules with retry
// and execution history.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sonatalabs/sonata/pkg/logger"
)

const (
	maxHistorySize = 100
	maxRetries     = 3
	retryDelay     = time.Minute
)

// Scheduler manages registered jobs and their cron entries.
type Scheduler struct {
	cron       *cron.Cron
	jobs       map[string]Job
	entries    map[string]cron.EntryID
	history    map[string]*JobHistory
	maxRetries int
	retryDelay time.Duration
	log        *logger.Logger
	mu         sync.RWMutex
}

// New creates a scheduler. Cron expressions include a seconds field.
func New(log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithSeconds()),
		jobs:       make(map[string]Job),
		entries:    make(map[string]cron.EntryID),
		history:    make(map[string]*JobHistory),
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		log:        log.WithComponent("scheduler"),
	}
}

// AddJob registers a job with its cron schedule.
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}

	entryID, err := s.cron.AddFunc(job.Schedule(), func() {
		s.runJob(context.Background(), job)
	})
	if err != nil {
		return fmt.Errorf("add job %q: %w", name, err)
	}

	s.jobs[name] = job
	s.entries[name] = entryID
	s.history[name] = NewJobHistory(maxHistorySize)

	s.log.WithFields(map[string]interface{}{
		"job":      name,
		"schedule": job.Schedule(),
	}).Info("Job registered")
	return nil
}

// RemoveJob unregisters a job and drops its cron entry.
func (s *Scheduler) RemoveJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, exists := s.entries[name]
	if !exists {
		return fmt.Errorf("job %q not found", name)
	}

	s.cron.Remove(entryID)
	delete(s.jobs, name)
	delete(s.entries, name)

	s.log.WithField("job", name).Info("Job removed")
	return nil
}

// Start begins firing registered jobs on their schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.WithField("jobs", len(s.jobs)).Info("Scheduler started")
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("Scheduler stopped")
}

// RunJob triggers a job immediately, outside its schedule.
func (s *Scheduler) RunJob(ctx context.Context, name string) error {
	s.mu.RLock()
	job, exists := s.jobs[name]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("job %q not found", name)
	}

	return s.runJob(ctx, job)
}

// JobNames returns the names of all registered jobs.
func (s *Scheduler) JobNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// History returns up to n recent results for a job, newest first.
func (s *Scheduler) History(name string, n int) ([]JobResult, error) {
	s.mu.RLock()
	hist, exists := s.history[name]
	s.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("job %q not found", name)
	}
	return hist.LatestResults(n), nil
}

// runJob executes a job with retries and records the outcome.
func (s *Scheduler) runJob(ctx context.Context, job Job) error {
	name := job.Name()
	start := time.Now()

	s.log.WithField("job", name).Info("Job starting")

	var err error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err = job.Run(ctx)
		if err == nil {
			break
		}

		s.log.WithError(err).WithFields(map[string]interface{}{
			"job":     name,
			"attempt": attempt,
		}).Warn("Job attempt failed")

		if attempt < s.maxRetries {
			select {
			case <-time.After(s.retryDelay):
			case <-ctx.Done():
				err = ctx.Err()
				attempt = s.maxRetries
			}
		}
	}

	end := time.Now()
	result := JobResult{
		JobName:   name,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		Success:   err == nil,
	}
	if err != nil {
		result.Error = err.Error()
	}

	s.mu.RLock()
	hist := s.history[name]
	s.mu.RUnlock()
	if hist != nil {
		hist.AddResult(result)
	}

	if err != nil {
		s.log.WithError(err).WithField("job", name).Error("Job failed")
		return fmt.Errorf("job %q: %w", name, err)
	}

	s.log.WithFields(map[string]interface{}{
		"job":      name,
		"duration": result.Duration.String(),
	}).Info("Job completed")
	return nil
}
