package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/sonatalabs/sonata/internal/contracts"
	"github.com/sonatalabs/sonata/internal/external/stooq"
	"github.com/sonatalabs/sonata/pkg/logger"
)

// defaultLookbackDays covers weekends, holidays and a few missed runs.
const defaultLookbackDays = 7

// BarRefreshJob pulls recent daily bars for a set of symbols and
// persists them in the bar repository.
type BarRefreshJob struct {
	client   *stooq.Client
	repo     contracts.BarRepository
	symbols  []string
	lookback int
	schedule string
	now      func() time.Time
	log      *logger.Logger
}

// NewBarRefreshJob creates the refresh job. lookbackDays <= 0 falls
// back to a week.
func NewBarRefreshJob(
	client *stooq.Client,
	repo contracts.BarRepository,
	symbols []string,
	lookbackDays int,
	schedule string,
	log *logger.Logger,
) (*BarRefreshJob, error) {
	if client == nil || repo == nil {
		return nil, fmt.Errorf("client and repo are required")
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("at least one symbol is required")
	}
	if schedule == "" {
		return nil, fmt.Errorf("schedule is required")
	}
	if lookbackDays <= 0 {
		lookbackDays = defaultLookbackDays
	}

	return &BarRefreshJob{
		client:   client,
		repo:     repo,
		symbols:  symbols,
		lookback: lookbackDays,
		schedule: schedule,
		now:      time.Now,
		log:      log.WithComponent("bar_refresh_job"),
	}, nil
}

// Name returns the job name.
func (j *BarRefreshJob) Name() string {
	return "bar_refresh"
}

// Schedule returns the cron schedule.
func (j *BarRefreshJob) Schedule() string {
	return j.schedule
}

// Run fetches and stores bars for every symbol. A symbol that fails
// does not block the others.
func (j *BarRefreshJob) Run(ctx context.Context) error {
	to := contracts.Day(j.now())
	from := to.AddDate(0, 0, -j.lookback)

	failed := 0
	for _, symbol := range j.symbols {
		bars, err := j.client.FetchDaily(ctx, symbol, from, to)
		if err != nil {
			j.log.WithError(err).WithField("symbol", symbol).Error("Bar fetch failed")
			failed++
			continue
		}
		if err := j.repo.Save(ctx, bars); err != nil {
			j.log.WithError(err).WithField("symbol", symbol).Error("Bar save failed")
			failed++
			continue
		}
		j.log.WithFields(map[string]interface{}{
			"symbol": symbol,
			"bars":   len(bars),
		}).Debug("Bars refreshed")
	}

	if failed > 0 {
		return fmt.Errorf("refresh failed for %d of %d symbols", failed, len(j.symbols))
	}

	j.log.WithField("symbols", len(j.symbols)).Info("Bar refresh completed")
	return nil
}
