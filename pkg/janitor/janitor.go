package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/vaultpilot/vaultpilot/internal/metrics"
)

// Pruner removes records older than a cutoff and reports how many went.
type Pruner interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// Janitor runs the history retention sweep on a cron schedule.
type Janitor struct {
	cron      *cron.Cron
	pruner    Pruner
	retention time.Duration
	logger    zerolog.Logger
}

// New creates a janitor. Schedule is a five-field cron expression;
// retentionDays bounds how far back records are kept.
func New(pruner Pruner, schedule string, retentionDays int, logger zerolog.Logger) (*Janitor, error) {
	if pruner == nil {
		return nil, fmt.Errorf("pruner is required")
	}
	if retentionDays <= 0 {
		return nil, fmt.Errorf("retention days must be positive")
	}

	j := &Janitor{
		cron:      cron.New(),
		pruner:    pruner,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    logger,
	}

	if _, err := j.cron.AddFunc(schedule, j.sweep); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Start begins scheduled sweeps.
func (j *Janitor) Start() {
	j.cron.Start()
	j.logger.Info().Dur("retention", j.retention).Msg("History retention sweep scheduled")
}

// Stop halts scheduling and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

// SweepNow runs one sweep immediately, outside the schedule.
func (j *Janitor) SweepNow(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-j.retention)
	pruned, err := j.pruner.PruneOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention sweep: %w", err)
	}
	if pruned > 0 {
		metrics.RecordPruned(pruned)
	}
	return pruned, nil
}

func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pruned, err := j.SweepNow(ctx)
	if err != nil {
		j.logger.Warn().Err(err).Msg("Retention sweep failed")
		return
	}
	j.logger.Info().Int("pruned", pruned).Msg("Retention sweep finished")
}
