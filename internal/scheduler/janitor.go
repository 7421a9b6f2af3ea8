package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hamed0406/netvigil/internal/repo"
)

const DefaultCleanupSchedule = "@daily"

// Janitor prunes rows older than the retention window on a cron schedule.
type Janitor struct {
	Logger    *zap.Logger
	Store     repo.Pruner
	Retention time.Duration
	Schedule  string
	Clock     clock.Clock

	mu   sync.Mutex
	cron *cron.Cron
}

func NewJanitor(logger *zap.Logger, store repo.Pruner, retention time.Duration, schedule string) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if schedule == "" {
		schedule = DefaultCleanupSchedule
	}
	return &Janitor{
		Logger:    logger,
		Store:     store,
		Retention: retention,
		Schedule:  schedule,
		Clock:     clock.New(),
	}
}

// Start registers the cleanup job and runs the cron scheduler until ctx is
// cancelled. A non-positive retention disables the job.
func (j *Janitor) Start(ctx context.Context) error {
	if j.Retention <= 0 {
		j.Logger.Info("janitor_disabled")
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(j.Schedule, func() {
		if _, err := j.RunOnce(ctx); err != nil {
			j.Logger.Warn("janitor_prune_error", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("janitor schedule %q: %w", j.Schedule, err)
	}
	j.mu.Lock()
	j.cron = c
	j.mu.Unlock()
	c.Start()
	j.Logger.Info("janitor_started", zap.String("schedule", j.Schedule), zap.Duration("retention", j.Retention))

	go func() {
		<-ctx.Done()
		_ = j.Stop(context.Background())
	}()
	return nil
}

// Stop halts the schedule and waits for a running prune to finish or ctx to
// expire. Safe to call more than once and before Start.
func (j *Janitor) Stop(ctx context.Context) error {
	j.mu.Lock()
	c := j.cron
	j.cron = nil
	j.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		j.Logger.Info("janitor_stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce prunes everything older than now minus the retention window.
func (j *Janitor) RunOnce(ctx context.Context) (repo.PruneCounts, error) {
	before := j.Clock.Now().Add(-j.Retention)
	c, err := j.Store.Prune(ctx, before)
	if err != nil {
		return c, fmt.Errorf("prune before %s: %w", before.Format(time.RFC3339), err)
	}
	j.Logger.Info("janitor_pruned",
		zap.Time("before", before),
		zap.Int64("pings", c.Pings),
		zap.Int64("traces", c.Traces),
		zap.Int64("outages", c.Outages),
	)
	return c, nil
}
