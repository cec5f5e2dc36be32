package scheduler

import (
	"context"
	"time"

	"ordersync_backend/platform/logger"
)

const defaultStaleBatchCleanupInterval = time.Hour

// StaleBatchDeleter removes unprocessed batches created before a cutoff,
// together with their orders and archived files.
type StaleBatchDeleter interface {
	DeleteStaleBatches(ctx context.Context, before time.Time) (int, error)
}

// StaleBatchCleanup periodically removes batches whose ingestion failed part way,
// together with the orders they wrote and the uploaded files. A zero retention
// disables it.
type StaleBatchCleanup struct {
	batches   StaleBatchDeleter
	log       *logger.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewStaleBatchCleanup(batches StaleBatchDeleter, log *logger.Logger, interval, retention time.Duration) *StaleBatchCleanup {
	if interval <= 0 {
		interval = defaultStaleBatchCleanupInterval
	}
	if log == nil {
		log = logger.Nop()
	}
	return &StaleBatchCleanup{
		batches:   batches,
		log:       log,
		interval:  interval,
		retention: retention,
		now:       time.Now,
	}
}

func (c *StaleBatchCleanup) Run(ctx context.Context) {
	if c == nil || c.batches == nil || c.retention <= 0 {
		return
	}

	c.cleanup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *StaleBatchCleanup) cleanup(ctx context.Context) {
	deleted, err := c.batches.DeleteStaleBatches(ctx, c.now().Add(-c.retention))
	if err != nil {
		c.log.Warn("stale batch cleanup failed", "error", err)
		return
	}

	if deleted > 0 {
		c.log.Info("stale batch cleanup deleted unprocessed batches", "deleted", deleted)
	}
}
