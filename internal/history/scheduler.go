package history

// scheduler.go runs the retention job that keeps the run ledger bounded.
//
// The job runs once on start and then every CheckInterval until the context
// is cancelled. A failed purge is logged and retried on the next tick; it
// never stops the scheduler.

import (
	"context"
	"log/slog"
	"time"
)

// RetentionConfig holds configuration for the retention scheduler.
type RetentionConfig struct {
	Retention     time.Duration // Age after which runs are purged (default: 30 days)
	CheckInterval time.Duration // How often to run (default: 24h)
}

func (c RetentionConfig) withDefaults() RetentionConfig {
	if c.Retention <= 0 {
		c.Retention = 30 * 24 * time.Hour
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 24 * time.Hour
	}
	return c
}

// StartRetentionScheduler purges old runs from store until ctx is cancelled.
// It blocks; run it in its own goroutine.
func StartRetentionScheduler(ctx context.Context, store Store, cfg RetentionConfig) {
	cfg = cfg.withDefaults()
	slog.Info("retention scheduler started",
		"retention", cfg.Retention.String(),
		"check_interval", cfg.CheckInterval.String(),
	)

	runRetentionJob(ctx, store, cfg)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("retention scheduler stopped")
			return
		case <-ticker.C:
			runRetentionJob(ctx, store, cfg)
		}
	}
}

// runRetentionJob performs one purge cycle.
func runRetentionJob(ctx context.Context, store Store, cfg RetentionConfig) {
	start := time.Now()

	purged, err := store.Purge(ctx, cfg.Retention)
	if err != nil {
		slog.Error("run purge failed", "error", err)
		return
	}

	slog.Info("purged old runs",
		"runs_purged", purged,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
