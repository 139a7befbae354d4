package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const purgeTimeout = 2 * time.Minute

// GarbageCollector trims the dead-letter queue so failed propagation jobs
// stay inspectable for DLQ_RETENTION and no longer.
type GarbageCollector struct {
	purger    DLQPurger
	interval  time.Duration
	retention time.Duration
	logger    *zap.Logger
}

// NewGarbageCollector creates a collector that purges through purger every
// interval. A nil logger discards output.
func NewGarbageCollector(purger DLQPurger, interval, retention time.Duration, logger *zap.Logger) *GarbageCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GarbageCollector{
		purger:    purger,
		interval:  interval,
		retention: retention,
		logger:    logger,
	}
}

// Start purges on every tick until ctx is cancelled and returns ctx.Err().
// A non-positive interval disables collection.
func (gc *GarbageCollector) Start(ctx context.Context) error {
	if gc.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(gc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := gc.collect(ctx); err != nil {
				gc.logger.Error("dlq_purge_failed",
					zap.Duration("retention", gc.retention),
					zap.Error(err),
				)
			}
		}
	}
}

func (gc *GarbageCollector) collect(ctx context.Context) error {
	if gc.purger == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, purgeTimeout)
	defer cancel()
	n, err := gc.purger.PurgeOlderThan(ctx, gc.retention)
	if err != nil {
		return fmt.Errorf("purge dead-lettered jobs: %w", err)
	}
	if n > 0 {
		gc.logger.Info("dlq_gc_purged",
			zap.Int("purged", n),
			zap.Duration("retention", gc.retention),
		)
	}
	return nil
}
