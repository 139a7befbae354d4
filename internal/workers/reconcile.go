package workers

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pruner removes duplicate completed results across all sessions.
type Pruner interface {
	PruneAll(ctx context.Context) (sessions, removed int, err error)
}

// ReconcileScheduler runs the duplicate sweep on a fixed interval, catching
// any duplicates whose post-insert sweep failed.
type ReconcileScheduler struct {
	pruner   Pruner
	interval time.Duration
	logger   *zap.Logger
}

// NewReconcileScheduler creates a new scheduler
func NewReconcileScheduler(pruner Pruner, interval time.Duration, logger *zap.Logger) *ReconcileScheduler {
	return &ReconcileScheduler{
		pruner:   pruner,
		interval: interval,
		logger:   logger,
	}
}

// RunOnce performs one sweep
func (s *ReconcileScheduler) RunOnce(ctx context.Context) error {
	sessions, removed, err := s.pruner.PruneAll(ctx)
	if err != nil {
		s.logger.Error("scheduled_reconcile_failed",
			zap.Int("sessions", sessions),
			zap.Int("removed", removed),
			zap.Error(err),
		)
		return err
	}
	if removed > 0 {
		s.logger.Info("scheduled_reconcile_pruned",
			zap.Int("sessions", sessions),
			zap.Int("removed", removed),
		)
	}
	return nil
}

// Start sweeps once immediately and then on every tick until ctx is cancelled.
func (s *ReconcileScheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	_ = s.RunOnce(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.RunOnce(ctx)
		}
	}
}
