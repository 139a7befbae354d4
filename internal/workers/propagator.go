package workers

import (
	"context"
	"errors"
	"fmt"

	"github.com/benvon/smart-survey/internal/database"
	logpkg "github.com/benvon/smart-survey/internal/logger"
	"github.com/benvon/smart-survey/internal/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Propagator copies a captured email onto the rows recorded for a session.
type Propagator interface {
	Propagate(ctx context.Context, resultID uuid.UUID, sessionID, email string) error
}

// EmailPropagator writes the email directly. Rows that already carry an
// email are left alone.
type EmailPropagator struct {
	logs          database.LogStore
	ratings       database.ImageRatingStore
	imageDropouts database.ImageDropoutStore
	logger        *zap.Logger
}

// NewEmailPropagator creates an EmailPropagator
func NewEmailPropagator(logs database.LogStore, ratings database.ImageRatingStore, imageDropouts database.ImageDropoutStore, logger *zap.Logger) *EmailPropagator {
	return &EmailPropagator{
		logs:          logs,
		ratings:       ratings,
		imageDropouts: imageDropouts,
		logger:        logger,
	}
}

// Propagate updates the result's logs and the session's image ratings and
// image dropouts. Every update is attempted; the failures are joined.
func (p *EmailPropagator) Propagate(ctx context.Context, resultID uuid.UUID, sessionID, email string) error {
	var errs []error

	logs, err := p.logs.SetEmailForResult(ctx, resultID, email)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to update user logs: %w", err))
	}
	ratings, err := p.ratings.SetEmailForSession(ctx, sessionID, email)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to update image ratings: %w", err))
	}
	dropouts, err := p.imageDropouts.SetEmailForSession(ctx, sessionID, email)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to update image dropouts: %w", err))
	}

	p.logger.Debug("email_propagated",
		zap.String("result_id", resultID.String()),
		zap.String("session_id", logpkg.SanitizeSessionID(sessionID)),
		zap.Int64("logs_updated", logs),
		zap.Int64("ratings_updated", ratings),
		zap.Int64("image_dropouts_updated", dropouts),
	)
	return errors.Join(errs...)
}

// QueuedPropagator hands propagation to the worker through the job queue.
// When the queue rejects the job it falls back to propagating inline.
type QueuedPropagator struct {
	queue    queue.JobQueue
	fallback Propagator
	logger   *zap.Logger
}

// NewQueuedPropagator creates a QueuedPropagator. fallback may be nil.
func NewQueuedPropagator(jobQueue queue.JobQueue, fallback Propagator, logger *zap.Logger) *QueuedPropagator {
	return &QueuedPropagator{queue: jobQueue, fallback: fallback, logger: logger}
}

// Propagate enqueues a propagate_email job.
func (p *QueuedPropagator) Propagate(ctx context.Context, resultID uuid.UUID, sessionID, email string) error {
	job := queue.NewPropagateEmailJob(resultID, sessionID, email)
	err := p.queue.Enqueue(ctx, job)
	if err == nil {
		p.logger.Debug("email_propagation_enqueued",
			zap.String("job_id", job.ID.String()),
			zap.String("result_id", resultID.String()),
		)
		return nil
	}
	if p.fallback == nil {
		return fmt.Errorf("failed to enqueue email propagation: %w", err)
	}
	p.logger.Warn("email_propagation_enqueue_failed_running_inline",
		zap.String("result_id", resultID.String()),
		zap.Error(err),
	)
	return p.fallback.Propagate(ctx, resultID, sessionID, email)
}
