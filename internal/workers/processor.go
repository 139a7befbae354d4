package workers

import (
	"context"
	"errors"
	"fmt"

	"github.com/benvon/smart-survey/internal/queue"
	"go.uber.org/zap"
)

// ErrJobExpired is returned for jobs consumed after their NotAfter time.
var ErrJobExpired = errors.New("job expired")

// JobProcessor runs queued jobs
type JobProcessor struct {
	propagator Propagator
	jobQueue   queue.JobQueue // For re-enqueueing failed jobs
	logger     *zap.Logger
}

// NewJobProcessor creates a new job processor
func NewJobProcessor(propagator Propagator, jobQueue queue.JobQueue, logger *zap.Logger) *JobProcessor {
	return &JobProcessor{
		propagator: propagator,
		jobQueue:   jobQueue,
		logger:     logger,
	}
}

// ProcessJob runs the job carried by msg and settles the message: ack on
// success, re-enqueue with an incremented retry count while retries remain,
// otherwise nack to the dead letter queue.
func (p *JobProcessor) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()
	if job == nil {
		if nackErr := msg.Nack(false); nackErr != nil {
			p.logger.Error("failed_to_nack_empty_message", zap.Error(nackErr))
		}
		return errors.New("message carries no job")
	}

	if job.IsExpired() {
		p.logger.Warn("job_expired",
			zap.String("job_id", job.ID.String()),
			zap.Timep("not_after", job.NotAfter),
		)
		if nackErr := msg.Nack(false); nackErr != nil {
			p.logger.Error("failed_to_nack_expired_job", zap.Error(nackErr))
		}
		return fmt.Errorf("job %s: %w", job.ID, ErrJobExpired)
	}

	if err := job.Validate(); err != nil {
		// Malformed or unknown jobs never succeed, send to DLQ
		if nackErr := msg.Nack(false); nackErr != nil {
			p.logger.Error("failed_to_nack_invalid_job", zap.Error(nackErr))
		}
		return fmt.Errorf("invalid job %s: %w", job.ID, err)
	}

	var err error
	switch job.Type {
	case queue.JobTypePropagateEmail:
		err = p.propagator.Propagate(ctx, job.ResultID, job.SessionID, job.Email)
	}
	if err == nil {
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack job: %w", ackErr)
		}
		return nil
	}
	return p.handleJobError(ctx, msg, job, err)
}

func (p *JobProcessor) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, err error) error {
	if !job.CanRetry() {
		p.logger.Error("job_failed_max_retries",
			zap.String("job_id", job.ID.String()),
			zap.String("job_type", string(job.Type)),
			zap.Int("max_retries", job.MaxRetries),
			zap.Error(err),
		)
		if nackErr := msg.Nack(false); nackErr != nil {
			p.logger.Error("failed_to_nack_job_to_dlq", zap.Error(nackErr))
		}
		return fmt.Errorf("job failed (max retries): %w", err)
	}

	next := job.NextAttempt()
	// The retry count only survives through a fresh publish
	if p.jobQueue != nil {
		enqueueErr := p.jobQueue.Enqueue(ctx, next)
		if enqueueErr == nil {
			if ackErr := msg.Ack(); ackErr != nil {
				p.logger.Warn("failed_to_ack_retried_job", zap.Error(ackErr))
			}
			p.logger.Warn("job_failed_will_retry",
				zap.String("job_id", job.ID.String()),
				zap.Int("attempt", next.RetryCount),
				zap.Int("max_retries", job.MaxRetries),
				zap.Error(err),
			)
			return fmt.Errorf("job failed (will retry): %w", err)
		}
		p.logger.Warn("failed_to_re_enqueue_job",
			zap.String("job_id", job.ID.String()),
			zap.Error(enqueueErr),
		)
	}

	// A broker requeue would redeliver with the same retry count and loop
	// without bound, so the job goes to the DLQ instead.
	p.logger.Error("job_retry_unavailable_sent_to_dlq",
		zap.String("job_id", job.ID.String()),
		zap.Int("attempt", job.RetryCount),
		zap.Error(err),
	)
	if nackErr := msg.Nack(false); nackErr != nil {
		p.logger.Error("failed_to_nack_job_to_dlq", zap.Error(nackErr))
	}
	return fmt.Errorf("job failed (retry unavailable): %w", err)
}

// Run processes messages until ctx is cancelled or the message channel closes.
func (p *JobProcessor) Run(ctx context.Context, msgs <-chan *queue.Message, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			p.logger.Error("queue_error", zap.Error(err))
		case msg, ok := <-msgs:
			if !ok {
				p.logger.Info("message_channel_closed")
				return
			}
			if err := p.ProcessJob(ctx, msg); err != nil {
				p.logger.Error("failed_to_process_job",
					zap.Error(err),
					zap.String("job_id", jobID(msg.GetJob())),
				)
			}
		}
	}
}

func jobID(job *queue.Job) string {
	if job == nil {
		return ""
	}
	return job.ID.String()
}
