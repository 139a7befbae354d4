package queue

import (
	"context"
	"time"
)

// MessageInterface is one delivered job awaiting settlement. Workers settle
// every message exactly once with Ack or Nack.
type MessageInterface interface {
	Ack() error
	Nack(requeue bool) error
	GetJob() *Job
}

// JobQueue carries propagation jobs from the server to the worker.
type JobQueue interface {
	Enqueue(ctx context.Context, job *Job) error

	// Consume delivers jobs until ctx is cancelled or the connection drops,
	// then closes the message channel. At most prefetchCount deliveries are
	// unsettled at a time.
	Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error)

	Close() error

	// HealthCheck reports whether the broker connection and channel are open.
	HealthCheck(ctx context.Context) error
}

// DLQPurger drops dead-lettered jobs that have been parked longer than retention.
type DLQPurger interface {
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error)
}
