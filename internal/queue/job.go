package queue

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypePropagateEmail copies a captured email onto the rows recorded
	// for the same survey session.
	JobTypePropagateEmail JobType = "propagate_email"
)

const (
	// DefaultMaxRetries is the retry budget of a new job
	DefaultMaxRetries = 3
	// DefaultJobTTL bounds how long a job stays worth running
	DefaultJobTTL = 24 * time.Hour
)

// Job represents a job in the queue
type Job struct {
	ID         uuid.UUID  `json:"id"`
	Type       JobType    `json:"type"`
	ResultID   uuid.UUID  `json:"result_id"`
	SessionID  string     `json:"session_id"`
	Email      string     `json:"email"`
	NotAfter   *time.Time `json:"not_after,omitempty"` // Latest time to process job (nil = no expiration)
	CreatedAt  time.Time  `json:"created_at"`
	RetryCount int        `json:"retry_count"`
	MaxRetries int        `json:"max_retries"`
}

// NewPropagateEmailJob creates an email propagation job
func NewPropagateEmailJob(resultID uuid.UUID, sessionID, email string) *Job {
	now := time.Now().UTC()
	notAfter := now.Add(DefaultJobTTL)
	return &Job{
		ID:         uuid.New(),
		Type:       JobTypePropagateEmail,
		ResultID:   resultID,
		SessionID:  sessionID,
		Email:      email,
		NotAfter:   &notAfter,
		CreatedAt:  now,
		RetryCount: 0,
		MaxRetries: DefaultMaxRetries,
	}
}

// Validate checks that the job carries what its type needs
func (j *Job) Validate() error {
	switch j.Type {
	case JobTypePropagateEmail:
		if j.ResultID == uuid.Nil {
			return errors.New("result_id is required for propagate_email job")
		}
		if strings.TrimSpace(j.SessionID) == "" {
			return errors.New("session_id is required for propagate_email job")
		}
		if strings.TrimSpace(j.Email) == "" {
			return errors.New("email is required for propagate_email job")
		}
		return nil
	default:
		return errors.New("unknown job type: " + string(j.Type))
	}
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	if j.NotAfter == nil {
		return false
	}

	return time.Now().After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// NextAttempt returns a copy of the job with the retry count incremented
func (j *Job) NextAttempt() *Job {
	next := *j
	next.RetryCount++
	return &next
}
