// Package submission keeps at most one completed result per survey session.
package submission

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/benvon/smart-survey/internal/database"
	"github.com/benvon/smart-survey/internal/models"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/benvon/smart-survey/internal/submission"

// RecentWindow is how far back a completed result counts as an in-flight duplicate.
const RecentWindow = 5 * time.Second

var (
	ErrAlreadySubmitted  = errors.New("Survey already submitted")
	ErrDuplicateInFlight = errors.New("Duplicate submission detected")
)

// DuplicateError carries the id of the result that survives for the session.
// It matches ErrAlreadySubmitted or ErrDuplicateInFlight with errors.Is.
type DuplicateError struct {
	Reason     error
	SurvivorID uuid.UUID
}

func (e *DuplicateError) Error() string {
	return e.Reason.Error()
}

func (e *DuplicateError) Unwrap() error {
	return e.Reason
}

// Reconciler wraps result writes with duplicate detection. It holds no
// locks: duplicates that slip past the pre-checks are removed after insert.
type Reconciler struct {
	results database.ResultStore
	logger  *zap.Logger
	now     func() time.Time
	tracer  trace.Tracer
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock replaces time.Now. The clock also stamps created_at.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// WithTracerProvider traces Submit with tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Reconciler) {
		r.tracer = tp.Tracer(instrumentationName)
	}
}

// NewReconciler creates a Reconciler over results.
func NewReconciler(results database.ResultStore, logger *zap.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		results: results,
		logger:  logger,
		now:     time.Now,
		tracer:  otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit stores result as the session's completed submission together with logs.
// It returns the stored result, or a *DuplicateError when the session already
// has a completed result or this write lost a concurrent race.
func (r *Reconciler) Submit(ctx context.Context, result *models.TestResult, logs []*models.UserLog) (*models.TestResult, error) {
	ctx, span := r.tracer.Start(ctx, "submission.Submit",
		trace.WithAttributes(attribute.Int("survey.log_rows", len(logs))))
	defer span.End()

	saved, err := r.submit(ctx, result, logs)
	var dup *DuplicateError
	switch {
	case errors.As(err, &dup):
		span.SetAttributes(attribute.String("survey.outcome", "duplicate"))
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
	default:
		span.SetAttributes(attribute.String("survey.outcome", "stored"))
	}
	return saved, err
}

func (r *Reconciler) submit(ctx context.Context, result *models.TestResult, logs []*models.UserLog) (*models.TestResult, error) {
	now := r.now().UTC()

	recentID, err := r.results.RecentCompletedID(ctx, result.SessionID, now.Add(-RecentWindow))
	if err != nil {
		return nil, fmt.Errorf("check recent submission: %w", err)
	}
	if recentID != uuid.Nil {
		return nil, &DuplicateError{Reason: ErrDuplicateInFlight, SurvivorID: recentID}
	}

	existing, err := r.results.CompletedBySession(ctx, result.SessionID)
	if err != nil {
		return nil, fmt.Errorf("check existing submission: %w", err)
	}
	if len(existing) > 0 {
		return nil, &DuplicateError{Reason: ErrAlreadySubmitted, SurvivorID: existing[0].ID}
	}

	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}
	result.CreatedAt = now
	result.CompletedAt = &now
	if err := r.results.CreateWithLogs(ctx, result, logs); err != nil {
		return nil, fmt.Errorf("store submission: %w", err)
	}

	survivor, removed, err := r.sweep(ctx, result.SessionID)
	if err != nil {
		// The insert succeeded; a later sweep or the reconcile command cleans up.
		r.logger.Warn("submission_sweep_failed",
			zap.String("session_id", result.SessionID),
			zap.Error(err))
		return result, nil
	}
	if removed > 0 {
		r.logger.Info("duplicate_submissions_pruned",
			zap.String("session_id", result.SessionID),
			zap.Int("removed", removed),
			zap.String("survivor_id", survivor.String()))
	}
	if survivor != uuid.Nil && survivor != result.ID {
		return nil, &DuplicateError{Reason: ErrAlreadySubmitted, SurvivorID: survivor}
	}
	return result, nil
}

// sweep deletes all but the newest completed result of the session.
func (r *Reconciler) sweep(ctx context.Context, sessionID string) (uuid.UUID, int, error) {
	completed, err := r.results.CompletedBySession(ctx, sessionID)
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("list completed results: %w", err)
	}
	if len(completed) == 0 {
		return uuid.Nil, 0, nil
	}
	sortNewestFirst(completed)
	if len(completed) == 1 {
		return completed[0].ID, 0, nil
	}

	losers := make([]uuid.UUID, 0, len(completed)-1)
	for _, c := range completed[1:] {
		losers = append(losers, c.ID)
	}
	n, err := r.results.DeleteResults(ctx, losers)
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("delete duplicate results: %w", err)
	}
	return completed[0].ID, int(n), nil
}

// sortNewestFirst applies created_at desc, id desc regardless of store ordering.
func sortNewestFirst(results []*models.TestResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return bytes.Compare(a.ID[:], b.ID[:]) > 0
	})
}

// AllowDropout reports whether a dropout may still be recorded for the session.
func (r *Reconciler) AllowDropout(ctx context.Context, sessionID string) (bool, error) {
	completed, err := r.results.CompletedBySession(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("check completed submission: %w", err)
	}
	return len(completed) == 0, nil
}

// Prune runs the duplicate sweep for one session and returns how many results it removed.
func (r *Reconciler) Prune(ctx context.Context, sessionID string) (int, error) {
	_, removed, err := r.sweep(ctx, sessionID)
	return removed, err
}

// PruneAll sweeps every session holding more than one completed result.
func (r *Reconciler) PruneAll(ctx context.Context) (sessions, removed int, err error) {
	ids, err := r.results.SessionsWithDuplicates(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("find duplicate sessions: %w", err)
	}
	for _, sid := range ids {
		n, err := r.Prune(ctx, sid)
		if err != nil {
			return sessions, removed, fmt.Errorf("prune session %s: %w", sid, err)
		}
		sessions++
		removed += n
	}
	return sessions, removed, nil
}
