package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benvon/smart-survey/internal/database/databasetest"
	"github.com/benvon/smart-survey/internal/models"
	"github.com/benvon/smart-survey/internal/queue"
	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"
)

// mockMessage records how a message was settled
type mockMessage struct {
	job     *queue.Job
	acked   bool
	nacked  bool
	requeue bool
}

func (m *mockMessage) Ack() error { m.acked = true; return nil }

func (m *mockMessage) Nack(requeue bool) error {
	m.nacked = true
	m.requeue = requeue
	return nil
}

func (m *mockMessage) GetJob() *queue.Job { return m.job }

// mockQueue captures enqueued jobs
type mockQueue struct {
	mu         sync.Mutex
	jobs       []*queue.Job
	enqueueErr error
}

func (q *mockQueue) Enqueue(_ context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *mockQueue) Consume(context.Context, int) (<-chan *queue.Message, <-chan error, error) {
	return nil, nil, errors.New("not implemented")
}

func (q *mockQueue) Close() error { return nil }

func (q *mockQueue) HealthCheck(context.Context) error { return nil }

type propagateFunc func(ctx context.Context, resultID uuid.UUID, sessionID, email string) error

func (f propagateFunc) Propagate(ctx context.Context, resultID uuid.UUID, sessionID, email string) error {
	return f(ctx, resultID, sessionID, email)
}

const testSession = "session_6f1c2a4e-8d3b-4c7a-9e21-0b5d7f3a1c88"

func seedSession(t *testing.T, mem *databasetest.Memory) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	result := &models.TestResult{
		ID:          uuid.New(),
		SessionID:   testSession,
		Answers:     []models.Answer{{QuestionID: 1, Answers: []int{0}}},
		CompletedAt: &now,
	}
	logs := []*models.UserLog{
		{SessionID: testSession, QuestionID: 1, Answer: "a", AnswerIndex: 0},
		{SessionID: testSession, QuestionID: 2, Answer: "b", AnswerIndex: 1},
	}
	if err := mem.Results().CreateWithLogs(ctx, result, logs); err != nil {
		t.Fatal(err)
	}
	if err := mem.ImageRatings().Create(ctx, &models.ImageRating{
		SessionID:     testSession,
		ImageFilename: "01_gyeongbokgung.jpg",
		Rating:        models.RatingGood,
	}); err != nil {
		t.Fatal(err)
	}
	prior := "old@example.com"
	if err := mem.ImageRatings().Create(ctx, &models.ImageRating{
		SessionID:     testSession,
		ImageFilename: "02_namsantower.jpg",
		Rating:        models.RatingSoso,
		Email:         &prior,
	}); err != nil {
		t.Fatal(err)
	}
	if err := mem.ImageDropouts().Create(ctx, &models.ImageDropout{SessionID: testSession}); err != nil {
		t.Fatal(err)
	}
	return result.ID
}

func TestEmailPropagator(t *testing.T) {
	t.Parallel()

	mem := databasetest.New()
	resultID := seedSession(t, mem)
	p := NewEmailPropagator(mem.Logs(), mem.ImageRatings(), mem.ImageDropouts(), zaptest.NewLogger(t))

	if err := p.Propagate(context.Background(), resultID, testSession, "new@example.com"); err != nil {
		t.Fatalf("Propagate() error = %v", err)
	}

	for _, l := range mem.AllLogs() {
		if l.Email == nil || *l.Email != "new@example.com" {
			t.Errorf("log %d email = %v", l.ID, l.Email)
		}
	}
	for _, r := range mem.AllImageRatings() {
		want := "new@example.com"
		if r.ImageFilename == "02_namsantower.jpg" {
			want = "old@example.com"
		}
		if r.Email == nil || *r.Email != want {
			t.Errorf("rating %s email = %v, want %s", r.ImageFilename, r.Email, want)
		}
	}
	for _, d := range mem.AllImageDropouts() {
		if d.Email == nil || *d.Email != "new@example.com" {
			t.Errorf("image dropout email = %v", d.Email)
		}
	}
}

func TestEmailPropagatorAttemptsEveryUpdate(t *testing.T) {
	t.Parallel()

	mem := databasetest.New()
	resultID := seedSession(t, mem)
	mem.Fail(databasetest.OpLogsSetEmail, errors.New("logs down"))
	p := NewEmailPropagator(mem.Logs(), mem.ImageRatings(), mem.ImageDropouts(), zaptest.NewLogger(t))

	err := p.Propagate(context.Background(), resultID, testSession, "new@example.com")
	if err == nil {
		t.Fatal("Propagate() should report the failed update")
	}
	for _, d := range mem.AllImageDropouts() {
		if d.Email == nil {
			t.Error("image dropouts should still be updated when logs fail")
		}
	}
}

func TestQueuedPropagator(t *testing.T) {
	t.Parallel()

	resultID := uuid.New()

	t.Run("enqueues", func(t *testing.T) {
		t.Parallel()
		q := &mockQueue{}
		p := NewQueuedPropagator(q, nil, zaptest.NewLogger(t))
		if err := p.Propagate(context.Background(), resultID, testSession, "a@example.com"); err != nil {
			t.Fatal(err)
		}
		if len(q.jobs) != 1 {
			t.Fatalf("enqueued %d jobs, want 1", len(q.jobs))
		}
		job := q.jobs[0]
		if job.Type != queue.JobTypePropagateEmail || job.ResultID != resultID || job.Email != "a@example.com" {
			t.Errorf("unexpected job %+v", job)
		}
	})

	t.Run("falls back inline", func(t *testing.T) {
		t.Parallel()
		q := &mockQueue{enqueueErr: errors.New("broker down")}
		called := false
		fallback := propagateFunc(func(context.Context, uuid.UUID, string, string) error {
			called = true
			return nil
		})
		p := NewQueuedPropagator(q, fallback, zaptest.NewLogger(t))
		if err := p.Propagate(context.Background(), resultID, testSession, "a@example.com"); err != nil {
			t.Fatal(err)
		}
		if !called {
			t.Error("fallback propagator was not called")
		}
	})

	t.Run("no fallback", func(t *testing.T) {
		t.Parallel()
		q := &mockQueue{enqueueErr: errors.New("broker down")}
		p := NewQueuedPropagator(q, nil, zaptest.NewLogger(t))
		if err := p.Propagate(context.Background(), resultID, testSession, "a@example.com"); err == nil {
			t.Error("expected enqueue error")
		}
	})
}

func TestProcessJob(t *testing.T) {
	t.Parallel()

	past := time.Now().Add(-time.Minute)
	tests := []struct {
		name        string
		job         func() *queue.Job
		propagate   error
		queueErr    error
		noQueue     bool
		wantErr     bool
		wantAck     bool
		wantNack    bool
		wantRequeue bool
		wantRetry   int // retry count of the re-enqueued job, 0 = none
	}{
		{
			name:    "success",
			job:     newJob,
			wantAck: true,
		},
		{
			name:      "failure is retried through the queue",
			job:       newJob,
			propagate: errors.New("db down"),
			wantErr:   true,
			wantAck:   true,
			wantRetry: 1,
		},
		{
			name: "last retry goes to dlq",
			job: func() *queue.Job {
				j := newJob()
				j.RetryCount = j.MaxRetries
				return j
			},
			propagate: errors.New("db down"),
			wantErr:   true,
			wantNack:  true,
		},
		{
			name:      "re-enqueue failure goes to dlq",
			job:       newJob,
			propagate: errors.New("db down"),
			queueErr:  errors.New("broker down"),
			wantErr:   true,
			wantNack:  true,
		},
		{
			name:      "no queue goes to dlq",
			job:       newJob,
			propagate: errors.New("db down"),
			noQueue:   true,
			wantErr:   true,
			wantNack:  true,
		},
		{
			name: "expired",
			job: func() *queue.Job {
				j := newJob()
				j.NotAfter = &past
				return j
			},
			wantErr:  true,
			wantNack: true,
		},
		{
			name: "invalid",
			job: func() *queue.Job {
				j := newJob()
				j.Email = ""
				return j
			},
			wantErr:  true,
			wantNack: true,
		},
		{
			name:     "empty message",
			job:      func() *queue.Job { return nil },
			wantErr:  true,
			wantNack: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			q := &mockQueue{enqueueErr: tt.queueErr}
			var jobQueue queue.JobQueue = q
			if tt.noQueue {
				jobQueue = nil
			}
			prop := propagateFunc(func(context.Context, uuid.UUID, string, string) error { return tt.propagate })
			p := NewJobProcessor(prop, jobQueue, zaptest.NewLogger(t))

			msg := &mockMessage{job: tt.job()}
			err := p.ProcessJob(context.Background(), msg)

			if (err != nil) != tt.wantErr {
				t.Fatalf("ProcessJob() error = %v, wantErr %v", err, tt.wantErr)
			}
			if msg.acked != tt.wantAck || msg.nacked != tt.wantNack || msg.requeue != tt.wantRequeue {
				t.Errorf("settled ack=%v nack=%v requeue=%v, want ack=%v nack=%v requeue=%v",
					msg.acked, msg.nacked, msg.requeue, tt.wantAck, tt.wantNack, tt.wantRequeue)
			}
			if tt.wantRetry == 0 {
				if len(q.jobs) != 0 {
					t.Errorf("re-enqueued %d jobs, want none", len(q.jobs))
				}
				return
			}
			if len(q.jobs) != 1 || q.jobs[0].RetryCount != tt.wantRetry {
				t.Fatalf("re-enqueued %v, want one job with retry count %d", q.jobs, tt.wantRetry)
			}
			if q.jobs[0].ID != msg.job.ID {
				t.Error("retried job should keep its id")
			}
		})
	}
}

func TestProcessJobExpiredError(t *testing.T) {
	t.Parallel()

	past := time.Now().Add(-time.Second)
	job := newJob()
	job.NotAfter = &past
	p := NewJobProcessor(propagateFunc(func(context.Context, uuid.UUID, string, string) error { return nil }), nil, zaptest.NewLogger(t))

	if err := p.ProcessJob(context.Background(), &mockMessage{job: job}); !errors.Is(err, ErrJobExpired) {
		t.Errorf("ProcessJob() = %v, want ErrJobExpired", err)
	}
}

type stubPruner struct {
	sessions, removed int
	err               error
	calls             int
}

func (s *stubPruner) PruneAll(context.Context) (int, int, error) {
	s.calls++
	return s.sessions, s.removed, s.err
}

func TestReconcileSchedulerRunOnce(t *testing.T) {
	t.Parallel()

	ok := &stubPruner{sessions: 2, removed: 3}
	if err := NewReconcileScheduler(ok, time.Hour, zaptest.NewLogger(t)).RunOnce(context.Background()); err != nil {
		t.Errorf("RunOnce() = %v", err)
	}

	failing := &stubPruner{err: errors.New("db down")}
	if err := NewReconcileScheduler(failing, time.Hour, zaptest.NewLogger(t)).RunOnce(context.Background()); err == nil {
		t.Error("RunOnce() should return the prune error")
	}
}

func TestReconcileSchedulerStart(t *testing.T) {
	t.Parallel()

	pruner := &stubPruner{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	NewReconcileScheduler(pruner, time.Hour, zaptest.NewLogger(t)).Start(ctx)
	if pruner.calls != 1 {
		t.Errorf("Start() ran %d sweeps before stopping, want 1", pruner.calls)
	}

	disabled := &stubPruner{}
	NewReconcileScheduler(disabled, 0, zaptest.NewLogger(t)).Start(context.Background())
	if disabled.calls != 0 {
		t.Error("a zero interval should disable the scheduler")
	}
}

func newJob() *queue.Job {
	return queue.NewPropagateEmailJob(uuid.New(), testSession, "a@example.com")
}
