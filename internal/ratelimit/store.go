package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Store counts requests per key in fixed windows.
type Store interface {
	// Increment counts one request for key. When no window is open for key,
	// or the open one has reached its reset time, a new window of the given
	// length starts. It returns the count including this request and the
	// window's reset time.
	Increment(ctx context.Context, key string, window time.Duration) (count int, resetAt time.Time, err error)
}

type record struct {
	count   int
	resetAt time.Time
}

// MemoryStore is an in-process Store. Expired records are removed by Sweep,
// which Start runs on a ticker.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*record
	now     func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		records: make(map[string]*record),
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Increment implements Store. The read-modify-write of a key is serialized
// by the store mutex.
func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Time, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || !now.Before(rec.resetAt) {
		rec = &record{resetAt: now.Add(window)}
		s.records[key] = rec
	}
	rec.count++
	return rec.count, rec.resetAt, nil
}

// Sweep deletes every record whose window has ended and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, rec := range s.records {
		if !now.Before(rec.resetAt) {
			delete(s.records, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Start sweeps every interval until ctx is cancelled or Stop is called.
// It blocks, so run it in its own goroutine.
func (s *MemoryStore) Start(ctx context.Context, interval time.Duration) {
	defer close(s.done)
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Stop ends a running Start loop and waits for it to return.
// It must only be called after Start has been launched.
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}
