package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreWindow(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))
	ctx := context.Background()

	start := clock.Now()
	for i := 1; i <= 3; i++ {
		count, resetAt, err := s.Increment(ctx, "submit:1.2.3.4", time.Minute)
		if err != nil {
			t.Fatalf("Increment() error = %v", err)
		}
		if count != i {
			t.Errorf("Increment() count = %d, want %d", count, i)
		}
		if !resetAt.Equal(start.Add(time.Minute)) {
			t.Errorf("Increment() resetAt = %v, want %v", resetAt, start.Add(time.Minute))
		}
		clock.Advance(10 * time.Second)
	}

	// Exactly at the reset time a fresh window opens.
	clock.Advance(30 * time.Second)
	count, resetAt, _ := s.Increment(ctx, "submit:1.2.3.4", time.Minute)
	if count != 1 {
		t.Errorf("count after window reset = %d, want 1", count)
	}
	if !resetAt.Equal(clock.Now().Add(time.Minute)) {
		t.Errorf("resetAt after window reset = %v, want %v", resetAt, clock.Now().Add(time.Minute))
	}
}

func TestMemoryStoreKeysAreIndependent(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	_, _, _ = s.Increment(ctx, "submit:a", time.Minute)
	_, _, _ = s.Increment(ctx, "submit:a", time.Minute)
	count, _, _ := s.Increment(ctx, "submit:b", time.Minute)
	if count != 1 {
		t.Errorf("independent key count = %d, want 1", count)
	}
	count, _, _ = s.Increment(ctx, "email:a", time.Minute)
	if count != 1 {
		t.Errorf("same client on another endpoint count = %d, want 1", count)
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))
	ctx := context.Background()

	_, _, _ = s.Increment(ctx, "short", 10*time.Second)
	_, _, _ = s.Increment(ctx, "long", time.Minute)

	if removed := s.Sweep(); removed != 0 {
		t.Errorf("Sweep() before expiry removed %d, want 0", removed)
	}
	clock.Advance(10 * time.Second)
	if removed := s.Sweep(); removed != 1 {
		t.Errorf("Sweep() removed %d, want 1", removed)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestMemoryStoreConcurrentIncrements(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	const workers = 50
	const perWorker = 20
	var wg sync.WaitGroup
	seen := make([]bool, workers*perWorker+1)
	var mu sync.Mutex

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				count, _, err := s.Increment(ctx, "k", time.Hour)
				if err != nil {
					t.Errorf("Increment() error = %v", err)
					return
				}
				mu.Lock()
				seen[count] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Every count from 1 to N was handed out exactly once.
	for i := 1; i < len(seen); i++ {
		if !seen[i] {
			t.Fatalf("count %d was never observed; increments raced", i)
		}
	}
}

func TestMemoryStoreStartStop(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))
	_, _, _ = s.Increment(context.Background(), "k", time.Second)
	clock.Advance(time.Second)

	go s.Start(context.Background(), 5*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for s.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper did not remove the expired record")
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	// Stop is idempotent.
	s.Stop()
}

func TestMemoryStoreStartHonoursContext(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx, time.Hour)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}
}
