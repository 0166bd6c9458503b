package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) (*MemoryStore, *time.Time) {
	t.Helper()
	s := NewMemoryStore(time.Hour) // sweep manually in tests
	t.Cleanup(s.Close)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func mustCheck(t *testing.T, s Store, key string, window time.Duration, max int) Decision {
	t.Helper()
	d, err := s.Check(context.Background(), key, window, max)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	return d
}

func TestWindowAllowsUpToMax(t *testing.T) {
	s, now := newTestStore(t)

	for i := 0; i < 3; i++ {
		*now = now.Add(100 * time.Millisecond)
		if d := mustCheck(t, s, "login:alice", time.Second, 3); !d.Allowed {
			t.Fatalf("request %d: expected allowed", i+1)
		}
	}

	d := mustCheck(t, s, "login:alice", time.Second, 3)
	if d.Allowed {
		t.Fatal("4th request inside the window: expected denied")
	}
	if d.RetryAfterSeconds() <= 0 {
		t.Fatalf("expected positive retry-after, got %d", d.RetryAfterSeconds())
	}
}

func TestWindowSlidesOpen(t *testing.T) {
	s, now := newTestStore(t)

	for i := 0; i < 3; i++ {
		mustCheck(t, s, "k", time.Second, 3)
	}
	if d := mustCheck(t, s, "k", time.Second, 3); d.Allowed {
		t.Fatal("expected denied while saturated")
	}

	*now = now.Add(1100 * time.Millisecond)
	if d := mustCheck(t, s, "k", time.Second, 3); !d.Allowed {
		t.Fatal("expected allowed after the window elapsed")
	}
}

func TestRetryAfterTracksOldestEntry(t *testing.T) {
	s, now := newTestStore(t)

	mustCheck(t, s, "k", 10*time.Second, 2)
	*now = now.Add(4 * time.Second)
	mustCheck(t, s, "k", 10*time.Second, 2)

	d := mustCheck(t, s, "k", 10*time.Second, 2)
	if d.Allowed {
		t.Fatal("expected denied")
	}
	// Oldest entry was 4s ago in a 10s window.
	if d.RetryAfter != 6*time.Second {
		t.Fatalf("expected 6s retry-after, got %v", d.RetryAfter)
	}
	if d.RetryAfterSeconds() != 6 {
		t.Fatalf("expected 6, got %d", d.RetryAfterSeconds())
	}
}

func TestKeysAreIndependent(t *testing.T) {
	s, _ := newTestStore(t)

	for i := 0; i < 3; i++ {
		mustCheck(t, s, "mfa:alice", time.Second, 3)
	}
	if d := mustCheck(t, s, "mfa:alice", time.Second, 3); d.Allowed {
		t.Fatal("expected alice denied")
	}
	if d := mustCheck(t, s, "mfa:bob", time.Second, 3); !d.Allowed {
		t.Fatal("expected bob allowed")
	}
}

func TestSweepRemovesDrainedBuckets(t *testing.T) {
	s, now := newTestStore(t)

	mustCheck(t, s, "a", time.Second, 5)
	mustCheck(t, s, "b", time.Hour, 5)

	*now = now.Add(2 * time.Second)
	s.sweepOnce()

	s.mu.Lock()
	_, hasA := s.buckets["a"]
	_, hasB := s.buckets["b"]
	s.mu.Unlock()

	if hasA {
		t.Fatal("expected drained bucket a to be swept")
	}
	if !hasB {
		t.Fatal("expected in-window bucket b to survive the sweep")
	}
}

func TestCheckConcurrentNeverExceedsMax(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	defer s.Close()

	const goroutines = 32
	const max = 10

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			d, err := s.Check(context.Background(), "burst", time.Minute, max)
			if err != nil {
				t.Errorf("Check failed: %v", err)
				return
			}
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != max {
		t.Fatalf("expected exactly %d allowed, got %d", max, allowed)
	}
}

func TestCheckRetriesSweptBucket(t *testing.T) {
	s, _ := newTestStore(t)

	// Stage the state sweepOnce leaves behind when it wins the race: the
	// bucket handed out by bucketFor is already marked gone and removed
	// from the map.
	stale := s.bucketFor("k")
	stale.mu.Lock()
	stale.gone = true
	stale.mu.Unlock()
	s.mu.Lock()
	delete(s.buckets, "k")
	s.mu.Unlock()

	if d := mustCheck(t, s, "k", time.Minute, 3); !d.Allowed {
		t.Fatal("expected allowed")
	}

	live := s.bucketFor("k")
	if live == stale {
		t.Fatal("check recorded into the swept bucket")
	}
	live.mu.Lock()
	got := len(live.stamps)
	live.mu.Unlock()
	if got != 1 {
		t.Fatalf("expected 1 recorded stamp, got %d", got)
	}
}

func TestCheckSurvivesConcurrentSweep(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	defer s.Close()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				s.sweepOnce()
			}
		}
	}()

	const goroutines = 64
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			d, err := s.Check(context.Background(), "churn", time.Hour, 0)
			if err != nil {
				t.Errorf("Check failed: %v", err)
				return
			}
			if !d.Allowed {
				t.Error("expected allowed with no cap")
			}
		}()
	}
	wg.Wait()
	close(stop)
	<-done

	b := s.bucketFor("churn")
	b.mu.Lock()
	got := len(b.stamps)
	b.mu.Unlock()
	if got != goroutines {
		t.Fatalf("expected all %d checks recorded, got %d", goroutines, got)
	}
}

func TestRetryAfterSecondsRoundsUp(t *testing.T) {
	d := Decision{Allowed: false, RetryAfter: 1200 * time.Millisecond}
	if got := d.RetryAfterSeconds(); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	d = Decision{Allowed: false, RetryAfter: 10 * time.Millisecond}
	if got := d.RetryAfterSeconds(); got != 1 {
		t.Fatalf("expected floor of 1, got %d", got)
	}
	if got := (Decision{Allowed: true}).RetryAfterSeconds(); got != 0 {
		t.Fatalf("expected 0 for allowed, got %d", got)
	}
}
