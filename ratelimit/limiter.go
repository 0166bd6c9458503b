package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

const defaultSweepInterval = time.Minute

// ErrStoreUnavailable wraps backend failures (Redis down). The in-memory
// store never returns it.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Decision is the outcome of a single rate-limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds the wait up to whole seconds for a Retry-After
// header. It is at least 1 for a denied decision.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Store checks and records one request for key against a sliding window.
// Implementations must make the prune-count-append sequence atomic per key.
type Store interface {
	Check(ctx context.Context, key string, window time.Duration, max int) (Decision, error)
}

type bucket struct {
	mu     sync.Mutex
	stamps []time.Time
	window time.Duration // last window this key was checked with, for the sweep
	gone   bool          // set under mu when the sweep removes the bucket
}

// MemoryStore is the process-local Store. Buckets are created on first use
// and garbage-collected by a periodic sweep once empty.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	now  func() time.Time
	done chan struct{}
	once sync.Once
}

// NewMemoryStore starts a MemoryStore sweeping at the given interval
// (zero means one minute). Call Close to stop the sweeper.
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	s := &MemoryStore{
		buckets: make(map[string]*bucket),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go s.sweep(sweepInterval)
	return s
}

// Check never returns an error; the decision is a pure function of the
// clock and recorded state.
func (s *MemoryStore) Check(_ context.Context, key string, window time.Duration, max int) (Decision, error) {
	now := s.now()

	b := s.bucketFor(key)
	b.mu.Lock()
	for b.gone {
		// The sweep removed this bucket between the map lookup and the
		// lock; recording into it would be lost. Fetch a live one.
		b.mu.Unlock()
		b = s.bucketFor(key)
		b.mu.Lock()
	}
	defer b.mu.Unlock()

	b.window = window
	b.stamps = pruneBefore(b.stamps, now.Add(-window))

	if max > 0 && len(b.stamps) >= max {
		oldest := b.stamps[0]
		return Decision{
			Allowed:    false,
			RetryAfter: oldest.Add(window).Sub(now),
		}, nil
	}

	b.stamps = append(b.stamps, now)
	remaining := 0
	if max > 0 {
		remaining = max - len(b.stamps)
	}
	return Decision{Allowed: true, Remaining: remaining}, nil
}

// Close stops the background sweep. Idempotent.
func (s *MemoryStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *MemoryStore) bucketFor(key string) *bucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{}
		s.buckets[key] = b
	}
	return b
}

func (s *MemoryStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

// sweepOnce drops buckets with no timestamp left inside their own window,
// bounding memory to the set of recently active keys.
func (s *MemoryStore) sweepOnce() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, b := range s.buckets {
		b.mu.Lock()
		b.stamps = pruneBefore(b.stamps, now.Add(-b.window))
		if len(b.stamps) == 0 {
			b.gone = true
			delete(s.buckets, key)
		}
		b.mu.Unlock()
	}
}

func pruneBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[i:]...)
}
