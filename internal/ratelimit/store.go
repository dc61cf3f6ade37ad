package ratelimit

import (
	"sync"
	"time"
)

// Store counts requests per key inside a sliding window. Implementations must
// support concurrent increment-and-count without corrupting totals. The same
// limiter code targets the in-memory store (single process, tests) or a
// shared Redis store (multi-process production) without change.
type Store interface {
	// Increment records a hit for key and returns how many hits, including
	// this one, fall inside the trailing window.
	Increment(key string, window time.Duration) (int, error)
}

// MemoryStore is a process-local sliding-window counter. It is a best-effort
// cache, not a source of truth across processes.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
	now     func() time.Time

	lastSweep time.Time
}

// idleEviction drops buckets whose newest entry is older than this during the
// periodic sweep, bounding memory without a background goroutine.
const idleEviction = 10 * time.Minute

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// NewMemoryStoreAt creates a store with an injected clock for tests.
func NewMemoryStoreAt(now func() time.Time) *MemoryStore {
	s := NewMemoryStore()
	s.now = now
	return s
}

// Increment appends a timestamp for key, prunes entries that fell out of the
// window, and returns the in-window count. Pruning is lazy on access.
func (s *MemoryStore) Increment(key string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-window)

	bucket := s.buckets[key]
	kept := bucket[:0]
	for _, ts := range bucket {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	s.buckets[key] = kept

	s.maybeSweep(now)

	return len(kept), nil
}

// maybeSweep evicts idle buckets at most once per eviction interval. Caller
// holds the lock.
func (s *MemoryStore) maybeSweep(now time.Time) {
	if now.Sub(s.lastSweep) < idleEviction {
		return
	}
	s.lastSweep = now
	for key, bucket := range s.buckets {
		if len(bucket) == 0 || now.Sub(bucket[len(bucket)-1]) > idleEviction {
			delete(s.buckets, key)
		}
	}
}

// Len reports the number of live buckets, for tests.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}
