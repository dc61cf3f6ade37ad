package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type failingStore struct{}

func (failingStore) Increment(string, time.Duration) (int, error) {
	return 0, errors.New("store unavailable")
}

func TestLimiter_AllowsUpToLimit(t *testing.T) {
	limiter := New(NewMemoryStore(), map[string]Rule{
		ClassDefault: {Requests: 3, Window: time.Minute},
	})

	for i := 0; i < 3; i++ {
		d := limiter.Check("ip:10.0.0.1", ClassDefault)
		assert.True(t, d.Allowed, "request %d should be allowed", i+1)
	}

	d := limiter.Check("ip:10.0.0.1", ClassDefault)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 3, d.Limit)
}

func TestLimiter_WindowSlides(t *testing.T) {
	now := time.Now()
	store := NewMemoryStoreAt(func() time.Time { return now })
	limiter := New(store, map[string]Rule{
		ClassDefault: {Requests: 2, Window: time.Minute},
	})

	assert.True(t, limiter.Check("ip:10.0.0.1", ClassDefault).Allowed)
	assert.True(t, limiter.Check("ip:10.0.0.1", ClassDefault).Allowed)
	assert.False(t, limiter.Check("ip:10.0.0.1", ClassDefault).Allowed)

	// Once the earlier hits fall out of the window the key is usable again.
	now = now.Add(61 * time.Second)
	assert.True(t, limiter.Check("ip:10.0.0.1", ClassDefault).Allowed)
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	limiter := New(NewMemoryStore(), map[string]Rule{
		ClassDefault: {Requests: 1, Window: time.Minute},
	})

	assert.True(t, limiter.Check("ip:10.0.0.1", ClassDefault).Allowed)
	assert.False(t, limiter.Check("ip:10.0.0.1", ClassDefault).Allowed)
	assert.True(t, limiter.Check("ip:10.0.0.2", ClassDefault).Allowed)
	assert.True(t, limiter.Check("user:42", ClassDefault).Allowed)
}

func TestLimiter_UnknownClassFallsBackToDefault(t *testing.T) {
	limiter := New(NewMemoryStore(), map[string]Rule{
		ClassDefault: {Requests: 1, Window: time.Minute},
	})

	assert.True(t, limiter.Check("ip:10.0.0.1", "no-such-class").Allowed)
	assert.False(t, limiter.Check("ip:10.0.0.1", "no-such-class").Allowed)
}

func TestLimiter_FailsOpenOnStoreError(t *testing.T) {
	limiter := New(failingStore{}, map[string]Rule{
		ClassDefault: {Requests: 1, Window: time.Minute},
	})

	// Every request passes while the store is down.
	for i := 0; i < 5; i++ {
		d := limiter.Check("ip:10.0.0.1", ClassDefault)
		assert.True(t, d.Allowed)
	}
}

func TestLimiter_CheckRuleUsesExplicitRule(t *testing.T) {
	limiter := New(NewMemoryStore(), DefaultRules())
	rule := Rule{Requests: 2, Window: time.Minute}

	assert.True(t, limiter.CheckRule("user:7:/api/v1/reports/generate", rule).Allowed)
	assert.True(t, limiter.CheckRule("user:7:/api/v1/reports/generate", rule).Allowed)

	d := limiter.CheckRule("user:7:/api/v1/reports/generate", rule)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.RetryAfter)
}

func TestLimiter_ZeroRuleAlwaysAllows(t *testing.T) {
	limiter := New(NewMemoryStore(), DefaultRules())

	for i := 0; i < 10; i++ {
		assert.True(t, limiter.CheckRule("anything", Rule{}).Allowed)
	}
}

func TestMemoryStore_EvictsIdleBuckets(t *testing.T) {
	now := time.Now()
	store := NewMemoryStoreAt(func() time.Time { return now })

	_, err := store.Increment("a", time.Minute)
	assert.NoError(t, err)
	_, err = store.Increment("b", time.Minute)
	assert.NoError(t, err)
	assert.Equal(t, 2, store.Len())

	// After the idle interval a new hit triggers the sweep and drops the
	// stale buckets, keeping only the key just touched.
	now = now.Add(idleEviction + time.Minute)
	_, err = store.Increment("c", time.Minute)
	assert.NoError(t, err)
	assert.Equal(t, 1, store.Len())
}
