package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStore struct {
	m       sync.Mutex
	buckets map[string]Bucket
}

func newMapStore() *mapStore {
	return &mapStore{buckets: make(map[string]Bucket)}
}

func (s *mapStore) Increment(_ context.Context, key string, window time.Duration, now time.Time) (Bucket, error) {
	s.m.Lock()
	defer s.m.Unlock()

	b, ok := s.buckets[key]
	if !ok || b.Expired(window, now) {
		b = Bucket{Key: key, WindowStart: now}
	}
	b.Count++
	s.buckets[key] = b

	return b, nil
}

type failingStore struct{}

func (failingStore) Increment(context.Context, string, time.Duration, time.Time) (Bucket, error) {
	return Bucket{}, errors.New("connection refused")
}

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func TestLimiter_AllowsUpToLimit(t *testing.T) {
	l := New(newMapStore(), time.Minute)

	for i := 0; i < 5; i++ {
		assert.NoError(t, l.Check(context.Background(), "token-a", 5), "call %v", i+1)
	}

	err := l.Check(context.Background(), "token-a", 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimited))

	var le *LimitError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, 6, le.Count)
	assert.Equal(t, 5, le.Limit)
}

func TestLimiter_RejectedCallsStillCount(t *testing.T) {
	s := newMapStore()
	l := New(s, time.Minute)

	for i := 0; i < 8; i++ {
		_ = l.Check(context.Background(), "k", 2)
	}

	b := s.buckets[l.bucketKey("k")]
	assert.Equal(t, 8, b.Count)
}

func TestLimiter_WindowResets(t *testing.T) {
	c := &clock{t: time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)}
	l := New(newMapStore(), time.Minute).WithClock(c.now)

	assert.NoError(t, l.Check(context.Background(), "k", 1))
	assert.Error(t, l.Check(context.Background(), "k", 1))

	c.t = c.t.Add(59 * time.Second)
	err := l.Check(context.Background(), "k", 1)
	require.Error(t, err)

	var le *LimitError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, time.Second, le.RetryAfter(c.t))

	c.t = c.t.Add(time.Second)
	assert.NoError(t, l.Check(context.Background(), "k", 1))
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l := New(newMapStore(), time.Minute)

	assert.NoError(t, l.Check(context.Background(), "a", 1))
	assert.NoError(t, l.Check(context.Background(), "b", 1))
	assert.Error(t, l.Check(context.Background(), "a", 1))
}

func TestLimiter_WithPrefix(t *testing.T) {
	base := New(newMapStore(), time.Minute)
	contact := base.WithPrefix("contact")
	token := base.WithPrefix("token")

	assert.NoError(t, contact.Check(context.Background(), "1.2.3.4", 1))
	assert.NoError(t, token.Check(context.Background(), "1.2.3.4", 1))
	assert.Error(t, contact.Check(context.Background(), "1.2.3.4", 1))

	assert.NotEqual(t, contact.bucketKey("x"), token.bucketKey("x"))
	assert.NotContains(t, contact.bucketKey("1.2.3.4"), "1.2.3.4")
}

func TestLimiter_FailsOpen(t *testing.T) {
	l := New(failingStore{}, time.Minute)

	for i := 0; i < 10; i++ {
		assert.NoError(t, l.Check(context.Background(), "k", 1))
	}
}

func TestLimiter_ConcurrentCallsAllowExactlyLimit(t *testing.T) {
	l := New(newMapStore(), time.Minute)

	var wg sync.WaitGroup
	var m sync.Mutex
	allowed := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check(context.Background(), "k", 5) == nil {
				m.Lock()
				allowed++
				m.Unlock()
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 5, allowed)
}

func TestNew_DefaultWindow(t *testing.T) {
	assert.Equal(t, DefaultWindow, New(newMapStore(), 0).Window())
	assert.Equal(t, time.Second, New(newMapStore(), time.Second).Window())
}

func TestLimitError_RetryAfterNeverNegative(t *testing.T) {
	now := time.Now()
	e := &LimitError{Reset: now.Add(-time.Second)}
	assert.Equal(t, time.Duration(0), e.RetryAfter(now))
}
