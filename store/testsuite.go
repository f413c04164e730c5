// Package store holds the bucket store backends used by the rate limiter and the
// conformance suite every backend is tested against.
package store

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/auroilion/roilion/ratelimit"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Clock drives time for a test run. Backends whose expiry is enforced by the server wrap
// it so Advance also moves the server clock.
type Clock interface {
	Now() time.Time
	Advance(d time.Duration)
}

// FakeClock is a manually advanced Clock
type FakeClock struct {
	m sync.Mutex
	t time.Time
}

// NewFakeClock returns a clock stopped at t
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{t: t}
}

// Now returns the current fake time
func (c *FakeClock) Now() time.Time {
	c.m.Lock()
	defer c.m.Unlock()
	return c.t
}

// Advance moves the clock forward by d
func (c *FakeClock) Advance(d time.Duration) {
	c.m.Lock()
	defer c.m.Unlock()
	c.t = c.t.Add(d)
}

// TestFunction is the signature for a testing function
type TestFunction = func(t *testing.T, s ratelimit.Store, c Clock)

// TestingFuncs contain the suite of funcs that a store implementation should be tested against
var TestingFuncs = []TestFunction{
	TestIncrementNewKey,
	TestIncrementSameWindow,
	TestIncrementWindowReset,
	TestIncrementKeyIsolation,
	TestIncrementConcurrent,
}

const testWindow = time.Minute

func newKey() string {
	return "test:" + uuid.Must(uuid.NewRandom()).String()
}

// TestIncrementNewKey verifies that the first hit opens a window with a count of one
func TestIncrementNewKey(t *testing.T, s ratelimit.Store, c Clock) {
	key := newKey()
	now := c.Now()

	b, err := s.Increment(context.Background(), key, testWindow, now)
	require.NoError(t, err, "%v - TestIncrementNewKey: failed to increment", reflect.TypeOf(s))

	assert.Equal(t, key, b.Key, "%v - TestIncrementNewKey: wrong key", reflect.TypeOf(s))
	assert.Equal(t, 1, b.Count, "%v - TestIncrementNewKey: wrong count", reflect.TypeOf(s))
	assert.WithinDuration(t, now, b.WindowStart, time.Second, "%v - TestIncrementNewKey: wrong window start", reflect.TypeOf(s))
}

// TestIncrementSameWindow verifies that hits inside a window accumulate without moving its start
func TestIncrementSameWindow(t *testing.T, s ratelimit.Store, c Clock) {
	key := newKey()

	first, err := s.Increment(context.Background(), key, testWindow, c.Now())
	require.NoError(t, err)

	var last ratelimit.Bucket
	for i := 0; i < 4; i++ {
		c.Advance(5 * time.Second)
		last, err = s.Increment(context.Background(), key, testWindow, c.Now())
		require.NoError(t, err, "%v - TestIncrementSameWindow: failed to increment", reflect.TypeOf(s))
	}

	assert.Equal(t, 5, last.Count, "%v - TestIncrementSameWindow: wrong count", reflect.TypeOf(s))
	assert.WithinDuration(t, first.WindowStart, last.WindowStart, time.Second, "%v - TestIncrementSameWindow: window moved", reflect.TypeOf(s))
}

// TestIncrementWindowReset verifies that a hit after the window has closed starts a new one
func TestIncrementWindowReset(t *testing.T, s ratelimit.Store, c Clock) {
	key := newKey()

	for i := 0; i < 3; i++ {
		_, err := s.Increment(context.Background(), key, testWindow, c.Now())
		require.NoError(t, err)
	}

	c.Advance(testWindow + time.Second)
	now := c.Now()

	b, err := s.Increment(context.Background(), key, testWindow, now)
	require.NoError(t, err, "%v - TestIncrementWindowReset: failed to increment", reflect.TypeOf(s))

	assert.Equal(t, 1, b.Count, "%v - TestIncrementWindowReset: count not reset", reflect.TypeOf(s))
	assert.WithinDuration(t, now, b.WindowStart, time.Second, "%v - TestIncrementWindowReset: window not restarted", reflect.TypeOf(s))
}

// TestIncrementKeyIsolation verifies that keys are counted separately
func TestIncrementKeyIsolation(t *testing.T, s ratelimit.Store, c Clock) {
	a, b := newKey(), newKey()

	for i := 0; i < 3; i++ {
		_, err := s.Increment(context.Background(), a, testWindow, c.Now())
		require.NoError(t, err)
	}

	got, err := s.Increment(context.Background(), b, testWindow, c.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, got.Count, "%v - TestIncrementKeyIsolation: keys share a bucket", reflect.TypeOf(s))
}

// TestIncrementConcurrent verifies that concurrent hits on one key are never lost
func TestIncrementConcurrent(t *testing.T, s ratelimit.Store, c Clock) {
	const n = 20

	key := newKey()
	now := c.Now()

	var wg sync.WaitGroup
	counts := make(chan int, n)
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := s.Increment(context.Background(), key, testWindow, now)
			if err != nil {
				errs <- err
				return
			}
			counts <- b.Count
		}()
	}

	wg.Wait()
	close(counts)
	close(errs)

	for err := range errs {
		t.Errorf("%v - TestIncrementConcurrent: failed to increment: %v", reflect.TypeOf(s), err)
	}

	seen := make(map[int]bool)
	for c := range counts {
		assert.False(t, seen[c], "%v - TestIncrementConcurrent: count %v returned twice", reflect.TypeOf(s), c)
		seen[c] = true
	}

	assert.Len(t, seen, n, "%v - TestIncrementConcurrent: lost increments", reflect.TypeOf(s))
}
