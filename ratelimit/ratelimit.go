// Package ratelimit implements a fixed window rate limiter over a pluggable bucket store.
//
// A window opens on the first request for a key and lasts for the configured duration.
// Every call increments the bucket before comparing against the limit, so a rejected call
// still consumes a slot in the current window. If the store is unavailable the limiter
// fails open: the request is allowed and the failure is logged.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/auroilion/roilion/metrics"
)

// ErrRateLimited is matched (via errors.Is) by every error Check returns for an exceeded limit
var ErrRateLimited = errors.New("ratelimit: too many requests")

// DefaultWindow is the window length used when none is configured
const DefaultWindow = 60 * time.Second

// Bucket is the state of a single key within its current window
type Bucket struct {
	Key         string
	Count       int
	WindowStart time.Time
}

// Expired reports whether the bucket's window has closed at now
func (b Bucket) Expired(window time.Duration, now time.Time) bool {
	return now.Sub(b.WindowStart) >= window
}

// Store persists buckets. Increment must be atomic per key: it either starts a new window
// with a count of one or adds one to the current window, and returns the bucket after the
// increment.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration, now time.Time) (Bucket, error)
}

// LimitError describes a rejected call
type LimitError struct {
	Count int
	Limit int
	Reset time.Time
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("ratelimit: %v requests in window, limit %v", e.Count, e.Limit)
}

// Is lets errors.Is(err, ErrRateLimited) match
func (e *LimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfter returns how long until the window closes, measured from now
func (e *LimitError) RetryAfter(now time.Time) time.Duration {
	d := e.Reset.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Limiter applies limits to keys using a Store
type Limiter struct {
	store  Store
	window time.Duration
	prefix string
	now    func() time.Time
}

// New returns a limiter. A non positive window falls back to DefaultWindow.
func New(store Store, window time.Duration) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}

	return &Limiter{
		store:  store,
		window: window,
		now:    time.Now,
	}
}

// WithPrefix returns a limiter sharing the same store whose keys live in their own namespace,
// so different endpoints can count the same identity separately.
func (l *Limiter) WithPrefix(prefix string) *Limiter {
	c := *l
	c.prefix = prefix
	return &c
}

// WithClock returns a copy of the limiter that reads time from now
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	c := *l
	c.now = now
	return &c
}

// Window returns the configured window length
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Check counts a call for key and returns a *LimitError once more than limit calls have
// been made in the current window.
func (l *Limiter) Check(ctx context.Context, key string, limit int) error {
	now := l.now()

	b, err := l.store.Increment(ctx, l.bucketKey(key), l.window, now)
	if err != nil {
		log.Printf("RateLimiter: store unavailable, allowing request: %v", err)
		metrics.RateLimitStoreErrors.Inc()
		return nil
	}

	if b.Count > limit {
		metrics.RateLimited.WithLabelValues(l.label()).Inc()
		return &LimitError{
			Count: b.Count,
			Limit: limit,
			Reset: b.WindowStart.Add(l.window),
		}
	}

	return nil
}

// bucketKey hashes the caller's identity so raw tokens never reach the store or the logs
func (l *Limiter) bucketKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return l.label() + ":" + hex.EncodeToString(h[:16])
}

func (l *Limiter) label() string {
	if l.prefix == "" {
		return "default"
	}
	return l.prefix
}
