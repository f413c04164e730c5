package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/auroilion/roilion/metrics"
	"github.com/auroilion/roilion/ratelimit"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

var _ ratelimit.Store = &InMemory{}

// DefaultSize is the number of keys tracked before the least recently used is evicted
const DefaultSize = 500

type entry struct {
	bucket    ratelimit.Bucket
	expiresAt time.Time
}

// InMemory implements a bounded in memory bucket store. An evicted key simply starts a
// fresh window on its next hit.
type InMemory struct {
	buckets *lru.Cache[string, entry]
	m       sync.Mutex
}

// GetInMemoryStore returns a new store tracking at most size keys
func GetInMemoryStore(size int) (*InMemory, error) {
	if size <= 0 {
		size = DefaultSize
	}

	c, err := lru.New[string, entry](size)
	if err != nil {
		return nil, errors.Wrap(err, "InMemory: failed to create lru")
	}

	return &InMemory{buckets: c}, nil
}

// Increment counts a hit for key
func (im *InMemory) Increment(_ context.Context, key string, window time.Duration, now time.Time) (ratelimit.Bucket, error) {
	im.m.Lock()
	defer im.m.Unlock()

	e, ok := im.buckets.Get(key)
	if !ok || e.bucket.Expired(window, now) {
		e = entry{
			bucket:    ratelimit.Bucket{Key: key, WindowStart: now},
			expiresAt: now.Add(window),
		}
	}

	e.bucket.Count++
	im.buckets.Add(key, e)

	return e.bucket, nil
}

// Len returns the number of keys currently tracked
func (im *InMemory) Len() int {
	return im.buckets.Len()
}

// DeleteExpired removes buckets whose window closed before now and returns how many went
func (im *InMemory) DeleteExpired(now time.Time) int {
	im.m.Lock()
	defer im.m.Unlock()

	count := 0
	for _, k := range im.buckets.Keys() {
		e, ok := im.buckets.Peek(k)
		if ok && !e.expiresAt.After(now) {
			im.buckets.Remove(k)
			count++
		}
	}

	metrics.ExpiredBuckets.Add(float64(count))
	return count
}
