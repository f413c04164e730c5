// Package redisstore keeps rate limit buckets in Redis so every instance behind a load
// balancer shares the same counts. Expiry is left to Redis.
package redisstore

import (
	"context"
	"time"

	"github.com/auroilion/roilion/ratelimit"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var _ ratelimit.Store = &Redis{}

// keyPrefix namespaces bucket keys in Redis
const keyPrefix = "roilion:rl:"

// incrScript increments the bucket and opens the window on the first hit. A key left
// without a TTL (for example after a failed PEXPIRE) is given one so it cannot live forever.
var incrScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

// Redis implements the bucket store on a redis client
type Redis struct {
	rdb *redis.Client
}

// New returns a store using rdb
func New(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

// GetRedisStore connects to the redis server at url (redis://...) and checks it is reachable
func GetRedisStore(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "Redis: failed to parse url")
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "Redis: failed to ping")
	}

	return New(rdb), nil
}

// Increment counts a hit for key. The window start is derived from the remaining TTL.
func (r *Redis) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (ratelimit.Bucket, error) {
	ms := window.Milliseconds()
	if ms < 1 {
		ms = 1
	}

	res, err := incrScript.Run(ctx, r.rdb, []string{keyPrefix + key}, ms).Int64Slice()
	if err != nil {
		return ratelimit.Bucket{}, errors.Wrap(err, "Redis: failed to increment bucket")
	}

	if len(res) != 2 {
		return ratelimit.Bucket{}, errors.Errorf("Redis: unexpected script reply %v", res)
	}

	remaining := time.Duration(res[1]) * time.Millisecond

	return ratelimit.Bucket{
		Key:         key,
		Count:       int(res[0]),
		WindowStart: now.Add(remaining - window),
	}, nil
}

// Close closes the underlying client
func (r *Redis) Close() error {
	return r.rdb.Close()
}
