package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "rl:"

// checkLua runs the prune-count-append sequence as one atomic step, so
// concurrent checks against the same key cannot interleave between the
// count and the recording.
//
// KEYS[1] = sorted-set key
// ARGV[1] = cutoff score (unix nanoseconds; entries at or below are pruned)
// ARGV[2] = max entries inside the window (0 disables the cap)
// ARGV[3] = score for the new entry (unix nanoseconds)
// ARGV[4] = member for the new entry
// ARGV[5] = window in milliseconds, for the key TTL
//
// Returns {1, count} when recorded, {0, count, oldestScore} when denied.
var checkLua = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local max = tonumber(ARGV[2])
local count = redis.call('ZCARD', KEYS[1])
if max > 0 and count >= max then
  local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
  return {0, count, oldest[2]}
end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return {1, count + 1}
`)

// RedisStore is the shared-window Store for horizontally scaled
// deployments. Each key is a sorted set of request timestamps scored by
// unix nanoseconds; member uniqueness comes from a per-process sequence so
// two instances recording in the same nanosecond cannot collapse into one
// entry.
type RedisStore struct {
	redis redis.UniversalClient
	seq   atomic.Uint64
	now   func() time.Time
}

// NewRedisStore creates a RedisStore on the given client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{redis: client, now: time.Now}
}

func (s *RedisStore) key(key string) string {
	return redisKeyPrefix + key
}

// Check prunes, counts, and conditionally records in a single script
// evaluation per key.
func (s *RedisStore) Check(ctx context.Context, key string, window time.Duration, max int) (Decision, error) {
	now := s.now()
	cutoff := strconv.FormatInt(now.Add(-window).UnixNano(), 10)
	score := strconv.FormatInt(now.UnixNano(), 10)
	member := score + "-" + strconv.FormatUint(s.seq.Add(1), 10)

	res, err := checkLua.Run(ctx, s.redis, []string{s.key(key)},
		cutoff, max, score, member, window.Milliseconds()).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(res) < 2 {
		return Decision{}, fmt.Errorf("%w: malformed script reply", ErrStoreUnavailable)
	}

	allowed, _ := res[0].(int64)
	count, _ := res[1].(int64)

	if allowed == 0 {
		retry := window
		if len(res) > 2 {
			if raw, ok := res[2].(string); ok {
				if oldest, perr := strconv.ParseFloat(raw, 64); perr == nil {
					retry = time.Unix(0, int64(oldest)).Add(window).Sub(now)
				}
			}
		}
		return Decision{Allowed: false, RetryAfter: retry}, nil
	}

	remaining := 0
	if max > 0 {
		remaining = max - int(count)
	}
	return Decision{Allowed: true, Remaining: remaining}, nil
}
