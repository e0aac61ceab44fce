package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims expired attempts, then records the new one only
// when the window still has room. Running it as one script keeps concurrent
// callers from all reading the same count.
//
// KEYS[1] window key
// ARGV[1] cutoff score, ARGV[2] attempt score, ARGV[3] max,
// ARGV[4] member, ARGV[5] ttl in ms
var slidingWindowScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[3]) then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

// RedisLimiter is a sliding-window limiter on a sorted set per key, shared by
// every API instance pointed at the same Redis.
type RedisLimiter struct {
	client *redis.Client
	max    int
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisLimiter allows max attempts per window.
func NewRedisLimiter(client *redis.Client, max int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		max:    max,
		window: window,
		prefix: "ratelimit:intake:",
		now:    time.Now,
	}
}

// Allow implements Limiter. Rejected attempts are not recorded.
func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return false, err
	}

	now := r.now()
	allowed, err := slidingWindowScript.Run(ctx, r.client, []string{r.prefix + key},
		strconv.FormatInt(now.Add(-r.window).UnixMicro(), 10),
		strconv.FormatInt(now.UnixMicro(), 10),
		r.max,
		uuid.NewString(),
		r.window.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit window: %w", err)
	}
	return allowed == 1, nil
}
