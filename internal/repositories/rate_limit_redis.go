package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/alumnigate/internal/models"
	"github.com/redis/go-redis/v9"
)

// consumeScript mirrors the PostgreSQL upsert: reset an elapsed window,
// admit below max, otherwise report the live window unchanged.
// Returns {allowed, count, window_start_ms}.
var consumeScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

local data = redis.call('HMGET', KEYS[1], 'count', 'start')
local count = tonumber(data[1])
local start = tonumber(data[2])

if count == nil or start == nil or now - start >= window then
	redis.call('HSET', KEYS[1], 'count', 1, 'start', now)
	redis.call('PEXPIRE', KEYS[1], window)
	return {1, 1, now}
end

if count >= max then
	return {0, count, start}
end

count = redis.call('HINCRBY', KEYS[1], 'count', 1)
return {1, count, start}
`)

// RedisRateLimitStore keeps windows as Redis hashes that expire with the window
type RedisRateLimitStore struct {
	client redis.Scripter
	prefix string
}

func NewRedisRateLimitStore(client redis.Scripter) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client, prefix: "ratelimit:"}
}

func (s *RedisRateLimitStore) Consume(ctx context.Context, key string, now time.Time, window time.Duration, max int) (*models.RateLimitDecision, error) {
	res, err := consumeScript.Run(ctx, s.client,
		[]string{s.prefix + key},
		now.UnixMilli(), window.Milliseconds(), max,
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("consume rate limit window: %w", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("consume rate limit window: unexpected reply %v", res)
	}

	return &models.RateLimitDecision{
		Allowed: res[0] == 1,
		Window: models.RateLimitWindow{
			Key:          key,
			RequestCount: int(res[1]),
			WindowStart:  time.UnixMilli(res[2]).UTC(),
		},
	}, nil
}

// Purge is a no-op; keys expire on their own.
func (s *RedisRateLimitStore) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}
