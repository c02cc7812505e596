package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter caps calls to the ads API per customer account with a Redis
// sliding window shared by every worker and process.
type RateLimiter struct {
	redisClient *redis.Client
	logger      *slog.Logger
	script      *redis.Script
	window      time.Duration
	seq         atomic.Uint64
}

// KEYS[1] window key; ARGV now_ms, window_ms, limit, member.
// Returns 1 and records the call when under the limit, 0 otherwise.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, member)
    redis.call('PEXPIRE', key, window + 1000)
    return 1
else
    return 0
end
`)

func NewRateLimiter(redisClient *redis.Client, window time.Duration, logger *slog.Logger) *RateLimiter {
	if window <= 0 {
		window = time.Second
	}
	return &RateLimiter{
		redisClient: redisClient,
		logger:      logger,
		script:      slidingWindowScript,
		window:      window,
	}
}

func rlKey(customerID string) string {
	return fmt.Sprintf("rl:ads:%s", customerID)
}

// Allow reports whether another ads API call for customerID fits in the
// window. A limit of zero or less disables limiting. Redis errors allow the
// call.
func (rl *RateLimiter) Allow(ctx context.Context, customerID string, limit int) bool {
	if limit <= 0 {
		return true
	}

	now := time.Now().UnixMilli()
	member := fmt.Sprintf("%d:%d", now, rl.seq.Add(1))

	result, err := rl.script.Run(ctx, rl.redisClient, []string{rlKey(customerID)},
		now, rl.window.Milliseconds(), limit, member,
	).Int64()
	if err != nil {
		rl.logger.Error("rate limiter script failed", "error", err, "customer_id", customerID)
		return true
	}

	if result == 0 {
		rl.logger.Debug("ads api rate limited",
			"customer_id", customerID,
			"limit", limit,
		)
		return false
	}

	return true
}
