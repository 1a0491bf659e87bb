package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Key pattern: ratelimit:{user_id}:messages, expiring with the window.

type RateLimitConfig struct {
	MessageLimit  int
	MessageWindow time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MessageLimit:  60,
		MessageWindow: 60 * time.Second,
	}
}

type RateLimiter struct {
	client *goredis.Client
	config RateLimitConfig
}

type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
	Limit     int
}

func NewRateLimiter(client *goredis.Client, config RateLimitConfig) *RateLimiter {
	if config.MessageLimit <= 0 {
		config.MessageLimit = DefaultRateLimitConfig().MessageLimit
	}
	if config.MessageWindow <= 0 {
		config.MessageWindow = DefaultRateLimitConfig().MessageWindow
	}
	return &RateLimiter{client: client, config: config}
}

// Increment and check run in one script so concurrent sends from several
// connections of the same user cannot overshoot the limit.
var fixedWindowScript = goredis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	local current = tonumber(redis.call('GET', key) or '0')
	local ttl = redis.call('TTL', key)
	if ttl < 0 then
		ttl = window
	end

	if current < limit then
		current = redis.call('INCR', key)
		if current == 1 then
			redis.call('EXPIRE', key, window)
		end
		return {1, limit - current, ttl}
	end
	return {0, 0, ttl}
`)

func messageKey(userID uuid.UUID) string {
	return fmt.Sprintf("ratelimit:%s:messages", userID)
}

// AllowMessage consumes one message slot for the user if any remain.
func (r *RateLimiter) AllowMessage(ctx context.Context, userID uuid.UUID) (*RateLimitResult, error) {
	limit := r.config.MessageLimit
	window := int(r.config.MessageWindow.Seconds())

	result, err := fixedWindowScript.Run(ctx, r.client, []string{messageKey(userID)}, limit, window).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) < 3 {
		return nil, fmt.Errorf("unexpected rate limit result format")
	}
	allowed, _ := values[0].(int64)
	remaining, _ := values[1].(int64)
	ttl, _ := values[2].(int64)

	return &RateLimitResult{
		Allowed:   allowed == 1,
		Remaining: int(remaining),
		ResetIn:   time.Duration(ttl) * time.Second,
		Limit:     limit,
	}, nil
}
