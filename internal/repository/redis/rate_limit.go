package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dauth-service/internal/client"
	"dauth-service/internal/config"
	"dauth-service/internal/util"
)

const rateLimitPrefix = "rate_limit:"

// RateLimiter counts requests per caller in fixed windows. The counter key
// expires with the window, so idle callers cost nothing.
type RateLimiter struct {
	client   *client.RedisClient
	requests int
	window   time.Duration
}

func NewRateLimiter(client *client.RedisClient, cfg *config.Config) *RateLimiter {
	return &RateLimiter{
		client:   client,
		requests: cfg.RateLimit.Requests,
		window:   cfg.RateLimit.Window,
	}
}

// Allow reports whether the caller identified by key is within budget.
// Redis failures allow the request through; throttling is protection, not a
// correctness gate.
func (r *RateLimiter) Allow(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	windowStart := time.Now().Unix() / int64(r.window.Seconds())
	counterKey := fmt.Sprintf("%s%s:%d", rateLimitPrefix, key, windowStart)

	count, err := r.client.IncrWithExpire(ctx, counterKey, r.window)
	if err != nil {
		util.Warn("Rate limit check failed, allowing request",
			zap.String("key", key),
			zap.Error(err))
		return true
	}

	if count > int64(r.requests) {
		util.Debug("Rate limit exceeded",
			zap.String("key", key),
			zap.Int64("count", count))
		return false
	}
	return true
}
