package security

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

const defaultRequestsPerMinute = 30

// RateLimiter caps requests per client IP with a fixed one minute window
// kept in Redis, so several instances share the same budget.
type RateLimiter struct {
	redis  *redis.Client
	limit  int64
	window time.Duration
	logger *slog.Logger

	// clientKey identifies the caller. Defaults to the proxy-aware real IP.
	clientKey func(e *core.RequestEvent) string
}

func NewRateLimiter(redisClient *redis.Client, perMinute int64, logger *slog.Logger) *RateLimiter {
	if perMinute <= 0 {
		perMinute = defaultRequestsPerMinute
	}
	return &RateLimiter{
		redis:     redisClient,
		limit:     perMinute,
		window:    time.Minute,
		logger:    logger,
		clientKey: func(e *core.RequestEvent) string { return e.RealIP() },
	}
}

// Limit is route middleware for the public order endpoints. Redis errors
// let the request through.
func (r *RateLimiter) Limit(e *core.RequestEvent) error {
	if r.isSuspiciousUserAgent(e.Request.UserAgent()) {
		return e.JSON(http.StatusForbidden, map[string]string{"error": "Access denied"})
	}

	ctx := e.Request.Context()
	key := fmt.Sprintf("ratelimit:%s", r.clientKey(e))

	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		r.logger.Warn("rate limiter unavailable", "error", err)
		return e.Next()
	}
	if count == 1 {
		if err := r.redis.Expire(ctx, key, r.window).Err(); err != nil {
			r.logger.Warn("rate limiter expire failed", "key", key, "error", err)
		}
	}
	if count > r.limit {
		e.Response.Header().Set("Retry-After", fmt.Sprintf("%d", int(r.window.Seconds())))
		return e.JSON(http.StatusTooManyRequests, map[string]string{"error": "Too many requests"})
	}

	return e.Next()
}

func (r *RateLimiter) isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}
