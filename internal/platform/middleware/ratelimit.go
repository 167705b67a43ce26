package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	platformredis "trailguard/internal/platform/redis"
	"trailguard/pkg/requestcontext"
)

// RateLimiter is a fixed-window per-IP limiter backed by Redis. It fails
// open: when Redis is unreachable or not configured, requests pass. Losing
// telemetry submissions to a rate-limiter outage would be worse than briefly
// losing the limiter.
type RateLimiter struct {
	client *platformredis.Client
	logger *slog.Logger
	window time.Duration
	limit  int
}

func NewRateLimiter(client *platformredis.Client, logger *slog.Logger, window time.Duration, limit int) *RateLimiter {
	return &RateLimiter{client: client, logger: logger, window: window, limit: limit}
}

// Limit is the middleware. The counter key is the client IP plus the current
// window index; INCR plus EXPIRE on first hit gives a fixed window without a
// Lua script.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.client == nil || rl.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		ip := requestcontext.ClientIP(ctx)
		windowIndex := time.Now().Unix() / int64(rl.window.Seconds())
		key := fmt.Sprintf("ratelimit:%s:%d", ip, windowIndex)

		count, err := rl.client.Incr(ctx, key).Result()
		if err != nil {
			rl.logger.WarnContext(ctx, "rate limit check failed, allowing request",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			next.ServeHTTP(w, r)
			return
		}
		if count == 1 {
			rl.client.Expire(ctx, key, rl.window)
		}

		remaining := rl.limit - int(count)
		if remaining < 0 {
			remaining = 0
		}
		reset := (windowIndex + 1) * int64(rl.window.Seconds())
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))

		if int(count) > rl.limit {
			retryAfter := reset - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded","error_description":"Too many requests from this IP address. Please try again later."}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}
