package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter keeps fixed-window request counters in Redis.
type RateLimiter struct {
	rdb *redis.Client
	log *slog.Logger
}

func NewRateLimiter(rdb *redis.Client, log *slog.Logger) *RateLimiter {
	return &RateLimiter{rdb: rdb, log: log}
}

// Limit allows limit requests per window for each caller under name. Callers
// are keyed by user id when authenticated, by client IP otherwise. When Redis
// is unreachable requests are let through.
func (rl *RateLimiter) Limit(name string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl == nil || rl.rdb == nil || limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			key := "ratelimit:" + name + ":" + callerKey(r)
			ctx := r.Context()

			count, err := rl.rdb.Incr(ctx, key).Result()
			if err != nil {
				rl.log.Warn("rate limiter unavailable, allowing request", "limit", name, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if count == 1 {
				if err := rl.rdb.Expire(ctx, key, window).Err(); err != nil {
					rl.log.Warn("rate limiter expire failed", "limit", name, "error", err)
				}
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			if count > int64(limit) {
				retry := window
				if ttl, err := rl.rdb.TTL(ctx, key).Result(); err == nil && ttl > 0 {
					retry = ttl
				}
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
				http.Error(w, "too many requests, please try again later", http.StatusTooManyRequests)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(int64(limit)-count, 10))
			next.ServeHTTP(w, r)
		})
	}
}

func callerKey(r *http.Request) string {
	if id, ok := UserIDFromContext(r.Context()); ok {
		return "user:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
