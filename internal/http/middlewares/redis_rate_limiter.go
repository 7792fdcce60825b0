package middlewares

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// WindowCounter is satisfied by redisclient.Client.
type WindowCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RedisRateLimiter shares the fixed window across instances. When Redis
// errors the request is let through.
type RedisRateLimiter struct {
	counter WindowCounter
	limit   int
	window  time.Duration
	prefix  string
	log     *slog.Logger
}

func NewRedisRateLimiter(counter WindowCounter, limit int, window time.Duration, log *slog.Logger) *RedisRateLimiter {
	if log == nil {
		log = slog.Default()
	}
	return &RedisRateLimiter{
		counter: counter,
		limit:   limit,
		window:  window,
		prefix:  "dinutri:ratelimit:",
		log:     log,
	}
}

func (rl *RedisRateLimiter) RateLimiterMiddleware(keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)
		if key == "" {
			key = clientIP(c)
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 500*time.Millisecond)
		count, ttl, err := rl.counter.Hit(ctx, rl.prefix+key, rl.window)
		cancel()

		if err != nil {
			rl.log.WarnContext(c.Request.Context(), "ratelimit.redis_unavailable", "err", err)
			c.Next()
			return
		}

		if count > int64(rl.limit) {
			rejectRateLimited(c, rl.limit, ttl)
			return
		}

		setLimitHeaders(c, rl.limit, int(count))
		c.Next()
	}
}
