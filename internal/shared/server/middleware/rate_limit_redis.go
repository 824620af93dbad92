package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"casedocs-backend/internal/shared/metrics"
	"casedocs-backend/internal/shared/telemetry"
)

// RedisRateLimitConfig caps request rates per actor across every instance
// sharing the same Redis.
type RedisRateLimitConfig struct {
	Client            *redis.Client
	RequestsPerWindow int
	Window            time.Duration
}

// RedisRateLimit enforces a fixed-window counter in Redis. When Redis is
// unreachable requests pass through instead of failing.
func RedisRateLimit(cfg RedisRateLimitConfig) gin.HandlerFunc {
	if cfg.Client == nil || cfg.RequestsPerWindow <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}

	return func(c *gin.Context) {
		bucket := fmt.Sprintf("ratelimit:%s:%d", limiterKey(c), time.Now().Unix()/int64(window.Seconds()))

		count, err := cfg.Client.Incr(c.Request.Context(), bucket).Result()
		if err != nil {
			telemetry.Warn("ratelimit.redis_unavailable", map[string]any{
				"err":        err.Error(),
				"request_id": RequestIDFromContext(c),
			})
			c.Next()
			return
		}
		if count == 1 {
			cfg.Client.Expire(c.Request.Context(), bucket, window)
		}
		if count > int64(cfg.RequestsPerWindow) {
			rejectRateLimited(c, "redis", int(window.Seconds()))
			return
		}
		metrics.IncRateLimitAllowed("redis")
		c.Next()
	}
}
