package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"casedocs-backend/internal/shared/metrics"
	"casedocs-backend/internal/shared/server/respond"
)

// RateLimitConfig caps request rates per actor. Requests are keyed by the
// authenticated user when identity resolved, by client IP otherwise.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// RateLimit enforces a per-actor token bucket. Limiters live in process
// memory, so the cap applies per instance; RedisRateLimit covers deployments
// with more than one.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerSecond <= 0 || cfg.Burst <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)
	limiterFor := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[key]
		if !ok {
			l = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
			limiters[key] = l
		}
		return l
	}

	return func(c *gin.Context) {
		res := limiterFor(limiterKey(c)).Reserve()
		if !res.OK() {
			rejectRateLimited(c, "memory", 1)
			return
		}
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			rejectRateLimited(c, "memory", int(math.Ceil(delay.Seconds())))
			return
		}
		metrics.IncRateLimitAllowed("memory")
		c.Next()
	}
}

func limiterKey(c *gin.Context) string {
	if key := strings.TrimSpace(c.GetString(userIDKey)); key != "" {
		return key
	}
	return c.ClientIP()
}

func rejectRateLimited(c *gin.Context, limiter string, retryAfterSeconds int) {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	metrics.IncRateLimitRejected(limiter)
	c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
	respond.Error(c, http.StatusTooManyRequests, "rate_limited", "too many requests", gin.H{
		"retryAfterSeconds": retryAfterSeconds,
	})
}
