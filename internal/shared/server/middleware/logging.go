package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"casedocs-backend/internal/shared/metrics"
	"casedocs-backend/internal/shared/telemetry"
)

// Logging emits a structured log and a latency observation per request.
// It runs before the identity middleware but logs after the chain finishes,
// so the actor fields are present whenever identity resolution succeeded.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Request.Method, "OPTIONS") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		// The route pattern, not the raw path, keeps metric cardinality
		// bounded: /documents/:id instead of one series per document.
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveRequestDuration(c.Request.Method, route, status, latency.Seconds())

		telemetry.Info("request.complete", map[string]any{
			"request_id":      RequestIDFromContext(c),
			"method":          c.Request.Method,
			"path":            c.Request.URL.Path,
			"status":          status,
			"duration_ms":     float64(latency.Microseconds()) / 1000.0,
			"user_id":         c.GetString(userIDKey),
			"organization_id": c.GetString(organizationIDKey),
			"client_ip":       c.ClientIP(),
			"user_agent":      c.Request.UserAgent(),
		})
	}
}
