package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"casedocs-backend/internal/documents"
	"casedocs-backend/internal/files"
	"casedocs-backend/internal/services/health"
	"casedocs-backend/internal/shared/config"
	"casedocs-backend/internal/shared/server/middleware"
	"casedocs-backend/internal/shared/server/respond"
	"casedocs-backend/internal/uploads"
)

// RouterDeps carries the constructed handlers the router mounts. Bootstrap
// builds them; the router only wires middleware and routes.
type RouterDeps struct {
	Config    config.Config
	Documents *documents.Handler
	Uploads   *uploads.Handler
	Files     *files.Handler // nil unless the local store backend is active
	Health    *health.Service
	Redis     *redis.Client // nil unless REDIS_ADDR is configured
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigins),
	)

	// Health, metrics and the signed file routes sit outside the identity
	// gate. Signed file URLs carry their own authorization.
	r.GET("/health", healthHandler(deps.Health))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if deps.Files != nil {
		deps.Files.RegisterRoutes(r)
	}

	api := r.Group("/api/v1")
	api.Use(middleware.Identity(middleware.IdentityConfig{
		JWTSecret:           []byte(deps.Config.JWTSecret),
		TrustGatewayHeaders: deps.Config.TrustGatewayHeaders,
	}))
	if deps.Redis != nil {
		api.Use(middleware.RedisRateLimit(middleware.RedisRateLimitConfig{
			Client:            deps.Redis,
			RequestsPerWindow: int(deps.Config.RateLimitRPS * 60),
			Window:            time.Minute,
		}))
	} else {
		api.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: deps.Config.RateLimitRPS,
			Burst:             deps.Config.RateLimitBurst,
		}))
	}

	registerMeRoutes(api)
	if deps.Documents != nil {
		deps.Documents.RegisterRoutes(api)
	}
	if deps.Uploads != nil {
		deps.Uploads.RegisterRoutes(api)
	}

	return r
}

func healthHandler(svc *health.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if svc == nil {
			respond.JSON(c, http.StatusOK, gin.H{"status": "ok"})
			return
		}
		ok, components := svc.Status(c.Request.Context())
		status := http.StatusOK
		overall := "ok"
		if !ok {
			status = http.StatusServiceUnavailable
			overall = "degraded"
		}
		respond.JSON(c, status, gin.H{"status": overall, "components": components})
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
