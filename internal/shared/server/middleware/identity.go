package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"casedocs-backend/internal/authz"
	"casedocs-backend/internal/shared/auth"
	"casedocs-backend/internal/shared/server/respond"
)

const (
	actorKey          = "actor"
	userIDKey         = "userId"
	organizationIDKey = "organizationId"
)

// IdentityConfig controls how the middleware resolves the calling actor.
type IdentityConfig struct {
	// JWTSecret verifies bearer tokens. Empty means bearer auth is disabled
	// and every token is rejected.
	JWTSecret []byte
	// TrustGatewayHeaders accepts X-User-Id / X-Organization-Id / X-Role from
	// an upstream gateway when no bearer token is present. Only enable behind
	// a gateway that strips these headers from client traffic.
	TrustGatewayHeaders bool
}

// Identity resolves the authenticated actor and stores it in the context.
// Requests without a usable identity get 401; a resolved identity with a role
// the service does not recognise gets 403. Role is the only thing that ever
// produces 403: document-level denials surface as 404 further down.
func Identity(cfg IdentityConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		actor, ok := resolveActor(c, cfg)
		if !ok {
			return
		}

		if !authz.KnownRole(actor.Role) {
			respond.Error(c, http.StatusForbidden, "forbidden", "role is not recognized", nil)
			return
		}
		actor.Role = strings.ToLower(actor.Role)

		c.Set(actorKey, actor)
		c.Set(userIDKey, actor.UserID)
		c.Set(organizationIDKey, actor.OrganizationID)
		c.Next()
	}
}

func resolveActor(c *gin.Context, cfg IdentityConfig) (authz.Actor, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header != "" {
		if !strings.HasPrefix(header, "Bearer ") {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return authz.Actor{}, false
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
		if token == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return authz.Actor{}, false
		}

		claims, err := auth.Verify(cfg.JWTSecret, token)
		if err != nil {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return authz.Actor{}, false
		}

		actor := authz.Actor{
			UserID:         claims.Subject,
			OrganizationID: claims.Org,
			Role:           claims.Role,
		}
		if actor.UserID == "" || actor.OrganizationID == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "token is missing identity claims", nil)
			return authz.Actor{}, false
		}
		return actor, true
	}

	if cfg.TrustGatewayHeaders {
		actor := authz.Actor{
			UserID:         strings.TrimSpace(c.GetHeader("X-User-Id")),
			OrganizationID: strings.TrimSpace(c.GetHeader("X-Organization-Id")),
			Role:           strings.TrimSpace(c.GetHeader("X-Role")),
		}
		if actor.UserID != "" && actor.OrganizationID != "" {
			return actor, true
		}
	}

	respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing identity", nil)
	return authz.Actor{}, false
}

// ActorFromContext fetches the actor set by the identity middleware.
func ActorFromContext(c *gin.Context) authz.Actor {
	if c == nil {
		return authz.Actor{}
	}
	val, _ := c.Get(actorKey)
	if actor, ok := val.(authz.Actor); ok {
		return actor
	}
	return authz.Actor{}
}
