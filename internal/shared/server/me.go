package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"casedocs-backend/internal/shared/server/middleware"
	"casedocs-backend/internal/shared/server/respond"
)

// registerMeRoutes attaches the identity echo endpoint. Clients use it to
// confirm what the service resolved from their credentials.
func registerMeRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", meHandler)
}

func meHandler(c *gin.Context) {
	actor := middleware.ActorFromContext(c)
	if actor.UserID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing identity", nil)
		return
	}

	respond.JSON(c, http.StatusOK, gin.H{
		"userId":         actor.UserID,
		"organizationId": actor.OrganizationID,
		"role":           actor.Role,
	})
}
