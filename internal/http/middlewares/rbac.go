package middlewares

import (
	"net/http"

	"github.com/geocoder89/dinutri/internal/domain/user"
	"github.com/gin-gonic/gin"
)

func (m *AuthMiddleware) RequireRole(required user.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c)

		if !ok {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "Missing identity context")
			return
		}
		if actor.Role != required {
			abortWithError(c, http.StatusForbidden, "forbidden", "This action requires the "+string(required)+" role")
			return
		}
		c.Next()
	}
}
