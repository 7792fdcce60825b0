package middlewares

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/geocoder89/dinutri/internal/actorctx"
	"github.com/geocoder89/dinutri/internal/auth"
	"github.com/geocoder89/dinutri/internal/service"
	"github.com/gin-gonic/gin"
)

// Keep this small interface so tests can fake it easily.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Actor, error)
}

type AuthMiddleware struct {
	authn Authenticator
}

func NewAuthMiddleware(authn Authenticator) *AuthMiddleware {
	return &AuthMiddleware{authn: authn}
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		scheme, raw, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
			return
		}

		raw = strings.TrimSpace(raw)
		if raw == "" {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "Missing or invalid access token")
			return
		}

		actor, err := m.authn.Authenticate(c.Request.Context(), raw)
		if err != nil {
			if errors.Is(err, service.ErrUnauthorized) {
				abortWithError(c, http.StatusUnauthorized, "unauthorized", service.Message(err, "Invalid or expired access token"))
				return
			}
			slog.ErrorContext(c.Request.Context(), "auth.authenticate_failed", "err", err)
			abortWithError(c, http.StatusInternalServerError, "internal_error", "Could not verify access token")
			return
		}

		// handlers read it from gin, services and logs from the request context
		c.Set(CtxActor, actor)
		c.Request = c.Request.WithContext(actorctx.WithActor(c.Request.Context(), actor))

		c.Next()
	}
}

// ActorFromContext spares handlers the magic key.
func ActorFromContext(c *gin.Context) (auth.Actor, bool) {
	v, ok := c.Get(CtxActor)
	if !ok {
		return auth.Actor{}, false
	}
	actor, ok := v.(auth.Actor)
	return actor, ok && actor.ID != ""
}
