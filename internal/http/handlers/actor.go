package handlers

import (
	"github.com/geocoder89/dinutri/internal/auth"
	"github.com/geocoder89/dinutri/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

// requireActor writes a 401 when the auth middleware did not run.
func requireActor(ctx *gin.Context) (auth.Actor, bool) {
	actor, ok := middlewares.ActorFromContext(ctx)
	if !ok {
		RespondError(ctx, 401, "unauthorized", "Authentication required", nil)
		return auth.Actor{}, false
	}
	return actor, true
}
