package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/dinutri/internal/config"
	"github.com/geocoder89/dinutri/internal/service"
	"github.com/gin-gonic/gin"
)

type LoginService interface {
	Login(ctx context.Context, identifier, secret string) (service.LoginResult, error)
}

type AuthHandler struct {
	svc LoginService
}

func NewAuthHandler(svc LoginService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// LoginRequest binds from a form post or a JSON body.
type LoginRequest struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if err := ctx.ShouldBind(&req); err != nil {
		RespondError(ctx, http.StatusBadRequest, "invalid_credentials", "Username and password are required", bindErrorDetails(err))
		return
	}

	// bcrypt dominates this; keep the lookup bounded
	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	res, err := h.svc.Login(cctx, req.Username, req.Password)
	if err != nil {
		RespondServiceError(ctx, err, "Could not log in")
		return
	}

	ctx.JSON(http.StatusOK, res)
}

func (h *AuthHandler) Me(ctx *gin.Context) {
	actor, ok := requireActor(ctx)
	if !ok {
		return
	}

	ctx.JSON(http.StatusOK, actor.Profile())
}
