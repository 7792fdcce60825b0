package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/geocoder89/dinutri/internal/service"
	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	v, ok := ctx.Get("request_id")

	if ok {
		s, ok := v.(string)
		if ok && s != "" {
			return s
		}
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.JSON(status, gin.H{
		"error": APIError{
			Code:      code,
			Message:   message,
			RequestID: requestIDFrom(ctx),
			Details:   details,
		},
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}

// RespondServiceError maps a service error kind onto the HTTP envelope.
// Unknown errors are logged and surface as 500 with the fallback message.
func RespondServiceError(ctx *gin.Context, err error, fallback string) {
	msg := service.Message(err, fallback)

	switch {
	case errors.Is(err, service.ErrBadRequest):
		RespondError(ctx, http.StatusBadRequest, "invalid_request", msg, nil)
	case errors.Is(err, service.ErrInvalidCredentials):
		RespondError(ctx, http.StatusBadRequest, "invalid_credentials", msg, nil)
	case errors.Is(err, service.ErrUnauthorized):
		RespondError(ctx, http.StatusUnauthorized, "unauthorized", msg, nil)
	case errors.Is(err, service.ErrForbidden):
		RespondError(ctx, http.StatusForbidden, "forbidden", msg, nil)
	case errors.Is(err, service.ErrNotFound):
		RespondError(ctx, http.StatusNotFound, "not_found", msg, nil)
	case errors.Is(err, service.ErrConflict):
		RespondError(ctx, http.StatusBadRequest, "user_exists", msg, nil)
	case errors.Is(err, service.ErrExpired):
		RespondError(ctx, http.StatusBadRequest, "invite_expired", msg, nil)
	case errors.Is(err, service.ErrInvalidState):
		RespondError(ctx, http.StatusBadRequest, "invalid_state", msg, nil)
	default:
		slog.ErrorContext(ctx.Request.Context(), "request.failed",
			"route", ctx.FullPath(),
			"request_id", requestIDFrom(ctx),
			"err", err,
		)
		RespondInternal(ctx, fallback)
	}
}

func NoRoute(ctx *gin.Context) {
	RespondNotFound(ctx, "Route not found")
}

func NoMethod(ctx *gin.Context) {
	RespondError(ctx, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", nil)
}

// Recovered turns a handler panic into the usual 500 envelope.
func Recovered(log *slog.Logger) gin.RecoveryFunc {
	return func(ctx *gin.Context, recovered any) {
		log.ErrorContext(ctx.Request.Context(), "http.panic",
			"path", ctx.Request.URL.Path,
			"request_id", requestIDFrom(ctx),
			"panic", fmt.Sprint(recovered),
		)
		RespondInternal(ctx, "Internal server error")
		ctx.Abort()
	}
}
