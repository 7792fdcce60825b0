package handlers

import (
	"context"
	"net/http"

	"github.com/geocoder89/dinutri/internal/auth"
	"github.com/geocoder89/dinutri/internal/domain/invite"
	"github.com/geocoder89/dinutri/internal/domain/user"
	"github.com/gin-gonic/gin"
)

type InvitesService interface {
	Create(ctx context.Context, actor auth.Actor, req invite.CreateInviteRequest) (invite.Invite, error)
	List(ctx context.Context, actor auth.Actor) ([]invite.Invite, error)
	Resolve(ctx context.Context, token string) (invite.Invite, error)
	Accept(ctx context.Context, token string, req invite.AcceptInviteRequest) (user.Profile, error)
	Revoke(ctx context.Context, actor auth.Actor, id string) error
}

type InvitesHandler struct {
	svc InvitesService
}

func NewInvitesHandler(svc InvitesService) *InvitesHandler {
	return &InvitesHandler{svc: svc}
}

func (h *InvitesHandler) CreateInvite(ctx *gin.Context) {
	actor, ok := requireActor(ctx)
	if !ok {
		return
	}

	var req invite.CreateInviteRequest
	if !BindJSON(ctx, &req) {
		return
	}

	inv, err := h.svc.Create(ctx.Request.Context(), actor, req)
	if err != nil {
		RespondServiceError(ctx, err, "Could not create invite")
		return
	}

	ctx.JSON(http.StatusCreated, inv)
}

func (h *InvitesHandler) ListInvites(ctx *gin.Context) {
	actor, ok := requireActor(ctx)
	if !ok {
		return
	}

	items, err := h.svc.List(ctx.Request.Context(), actor)
	if err != nil {
		RespondServiceError(ctx, err, "Could not list invites")
		return
	}

	ctx.JSON(http.StatusOK, items)
}

// ResolveInvite is public: the token is the credential.
func (h *InvitesHandler) ResolveInvite(ctx *gin.Context) {
	inv, err := h.svc.Resolve(ctx.Request.Context(), ctx.Param("token"))
	if err != nil {
		RespondServiceError(ctx, err, "Could not resolve invite")
		return
	}

	ctx.JSON(http.StatusOK, inv)
}

func (h *InvitesHandler) AcceptInvite(ctx *gin.Context) {
	var req invite.AcceptInviteRequest
	if !BindJSON(ctx, &req) {
		return
	}

	profile, err := h.svc.Accept(ctx.Request.Context(), ctx.Param("token"), req)
	if err != nil {
		RespondServiceError(ctx, err, "Could not accept invite")
		return
	}

	ctx.JSON(http.StatusCreated, profile)
}

// RevokeInvite is mounted on /invites/:token/revoke; the segment carries the
// invite id there.
func (h *InvitesHandler) RevokeInvite(ctx *gin.Context) {
	actor, ok := requireActor(ctx)
	if !ok {
		return
	}

	if err := h.svc.Revoke(ctx.Request.Context(), actor, ctx.Param("token")); err != nil {
		RespondServiceError(ctx, err, "Could not revoke invite")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true})
}
