package handlers

import (
	"context"
	"net/http"

	"github.com/geocoder89/dinutri/internal/auth"
	"github.com/geocoder89/dinutri/internal/domain/prescription"
	"github.com/gin-gonic/gin"
)

type PrescriptionsService interface {
	Create(ctx context.Context, actor auth.Actor, req prescription.CreatePrescriptionRequest) (prescription.Prescription, error)
	List(ctx context.Context, actor auth.Actor, patientID string) ([]prescription.Prescription, error)
	Get(ctx context.Context, actor auth.Actor, id string) (prescription.Prescription, error)
	Update(ctx context.Context, actor auth.Actor, id string, req prescription.UpdatePrescriptionRequest) (prescription.Prescription, error)
	Duplicate(ctx context.Context, actor auth.Actor, id string) (prescription.Prescription, error)
	LatestPublished(ctx context.Context, actor auth.Actor, patientID string) (*prescription.Prescription, error)
}

type PrescriptionsHandler struct {
	svc PrescriptionsService
}

func NewPrescriptionsHandler(svc PrescriptionsService) *PrescriptionsHandler {
	return &PrescriptionsHandler{svc: svc}
}

func (h *PrescriptionsHandler) CreatePrescription(ctx *gin.Context) {
	actor, ok := requireActor(ctx)
	if !ok {
		return
	}

	var req prescription.CreatePrescriptionRequest
	if !BindJSON(ctx, &req) {
		return
	}

	p, err := h.svc.Create(ctx.Request.Context(), actor, req)
	if err != nil {
		RespondServiceError(ctx, err, "Could not create prescription")
		return
	}

	ctx.JSON(http.StatusCreated, p)
}

// ListPrescriptions serves GET /prescriptions?patientId=.
func (h *PrescriptionsHandler) ListPrescriptions(ctx *gin.Context) {
	h.list(ctx, ctx.Query("patientId"))
}

// ListPatientPrescriptions serves GET /patients/:id/prescriptions.
func (h *PrescriptionsHandler) ListPatientPrescriptions(ctx *gin.Context) {
	h.list(ctx, ctx.Param("id"))
}

func (h *PrescriptionsHandler) list(ctx *gin.Context, patientID string) {
	actor, ok := requireActor(ctx)
	if !ok {
		return
	}

	items, err := h.svc.List(ctx.Request.Context(), actor, patientID)
	if err != nil {
		RespondServiceError(ctx, err, "Could not list prescriptions")
		return
	}

	ctx.JSON(http.StatusOK, items)
}

func (h *PrescriptionsHandler) GetPrescription(ctx *gin.Context) {
	actor, ok := requireActor(ctx)
	if !ok {
		return
	}

	p, err := h.svc.Get(ctx.Request.Context(), actor, ctx.Param("id"))
	if err != nil {
		RespondServiceError(ctx, err, "Could not fetch prescription")
		return
	}

	respondPrescription(ctx, p)
}

func (h *PrescriptionsHandler) UpdatePrescription(ctx *gin.Context) {
	actor, ok := requireActor(ctx)
	if !ok {
		return
	}

	var req prescription.UpdatePrescriptionRequest
	if !BindJSON(ctx, &req) {
		return
	}

	p, err := h.svc.Update(ctx.Request.Context(), actor, ctx.Param("id"), req)
	if err != nil {
		RespondServiceError(ctx, err, "Could not update prescription")
		return
	}

	ctx.JSON(http.StatusOK, p)
}

func (h *PrescriptionsHandler) DuplicatePrescription(ctx *gin.Context) {
	actor, ok := requireActor(ctx)
	if !ok {
		return
	}

	p, err := h.svc.Duplicate(ctx.Request.Context(), actor, ctx.Param("id"))
	if err != nil {
		RespondServiceError(ctx, err, "Could not duplicate prescription")
		return
	}

	ctx.JSON(http.StatusCreated, p)
}

// PublishPrescription is shorthand for an update to status=published, so the
// versioning rules of Update apply.
func (h *PrescriptionsHandler) PublishPrescription(ctx *gin.Context) {
	actor, ok := requireActor(ctx)
	if !ok {
		return
	}

	status := prescription.StatusPublished
	p, err := h.svc.Update(ctx.Request.Context(), actor, ctx.Param("id"), prescription.UpdatePrescriptionRequest{Status: &status})
	if err != nil {
		RespondServiceError(ctx, err, "Could not publish prescription")
		return
	}

	ctx.JSON(http.StatusOK, p)
}

// LatestPublished answers with the prescription or a JSON null.
func (h *PrescriptionsHandler) LatestPublished(ctx *gin.Context) {
	actor, ok := requireActor(ctx)
	if !ok {
		return
	}

	p, err := h.svc.LatestPublished(ctx.Request.Context(), actor, ctx.Param("id"))
	if err != nil {
		RespondServiceError(ctx, err, "Could not fetch latest prescription")
		return
	}

	respondLatest(ctx, p)
}
