package handlers

import (
	"context"
	"net/http"

	"github.com/geocoder89/dinutri/internal/auth"
	"github.com/geocoder89/dinutri/internal/domain/patient"
	"github.com/gin-gonic/gin"
)

type PatientsService interface {
	Create(ctx context.Context, actor auth.Actor, req patient.CreatePatientRequest) (patient.Patient, error)
	List(ctx context.Context, actor auth.Actor) ([]patient.Patient, error)
	Get(ctx context.Context, actor auth.Actor, id string) (patient.Patient, error)
	Update(ctx context.Context, actor auth.Actor, id string, req patient.UpdatePatientRequest) (patient.Patient, error)
}

type PatientsHandler struct {
	svc PatientsService
}

func NewPatientsHandler(svc PatientsService) *PatientsHandler {
	return &PatientsHandler{svc: svc}
}

func (h *PatientsHandler) CreatePatient(ctx *gin.Context) {
	actor, ok := requireActor(ctx)
	if !ok {
		return
	}

	var req patient.CreatePatientRequest
	if !BindJSON(ctx, &req) {
		return
	}

	p, err := h.svc.Create(ctx.Request.Context(), actor, req)
	if err != nil {
		RespondServiceError(ctx, err, "Could not create patient")
		return
	}

	ctx.JSON(http.StatusCreated, p)
}

func (h *PatientsHandler) ListPatients(ctx *gin.Context) {
	actor, ok := requireActor(ctx)
	if !ok {
		return
	}

	items, err := h.svc.List(ctx.Request.Context(), actor)
	if err != nil {
		RespondServiceError(ctx, err, "Could not list patients")
		return
	}

	ctx.JSON(http.StatusOK, items)
}

func (h *PatientsHandler) GetPatient(ctx *gin.Context) {
	actor, ok := requireActor(ctx)
	if !ok {
		return
	}

	p, err := h.svc.Get(ctx.Request.Context(), actor, ctx.Param("id"))
	if err != nil {
		RespondServiceError(ctx, err, "Could not fetch patient")
		return
	}

	ctx.JSON(http.StatusOK, p)
}

func (h *PatientsHandler) UpdatePatient(ctx *gin.Context) {
	actor, ok := requireActor(ctx)
	if !ok {
		return
	}

	var req patient.UpdatePatientRequest
	if !BindJSON(ctx, &req) {
		return
	}

	p, err := h.svc.Update(ctx.Request.Context(), actor, ctx.Param("id"), req)
	if err != nil {
		RespondServiceError(ctx, err, "Could not update patient")
		return
	}

	ctx.JSON(http.StatusOK, p)
}
