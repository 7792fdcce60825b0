package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/geocoder89/dinutri/internal/auth"
	"github.com/geocoder89/dinutri/internal/domain/patient"
	"github.com/geocoder89/dinutri/internal/domain/user"
	"github.com/geocoder89/dinutri/internal/repo"
)

type PatientService struct {
	patients repo.PatientStore
	now      func() time.Time
	log      *slog.Logger
}

func NewPatientService(patients repo.PatientStore, log *slog.Logger) *PatientService {
	if log == nil {
		log = slog.Default()
	}
	return &PatientService{patients: patients, now: utcNow, log: log}
}

func (s *PatientService) WithClock(now func() time.Time) *PatientService {
	s.now = now
	return s
}

func (s *PatientService) Create(ctx context.Context, actor auth.Actor, req patient.CreatePatientRequest) (patient.Patient, error) {
	if err := RequireRole(actor, user.RoleNutritionist); err != nil {
		return patient.Patient{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || strings.TrimSpace(req.Email) == "" {
		return patient.Patient{}, fail(ErrBadRequest, "Name and email are required")
	}

	p := patient.NewFromCreateRequest(actor.ID, req, s.now())

	if err := s.patients.CreatePatient(ctx, p); err != nil {
		return patient.Patient{}, fmt.Errorf("create patient: %w", err)
	}

	s.log.InfoContext(ctx, "patient.created", "patient_id", p.ID)
	return p, nil
}

func (s *PatientService) List(ctx context.Context, actor auth.Actor) ([]patient.Patient, error) {
	if err := RequireRole(actor, user.RoleNutritionist); err != nil {
		return nil, err
	}

	items, err := s.patients.ListPatientsByOwner(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return items, nil
}

// Get is open to the owning nutritionist and to the patient user linked to
// the record.
func (s *PatientService) Get(ctx context.Context, actor auth.Actor, id string) (patient.Patient, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return patient.Patient{}, err
	}

	if !canViewPatient(actor, p) {
		return patient.Patient{}, fail(ErrForbidden, "Not allowed to view this patient")
	}
	return p, nil
}

func (s *PatientService) Update(ctx context.Context, actor auth.Actor, id string, req patient.UpdatePatientRequest) (patient.Patient, error) {
	if err := RequireRole(actor, user.RoleNutritionist); err != nil {
		return patient.Patient{}, err
	}

	current, err := s.load(ctx, id)
	if err != nil {
		return patient.Patient{}, err
	}

	if current.OwnerID != actor.ID {
		return patient.Patient{}, fail(ErrForbidden, "Not allowed to edit this patient")
	}

	next := current.Apply(req, s.now())

	if err := s.patients.UpdatePatient(ctx, next); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return patient.Patient{}, fail(ErrNotFound, "Patient not found")
		}
		return patient.Patient{}, fmt.Errorf("update patient: %w", err)
	}
	return next, nil
}

func (s *PatientService) load(ctx context.Context, id string) (patient.Patient, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return patient.Patient{}, fail(ErrNotFound, "Patient not found")
	}

	p, err := s.patients.GetPatientByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return patient.Patient{}, fail(ErrNotFound, "Patient not found")
		}
		return patient.Patient{}, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func canViewPatient(actor auth.Actor, p patient.Patient) bool {
	switch actor.Role {
	case user.RoleNutritionist:
		return p.OwnerID == actor.ID
	case user.RolePatient:
		return actor.PatientID != "" && actor.PatientID == p.ID
	default:
		return false
	}
}

func utcNow() time.Time { return time.Now().UTC() }
