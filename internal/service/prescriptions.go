package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/geocoder89/dinutri/internal/auth"
	"github.com/geocoder89/dinutri/internal/cache"
	"github.com/geocoder89/dinutri/internal/domain/patient"
	"github.com/geocoder89/dinutri/internal/domain/prescription"
	"github.com/geocoder89/dinutri/internal/domain/user"
	"github.com/geocoder89/dinutri/internal/observability"
	"github.com/geocoder89/dinutri/internal/repo"
	"github.com/geocoder89/dinutri/internal/utils"
	"github.com/google/uuid"
)

// latestEntry caches misses too, so a patient with no published plan does
// not hit the store on every poll.
type latestEntry struct {
	p     prescription.Prescription
	found bool
}

type PrescriptionService struct {
	prescriptions repo.PrescriptionStore
	patients      repo.PatientStore
	latest        *cache.Cache[latestEntry]
	prom          *observability.Prom
	now           func() time.Time
	log           *slog.Logger
}

// NewPrescriptionService wires the lifecycle. latestTTL <= 0 disables the
// latest-published cache.
func NewPrescriptionService(prescriptions repo.PrescriptionStore, patients repo.PatientStore, latestTTL time.Duration, prom *observability.Prom, log *slog.Logger) *PrescriptionService {
	if log == nil {
		log = slog.Default()
	}

	s := &PrescriptionService{
		prescriptions: prescriptions,
		patients:      patients,
		prom:          prom,
		now:           utcNow,
		log:           log,
	}
	if latestTTL > 0 {
		s.latest = cache.New[latestEntry](latestTTL)
	}
	return s
}

func (s *PrescriptionService) WithClock(now func() time.Time) *PrescriptionService {
	s.now = now
	if s.latest != nil {
		s.latest.WithClock(now)
	}
	return s
}

func (s *PrescriptionService) Create(ctx context.Context, actor auth.Actor, req prescription.CreatePrescriptionRequest) (prescription.Prescription, error) {
	if err := RequireRole(actor, user.RoleNutritionist); err != nil {
		return prescription.Prescription{}, err
	}

	req.PatientID = strings.TrimSpace(req.PatientID)
	req.Title = strings.TrimSpace(req.Title)
	if req.PatientID == "" || req.Title == "" {
		return prescription.Prescription{}, fail(ErrBadRequest, "patientId and title are required")
	}
	if req.Status != "" && !req.Status.IsValid() {
		return prescription.Prescription{}, fail(ErrBadRequest, "status must be draft or published")
	}

	if _, err := s.ownedPatient(ctx, actor, req.PatientID); err != nil {
		return prescription.Prescription{}, err
	}

	p := prescription.NewFromCreateRequest(actor.ID, req, s.now())

	if err := s.prescriptions.CreatePrescription(ctx, p); err != nil {
		return prescription.Prescription{}, fmt.Errorf("create prescription: %w", err)
	}

	s.prom.CountPrescription("created")
	if p.IsPublished() {
		s.prom.CountPrescription("published")
		s.invalidateLatest(p.PatientID)
		s.log.InfoContext(ctx, "prescription.published", "prescription_id", p.ID, "patient_id", p.PatientID)
	}
	return p, nil
}

func (s *PrescriptionService) List(ctx context.Context, actor auth.Actor, patientID string) ([]prescription.Prescription, error) {
	if err := RequireRole(actor, user.RoleNutritionist); err != nil {
		return nil, err
	}

	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, fail(ErrBadRequest, "patientId is required")
	}

	if _, err := s.ownedPatient(ctx, actor, patientID); err != nil {
		return nil, err
	}

	items, err := s.prescriptions.ListPrescriptions(ctx, prescription.ListFilter{
		PatientID:      patientID,
		NutritionistID: actor.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}
	return items, nil
}

// Get lets the authoring nutritionist read any of their records. A patient
// only sees published records addressed to them.
func (s *PrescriptionService) Get(ctx context.Context, actor auth.Actor, id string) (prescription.Prescription, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return prescription.Prescription{}, err
	}

	if !canViewPrescription(actor, p) {
		return prescription.Prescription{}, fail(ErrForbidden, "Not allowed to view this prescription")
	}
	return p, nil
}

// Update edits a draft in place. A published record is never mutated: a
// change produces a new record pointing back at it through SupersedesID,
// and a request that changes nothing returns the record untouched.
// Update edits a draft in place. Edits to a published record become a new
// version. A draft that gets published while the edit is in flight is
// reloaded once and versioned instead.
func (s *PrescriptionService) Update(ctx context.Context, actor auth.Actor, id string, req prescription.UpdatePrescriptionRequest) (prescription.Prescription, error) {
	ctx, span := observability.StartSpan(ctx, "prescription.update")
	defer span.End()

	if req.Status != nil && !req.Status.IsValid() {
		return prescription.Prescription{}, fail(ErrBadRequest, "status must be draft or published")
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		return prescription.Prescription{}, fail(ErrBadRequest, "title cannot be empty")
	}

	for attempt := 0; ; attempt++ {
		current, err := s.loadOwned(ctx, actor, id)
		if err != nil {
			return prescription.Prescription{}, err
		}

		now := s.now()

		if current.IsPublished() {
			if !req.Changes(current) {
				return current, nil
			}
			return s.createVersion(ctx, current, req, now)
		}

		next, err := s.updateDraft(ctx, current, req, now)
		if errors.Is(err, repo.ErrStateChanged) {
			if attempt == 0 {
				s.log.InfoContext(ctx, "prescription.update_retry", "prescription_id", current.ID)
				continue
			}
			return prescription.Prescription{}, fail(ErrInvalidState, "Prescription changed while it was being edited")
		}
		return next, err
	}
}

func (s *PrescriptionService) updateDraft(ctx context.Context, current prescription.Prescription, req prescription.UpdatePrescriptionRequest, now time.Time) (prescription.Prescription, error) {
	next := current.Apply(req, now)
	if req.Status != nil {
		next.Status = *req.Status
	}

	next.PublishedAt = nil
	if next.IsPublished() {
		at := now
		next.PublishedAt = &at
	}

	if err := s.prescriptions.UpdatePrescription(ctx, next); err != nil {
		switch {
		case errors.Is(err, repo.ErrStateChanged):
			return prescription.Prescription{}, err
		case errors.Is(err, repo.ErrNotFound):
			return prescription.Prescription{}, fail(ErrNotFound, "Prescription not found")
		}
		return prescription.Prescription{}, fmt.Errorf("update prescription: %w", err)
	}

	s.prom.CountPrescription("updated")
	if next.IsPublished() {
		s.prom.CountPrescription("published")
		s.invalidateLatest(next.PatientID)
		s.log.InfoContext(ctx, "prescription.published", "prescription_id", next.ID, "patient_id", next.PatientID)
	}
	return next, nil
}

func (s *PrescriptionService) createVersion(ctx context.Context, base prescription.Prescription, req prescription.UpdatePrescriptionRequest, now time.Time) (prescription.Prescription, error) {
	next := base.Apply(req, now)
	next.ID = uuid.NewString()
	next.SupersedesID = base.ID
	next.CreatedAt = now
	next.Status = prescription.StatusPublished
	if req.Status != nil {
		next.Status = *req.Status
	}

	next.PublishedAt = nil
	if next.IsPublished() {
		at := now
		next.PublishedAt = &at
	}

	if err := s.prescriptions.CreatePrescription(ctx, next); err != nil {
		return prescription.Prescription{}, fmt.Errorf("create prescription version: %w", err)
	}

	s.prom.CountPrescription("versioned")
	if next.IsPublished() {
		s.prom.CountPrescription("published")
		s.invalidateLatest(next.PatientID)
	}

	s.log.InfoContext(ctx, "prescription.versioned",
		"prescription_id", next.ID,
		"supersedes_id", base.ID,
		"status", next.Status,
	)
	return next, nil
}

// Duplicate always yields a fresh draft, whatever the source status.
func (s *PrescriptionService) Duplicate(ctx context.Context, actor auth.Actor, id string) (prescription.Prescription, error) {
	source, err := s.loadOwned(ctx, actor, id)
	if err != nil {
		return prescription.Prescription{}, err
	}

	dup := source.Duplicate(s.now())

	if err := s.prescriptions.CreatePrescription(ctx, dup); err != nil {
		return prescription.Prescription{}, fmt.Errorf("duplicate prescription: %w", err)
	}

	s.prom.CountPrescription("duplicated")
	s.log.InfoContext(ctx, "prescription.duplicated", "prescription_id", dup.ID, "source_id", source.ID)
	return dup, nil
}

// LatestPublished returns nil, nil when the patient has no published plan.
func (s *PrescriptionService) LatestPublished(ctx context.Context, actor auth.Actor, patientID string) (*prescription.Prescription, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, fail(ErrNotFound, "Patient not found")
	}

	p, err := s.patients.GetPatientByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fail(ErrNotFound, "Patient not found")
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}

	if !canViewPatient(actor, p) {
		return nil, fail(ErrForbidden, "Not allowed to view this patient")
	}

	key := utils.LatestPublishedCacheKey(patientID)
	if s.latest != nil {
		if e, ok := s.latest.Get(key); ok {
			return e.result(), nil
		}
	}

	latest, err := s.prescriptions.LatestPublished(ctx, patientID)
	e := latestEntry{p: latest, found: err == nil}
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("latest prescription: %w", err)
	}

	if s.latest != nil {
		s.latest.Set(key, e)
	}
	return e.result(), nil
}

func (e latestEntry) result() *prescription.Prescription {
	if !e.found {
		return nil
	}
	out := e.p
	out.Meals = prescription.CloneMeals(e.p.Meals)
	return &out
}

func (s *PrescriptionService) invalidateLatest(patientID string) {
	if s.latest != nil {
		s.latest.Delete(utils.LatestPublishedCacheKey(patientID))
	}
}

func (s *PrescriptionService) load(ctx context.Context, id string) (prescription.Prescription, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return prescription.Prescription{}, fail(ErrNotFound, "Prescription not found")
	}

	p, err := s.prescriptions.GetPrescriptionByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return prescription.Prescription{}, fail(ErrNotFound, "Prescription not found")
		}
		return prescription.Prescription{}, fmt.Errorf("get prescription: %w", err)
	}
	return p, nil
}

func (s *PrescriptionService) loadOwned(ctx context.Context, actor auth.Actor, id string) (prescription.Prescription, error) {
	if err := RequireRole(actor, user.RoleNutritionist); err != nil {
		return prescription.Prescription{}, err
	}

	p, err := s.load(ctx, id)
	if err != nil {
		return prescription.Prescription{}, err
	}

	if p.NutritionistID != actor.ID {
		return prescription.Prescription{}, fail(ErrForbidden, "Not allowed to edit this prescription")
	}
	return p, nil
}

// ownedPatient hides other nutritionists' patients behind NotFound.
func (s *PrescriptionService) ownedPatient(ctx context.Context, actor auth.Actor, patientID string) (patient.Patient, error) {
	p, err := s.patients.GetPatientByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return patient.Patient{}, fail(ErrNotFound, "Patient not found")
		}
		return patient.Patient{}, fmt.Errorf("get patient: %w", err)
	}

	if p.OwnerID != actor.ID {
		return patient.Patient{}, fail(ErrNotFound, "Patient not found")
	}
	return p, nil
}

func canViewPrescription(actor auth.Actor, p prescription.Prescription) bool {
	switch actor.Role {
	case user.RoleNutritionist:
		return p.NutritionistID == actor.ID
	case user.RolePatient:
		return p.IsPublished() && actor.PatientID != "" && p.PatientID == actor.PatientID
	default:
		return false
	}
}
