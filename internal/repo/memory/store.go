package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/geocoder89/dinutri/internal/domain/invite"
	"github.com/geocoder89/dinutri/internal/domain/patient"
	"github.com/geocoder89/dinutri/internal/domain/prescription"
	"github.com/geocoder89/dinutri/internal/domain/user"
	"github.com/geocoder89/dinutri/internal/repo"
)

// Store keeps everything in process memory. Used in tests and as the
// degraded-mode fallback when no database is reachable.
type Store struct {
	mu sync.RWMutex

	users         map[string]user.User
	usersByEmail  map[string]string // email -> user id
	patients      map[string]patient.Patient
	prescriptions map[string]prescription.Prescription
	invites       map[string]invite.Invite
	invitesByTok  map[string]string // token -> invite id
}

func NewStore() *Store {
	return &Store{
		users:         make(map[string]user.User),
		usersByEmail:  make(map[string]string),
		patients:      make(map[string]patient.Patient),
		prescriptions: make(map[string]prescription.Prescription),
		invites:       make(map[string]invite.Invite),
		invitesByTok:  make(map[string]string),
	}
}

var (
	_ repo.Store          = (*Store)(nil)
	_ repo.InviteAcceptor = (*Store)(nil)
)

func (s *Store) Driver() string { return "memory" }

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close(ctx context.Context) error { return nil }

// users

func (s *Store) CreateUser(ctx context.Context, u user.User) error {
	email := user.NormalizeEmail(u.Email)
	u.Email = email

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.usersByEmail[email]; taken {
		return repo.ErrEmailTaken
	}
	s.users[u.ID] = u
	s.usersByEmail[email] = u.ID
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, repo.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[user.NormalizeEmail(email)]
	if !ok {
		return user.User{}, repo.ErrNotFound
	}
	return s.users[id], nil
}

// patients

func (s *Store) CreatePatient(ctx context.Context, p patient.Patient) error {
	s.mu.Lock()
	s.patients[p.ID] = p
	s.mu.Unlock()
	return nil
}

func (s *Store) GetPatientByID(ctx context.Context, id string) (patient.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.patients[id]
	if !ok {
		return patient.Patient{}, repo.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListPatientsByOwner(ctx context.Context, ownerID string) ([]patient.Patient, error) {
	s.mu.RLock()
	out := make([]patient.Patient, 0)
	for _, p := range s.patients {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdatePatient(ctx context.Context, p patient.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.patients[p.ID]
	if !ok {
		return repo.ErrNotFound
	}
	// ownership is immutable
	p.OwnerID = current.OwnerID
	p.CreatedAt = current.CreatedAt
	s.patients[p.ID] = p
	return nil
}

func (s *Store) DeletePatient(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.patients[id]; !ok {
		return repo.ErrNotFound
	}
	delete(s.patients, id)
	return nil
}

// prescriptions

func (s *Store) CreatePrescription(ctx context.Context, p prescription.Prescription) error {
	p.Meals = prescription.CloneMeals(p.Meals)

	s.mu.Lock()
	s.prescriptions[p.ID] = p
	s.mu.Unlock()
	return nil
}

func (s *Store) GetPrescriptionByID(ctx context.Context, id string) (prescription.Prescription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prescriptions[id]
	if !ok {
		return prescription.Prescription{}, repo.ErrNotFound
	}
	return clonePrescription(p), nil
}

func (s *Store) ListPrescriptions(ctx context.Context, filter prescription.ListFilter) ([]prescription.Prescription, error) {
	s.mu.RLock()
	out := make([]prescription.Prescription, 0)
	for _, p := range s.prescriptions {
		if filter.PatientID != "" && p.PatientID != filter.PatientID {
			continue
		}
		if filter.NutritionistID != "" && p.NutritionistID != filter.NutritionistID {
			continue
		}
		out = append(out, clonePrescription(p))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdatePrescription(ctx context.Context, p prescription.Prescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.prescriptions[p.ID]
	if !ok {
		return repo.ErrNotFound
	}
	if current.IsPublished() {
		return repo.ErrStateChanged
	}
	p.PatientID = current.PatientID
	p.NutritionistID = current.NutritionistID
	p.CreatedAt = current.CreatedAt
	p.SupersedesID = current.SupersedesID
	p.Meals = prescription.CloneMeals(p.Meals)
	s.prescriptions[p.ID] = p
	return nil
}

func (s *Store) LatestPublished(ctx context.Context, patientID string) (prescription.Prescription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		latest prescription.Prescription
		found  bool
	)
	for _, p := range s.prescriptions {
		if p.PatientID != patientID || !p.IsPublished() {
			continue
		}
		if !found || p.NewerThan(latest) {
			latest = p
			found = true
		}
	}
	if !found {
		return prescription.Prescription{}, repo.ErrNotFound
	}
	return clonePrescription(latest), nil
}

// invites

func (s *Store) CreateInvite(ctx context.Context, inv invite.Invite) error {
	s.mu.Lock()
	s.invites[inv.ID] = inv
	s.invitesByTok[inv.Token] = inv.ID
	s.mu.Unlock()
	return nil
}

func (s *Store) GetInviteByID(ctx context.Context, id string) (invite.Invite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invites[id]
	if !ok {
		return invite.Invite{}, repo.ErrNotFound
	}
	return inv, nil
}

func (s *Store) GetInviteByToken(ctx context.Context, token string) (invite.Invite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.invitesByTok[token]
	if !ok {
		return invite.Invite{}, repo.ErrNotFound
	}
	return s.invites[id], nil
}

func (s *Store) ListInvitesByNutritionist(ctx context.Context, nutritionistID string) ([]invite.Invite, error) {
	s.mu.RLock()
	out := make([]invite.Invite, 0)
	for _, inv := range s.invites {
		if inv.NutritionistID == nutritionistID {
			out = append(out, inv)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) TransitionInvite(ctx context.Context, id string, from, to invite.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invites[id]
	if !ok {
		return repo.ErrNotFound
	}
	if inv.Status != from {
		return repo.ErrStateChanged
	}
	inv.Status = to
	inv.UpdatedAt = at
	s.invites[id] = inv
	return nil
}

// AcceptInvite applies the three accept writes under one lock.
func (s *Store) AcceptInvite(ctx context.Context, inviteID string, p patient.Patient, u user.User, at time.Time) error {
	email := user.NormalizeEmail(u.Email)
	u.Email = email

	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invites[inviteID]
	if !ok {
		return repo.ErrNotFound
	}
	if inv.Status != invite.StatusActive {
		return repo.ErrStateChanged
	}
	if _, taken := s.usersByEmail[email]; taken {
		return repo.ErrEmailTaken
	}

	s.patients[p.ID] = p
	s.users[u.ID] = u
	s.usersByEmail[email] = u.ID

	inv.Status = invite.StatusUsed
	inv.UpdatedAt = at
	s.invites[inviteID] = inv
	return nil
}

func clonePrescription(p prescription.Prescription) prescription.Prescription {
	p.Meals = prescription.CloneMeals(p.Meals)
	if p.PublishedAt != nil {
		at := *p.PublishedAt
		p.PublishedAt = &at
	}
	return p
}
