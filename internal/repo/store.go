package repo

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/dinutri/internal/domain/invite"
	"github.com/geocoder89/dinutri/internal/domain/patient"
	"github.com/geocoder89/dinutri/internal/domain/prescription"
	"github.com/geocoder89/dinutri/internal/domain/user"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrEmailTaken   = errors.New("email already in use")
	ErrStateChanged = errors.New("record state changed concurrently")
)

type UserStore interface {
	// CreateUser fails with ErrEmailTaken when the lowercased email exists.
	CreateUser(ctx context.Context, u user.User) error
	GetUserByID(ctx context.Context, id string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
}

type PatientStore interface {
	CreatePatient(ctx context.Context, p patient.Patient) error
	GetPatientByID(ctx context.Context, id string) (patient.Patient, error)
	ListPatientsByOwner(ctx context.Context, ownerID string) ([]patient.Patient, error)
	UpdatePatient(ctx context.Context, p patient.Patient) error
	DeletePatient(ctx context.Context, id string) error
}

type PrescriptionStore interface {
	CreatePrescription(ctx context.Context, p prescription.Prescription) error
	GetPrescriptionByID(ctx context.Context, id string) (prescription.Prescription, error)
	ListPrescriptions(ctx context.Context, filter prescription.ListFilter) ([]prescription.Prescription, error)
	// UpdatePrescription rewrites a draft in place. It returns ErrStateChanged
	// when the stored record is no longer a draft.
	UpdatePrescription(ctx context.Context, p prescription.Prescription) error
	// LatestPublished returns ErrNotFound when the patient has no published record.
	LatestPublished(ctx context.Context, patientID string) (prescription.Prescription, error)
}

type InviteStore interface {
	CreateInvite(ctx context.Context, inv invite.Invite) error
	GetInviteByID(ctx context.Context, id string) (invite.Invite, error)
	GetInviteByToken(ctx context.Context, token string) (invite.Invite, error)
	ListInvitesByNutritionist(ctx context.Context, nutritionistID string) ([]invite.Invite, error)
	// TransitionInvite moves the invite from -> to only if it is still in
	// from, otherwise ErrStateChanged.
	TransitionInvite(ctx context.Context, id string, from, to invite.Status, at time.Time) error
}

// InviteAcceptor is implemented by backends that can write the invite-accept
// flow (patient, user, invite marked used) as one unit. It returns
// ErrStateChanged when the invite is no longer active and ErrEmailTaken when
// the user email exists.
type InviteAcceptor interface {
	AcceptInvite(ctx context.Context, inviteID string, p patient.Patient, u user.User, at time.Time) error
}

// Store is the one storage seam. The backend is chosen once at startup.
type Store interface {
	UserStore
	PatientStore
	PrescriptionStore
	InviteStore

	Driver() string
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
