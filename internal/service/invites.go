package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/geocoder89/dinutri/internal/auth"
	"github.com/geocoder89/dinutri/internal/domain/invite"
	"github.com/geocoder89/dinutri/internal/domain/patient"
	"github.com/geocoder89/dinutri/internal/domain/user"
	"github.com/geocoder89/dinutri/internal/notifications"
	"github.com/geocoder89/dinutri/internal/observability"
	"github.com/geocoder89/dinutri/internal/repo"
	"github.com/geocoder89/dinutri/internal/security"
	"github.com/google/uuid"
)

const DefaultInviteTTL = 24 * time.Hour

type InviteServiceConfig struct {
	DefaultTTL time.Duration
	// PublicURL prefixes the accept link handed to the notifier.
	PublicURL string
}

type InviteService struct {
	invites  repo.InviteStore
	users    repo.UserStore
	patients repo.PatientStore
	notifier notifications.Notifier
	cfg      InviteServiceConfig
	prom     *observability.Prom
	now      func() time.Time
	log      *slog.Logger
}

// NewInviteService takes the three stores the accept flow writes to. notifier
// may be nil.
func NewInviteService(store repo.Store, notifier notifications.Notifier, cfg InviteServiceConfig, prom *observability.Prom, log *slog.Logger) *InviteService {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultInviteTTL
	}
	if log == nil {
		log = slog.Default()
	}

	return &InviteService{
		invites:  store,
		users:    store,
		patients: store,
		notifier: notifier,
		cfg:      cfg,
		prom:     prom,
		now:      utcNow,
		log:      log,
	}
}

func (s *InviteService) WithClock(now func() time.Time) *InviteService {
	s.now = now
	return s
}

func (s *InviteService) Create(ctx context.Context, actor auth.Actor, req invite.CreateInviteRequest) (invite.Invite, error) {
	if err := RequireRole(actor, user.RoleNutritionist); err != nil {
		return invite.Invite{}, err
	}

	email := user.NormalizeEmail(req.Email)
	if email == "" {
		return invite.Invite{}, fail(ErrBadRequest, "email is required")
	}

	ttl := s.cfg.DefaultTTL
	if req.ExpiresInHours != nil {
		if *req.ExpiresInHours <= 0 {
			return invite.Invite{}, fail(ErrBadRequest, "expiresInHours must be positive")
		}
		ttl = time.Duration(*req.ExpiresInHours) * time.Hour
	}

	taken, err := s.emailTaken(ctx, email)
	if err != nil {
		return invite.Invite{}, err
	}
	if taken {
		return invite.Invite{}, fail(ErrConflict, "A user with this email already exists")
	}

	inv := invite.New(actor.ID, email, ttl, s.now())

	if err := s.invites.CreateInvite(ctx, inv); err != nil {
		return invite.Invite{}, fmt.Errorf("create invite: %w", err)
	}

	s.prom.CountInvite("created")
	s.log.InfoContext(ctx, "invite.created", "invite_id", inv.ID, "expires_at", inv.ExpiresAt)

	s.notify(ctx, inv)
	return inv, nil
}

// notify is best effort: a failed send is logged and never fails the request.
func (s *InviteService) notify(ctx context.Context, inv invite.Invite) {
	if s.notifier == nil {
		return
	}

	err := s.notifier.SendInvite(ctx, notifications.InviteMessage{
		InviteID:       inv.ID,
		Email:          inv.Email,
		NutritionistID: inv.NutritionistID,
		AcceptURL:      s.cfg.PublicURL + "/invite/" + inv.Token,
		ExpiresAt:      inv.ExpiresAt,
	})
	if err != nil {
		s.log.WarnContext(ctx, "invite.notify_failed", "invite_id", inv.ID, "err", err)
	}
}

// Resolve looks an invite up by token. Expiry is judged against the clock
// here, whatever the stored status says.
func (s *InviteService) Resolve(ctx context.Context, token string) (invite.Invite, error) {
	inv, err := s.byToken(ctx, token)
	if err != nil {
		return invite.Invite{}, err
	}

	if inv.IsExpired(s.now()) {
		return invite.Invite{}, fail(ErrExpired, "Invite has expired")
	}
	return inv, nil
}

func (s *InviteService) byToken(ctx context.Context, token string) (invite.Invite, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return invite.Invite{}, fail(ErrNotFound, "Invite not found")
	}

	inv, err := s.invites.GetInviteByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return invite.Invite{}, fail(ErrNotFound, "Invite not found")
		}
		return invite.Invite{}, fmt.Errorf("get invite: %w", err)
	}
	return inv, nil
}

// Accept turns an invite into a Patient owned by the issuing nutritionist
// plus a patient-role User linked to it. Backends implementing
// repo.InviteAcceptor do this atomically. Status is checked before expiry, so
// a used invite reports invalid_state even once it has also expired.
func (s *InviteService) Accept(ctx context.Context, token string, req invite.AcceptInviteRequest) (user.Profile, error) {
	ctx, span := observability.StartSpan(ctx, "invite.accept")
	defer span.End()

	inv, err := s.byToken(ctx, token)
	if err != nil {
		return user.Profile{}, err
	}

	if inv.Status.IsTerminal() {
		return user.Profile{}, fail(ErrInvalidState, "Invite is "+string(inv.Status))
	}
	if inv.IsExpired(s.now()) {
		return user.Profile{}, fail(ErrExpired, "Invite has expired")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return user.Profile{}, fail(ErrBadRequest, "name is required")
	}
	if req.Password == "" {
		return user.Profile{}, fail(ErrBadRequest, "password is required")
	}

	taken, err := s.emailTaken(ctx, inv.Email)
	if err != nil {
		return user.Profile{}, err
	}
	if taken {
		return user.Profile{}, fail(ErrConflict, "A user with this email already exists")
	}

	hash, err := security.HashPassword(req.Password)
	if err != nil {
		return user.Profile{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()

	p := patient.Patient{
		ID:        uuid.NewString(),
		OwnerID:   inv.NutritionistID,
		Name:      name,
		Email:     inv.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	u := user.User{
		ID:           uuid.NewString(),
		Role:         user.RolePatient,
		Name:         name,
		Email:        inv.Email,
		PasswordHash: hash,
		PatientID:    p.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if acceptor, ok := s.invites.(repo.InviteAcceptor); ok {
		err = acceptor.AcceptInvite(ctx, inv.ID, p, u, now)
	} else {
		err = s.acceptSequential(ctx, inv, p, u, now)
	}
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrEmailTaken):
			return user.Profile{}, fail(ErrConflict, "A user with this email already exists")
		case errors.Is(err, repo.ErrStateChanged):
			return user.Profile{}, fail(ErrInvalidState, "Invite is no longer active")
		case errors.Is(err, repo.ErrNotFound):
			return user.Profile{}, fail(ErrNotFound, "Invite not found")
		}
		return user.Profile{}, fmt.Errorf("accept invite: %w", err)
	}

	s.prom.CountInvite("accepted")
	s.log.InfoContext(ctx, "invite.accepted", "invite_id", inv.ID, "user_id", u.ID, "patient_id", p.ID)

	return u.Profile(), nil
}

// acceptSequential is the path for backends without multi-record writes.
// The Patient is removed again if the User cannot be created, and the invite
// is only marked used once both exist.
func (s *InviteService) acceptSequential(ctx context.Context, inv invite.Invite, p patient.Patient, u user.User, now time.Time) error {
	if err := s.patients.CreatePatient(ctx, p); err != nil {
		return fmt.Errorf("create patient: %w", err)
	}

	if err := s.users.CreateUser(ctx, u); err != nil {
		s.dropPatient(ctx, p.ID)
		return err
	}

	err := s.invites.TransitionInvite(ctx, inv.ID, invite.StatusActive, invite.StatusUsed, now)
	if err != nil {
		// The account exists at this point; a revoke that raced us only
		// loses the token, so the acceptance stands.
		s.log.ErrorContext(ctx, "invite.accept_transition_failed",
			"invite_id", inv.ID,
			"user_id", u.ID,
			"err", err,
		)
	}
	return nil
}

func (s *InviteService) dropPatient(ctx context.Context, id string) {
	if err := s.patients.DeletePatient(ctx, id); err != nil && !errors.Is(err, repo.ErrNotFound) {
		s.log.ErrorContext(ctx, "invite.accept_compensation_failed", "patient_id", id, "err", err)
	}
}

func (s *InviteService) List(ctx context.Context, actor auth.Actor) ([]invite.Invite, error) {
	if err := RequireRole(actor, user.RoleNutritionist); err != nil {
		return nil, err
	}

	items, err := s.invites.ListInvitesByNutritionist(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	return items, nil
}

// Revoke only applies to active invites. An active invite past its expiry
// can still be revoked.
func (s *InviteService) Revoke(ctx context.Context, actor auth.Actor, id string) error {
	if err := RequireRole(actor, user.RoleNutritionist); err != nil {
		return err
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return fail(ErrNotFound, "Invite not found")
	}

	inv, err := s.invites.GetInviteByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fail(ErrNotFound, "Invite not found")
		}
		return fmt.Errorf("get invite: %w", err)
	}

	if inv.NutritionistID != actor.ID {
		return fail(ErrForbidden, "Not allowed to revoke this invite")
	}

	if inv.Status.IsTerminal() {
		return fail(ErrInvalidState, "Invite is already "+string(inv.Status))
	}

	err = s.invites.TransitionInvite(ctx, inv.ID, invite.StatusActive, invite.StatusRevoked, s.now())
	if err != nil {
		if errors.Is(err, repo.ErrStateChanged) {
			return fail(ErrInvalidState, "Invite is no longer active")
		}
		return fmt.Errorf("revoke invite: %w", err)
	}

	s.prom.CountInvite("revoked")
	s.log.InfoContext(ctx, "invite.revoked", "invite_id", inv.ID)
	return nil
}

func (s *InviteService) emailTaken(ctx context.Context, email string) (bool, error) {
	_, err := s.users.GetUserByEmail(ctx, email)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("lookup user: %w", err)
}
