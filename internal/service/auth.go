package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/geocoder89/dinutri/internal/auth"
	"github.com/geocoder89/dinutri/internal/domain/user"
	"github.com/geocoder89/dinutri/internal/repo"
	"github.com/geocoder89/dinutri/internal/security"
)

const TokenTypeBearer = "bearer"

type LoginResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type AuthService struct {
	users  repo.UserStore
	tokens *auth.Manager
	log    *slog.Logger
}

func NewAuthService(users repo.UserStore, tokens *auth.Manager, log *slog.Logger) *AuthService {
	if log == nil {
		log = slog.Default()
	}
	return &AuthService{users: users, tokens: tokens, log: log}
}

// Login checks an email/password pair and issues a bearer token. Unknown
// emails still pay for a bcrypt compare.
func (s *AuthService) Login(ctx context.Context, identifier, secret string) (LoginResult, error) {
	email := user.NormalizeEmail(identifier)
	if email == "" || secret == "" {
		return LoginResult{}, fail(ErrInvalidCredentials, "Incorrect email or password")
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			security.BurnCompare(secret)
			return LoginResult{}, fail(ErrInvalidCredentials, "Incorrect email or password")
		}
		return LoginResult{}, fmt.Errorf("login lookup: %w", err)
	}

	if err := security.CheckPassword(u.PasswordHash, secret); err != nil {
		return LoginResult{}, fail(ErrInvalidCredentials, "Incorrect email or password")
	}

	token, err := s.tokens.GenerateAccessToken(u.ID, string(u.Role))
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}

	s.log.InfoContext(ctx, "auth.login", "user_id", u.ID, "role", u.Role)

	return LoginResult{AccessToken: token, TokenType: TokenTypeBearer}, nil
}

// Authenticate verifies a bearer token and resolves it to the live user, so a
// deleted account stops working even while its token is unexpired.
func (s *AuthService) Authenticate(ctx context.Context, token string) (auth.Actor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Actor{}, fail(ErrUnauthorized, "Missing access token")
	}

	claims, err := s.tokens.VerifyAccessToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return auth.Actor{}, fail(ErrUnauthorized, "Access token expired")
		}
		return auth.Actor{}, fail(ErrUnauthorized, "Invalid access token")
	}

	u, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return auth.Actor{}, fail(ErrUnauthorized, "User no longer exists")
		}
		return auth.Actor{}, fmt.Errorf("resolve token subject: %w", err)
	}
	if !u.Role.IsValid() {
		return auth.Actor{}, fail(ErrUnauthorized, "Account role is not recognised")
	}

	return auth.ActorFromUser(u), nil
}

func RequireRole(actor auth.Actor, role user.Role) error {
	if actor.ID == "" {
		return fail(ErrUnauthorized, "Missing identity")
	}
	if actor.Role != role {
		return fail(ErrForbidden, "This action requires the "+string(role)+" role")
	}
	return nil
}
