package db

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/dinutri/internal/config"
	"github.com/geocoder89/dinutri/internal/domain/user"
	"github.com/geocoder89/dinutri/internal/repo"
	"github.com/geocoder89/dinutri/internal/security"
	"github.com/google/uuid"
)

// EnsureDefaultNutritionist creates the seed account when its email is free.
// It reports whether a user was created.
func EnsureDefaultNutritionist(ctx context.Context, users repo.UserStore, cfg config.Config) (bool, error) {
	if cfg.SeedEmail == "" || cfg.SeedPassword == "" {
		return false, nil
	}

	_, err := users.GetUserByEmail(ctx, cfg.SeedEmail)

	if err == nil {
		return false, nil
	}

	if !errors.Is(err, repo.ErrNotFound) {
		return false, err
	}

	hash, err := security.HashPassword(cfg.SeedPassword)

	if err != nil {
		return false, err
	}

	now := time.Now().UTC()

	u := user.User{
		ID:           uuid.NewString(),
		Role:         user.RoleNutritionist,
		Name:         cfg.SeedName,
		Email:        cfg.SeedEmail,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = users.CreateUser(ctx, u)

	// another instance won the race
	if errors.Is(err, repo.ErrEmailTaken) {
		return false, nil
	}

	return err == nil, err
}
