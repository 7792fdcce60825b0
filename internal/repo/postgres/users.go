package postgres

import (
	"context"

	"github.com/geocoder89/dinutri/internal/domain/user"
	"github.com/geocoder89/dinutri/internal/repo"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, role, name, email, password_hash, COALESCE(patient_id, ''), created_at, updated_at`

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User
	err := row.Scan(
		&u.ID,
		&u.Role,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.PatientID,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, notFound(err)
}

func (s *Store) CreateUser(ctx context.Context, u user.User) error {
	return s.prom.ObserveDB("users.create", func() error {
		return insertUser(ctx, s.pool, u)
	})
}

func insertUser(ctx context.Context, q querier, u user.User) error {
	var patientID *string
	if u.PatientID != "" {
		patientID = &u.PatientID
	}

	_, err := q.Exec(ctx,
		`INSERT INTO users (id, role, name, email, password_hash, patient_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		u.ID, u.Role, u.Name, user.NormalizeEmail(u.Email), u.PasswordHash, patientID, u.CreatedAt, u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return repo.ErrEmailTaken
	}
	return err
}

func (s *Store) GetUserByID(ctx context.Context, id string) (user.User, error) {
	var u user.User
	err := s.prom.ObserveDB("users.get_by_id", func() error {
		var err error
		u, err = scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
		return err
	})
	return u, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User
	err := s.prom.ObserveDB("users.get_by_email", func() error {
		var err error
		u, err = scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, user.NormalizeEmail(email)))
		return err
	})
	return u, err
}
