package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/dinutri/internal/domain/invite"
	"github.com/geocoder89/dinutri/internal/domain/patient"
	"github.com/geocoder89/dinutri/internal/domain/user"
	"github.com/geocoder89/dinutri/internal/repo"
	"github.com/jackc/pgx/v5"
)

const inviteColumns = `id, token, email, nutritionist_id, status, expires_at, created_at, updated_at`

func scanInvite(row pgx.Row) (invite.Invite, error) {
	var inv invite.Invite
	err := row.Scan(
		&inv.ID,
		&inv.Token,
		&inv.Email,
		&inv.NutritionistID,
		&inv.Status,
		&inv.ExpiresAt,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	return inv, notFound(err)
}

func (s *Store) CreateInvite(ctx context.Context, inv invite.Invite) error {
	return s.prom.ObserveDB("invites.create", func() error {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO invites (id, token, email, nutritionist_id, status, expires_at, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			inv.ID, inv.Token, inv.Email, inv.NutritionistID, inv.Status, inv.ExpiresAt, inv.CreatedAt, inv.UpdatedAt,
		)
		return err
	})
}

func (s *Store) GetInviteByID(ctx context.Context, id string) (invite.Invite, error) {
	var inv invite.Invite
	err := s.prom.ObserveDB("invites.get_by_id", func() error {
		var err error
		inv, err = scanInvite(s.pool.QueryRow(ctx, `SELECT `+inviteColumns+` FROM invites WHERE id = $1`, id))
		return err
	})
	return inv, err
}

func (s *Store) GetInviteByToken(ctx context.Context, token string) (invite.Invite, error) {
	var inv invite.Invite
	err := s.prom.ObserveDB("invites.get_by_token", func() error {
		var err error
		inv, err = scanInvite(s.pool.QueryRow(ctx, `SELECT `+inviteColumns+` FROM invites WHERE token = $1`, token))
		return err
	})
	return inv, err
}

func (s *Store) ListInvitesByNutritionist(ctx context.Context, nutritionistID string) ([]invite.Invite, error) {
	out := make([]invite.Invite, 0)

	err := s.prom.ObserveDB("invites.list_by_nutritionist", func() error {
		rows, err := s.pool.Query(ctx,
			`SELECT `+inviteColumns+` FROM invites WHERE nutritionist_id = $1 ORDER BY created_at DESC`,
			nutritionistID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			inv, err := scanInvite(rows)
			if err != nil {
				return err
			}
			out = append(out, inv)
		}
		return rows.Err()
	})
	return out, err
}

func (s *Store) TransitionInvite(ctx context.Context, id string, from, to invite.Status, at time.Time) error {
	return s.prom.ObserveDB("invites.transition", func() error {
		return transitionInvite(ctx, s.pool, id, from, to, at)
	})
}

func transitionInvite(ctx context.Context, q querier, id string, from, to invite.Status, at time.Time) error {
	tag, err := q.Exec(ctx,
		`UPDATE invites SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
		id, from, to, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invites WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return repo.ErrNotFound
	}
	return repo.ErrStateChanged
}

// AcceptInvite writes the patient, the user and the used invite in one
// transaction. The invite row is locked first so two concurrent accepts
// serialize on it.
func (s *Store) AcceptInvite(ctx context.Context, inviteID string, p patient.Patient, u user.User, at time.Time) error {
	return s.prom.ObserveDB("invites.accept", func() error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		var status invite.Status
		err = tx.QueryRow(ctx, `SELECT status FROM invites WHERE id = $1 FOR UPDATE`, inviteID).Scan(&status)
		if err != nil {
			return notFound(err)
		}
		if status != invite.StatusActive {
			return repo.ErrStateChanged
		}

		if err := insertPatient(ctx, tx, p); err != nil {
			return err
		}
		if err := insertUser(ctx, tx, u); err != nil {
			return err
		}
		if err := transitionInvite(ctx, tx, inviteID, invite.StatusActive, invite.StatusUsed, at); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			if errors.Is(err, pgx.ErrTxCommitRollback) {
				return repo.ErrStateChanged
			}
			return err
		}
		return nil
	})
}
