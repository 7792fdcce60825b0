package postgres

import (
	"context"

	"github.com/geocoder89/dinutri/internal/domain/patient"
	"github.com/geocoder89/dinutri/internal/repo"
)

func (s *Store) CreatePatient(ctx context.Context, p patient.Patient) error {
	return s.prom.ObserveDB("patients.create", func() error {
		return insertPatient(ctx, s.pool, p)
	})
}

func insertPatient(ctx context.Context, q querier, p patient.Patient) error {
	_, err := q.Exec(ctx,
		`INSERT INTO patients (id, owner_id, name, email, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		p.ID, p.OwnerID, p.Name, p.Email, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (s *Store) GetPatientByID(ctx context.Context, id string) (patient.Patient, error) {
	var p patient.Patient
	err := s.prom.ObserveDB("patients.get_by_id", func() error {
		err := s.pool.QueryRow(ctx,
			`SELECT id, owner_id, name, email, created_at, updated_at FROM patients WHERE id = $1`, id,
		).Scan(&p.ID, &p.OwnerID, &p.Name, &p.Email, &p.CreatedAt, &p.UpdatedAt)
		return notFound(err)
	})
	return p, err
}

func (s *Store) ListPatientsByOwner(ctx context.Context, ownerID string) ([]patient.Patient, error) {
	out := make([]patient.Patient, 0)

	err := s.prom.ObserveDB("patients.list_by_owner", func() error {
		rows, err := s.pool.Query(ctx,
			`SELECT id, owner_id, name, email, created_at, updated_at
			FROM patients
			WHERE owner_id = $1
			ORDER BY created_at ASC, id ASC`, ownerID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var p patient.Patient
			if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Email, &p.CreatedAt, &p.UpdatedAt); err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	return out, err
}

func (s *Store) UpdatePatient(ctx context.Context, p patient.Patient) error {
	return s.prom.ObserveDB("patients.update", func() error {
		tag, err := s.pool.Exec(ctx,
			`UPDATE patients SET name = $2, email = $3, updated_at = $4 WHERE id = $1`,
			p.ID, p.Name, p.Email, p.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return repo.ErrNotFound
		}
		return nil
	})
}

func (s *Store) DeletePatient(ctx context.Context, id string) error {
	return s.prom.ObserveDB("patients.delete", func() error {
		tag, err := s.pool.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return repo.ErrNotFound
		}
		return nil
	})
}
