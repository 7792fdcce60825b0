package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/geocoder89/dinutri/internal/domain/prescription"
	"github.com/geocoder89/dinutri/internal/repo"
	"github.com/jackc/pgx/v5"
)

const prescriptionColumns = `id, patient_id, nutritionist_id, title, status, meals, general_notes,
	published_at, COALESCE(supersedes_id, ''), created_at, updated_at`

func scanPrescription(row pgx.Row) (prescription.Prescription, error) {
	var (
		p     prescription.Prescription
		meals []byte
	)

	err := row.Scan(
		&p.ID,
		&p.PatientID,
		&p.NutritionistID,
		&p.Title,
		&p.Status,
		&meals,
		&p.GeneralNotes,
		&p.PublishedAt,
		&p.SupersedesID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return prescription.Prescription{}, notFound(err)
	}

	p.Meals = []prescription.Meal{}
	if len(meals) > 0 {
		if err := json.Unmarshal(meals, &p.Meals); err != nil {
			return prescription.Prescription{}, fmt.Errorf("decode meals of %s: %w", p.ID, err)
		}
	}
	return p, nil
}

func encodeMeals(meals []prescription.Meal) ([]byte, error) {
	if meals == nil {
		meals = []prescription.Meal{}
	}
	return json.Marshal(meals)
}

func (s *Store) CreatePrescription(ctx context.Context, p prescription.Prescription) error {
	meals, err := encodeMeals(p.Meals)
	if err != nil {
		return err
	}

	var supersedes *string
	if p.SupersedesID != "" {
		supersedes = &p.SupersedesID
	}

	return s.prom.ObserveDB("prescriptions.create", func() error {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO prescriptions (id, patient_id, nutritionist_id, title, status, meals, general_notes,
				published_at, supersedes_id, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			p.ID, p.PatientID, p.NutritionistID, p.Title, p.Status, meals, p.GeneralNotes,
			p.PublishedAt, supersedes, p.CreatedAt, p.UpdatedAt,
		)
		return err
	})
}

func (s *Store) GetPrescriptionByID(ctx context.Context, id string) (prescription.Prescription, error) {
	var p prescription.Prescription
	err := s.prom.ObserveDB("prescriptions.get_by_id", func() error {
		var err error
		p, err = scanPrescription(s.pool.QueryRow(ctx, `SELECT `+prescriptionColumns+` FROM prescriptions WHERE id = $1`, id))
		return err
	})
	return p, err
}

func (s *Store) ListPrescriptions(ctx context.Context, filter prescription.ListFilter) ([]prescription.Prescription, error) {
	var (
		conds []string
		args  []any
	)

	if filter.PatientID != "" {
		args = append(args, filter.PatientID)
		conds = append(conds, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if filter.NutritionistID != "" {
		args = append(args, filter.NutritionistID)
		conds = append(conds, fmt.Sprintf("nutritionist_id = $%d", len(args)))
	}

	query := `SELECT ` + prescriptionColumns + ` FROM prescriptions`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	out := make([]prescription.Prescription, 0)

	err := s.prom.ObserveDB("prescriptions.list", func() error {
		rows, err := s.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanPrescription(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	return out, err
}

// UpdatePrescription never moves an existing published_at: COALESCE keeps
// the stored value once set.
func (s *Store) UpdatePrescription(ctx context.Context, p prescription.Prescription) error {
	meals, err := encodeMeals(p.Meals)
	if err != nil {
		return err
	}

	return s.prom.ObserveDB("prescriptions.update", func() error {
		tag, err := s.pool.Exec(ctx,
			`UPDATE prescriptions
			SET title = $2,
				status = $3,
				meals = $4,
				general_notes = $5,
				published_at = $6,
				updated_at = $7
			WHERE id = $1 AND status = 'draft'`,
			p.ID, p.Title, p.Status, meals, p.GeneralNotes, p.PublishedAt, p.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 1 {
			return nil
		}

		var exists bool
		err = s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM prescriptions WHERE id = $1)`, p.ID).Scan(&exists)
		if err != nil {
			return err
		}
		if !exists {
			return repo.ErrNotFound
		}
		return repo.ErrStateChanged
	})
}

func (s *Store) LatestPublished(ctx context.Context, patientID string) (prescription.Prescription, error) {
	var p prescription.Prescription
	err := s.prom.ObserveDB("prescriptions.latest_published", func() error {
		var err error
		p, err = scanPrescription(s.pool.QueryRow(ctx,
			`SELECT `+prescriptionColumns+`
			FROM prescriptions
			WHERE patient_id = $1 AND status = 'published'
			ORDER BY COALESCE(published_at, created_at) DESC, created_at DESC, id DESC
			LIMIT 1`, patientID))
		return err
	})
	return p, err
}
