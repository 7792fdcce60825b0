package mongo

import (
	"context"

	"github.com/geocoder89/dinutri/internal/domain/patient"
	"github.com/geocoder89/dinutri/internal/repo"
	"go.mongodb.org/mongo-driver/bson"
)

func (s *Store) CreatePatient(ctx context.Context, p patient.Patient) error {
	return s.prom.ObserveDB("patients.create", func() error {
		_, err := s.patients.InsertOne(ctx, p)
		return err
	})
}

func (s *Store) GetPatientByID(ctx context.Context, id string) (patient.Patient, error) {
	var p patient.Patient
	err := s.prom.ObserveDB("patients.get_by_id", func() error {
		return findOne(ctx, s.patients, byID(id), &p)
	})
	return p, err
}

func (s *Store) ListPatientsByOwner(ctx context.Context, ownerID string) ([]patient.Patient, error) {
	var out []patient.Patient
	err := s.prom.ObserveDB("patients.list_by_owner", func() error {
		var err error
		out, err = findAll[patient.Patient](ctx, s.patients,
			bson.M{"ownerId": ownerID},
			bson.D{{Key: "createdAt", Value: 1}, {Key: "id", Value: 1}},
		)
		return err
	})
	return out, err
}

// UpdatePatient only touches name, email and updatedAt; ownerId is never rewritten.
func (s *Store) UpdatePatient(ctx context.Context, p patient.Patient) error {
	return s.prom.ObserveDB("patients.update", func() error {
		res, err := s.patients.UpdateOne(ctx, byID(p.ID), bson.M{"$set": bson.M{
			"name":      p.Name,
			"email":     p.Email,
			"updatedAt": p.UpdatedAt,
		}})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return repo.ErrNotFound
		}
		return nil
	})
}

func (s *Store) DeletePatient(ctx context.Context, id string) error {
	return s.prom.ObserveDB("patients.delete", func() error {
		res, err := s.patients.DeleteOne(ctx, byID(id))
		if err != nil {
			return err
		}
		if res.DeletedCount == 0 {
			return repo.ErrNotFound
		}
		return nil
	})
}
