package mongo

import (
	"context"

	"github.com/geocoder89/dinutri/internal/domain/prescription"
	"github.com/geocoder89/dinutri/internal/repo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *Store) CreatePrescription(ctx context.Context, p prescription.Prescription) error {
	if p.Meals == nil {
		p.Meals = []prescription.Meal{}
	}

	return s.prom.ObserveDB("prescriptions.create", func() error {
		_, err := s.prescriptions.InsertOne(ctx, p)
		return err
	})
}

func (s *Store) GetPrescriptionByID(ctx context.Context, id string) (prescription.Prescription, error) {
	var p prescription.Prescription
	err := s.prom.ObserveDB("prescriptions.get_by_id", func() error {
		return findOne(ctx, s.prescriptions, byID(id), &p)
	})
	return normalize(p), err
}

func (s *Store) ListPrescriptions(ctx context.Context, filter prescription.ListFilter) ([]prescription.Prescription, error) {
	q := bson.M{}
	if filter.PatientID != "" {
		q["patientId"] = filter.PatientID
	}
	if filter.NutritionistID != "" {
		q["nutritionistId"] = filter.NutritionistID
	}

	var out []prescription.Prescription
	err := s.prom.ObserveDB("prescriptions.list", func() error {
		var err error
		out, err = findAll[prescription.Prescription](ctx, s.prescriptions, q,
			bson.D{{Key: "createdAt", Value: 1}, {Key: "id", Value: 1}},
		)
		return err
	})

	for i := range out {
		out[i] = normalize(out[i])
	}
	return out, err
}

// UpdatePrescription only matches while the stored record is a draft, so a
// concurrent publish is never overwritten.
func (s *Store) UpdatePrescription(ctx context.Context, p prescription.Prescription) error {
	if p.Meals == nil {
		p.Meals = []prescription.Meal{}
	}

	return s.prom.ObserveDB("prescriptions.update", func() error {
		res, err := s.prescriptions.UpdateOne(ctx,
			bson.M{"id": p.ID, "status": prescription.StatusDraft},
			bson.M{"$set": bson.M{
				"title":        p.Title,
				"status":       p.Status,
				"meals":        p.Meals,
				"generalNotes": p.GeneralNotes,
				"publishedAt":  p.PublishedAt,
				"updatedAt":    p.UpdatedAt,
			}},
		)
		if err != nil {
			return err
		}
		if res.MatchedCount == 1 {
			return nil
		}

		n, err := s.prescriptions.CountDocuments(ctx, byID(p.ID))
		if err != nil {
			return err
		}
		if n == 0 {
			return repo.ErrNotFound
		}
		return repo.ErrStateChanged
	})
}

// LatestPublished sorts on publishedAt. Every published record carries one,
// so the createdAt fallback only breaks ties.
func (s *Store) LatestPublished(ctx context.Context, patientID string) (prescription.Prescription, error) {
	var p prescription.Prescription

	opts := options.FindOne().SetSort(bson.D{
		{Key: "publishedAt", Value: -1},
		{Key: "createdAt", Value: -1},
		{Key: "id", Value: -1},
	})

	err := s.prom.ObserveDB("prescriptions.latest_published", func() error {
		return findOne(ctx, s.prescriptions, bson.M{
			"patientId": patientID,
			"status":    prescription.StatusPublished,
		}, &p, opts)
	})
	return normalize(p), err
}

func normalize(p prescription.Prescription) prescription.Prescription {
	if p.Meals == nil {
		p.Meals = []prescription.Meal{}
	}
	for i := range p.Meals {
		if p.Meals[i].Items == nil {
			p.Meals[i].Items = []prescription.Item{}
		}
		for j := range p.Meals[i].Items {
			if p.Meals[i].Items[j].Substitutions == nil {
				p.Meals[i].Items[j].Substitutions = []string{}
			}
		}
	}
	if p.PublishedAt != nil {
		at := p.PublishedAt.UTC()
		p.PublishedAt = &at
	}
	return p
}
