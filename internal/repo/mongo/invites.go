package mongo

import (
	"context"
	"time"

	"github.com/geocoder89/dinutri/internal/domain/invite"
	"github.com/geocoder89/dinutri/internal/repo"
	"go.mongodb.org/mongo-driver/bson"
)

func (s *Store) CreateInvite(ctx context.Context, inv invite.Invite) error {
	return s.prom.ObserveDB("invites.create", func() error {
		_, err := s.invites.InsertOne(ctx, inv)
		return err
	})
}

func (s *Store) GetInviteByID(ctx context.Context, id string) (invite.Invite, error) {
	var inv invite.Invite
	err := s.prom.ObserveDB("invites.get_by_id", func() error {
		return findOne(ctx, s.invites, byID(id), &inv)
	})
	return inv, err
}

func (s *Store) GetInviteByToken(ctx context.Context, token string) (invite.Invite, error) {
	var inv invite.Invite
	err := s.prom.ObserveDB("invites.get_by_token", func() error {
		return findOne(ctx, s.invites, bson.M{"token": token}, &inv)
	})
	return inv, err
}

func (s *Store) ListInvitesByNutritionist(ctx context.Context, nutritionistID string) ([]invite.Invite, error) {
	var out []invite.Invite
	err := s.prom.ObserveDB("invites.list_by_nutritionist", func() error {
		var err error
		out, err = findAll[invite.Invite](ctx, s.invites,
			bson.M{"nutritionistId": nutritionistID},
			bson.D{{Key: "createdAt", Value: -1}},
		)
		return err
	})
	return out, err
}

// TransitionInvite is a single conditional update on the current status.
func (s *Store) TransitionInvite(ctx context.Context, id string, from, to invite.Status, at time.Time) error {
	return s.prom.ObserveDB("invites.transition", func() error {
		res, err := s.invites.UpdateOne(ctx,
			bson.M{"id": id, "status": from},
			bson.M{"$set": bson.M{"status": to, "updatedAt": at}},
		)
		if err != nil {
			return err
		}
		if res.MatchedCount == 1 {
			return nil
		}

		n, err := s.invites.CountDocuments(ctx, byID(id))
		if err != nil {
			return err
		}
		if n == 0 {
			return repo.ErrNotFound
		}
		return repo.ErrStateChanged
	})
}
