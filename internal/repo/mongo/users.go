package mongo

import (
	"context"

	"github.com/geocoder89/dinutri/internal/domain/user"
	"github.com/geocoder89/dinutri/internal/repo"
	"go.mongodb.org/mongo-driver/bson"
	mgo "go.mongodb.org/mongo-driver/mongo"
)

func (s *Store) CreateUser(ctx context.Context, u user.User) error {
	u.Email = user.NormalizeEmail(u.Email)

	return s.prom.ObserveDB("users.create", func() error {
		_, err := s.users.InsertOne(ctx, u)
		if mgo.IsDuplicateKeyError(err) {
			return repo.ErrEmailTaken
		}
		return err
	})
}

func (s *Store) GetUserByID(ctx context.Context, id string) (user.User, error) {
	var u user.User
	err := s.prom.ObserveDB("users.get_by_id", func() error {
		return findOne(ctx, s.users, byID(id), &u)
	})
	return u, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User
	err := s.prom.ObserveDB("users.get_by_email", func() error {
		return findOne(ctx, s.users, bson.M{"email": user.NormalizeEmail(email)}, &u)
	})
	return u, err
}
