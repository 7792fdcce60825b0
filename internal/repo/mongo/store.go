package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/dinutri/internal/observability"
	"github.com/geocoder89/dinutri/internal/repo"
	"go.mongodb.org/mongo-driver/bson"
	mgo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	collUsers         = "users"
	collPatients      = "patients"
	collPrescriptions = "prescriptions"
	collInvites       = "invites"
)

// Store is the MongoDB backend. Records are addressed by their own "id"
// field; the driver's _id is left to Mongo.
type Store struct {
	client *mgo.Client
	db     *mgo.Database
	prom   *observability.Prom

	users         *mgo.Collection
	patients      *mgo.Collection
	prescriptions *mgo.Collection
	invites       *mgo.Collection
}

var _ repo.Store = (*Store)(nil)

// Connect dials uri, pings the primary and makes sure the indexes exist.
// The caller bounds the whole thing with ctx.
func Connect(ctx context.Context, uri, dbName string, prom *observability.Prom) (*Store, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(20)

	client, err := mgo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	s := New(client, dbName, prom)

	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func New(client *mgo.Client, dbName string, prom *observability.Prom) *Store {
	db := client.Database(dbName)

	return &Store{
		client:        client,
		db:            db,
		prom:          prom,
		users:         db.Collection(collUsers),
		patients:      db.Collection(collPatients),
		prescriptions: db.Collection(collPrescriptions),
		invites:       db.Collection(collInvites),
	}
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	unique := func(keys bson.D) mgo.IndexModel {
		return mgo.IndexModel{Keys: keys, Options: options.Index().SetUnique(true)}
	}
	plain := func(keys bson.D) mgo.IndexModel {
		return mgo.IndexModel{Keys: keys}
	}

	plan := map[*mgo.Collection][]mgo.IndexModel{
		s.users: {
			unique(bson.D{{Key: "id", Value: 1}}),
			unique(bson.D{{Key: "email", Value: 1}}),
		},
		s.patients: {
			unique(bson.D{{Key: "id", Value: 1}}),
			plain(bson.D{{Key: "ownerId", Value: 1}, {Key: "createdAt", Value: 1}}),
		},
		s.prescriptions: {
			unique(bson.D{{Key: "id", Value: 1}}),
			plain(bson.D{{Key: "patientId", Value: 1}, {Key: "createdAt", Value: 1}}),
			plain(bson.D{{Key: "patientId", Value: 1}, {Key: "status", Value: 1}, {Key: "publishedAt", Value: -1}}),
		},
		s.invites: {
			unique(bson.D{{Key: "id", Value: 1}}),
			unique(bson.D{{Key: "token", Value: 1}}),
			plain(bson.D{{Key: "nutritionistId", Value: 1}, {Key: "createdAt", Value: -1}}),
		},
	}

	for coll, models := range plan {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongo indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

func (s *Store) Driver() string { return "mongodb" }

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func byID(id string) bson.M { return bson.M{"id": id} }

// findOne decodes the first match into out, mapping no-documents to repo.ErrNotFound.
func findOne(ctx context.Context, coll *mgo.Collection, filter any, out any, opts ...*options.FindOneOptions) error {
	err := coll.FindOne(ctx, filter, opts...).Decode(out)
	if errors.Is(err, mgo.ErrNoDocuments) {
		return repo.ErrNotFound
	}
	return err
}

func findAll[T any](ctx context.Context, coll *mgo.Collection, filter any, sort bson.D) ([]T, error) {
	cur, err := coll.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, err
	}

	out := make([]T, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
