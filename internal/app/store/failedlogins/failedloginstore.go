// internal/app/store/failedlogins/failedloginstore.go
package failedloginstore

import (
	"context"
	"time"

	"github.com/dalemusser/carexps/internal/app/system/normalize"
	"github.com/dalemusser/carexps/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store is the append-only failed-attempt log, keyed by email.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("failed_login_attempts")}
}

// Create appends an attempt. If AttemptedAt is zero, it's set to time.Now().UTC().
func (s *Store) Create(ctx context.Context, a models.FailedLoginAttempt) error {
	a.Email = normalize.Email(a.Email)
	if a.AttemptedAt.IsZero() {
		a.AttemptedAt = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, a)
	return err
}

// ListSince returns the attempts for email strictly after since, newest first.
func (s *Store) ListSince(ctx context.Context, email string, since time.Time) ([]models.FailedLoginAttempt, error) {
	opts := options.Find().SetSort(bson.D{{Key: "attempted_at", Value: -1}})
	filter := bson.M{
		"email":        normalize.Email(email),
		"attempted_at": bson.M{"$gt": since.UTC()},
	}

	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var attempts []models.FailedLoginAttempt
	if err := cur.All(ctx, &attempts); err != nil {
		return nil, err
	}
	return attempts, nil
}

// DeleteByEmail removes every attempt for email.
func (s *Store) DeleteByEmail(ctx context.Context, email string) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"email": normalize.Email(email)})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// PurgeOlderThan removes attempts older than cutoff.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"attempted_at": bson.M{"$lt": cutoff.UTC()}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
