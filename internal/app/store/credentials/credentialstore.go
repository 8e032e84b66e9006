// internal/app/store/credentials/credentialstore.go
package credentialstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/carexps/internal/app/system/kv"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// record is one row of user_credentials. Blob is opaque ciphertext.
type record struct {
	UserID    string    `bson:"user_id"`
	Blob      string    `bson:"encrypted_credentials,omitempty"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Store is the remote credential tier. It implements kv.Backend with the
// user id as key, so the vault can place it first in its tier list.
type Store struct {
	c *mongo.Collection
}

var _ kv.Backend = (*Store)(nil)

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("user_credentials")}
}

func (s *Store) Name() string { return "mongo" }

// Get returns the blob for userID, or kv.ErrNotFound when the row or the
// blob field is missing.
func (s *Store) Get(ctx context.Context, userID string) (string, error) {
	var rec record
	if err := s.c.FindOne(ctx, bson.M{"user_id": userID}).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", kv.ErrNotFound
		}
		return "", err
	}
	if rec.Blob == "" {
		return "", kv.ErrNotFound
	}
	return rec.Blob, nil
}

// Set upserts the blob for userID.
func (s *Store) Set(ctx context.Context, userID, blob string) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$set":         bson.M{"encrypted_credentials": blob, "updated_at": time.Now().UTC()},
			"$setOnInsert": bson.M{"user_id": userID},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

// Delete clears the blob for userID. The row itself is kept.
func (s *Store) Delete(ctx context.Context, userID string) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$unset": bson.M{"encrypted_credentials": ""},
			"$set":   bson.M{"updated_at": time.Now().UTC()},
		},
	)
	return err
}
