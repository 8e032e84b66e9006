// internal/app/store/settings/settingsstore.go
package settingsstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/carexps/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Store provides access to the user_settings collection (one document per user).
type Store struct {
	c      *mongo.Collection
	logger *zap.Logger
}

// New creates a new settings store.
func New(db *mongo.Database, logger *zap.Logger) *Store {
	return &Store{c: db.Collection("user_settings"), logger: logger}
}

// Get returns the stored settings for userID, or nil if none exist.
func (s *Store) Get(ctx context.Context, userID string) (*models.UserSettings, error) {
	var us models.UserSettings
	err := s.c.FindOne(ctx, bson.M{"user_id": userID}).Decode(&us)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return normalized(&us), nil
}

// Patch sets the given top-level settings fields, leaving other fields as
// they are, and returns the document after the write. The document is
// created if it does not exist.
func (s *Store) Patch(ctx context.Context, userID string, fields models.SettingsDoc, deviceID string) (*models.UserSettings, error) {
	now := time.Now().UTC()
	set := bson.M{
		"last_synced": now,
		"updated_at":  now,
	}
	for k, v := range fields {
		set["settings."+k] = v
	}
	if deviceID != "" {
		set["device_id"] = deviceID
	}
	return s.upsert(ctx, userID, set, now)
}

// Replace overwrites the whole settings document for userID.
func (s *Store) Replace(ctx context.Context, userID string, doc models.SettingsDoc, deviceID string) (*models.UserSettings, error) {
	now := time.Now().UTC()
	if doc == nil {
		doc = models.SettingsDoc{}
	}
	set := bson.M{
		"settings":    doc,
		"last_synced": now,
		"updated_at":  now,
	}
	if deviceID != "" {
		set["device_id"] = deviceID
	}
	return s.upsert(ctx, userID, set, now)
}

func (s *Store) upsert(ctx context.Context, userID string, set bson.M, now time.Time) (*models.UserSettings, error) {
	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"_id":        primitive.NewObjectID(),
			"user_id":    userID,
			"created_at": now,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var us models.UserSettings
	if err := s.c.FindOneAndUpdate(ctx, bson.M{"user_id": userID}, update, opts).Decode(&us); err != nil {
		return nil, err
	}
	return normalized(&us), nil
}

// Delete removes the settings document for userID.
func (s *Store) Delete(ctx context.Context, userID string) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"user_id": userID})
	return err
}

// changeEvent is the subset of a change stream document we read.
type changeEvent struct {
	OperationType string               `bson:"operationType"`
	FullDocument  *models.UserSettings `bson:"fullDocument"`
}

// Watch streams insert/update/replace/delete events on user_settings to fn
// until ctx is cancelled. Change streams require a replica set; the error
// from opening the stream is returned so the caller can decide to run
// without live updates.
func (s *Store) Watch(ctx context.Context, fn func(models.SettingsChange)) error {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"operationType": bson.M{"$in": []string{"insert", "update", "replace", "delete"}},
		}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	stream, err := s.c.Watch(ctx, pipeline, opts)
	if err != nil {
		return err
	}
	defer stream.Close(context.Background())

	for stream.Next(ctx) {
		var ev changeEvent
		if err := stream.Decode(&ev); err != nil {
			s.logger.Warn("settings change stream: decode failed", zap.Error(err))
			continue
		}
		change := models.SettingsChange{Op: ev.OperationType}
		if ev.FullDocument != nil {
			change.UserID = ev.FullDocument.UserID
			change.Settings = normalized(ev.FullDocument)
		}
		fn(change)
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// normalized flattens BSON container types in the settings document so
// callers only see plain maps and slices.
func normalized(us *models.UserSettings) *models.UserSettings {
	us.Settings = us.Settings.Clone()
	if us.Settings == nil {
		us.Settings = models.SettingsDoc{}
	}
	return us
}
