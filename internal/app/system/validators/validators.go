// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/carexps/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates collections (if missing) and tries to attach JSON-Schema
// validators. On servers that don't support collMod/validators (e.g. some
// DocumentDB versions), we log and skip gracefully.
func EnsureAll(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	var problems []string

	for _, c := range Collections() {
		if _, err := ensureCollection(ctx, db, c.Name, logger); err != nil {
			problems = append(problems, c.Name+": "+err.Error())
			continue
		}
		if err := setValidator(ctx, db, c.Name, c.Schema, logger); err != nil {
			if isNoSuchCommand(err) || isNotImplemented(err) {
				logger.Info("validator skipped (unsupported)", zap.String("collection", c.Name))
				continue
			}
			problems = append(problems, c.Name+": "+err.Error())
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// Collection is a collection with its validator.
type Collection struct {
	Name   string
	Schema bson.M
}

// Collections returns every collection the service owns with its schema.
func Collections() []Collection {
	return []Collection{
		{"users", usersSchema()},
		{"user_credentials", credentialsSchema()},
		{"failed_login_attempts", failedAttemptsSchema()},
		{"user_settings", settingsSchema()},
		{"audit_logs", auditSchema()},
	}
}

/* ---------------------- collection helpers & logging ---------------------- */

// collectionExists returns true when <name> already exists.
// Uses ListCollectionNames to avoid "created collection" log when it didn't.
func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{"name": name})
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

// ensureCollection idempotently makes sure <name> exists.
// Returns created==true only if we actually created it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string, logger *zap.Logger) (created bool, err error) {
	exists, listErr := collectionExists(ctx, db, name)
	if listErr == nil && exists {
		logger.Debug("collection exists", zap.String("collection", name))
		return false, nil
	}
	// If listing failed, fall back to create-and-handle-race.
	if err := db.CreateCollection(ctx, name); err != nil {
		if isNamespaceExistsErr(err) {
			logger.Debug("collection exists", zap.String("collection", name))
			return false, nil
		}
		logger.Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	logger.Info("created collection", zap.String("collection", name))
	return true, nil
}

/* ------------------------------ validators ------------------------------- */

// Moderate validation leaves existing documents that predate a schema
// change alone until they are next updated.
func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M, logger *zap.Logger) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return err
	}
	logger.Info("validator ensured", zap.String("collection", name))
	return nil
}

/* ------------------------- error helpers ------------------------- */

// serverError describes one class of server reply by its command error code
// and the phrases older servers and DocumentDB put in the message instead.
type serverError struct {
	code    int32
	phrases []string
}

var (
	namespaceExists = serverError{48, []string{"already exists", "namespace exists"}}
	noSuchCommand   = serverError{59, []string{"no such command"}}
	notImplemented  = serverError{115, []string{"not implemented", "not supported"}}
)

func (se serverError) matches(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == se.code {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range se.phrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func isNamespaceExistsErr(err error) bool { return namespaceExists.matches(err) }
func isNoSuchCommand(err error) bool      { return noSuchCommand.matches(err) }
func isNotImplemented(err error) bool     { return notImplemented.matches(err) }

/* ------------------------- JSON-Schema docs ---------------------- */

func usersSchema() bson.M {
	roles := bson.A{}
	for _, r := range models.AllRoles() {
		roles = append(roles, r)
	}
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"name", "email", "email_ci", "role", "is_active"},
			"properties": bson.M{
				"name":       bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"email":      bson.M{"bsonType": "string", "minLength": 3},
				"email_ci":   bson.M{"bsonType": "string", "minLength": 3},
				"role":       bson.M{"enum": roles},
				"is_active":  bson.M{"bsonType": "bool"},
				"last_login": bson.M{"bsonType": bson.A{"date", "null"}},
			},
		},
	}
}

// Credentials are opaque ciphertext; only the envelope is checked.
func credentialsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"user_id", "encrypted_credentials"},
			"properties": bson.M{
				"user_id":               bson.M{"bsonType": "string", "minLength": 1},
				"encrypted_credentials": bson.M{"bsonType": "string", "minLength": 1},
			},
		},
	}
}

func failedAttemptsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"email", "reason", "attempted_at"},
			"properties": bson.M{
				"email":        bson.M{"bsonType": "string"},
				"reason":       bson.M{"bsonType": "string"},
				"attempted_at": bson.M{"bsonType": "date"},
			},
		},
	}
}

func settingsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"user_id"},
			"properties": bson.M{
				"user_id":   bson.M{"bsonType": "string", "minLength": 1},
				"settings":  bson.M{"bsonType": "object"},
				"device_id": bson.M{"bsonType": "string"},
			},
		},
	}
}

func auditSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"category", "event_type", "created_at"},
			"properties": bson.M{
				"category":   bson.M{"bsonType": "string"},
				"event_type": bson.M{"bsonType": "string"},
				"created_at": bson.M{"bsonType": "date"},
			},
		},
	}
}
