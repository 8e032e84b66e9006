// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called from EnsureSchema. Each collection set is idempotent:
an index whose key pattern already exists with the same uniqueness is
reused, one whose uniqueness differs is dropped and recreated. Errors are
aggregated so every problem is visible and startup can fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	var problems []string

	for _, set := range Sets() {
		if err := ensureIndexSet(ctx, db.Collection(set.Collection), set.Models, logger); err != nil {
			problems = append(problems, set.Collection+": "+err.Error())
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// Set is the desired indexes of one collection.
type Set struct {
	Collection string
	Models     []mongo.IndexModel
}

// Sets returns the desired index sets for every collection the service owns.
func Sets() []Set {
	return []Set{
		{
			Collection: "users",
			Models: []mongo.IndexModel{
				// Login lookup; one account per address
				{
					Keys:    bson.D{{Key: "email_ci", Value: 1}},
					Options: options.Index().SetUnique(true).SetName("uniq_users_email_ci"),
				},
				// Admin list: role then name
				{
					Keys:    bson.D{{Key: "role", Value: 1}, {Key: "name", Value: 1}},
					Options: options.Index().SetName("idx_users_role_name"),
				},
			},
		},
		{
			Collection: "user_credentials",
			Models: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "user_id", Value: 1}},
					Options: options.Index().SetUnique(true).SetName("uniq_credentials_user"),
				},
			},
		},
		{
			Collection: "failed_login_attempts",
			Models: []mongo.IndexModel{
				// Window queries per email (latest-first)
				{
					Keys:    bson.D{{Key: "email", Value: 1}, {Key: "attempted_at", Value: -1}},
					Options: options.Index().SetName("idx_failed_email_attempted"),
				},
				// Purge by age
				{
					Keys:    bson.D{{Key: "attempted_at", Value: 1}},
					Options: options.Index().SetName("idx_failed_attempted"),
				},
			},
		},
		{
			Collection: "user_settings",
			Models: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "user_id", Value: 1}},
					Options: options.Index().SetUnique(true).SetName("uniq_user_settings_user"),
				},
			},
		},
		{
			Collection: "audit_logs",
			Models: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "created_at", Value: -1}},
					Options: options.Index().SetName("idx_audit_created"),
				},
				{
					Keys:    bson.D{{Key: "category", Value: 1}, {Key: "event_type", Value: 1}, {Key: "created_at", Value: -1}},
					Options: options.Index().SetName("idx_audit_category_type"),
				},
				{
					Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
					Options: options.Index().SetName("idx_audit_user"),
				},
				// Failed logins are audited by email even when no user matched
				{
					Keys:    bson.D{{Key: "email", Value: 1}, {Key: "created_at", Value: -1}},
					Options: options.Index().SetName("idx_audit_email"),
				},
			},
		},
	}
}

/* -------------------------------------------------------------------------- */
/* Core helper: reconcile a set of desired indexes for one collection         */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, e := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", e.Key, e.Value))
	}
	return strings.Join(parts, ", ")
}

func sameBoolPtr(a, b *bool) bool {
	return (a != nil && *a) == (b != nil && *b)
}

func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsDuplicateKeyError(err) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "E11000") || strings.Contains(strings.ToLower(s), "duplicate key")
}

// Mongo/DocDB return IndexOptionsConflict when an index with the same keys
// exists under a different name.
func isOptionsConflictErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "IndexOptionsConflict")
}

func listExisting(ctx context.Context, coll *mongo.Collection, logger *zap.Logger) map[string]existingIndex {
	existing := map[string]existingIndex{}
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		// Collection may not exist yet; CreateOne will create it.
		return existing
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			logger.Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		existing[keySig(idx.Key)] = idx
	}
	return existing
}

func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel, logger *zap.Logger) error {
	var errs []string
	existing := listExisting(ctx, coll, logger)

	for _, m := range models {
		var name string
		var unique *bool
		if m.Options != nil {
			if m.Options.Name != nil {
				name = *m.Options.Name
			}
			unique = m.Options.Unique
		}
		sig := keySig(m.Keys.(bson.D))
		start := time.Now()
		fields := []zap.Field{
			zap.String("collection", coll.Name()),
			zap.String("name", name),
			zap.String("keys", sig),
			zap.Bool("unique", unique != nil && *unique),
		}

		if ex, ok := existing[sig]; ok {
			if sameBoolPtr(unique, ex.Unique) {
				logger.Debug("reusing existing index", append(fields, zap.String("existing_name", ex.Name))...)
				continue
			}
			// Uniqueness changed: drop and recreate.
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				logger.Warn("drop existing index failed", append(fields, zap.Error(err))...)
				errs = append(errs, fmt.Sprintf("%s: drop failed: %v", name, err))
				continue
			}
		}

		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			switch {
			case isDuplicateKeyErr(err) && unique != nil && *unique:
				errs = append(errs, fmt.Sprintf("%s: cannot create unique index (duplicates present)", name))
			case isOptionsConflictErr(err):
				errs = append(errs, fmt.Sprintf("%s: options conflict: %v", name, err))
			default:
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			}
			logger.Warn("index ensure failed", append(fields, zap.Error(err))...)
			continue
		}
		logger.Info("index ensured", append(fields, zap.Duration("took", time.Since(start)))...)
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
