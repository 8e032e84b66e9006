package validators

import (
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/carexps/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func TestEnsureAll(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("EnsureAll() error = %v", err)
	}

	for _, c := range Collections() {
		exists, err := collectionExists(ctx, db, c.Name)
		if err != nil {
			t.Errorf("collectionExists(%s) error = %v", c.Name, err)
			continue
		}
		if !exists {
			t.Errorf("collection %s should exist after EnsureAll", c.Name)
		}
	}
}

func TestEnsureAll_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("First EnsureAll() error = %v", err)
	}
	if err := EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("Second EnsureAll() error = %v", err)
	}
}

// isValidationFailure reports a document rejected by a collection validator.
func isValidationFailure(err error) bool {
	var we mongo.WriteException
	if !errors.As(err, &we) {
		return false
	}
	for _, e := range we.WriteErrors {
		if e.Code == 121 {
			return true
		}
	}
	return false
}

func TestEnsureAll_RejectsInvalidDocuments(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("EnsureAll() error = %v", err)
	}

	now := time.Now().UTC()
	tests := []struct {
		name    string
		coll    string
		doc     bson.M
		wantErr bool
	}{
		{"valid user", "users", bson.M{"name": "Pat", "email": "pat@example.com", "email_ci": "pat@example.com", "role": "staff", "is_active": true}, false},
		{"unknown role", "users", bson.M{"name": "Pat", "email": "p2@example.com", "email_ci": "p2@example.com", "role": "wizard", "is_active": true}, true},
		{"blank name", "users", bson.M{"name": "  ", "email": "p3@example.com", "email_ci": "p3@example.com", "role": "staff", "is_active": true}, true},
		{"credentials without blob", "user_credentials", bson.M{"user_id": "u1"}, true},
		{"attempt with string time", "failed_login_attempts", bson.M{"email": "a@example.com", "reason": "x", "attempted_at": "yesterday"}, true},
		{"valid attempt", "failed_login_attempts", bson.M{"email": "a@example.com", "reason": "x", "attempted_at": now}, false},
		{"settings without user", "user_settings", bson.M{"settings": bson.M{}}, true},
		{"audit without type", "audit_logs", bson.M{"category": "auth", "created_at": now}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.Collection(tt.coll).InsertOne(ctx, tt.doc)
			if tt.wantErr && !isValidationFailure(err) {
				t.Errorf("InsertOne() error = %v, want a validation failure", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("InsertOne() error = %v", err)
			}
		})
	}
}

func TestCollectionExists(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	exists, err := collectionExists(ctx, db, "nonexistent_collection")
	if err != nil {
		t.Fatalf("collectionExists() error = %v", err)
	}
	if exists {
		t.Error("collectionExists() should return false for nonexistent collection")
	}

	if err := db.CreateCollection(ctx, "test_collection"); err != nil {
		t.Fatalf("CreateCollection() error = %v", err)
	}

	exists, err = collectionExists(ctx, db, "test_collection")
	if err != nil {
		t.Fatalf("collectionExists() error = %v", err)
	}
	if !exists {
		t.Error("collectionExists() should return true for existing collection")
	}
}

func TestEnsureCollection(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := ensureCollection(ctx, db, "new_collection", zap.NewNop())
	if err != nil {
		t.Fatalf("First ensureCollection() error = %v", err)
	}
	if !created {
		t.Error("First ensureCollection() should return created=true")
	}

	created, err = ensureCollection(ctx, db, "new_collection", zap.NewNop())
	if err != nil {
		t.Fatalf("Second ensureCollection() error = %v", err)
	}
	if created {
		t.Error("Second ensureCollection() should return created=false")
	}
}

func TestServerErrorClassifiers(t *testing.T) {
	type classifier struct {
		name string
		fn   func(error) bool
	}
	exists := classifier{"namespace exists", isNamespaceExistsErr}
	noCmd := classifier{"no such command", isNoSuchCommand}
	notImpl := classifier{"not implemented", isNotImplemented}

	tests := []struct {
		err  error
		want classifier
	}{
		{mongo.CommandError{Code: 48, Message: "Collection carexps.users already exists."}, exists},
		{errors.New("NamespaceExists: namespace exists"), exists},
		{mongo.CommandError{Code: 59, Message: "no such cmd: collMod"}, noCmd},
		{errors.New("No such command: 'collMod'"), noCmd},
		{mongo.CommandError{Code: 115, Message: "collMod"}, notImpl},
		{mongo.CommandError{Code: 303, Message: "Feature not supported: validator"}, notImpl},
		{errors.New("validationLevel NOT IMPLEMENTED"), notImpl},
	}

	all := []classifier{exists, noCmd, notImpl}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			for _, c := range all {
				want := c.name == tt.want.name
				if got := c.fn(tt.err); got != want {
					t.Errorf("%s(%v) = %v, want %v", c.name, tt.err, got, want)
				}
			}
		})
	}

	for _, c := range all {
		if c.fn(nil) || c.fn(errors.New("connection reset by peer")) {
			t.Errorf("%s matched an unrelated error", c.name)
		}
	}
}

func TestUsersSchema_RolesFollowModel(t *testing.T) {
	props := usersSchema()["$jsonSchema"].(bson.M)["properties"].(bson.M)
	roles := props["role"].(bson.M)["enum"].(bson.A)
	if len(roles) != 4 {
		t.Errorf("role enum = %v, want every model role", roles)
	}
}
