// Package testutil holds the MongoDB and Redis fixtures shared by package
// tests. MongoDB tests skip when no server is reachable; Redis tests run
// against an in-process miniredis.
package testutil

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dalemusser/carexps/internal/app/system/indexes"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoURIEnv overrides the test server address.
const MongoURIEnv = "CAREXPS_TEST_MONGO_URI"

const (
	defaultMongoURI = "mongodb://localhost:27017"
	dbPrefix        = "carexps_test_"
	// MongoDB caps database names at 63 bytes.
	maxDBName = 63
)

func mongoURI() string {
	if uri := os.Getenv(MongoURIEnv); uri != "" {
		return uri
	}
	return defaultMongoURI
}

var (
	shared    *mongo.Client
	sharedErr error
	connOnce  sync.Once
)

// sharedClient connects once per test binary. Server selection is short so a
// machine without MongoDB skips in a few seconds instead of hanging.
func sharedClient() (*mongo.Client, error) {
	connOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		opts := options.Client().
			ApplyURI(mongoURI()).
			SetMaxPoolSize(100).
			SetConnectTimeout(3 * time.Second).
			SetServerSelectionTimeout(3 * time.Second)
		shared, sharedErr = mongo.Connect(ctx, opts)
		if sharedErr == nil {
			sharedErr = shared.Ping(ctx, nil)
		}
	})
	return shared, sharedErr
}

// SetupTestDB gives the test its own empty database with the production
// indexes, so unique email and user_id constraints behave as in service.
// The database is dropped again on cleanup.
func SetupTestDB(t *testing.T) *mongo.Database {
	t.Helper()

	client, err := sharedClient()
	if err != nil {
		t.Skipf("MongoDB not reachable at %s: %v", mongoURI(), err)
	}

	db := client.Database(DBName(t.Name()))
	ctx, cancel := TestContext()
	defer cancel()

	if err := db.Drop(ctx); err != nil {
		t.Fatalf("drop %s: %v", db.Name(), err)
	}
	if err := indexes.EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.Drop(ctx); err != nil {
			t.Logf("cleanup: drop %s: %v", db.Name(), err)
		}
	})
	return db
}

// DBName maps a test name to a legal database name. Names that would exceed
// the limit keep a readable head plus a hash of the full name, so sibling
// subtests with long shared prefixes do not collide.
func DBName(testName string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, testName)

	name := dbPrefix + clean
	if len(name) <= maxDBName {
		return name
	}
	sum := sha1.Sum([]byte(testName))
	tag := hex.EncodeToString(sum[:])[:12]
	return name[:maxDBName-len(tag)-1] + "_" + tag
}

// TestContext bounds a store call in a test.
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// SetupTestRedis starts a miniredis server and a go-redis client for it.
// Both are closed on cleanup. The server handle lets tests fast-forward TTLs
// or simulate an outage with Close.
func SetupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, server
}
