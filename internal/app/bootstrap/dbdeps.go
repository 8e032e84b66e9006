// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/carexps/internal/app/system/kv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database and backend dependencies for this WAFFLE app.
//
// This struct is created in ConnectDB and passed to subsequent lifecycle
// hooks: EnsureSchema, Startup, BuildHandler, and Shutdown. The Shutdown
// hook closes these connections.
type DBDeps struct {
	// MongoDB client and database
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	// Redis client; nil when the local cache tier is in memory
	Redis *redis.Client

	// Cache is the local cache tier (kv.Memory or kv.Redis)
	Cache kv.Backend

	// Services built over the backends above
	Services *Services
}
