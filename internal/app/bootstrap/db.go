// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/carexps/internal/app/system/indexes"
	"github.com/dalemusser/carexps/internal/app/system/kv"
	"github.com/dalemusser/carexps/internal/app/system/timeouts"
	"github.com/dalemusser/carexps/internal/app/system/validators"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisKeyPrefix namespaces every key this service writes to Redis.
const redisKeyPrefix = "carexps:"

// ConnectDB connects to MongoDB and the local cache tier, then builds the
// services over them.
//
// WAFFLE calls this after configuration is loaded but before EnsureSchema and
// Startup.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	timeouts.Configure(timeouts.Config{Short: appCfg.RemoteTimeout})

	// Configure MongoDB connection pool
	poolCfg := wafflemongo.DefaultPoolConfig()
	if appCfg.MongoMaxPoolSize > 0 {
		poolCfg.MaxPoolSize = appCfg.MongoMaxPoolSize
	}
	if appCfg.MongoMinPoolSize > 0 {
		poolCfg.MinPoolSize = appCfg.MongoMinPoolSize
	}

	client, err := wafflemongo.ConnectWithPool(ctx, appCfg.MongoURI, appCfg.MongoDatabase, poolCfg)
	if err != nil {
		return DBDeps{}, err
	}

	db := client.Database(appCfg.MongoDatabase)

	logger.Info("connected to MongoDB",
		zap.String("database", appCfg.MongoDatabase),
		zap.Uint64("max_pool_size", poolCfg.MaxPoolSize),
		zap.Uint64("min_pool_size", poolCfg.MinPoolSize),
	)

	deps := DBDeps{
		MongoClient:   client,
		MongoDatabase: db,
	}

	switch appCfg.CacheBackend {
	case CacheRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     appCfg.RedisAddr,
			Password: appCfg.RedisPassword,
			DB:       appCfg.RedisDB,
		})
		cache := kv.NewRedis(rdb, redisKeyPrefix, appCfg.CacheTTL)
		pctx, cancel := context.WithTimeout(ctx, timeouts.Ping())
		err := cache.Ping(pctx)
		cancel()
		if err != nil {
			_ = rdb.Close()
			_ = client.Disconnect(ctx)
			return DBDeps{}, fmt.Errorf("connect redis %s: %w", appCfg.RedisAddr, err)
		}
		deps.Redis = rdb
		deps.Cache = cache
		logger.Info("connected to Redis cache tier",
			zap.String("addr", appCfg.RedisAddr),
			zap.Int("db", appCfg.RedisDB))
	default:
		deps.Cache = kv.NewNamedMemory("local")
		logger.Info("using in-memory cache tier")
	}

	svcs, err := buildServices(appCfg, deps, logger)
	if err != nil {
		if deps.Redis != nil {
			_ = deps.Redis.Close()
		}
		_ = client.Disconnect(ctx)
		return DBDeps{}, err
	}
	deps.Services = svcs

	return deps, nil
}

// EnsureSchema creates the collections with their validators, then the
// indexes.
//
// This runs after ConnectDB succeeds but before Startup and before the HTTP
// handler is built. The context has a timeout based on
// coreCfg.IndexBootTimeout.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	// Collections first so indexes are built on validated collections.
	logger.Info("ensuring collections and validators")
	if err := validators.EnsureAll(ctx, deps.MongoDatabase, logger); err != nil {
		logger.Error("failed to ensure validators", zap.Error(err))
		return err
	}

	logger.Info("ensuring database indexes")
	if err := indexes.EnsureAll(ctx, deps.MongoDatabase, logger); err != nil {
		logger.Error("failed to ensure indexes", zap.Error(err))
		return err
	}

	logger.Info("database schema ensured successfully")
	return nil
}
