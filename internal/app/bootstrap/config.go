// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/carexps/internal/app/system/authutil"
	"github.com/dalemusser/carexps/internal/app/system/normalize"
	"github.com/dalemusser/carexps/internal/app/system/phicrypt"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EnvVarPrefix is the prefix for environment variables.
const EnvVarPrefix = "CAREXPS"

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// appConfigKeys defines the configuration keys for this application.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, cache_backend, etc.
//   - Environment variables: CAREXPS_MONGO_URI, CAREXPS_CACHE_BACKEND, etc.
//   - Command-line flags: --mongo_uri, --cache_backend, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "carexps", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "remote_timeout", Default: "5s", Desc: "Deadline for each remote storage call"},

	// Encryption
	{Name: "encryption_passphrase", Default: "", Desc: "Passphrase for credential and API key encryption (16+ chars)"},
	{Name: "encryption_salt", Default: "carexps", Desc: "Key derivation salt (changing it orphans existing ciphertext)"},
	{Name: "legacy_double_encrypt", Default: false, Desc: "Write credentials with the password encrypted twice"},

	// Local cache tier
	{Name: "cache_backend", Default: CacheMemory, Desc: "Local cache tier: 'memory' or 'redis'"},
	{Name: "redis_addr", Default: "localhost:6379", Desc: "Redis address (host:port)"},
	{Name: "redis_password", Default: "", Desc: "Redis password"},
	{Name: "redis_db", Default: 0, Desc: "Redis database number"},
	{Name: "cache_ttl", Default: "0s", Desc: "Expiry of Redis cache keys (0 keeps them)"},

	// API access
	{Name: "api_key", Default: "", Desc: "API key for /api access (required in prod; empty leaves /api open in dev)"},
	{Name: "api_cors_origins", Default: "", Desc: "Comma-separated browser origins allowed on /api (blank allows any)"},

	// Lockout policy
	{Name: "lockout_max_attempts", Default: 3, Desc: "Failed logins before an account locks"},
	{Name: "lockout_duration", Default: "30m", Desc: "How long a lockout lasts"},
	{Name: "failed_attempt_retention", Default: "24h", Desc: "Age after which failed login attempts are purged"},
	{Name: "password_min_strength", Default: 0, Desc: "Minimum zxcvbn score (0-4) for chosen passwords; 0 disables"},

	// Principals
	{Name: "nonlockable_emails", Default: "", Desc: "Comma-separated emails that are never locked out"},
	{Name: "user_id_aliases", Default: "", Desc: "Extra user ids per email: 'email=id1|id2;email2=id3'"},
	{Name: "demo_user_emails", Default: "", Desc: "Demo user emails: 'userid=email,userid2=email2'"},

	// Settings synchronization
	{Name: "settings_cache_ttl", Default: "5m", Desc: "How long a cached settings entry is served without a store read"},
	{Name: "settings_reconcile_interval", Default: "1m", Desc: "How often unconfirmed settings writes are retried"},
	{Name: "device_id", Default: "", Desc: "Device id recorded on settings writes (blank generates one)"},

	// Audit logging settings
	{Name: "audit_log_auth", Default: "all", Desc: "Auth event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_admin", Default: "all", Desc: "Admin event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_settings", Default: "db", Desc: "Settings event logging: 'all' (db+log), 'db', 'log', or 'off'"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, CAREXPS_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, EnvVarPrefix, appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	aliases, err := parseAliases(appValues.String("user_id_aliases"))
	if err != nil {
		return nil, AppConfig{}, err
	}
	demo, err := parseDemoUsers(appValues.String("demo_user_emails"))
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),
		RemoteTimeout:    appValues.Duration("remote_timeout", 5*time.Second),

		// Encryption
		EncryptionPassphrase: appValues.String("encryption_passphrase"),
		EncryptionSalt:       appValues.String("encryption_salt"),
		LegacyDoubleEncrypt:  appValues.Bool("legacy_double_encrypt"),

		// Local cache tier
		CacheBackend:  strings.ToLower(strings.TrimSpace(appValues.String("cache_backend"))),
		RedisAddr:     appValues.String("redis_addr"),
		RedisPassword: appValues.String("redis_password"),
		RedisDB:       appValues.Int("redis_db"),
		CacheTTL:      appValues.Duration("cache_ttl", 0),

		APIKey:         appValues.String("api_key"),
		APICORSOrigins: splitList(appValues.String("api_cors_origins")),

		// Lockout
		LockoutMaxAttempts:     appValues.Int("lockout_max_attempts"),
		LockoutDuration:        appValues.Duration("lockout_duration", 30*time.Minute),
		FailedAttemptRetention: appValues.Duration("failed_attempt_retention", 24*time.Hour),
		PasswordMinStrength:    appValues.Int("password_min_strength"),

		// Principals
		NonLockableEmails: splitList(appValues.String("nonlockable_emails")),
		UserIDAliases:     aliases,
		DemoUserEmails:    demo,

		// Settings
		SettingsCacheTTL:          appValues.Duration("settings_cache_ttl", 5*time.Minute),
		SettingsReconcileInterval: appValues.Duration("settings_reconcile_interval", time.Minute),
		DeviceID:                  appValues.String("device_id"),

		// Audit logging
		AuditLogAuth:     appValues.String("audit_log_auth"),
		AuditLogAdmin:    appValues.String("audit_log_admin"),
		AuditLogSettings: appValues.String("audit_log_settings"),
	}
	if appCfg.DeviceID == "" {
		appCfg.DeviceID = "server-" + uuid.NewString()
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	if len(appCfg.EncryptionPassphrase) < phicrypt.MinPassphraseLength {
		logger.Error("encryption passphrase missing or too short",
			zap.Int("min_length", phicrypt.MinPassphraseLength))
		return phicrypt.ErrPassphraseTooShort
	}
	if appCfg.EncryptionSalt == "" {
		return errors.New("encryption_salt must not be empty")
	}

	switch appCfg.CacheBackend {
	case CacheMemory:
	case CacheRedis:
		if appCfg.RedisAddr == "" {
			return errors.New("redis_addr is required when cache_backend is redis")
		}
	default:
		return fmt.Errorf("unknown cache_backend %q (want %q or %q)", appCfg.CacheBackend, CacheMemory, CacheRedis)
	}

	if appCfg.LockoutMaxAttempts < 1 {
		return fmt.Errorf("lockout_max_attempts must be at least 1, got %d", appCfg.LockoutMaxAttempts)
	}
	if appCfg.LockoutDuration <= 0 {
		return errors.New("lockout_duration must be positive")
	}
	if appCfg.FailedAttemptRetention < appCfg.LockoutDuration {
		return fmt.Errorf("failed_attempt_retention (%s) must be at least lockout_duration (%s)",
			appCfg.FailedAttemptRetention, appCfg.LockoutDuration)
	}
	if appCfg.PasswordMinStrength < 0 || appCfg.PasswordMinStrength > authutil.MaxStrength {
		return fmt.Errorf("password_min_strength must be between 0 and %d, got %d", authutil.MaxStrength, appCfg.PasswordMinStrength)
	}
	if appCfg.SettingsReconcileInterval <= 0 {
		return errors.New("settings_reconcile_interval must be positive")
	}

	if appCfg.APIKey == "" && coreCfg != nil && coreCfg.Env == "prod" {
		logger.Error("api_key is required in prod")
		return errors.New("api_key must be set when env is prod")
	}

	return nil
}

// splitList parses a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseAliases parses "email=id1|id2;email2=id3".
func parseAliases(s string) (map[string][]string, error) {
	out := map[string][]string{}
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		email, ids, ok := strings.Cut(entry, "=")
		email = normalize.Email(email)
		if !ok || email == "" {
			return nil, fmt.Errorf("user_id_aliases: malformed entry %q", entry)
		}
		for _, id := range strings.Split(ids, "|") {
			if id = strings.TrimSpace(id); id != "" {
				out[email] = append(out[email], id)
			}
		}
	}
	return out, nil
}

// parseDemoUsers parses "userid=email,userid2=email2".
func parseDemoUsers(s string) (map[string]string, error) {
	out := map[string]string{}
	for _, entry := range splitList(s) {
		id, email, ok := strings.Cut(entry, "=")
		id, email = strings.TrimSpace(id), normalize.Email(email)
		if !ok || id == "" || email == "" {
			return nil, fmt.Errorf("demo_user_emails: malformed entry %q", entry)
		}
		out[id] = email
	}
	return out, nil
}
