// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration.
//
// WAFFLE's CoreConfig handles framework-level settings like:
//   - HTTP/HTTPS ports and TLS configuration
//   - Logging level and format
//   - CORS settings
//   - Request body size limits
//   - Database connection timeouts
//
// AppConfig holds the storage backends, the encryption key material, the
// lockout policy, and the principals that get special treatment.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Maximum connections in pool (default: 100)
	MongoMinPoolSize uint64 // Minimum connections to keep warm (default: 10)

	// Remote call deadline; a remote tier that misses it counts as unavailable
	RemoteTimeout time.Duration

	// Encryption of credential records and the Retell API key
	EncryptionPassphrase string // At least phicrypt.MinPassphraseLength characters
	EncryptionSalt       string // Changing it makes existing ciphertext unreadable
	LegacyDoubleEncrypt  bool   // Also encrypt the password field on its own (old replicas)

	// Local cache tier
	CacheBackend  string        // "memory" or "redis"
	RedisAddr     string        // host:port
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration // Expiry of Redis keys; 0 keeps them until deleted

	// API key authentication for /api/*. Leave empty to disable.
	APIKey         string
	APICORSOrigins []string // Allowed browser origins for /api; empty allows any

	// Lockout policy
	LockoutMaxAttempts     int
	LockoutDuration        time.Duration
	FailedAttemptRetention time.Duration // Age after which failed attempts are purged
	PasswordMinStrength    int           // zxcvbn score 0-4 required of chosen passwords; 0 is off

	// Principals
	NonLockableEmails []string            // Never locked out
	UserIDAliases     map[string][]string // email -> extra user ids sharing its credentials
	DemoUserEmails    map[string]string   // demo user id -> email

	// Settings synchronization
	SettingsCacheTTL          time.Duration
	SettingsReconcileInterval time.Duration
	DeviceID                  string // Recorded on settings writes made by this process

	// Audit logging configuration
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	AuditLogAuth     string // Login outcomes, lockouts, password changes
	AuditLogAdmin    string // User CRUD, unlocks, tombstone changes
	AuditLogSettings string // Settings writes, imports, resets
}
