// internal/app/bootstrap/services.go
package bootstrap

import (
	"fmt"

	"github.com/dalemusser/carexps/internal/app/services/identity"
	"github.com/dalemusser/carexps/internal/app/services/logintracker"
	"github.com/dalemusser/carexps/internal/app/services/settingsync"
	"github.com/dalemusser/carexps/internal/app/services/usermgmt"
	"github.com/dalemusser/carexps/internal/app/services/vault"
	"github.com/dalemusser/carexps/internal/app/store/audit"
	credentialstore "github.com/dalemusser/carexps/internal/app/store/credentials"
	failedloginstore "github.com/dalemusser/carexps/internal/app/store/failedlogins"
	settingsstore "github.com/dalemusser/carexps/internal/app/store/settings"
	userstore "github.com/dalemusser/carexps/internal/app/store/users"
	"github.com/dalemusser/carexps/internal/app/system/auditlog"
	"github.com/dalemusser/carexps/internal/app/system/cachekeys"
	"github.com/dalemusser/carexps/internal/app/system/kv"
	"github.com/dalemusser/carexps/internal/app/system/phicrypt"
	"go.uber.org/zap"
)

// Services are the application services shared by handlers, background
// jobs and the lifecycle hooks.
type Services struct {
	Users          *userstore.Store
	FailedAttempts *failedloginstore.Store
	Audit          *auditlog.Logger
	AuditEvents    *audit.Store

	Vault    *vault.Vault
	Identity *identity.Resolver
	Tracker  *logintracker.Tracker
	UserMgmt *usermgmt.Service
	Settings *settingsync.Service
}

// buildServices wires the services over the connected backends. Credential
// reads try MongoDB first and fall back to the local cache tier.
func buildServices(appCfg AppConfig, deps DBDeps, logger *zap.Logger) (*Services, error) {
	cipher, err := phicrypt.New(appCfg.EncryptionPassphrase, appCfg.EncryptionSalt)
	if err != nil {
		return nil, fmt.Errorf("init encryption: %w", err)
	}

	db := deps.MongoDatabase
	users := userstore.New(db)
	attempts := failedloginstore.New(db)
	auditEvents := audit.New(db)
	auditLogger := auditlog.New(auditEvents, logger, auditlog.Config{
		Auth:     appCfg.AuditLogAuth,
		Admin:    appCfg.AuditLogAdmin,
		Settings: appCfg.AuditLogSettings,
	})

	tiers := kv.NewTiers(logger,
		credentialstore.New(db),
		kv.Prefixed(deps.Cache, cachekeys.CredentialsPrefix),
	)
	v := vault.New(cipher, tiers, deps.Cache, logger, vault.Options{
		LegacyDoubleEncrypt: appCfg.LegacyDoubleEncrypt,
	})

	ident := identity.New(users, v, identity.Config{
		DemoUserEmails: appCfg.DemoUserEmails,
		NonLockable:    appCfg.NonLockableEmails,
		Aliases:        appCfg.UserIDAliases,
	}, logger)

	tracker := logintracker.New(attempts, deps.Cache, ident, users, logintracker.Config{
		MaxAttempts:     appCfg.LockoutMaxAttempts,
		LockoutDuration: appCfg.LockoutDuration,
	}, logger)

	mgmt := usermgmt.New(usermgmt.Deps{
		Directory: users,
		Vault:     v,
		Tracker:   tracker,
		Identity:  ident,
		Cache:     deps.Cache,
		Audit:     auditLogger,
		Logger:    logger,

		MinPasswordStrength: appCfg.PasswordMinStrength,
	})

	settingsStore := settingsstore.New(db, logger)
	settings := settingsync.New(settingsStore, settingsStore, deps.Cache, cipher, auditLogger, logger, settingsync.Config{
		CacheTTL: appCfg.SettingsCacheTTL,
		DeviceID: appCfg.DeviceID,
	})

	return &Services{
		Users:          users,
		FailedAttempts: attempts,
		Audit:          auditLogger,
		AuditEvents:    auditEvents,
		Vault:          v,
		Identity:       ident,
		Tracker:        tracker,
		UserMgmt:       mgmt,
		Settings:       settings,
	}, nil
}
