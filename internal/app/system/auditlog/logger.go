// internal/app/system/auditlog/logger.go
package auditlog

// Terminology: User Identifiers
//   - UserID / userID / user_id: the string id of the affected user
//   - Email: the address typed at login

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/carexps/internal/app/store/audit"
	"github.com/dalemusser/carexps/internal/domain/models"
	"go.uber.org/zap"
)

// Config holds audit logging configuration.
// Each value is "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only) or "off".
type Config struct {
	Auth     string
	Admin    string
	Settings string
}

// Recorder persists audit events. *audit.Store implements it.
type Recorder interface {
	Log(ctx context.Context, event audit.Event) error
}

// Logger is the internal diagnostic channel. Callers get enumeration-safe
// results; the reason a login failed is only recorded here.
type Logger struct {
	store  Recorder
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger. store may be nil when no category is
// configured to write to the database.
func New(store Recorder, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	}
	if event.UserID != "" {
		fields = append(fields, zap.String("user_id", event.UserID))
	}
	if event.Email != "" {
		fields = append(fields, zap.String("email", event.Email))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// A nil Logger is a no-op.
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryAuth:
		setting = l.config.Auth
	case audit.CategoryAdmin:
		setting = l.config.Admin
	case audit.CategorySettings:
		setting = l.config.Settings
	}
	if setting == "" {
		setting = "all"
	}
	if setting == "off" {
		return
	}

	if setting == "all" || setting == "log" {
		l.logToZap(event)
	}

	if (setting == "all" || setting == "db") && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

func (l *Logger) auth(ctx context.Context, meta models.RequestMeta, eventType, userID, email string, success bool, reason string, details map[string]string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     eventType,
		UserID:        userID,
		Email:         email,
		IP:            meta.IP,
		UserAgent:     meta.UserAgent,
		Success:       success,
		FailureReason: reason,
		Details:       details,
	})
}

// --- Authentication Events ---

// LoginSuccess logs a successful login.
func (l *Logger) LoginSuccess(ctx context.Context, meta models.RequestMeta, userID, email string) {
	l.auth(ctx, meta, audit.EventLoginSuccess, userID, email, true, "", nil)
}

// LoginFailedUserNotFound logs a login for an email with no directory entry.
func (l *Logger) LoginFailedUserNotFound(ctx context.Context, meta models.RequestMeta, email string) {
	l.auth(ctx, meta, audit.EventLoginFailedUserNotFound, "", email, false, "user not found", nil)
}

// LoginFailedWrongPassword logs a password mismatch.
func (l *Logger) LoginFailedWrongPassword(ctx context.Context, meta models.RequestMeta, userID, email string, attempts int) {
	l.auth(ctx, meta, audit.EventLoginFailedWrongPassword, userID, email, false, "wrong password",
		map[string]string{"attempts": strconv.Itoa(attempts)})
}

// LoginFailedNoCredentials logs a login for a user with no readable credential on any tier.
func (l *Logger) LoginFailedNoCredentials(ctx context.Context, meta models.RequestMeta, userID, email string) {
	l.auth(ctx, meta, audit.EventLoginFailedNoCredentials, userID, email, false, "no credentials", nil)
}

// LoginFailedUserInactive logs a login for a deactivated account.
func (l *Logger) LoginFailedUserInactive(ctx context.Context, meta models.RequestMeta, userID, email string) {
	l.auth(ctx, meta, audit.EventLoginFailedUserInactive, userID, email, false, "user inactive", nil)
}

// LoginLockedOut logs a login refused because the account is locked.
func (l *Logger) LoginLockedOut(ctx context.Context, meta models.RequestMeta, userID, email string, until time.Time) {
	l.auth(ctx, meta, audit.EventLoginLockedOut, userID, email, false, "account locked",
		map[string]string{"lockout_until": until.UTC().Format(time.RFC3339)})
}

// LockoutBypassed logs that lockout state was force-cleared for a non-lockable account.
func (l *Logger) LockoutBypassed(ctx context.Context, meta models.RequestMeta, userID, email string) {
	l.auth(ctx, meta, audit.EventLockoutBypassed, userID, email, true, "", nil)
}

// PasswordChanged logs a verified password change.
func (l *Logger) PasswordChanged(ctx context.Context, userID string, aliases int) {
	l.auth(ctx, models.RequestMeta{}, audit.EventPasswordChanged, userID, "", true, "",
		map[string]string{"aliases": strconv.Itoa(aliases)})
}

// PasswordChangeUnverified logs a password change whose read-back check failed.
func (l *Logger) PasswordChangeUnverified(ctx context.Context, userID string) {
	l.auth(ctx, models.RequestMeta{}, audit.EventPasswordChangeUnverified, userID, "", false, "verification failed", nil)
}

// --- Admin Events ---

func (l *Logger) admin(ctx context.Context, eventType, userID, email string, details map[string]string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		Success:   true,
		Details:   details,
	})
}

// UserCreated logs the creation of a user.
func (l *Logger) UserCreated(ctx context.Context, userID, email, role string, withPassword bool) {
	l.admin(ctx, audit.EventUserCreated, userID, email, map[string]string{
		"role":          role,
		"with_password": strconv.FormatBool(withPassword),
	})
}

// UserUpdated logs a profile change. fields names the changed fields.
func (l *Logger) UserUpdated(ctx context.Context, userID string, fields []string) {
	l.admin(ctx, audit.EventUserUpdated, userID, "", map[string]string{
		"fields": strings.Join(fields, ","),
	})
}

// UserDeleted logs the deletion of a user.
func (l *Logger) UserDeleted(ctx context.Context, userID, email string) {
	l.admin(ctx, audit.EventUserDeleted, userID, email, nil)
}

// UserUnlocked logs an administrative lockout clear.
func (l *Logger) UserUnlocked(ctx context.Context, userID string) {
	l.admin(ctx, audit.EventUserUnlocked, userID, "", nil)
}

// TombstoneCleared logs that a deleted email may be used again.
func (l *Logger) TombstoneCleared(ctx context.Context, email string) {
	l.admin(ctx, audit.EventTombstoneCleared, "", email, nil)
}

// --- Settings Events ---

// Settings logs a settings write. eventType is one of the audit.EventSettings* values.
func (l *Logger) Settings(ctx context.Context, eventType, userID, mode string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategorySettings,
		EventType: eventType,
		UserID:    userID,
		Success:   true,
		Details:   map[string]string{"mode": mode},
	})
}
