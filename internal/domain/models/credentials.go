// internal/domain/models/credentials.go
package models

import "time"

// UserCredentials is the secret half of a user record. Password is plaintext
// only in memory; the vault persists the whole record encrypted.
type UserCredentials struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	TempPassword bool   `json:"tempPassword"`
}

// LoginStats is the local per-user counter record kept by the login tracker.
type LoginStats struct {
	LoginAttempts int        `json:"loginAttempts"`
	LastLogin     *time.Time `json:"lastLogin,omitempty"`
	LastFailure   *time.Time `json:"lastFailure,omitempty"`
	LockoutUntil  *time.Time `json:"lockoutUntil,omitempty"`
}

// IsLockedAt reports whether the record holds an unexpired lockout.
func (s LoginStats) IsLockedAt(now time.Time) bool {
	return s.LockoutUntil != nil && s.LockoutUntil.After(now)
}

// LoginStatus is the derived lockout state returned to callers.
type LoginStatus struct {
	LoginAttempts int        `json:"login_attempts"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
	IsLocked      bool       `json:"is_locked"`
	LockoutUntil  *time.Time `json:"lockout_until,omitempty"`
}

// FailedLoginAttempt is one append-only entry in the failed-attempt log,
// keyed by email. The window is applied when the log is read.
type FailedLoginAttempt struct {
	Email       string    `bson:"email" json:"email"`
	IPAddress   string    `bson:"ip_address" json:"ip_address"`
	UserAgent   string    `bson:"user_agent" json:"user_agent"`
	Reason      string    `bson:"reason" json:"reason"`
	AttemptedAt time.Time `bson:"attempted_at" json:"attempted_at"`
}

// Failure reasons recorded in the attempt log.
const (
	ReasonUserNotFound  = "User not found"
	ReasonWrongPassword = "Invalid password"
	ReasonUserInactive  = "User inactive"
)

// RequestMeta describes where an authentication request came from.
type RequestMeta struct {
	IP        string
	UserAgent string
}
