// internal/domain/models/user.go
package models

// Terminology: User Identifiers
//   - UserID / userID / user_id: the string id of a user. Directory users use the
//     hex form of their MongoDB ObjectID; demo accounts may use configured ids.
//   - Email: what the user types to log in (stored lowercase)

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is a directory profile. Credentials are never part of the profile;
// they live encrypted in the credential vault.
type User struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name     string             `bson:"name" json:"name"`
	Email    string             `bson:"email" json:"email"` // lowercase
	EmailCI  string             `bson:"email_ci" json:"-"`  // folded for case/diacritic-insensitive matching
	Role     string             `bson:"role" json:"role"`
	IsActive bool               `bson:"is_active" json:"is_active"`

	LastLogin *time.Time `bson:"last_login,omitempty" json:"last_login,omitempty"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at"`
}

// User roles
const (
	RoleSuperUser          = "super_user"
	RoleAdmin              = "admin"
	RoleHealthcareProvider = "healthcare_provider"
	RoleStaff              = "staff"
)

// AllRoles returns all valid user roles.
func AllRoles() []string {
	return []string{
		RoleSuperUser,
		RoleAdmin,
		RoleHealthcareProvider,
		RoleStaff,
	}
}

// IsValidRole checks if a role is valid.
func IsValidRole(role string) bool {
	for _, r := range AllRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// SystemUser is the composed view of a user: directory profile, decrypted
// credentials when available, and the current lockout state. It is never
// stored as a unit.
type SystemUser struct {
	User
	Credentials   *UserCredentials `json:"-"`
	LastLogin     *time.Time       `json:"last_login,omitempty"`
	LoginAttempts int              `json:"login_attempts"`
	IsLocked      bool             `json:"is_locked"`
	LockoutUntil  *time.Time       `json:"lockout_until,omitempty"`
}
