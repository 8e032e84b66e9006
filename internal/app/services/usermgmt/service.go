// Package usermgmt is the authentication state machine and the user
// lifecycle built on it: login with lockout, password rotation with
// self-verification, and creation and deletion of users with their
// credentials.
//
// Authenticate is enumeration-safe. Unknown user, wrong password, missing
// credentials and inactive account all return nil, nil; the distinction is
// only recorded in the audit log and metrics. A locked account is the one
// failure reported as an error.
package usermgmt

import (
	"context"
	"errors"
	"fmt"
	"time"

	userstore "github.com/dalemusser/carexps/internal/app/store/users"
	"github.com/dalemusser/carexps/internal/app/services/identity"
	"github.com/dalemusser/carexps/internal/app/services/logintracker"
	"github.com/dalemusser/carexps/internal/app/services/vault"
	"github.com/dalemusser/carexps/internal/app/system/auditlog"
	"github.com/dalemusser/carexps/internal/app/system/authutil"
	"github.com/dalemusser/carexps/internal/app/system/inputval"
	"github.com/dalemusser/carexps/internal/app/system/kv"
	"github.com/dalemusser/carexps/internal/app/system/metrics"
	"github.com/dalemusser/carexps/internal/app/system/normalize"
	"github.com/dalemusser/carexps/internal/app/system/timeouts"
	"github.com/dalemusser/carexps/internal/domain/models"
	"go.uber.org/zap"
)

// Directory is the user profile store. *userstore.Store implements it.
type Directory interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, in userstore.CreateInput) (models.User, error)
	Update(ctx context.Context, id string, in userstore.UpdateInput) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) (int64, error)
	List(ctx context.Context) ([]models.User, error)
}

// Deps are the collaborators of a Service. Audit may be nil.
type Deps struct {
	Directory Directory
	Vault     *vault.Vault
	Tracker   *logintracker.Tracker
	Identity  *identity.Resolver
	// Cache is the local cache holding the tombstone lists.
	Cache  kv.Backend
	Audit  *auditlog.Logger
	Logger *zap.Logger
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
	// MinPasswordStrength is the lowest zxcvbn score accepted for a chosen
	// password. Zero disables the check.
	MinPasswordStrength int
}

// Service is safe for concurrent use.
type Service struct {
	dir     Directory
	vault   *vault.Vault
	tracker *logintracker.Tracker
	ident   *identity.Resolver
	audit   *auditlog.Logger
	logger  *zap.Logger
	now     func() time.Time
	tombs   *tombstones

	minStrength int
}

// New returns a Service.
func New(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{
		dir:     d.Directory,
		vault:   d.Vault,
		tracker: d.Tracker,
		ident:   d.Identity,
		audit:   d.Audit,
		logger:  d.Logger,
		now:     d.Now,
		tombs:   &tombstones{cache: d.Cache, logger: d.Logger},

		minStrength: d.MinPasswordStrength,
	}
}

// Authenticate checks email and password. It returns the composed user on
// success, nil, nil on any credential failure, and a *LockedError when the
// account is locked.
func (s *Service) Authenticate(ctx context.Context, email, password string, meta models.RequestMeta) (*models.SystemUser, error) {
	email = normalize.Email(email)

	u, err := s.userByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		s.tracker.RecordFailure(ctx, email, models.ReasonUserNotFound, meta)
		s.audit.LoginFailedUserNotFound(ctx, meta, email)
		metrics.AuthAttempts.WithLabelValues(metrics.OutcomeUserNotFound).Inc()
		return nil, nil
	}
	id := u.ID.Hex()

	if s.ident.IsNonLockable(email) {
		s.tracker.ForceClear(ctx, id, email)
		s.audit.LockoutBypassed(ctx, meta, id, email)
	} else if st := s.tracker.GetStats(ctx, id); st.IsLocked {
		s.audit.LoginLockedOut(ctx, meta, id, email, *st.LockoutUntil)
		metrics.AuthAttempts.WithLabelValues(metrics.OutcomeLocked).Inc()
		return nil, &LockedError{Until: *st.LockoutUntil, Remaining: st.LockoutUntil.Sub(s.now())}
	}

	if !u.IsActive {
		s.tracker.Increment(ctx, id, models.ReasonUserInactive, meta)
		s.audit.LoginFailedUserInactive(ctx, meta, id, email)
		metrics.AuthAttempts.WithLabelValues(metrics.OutcomeInactive).Inc()
		return nil, nil
	}

	creds, err := s.vault.Retrieve(ctx, id)
	if err != nil {
		return nil, err
	}
	if creds == nil {
		s.tracker.Increment(ctx, id, models.ReasonWrongPassword, meta)
		s.audit.LoginFailedNoCredentials(ctx, meta, id, email)
		metrics.AuthAttempts.WithLabelValues(metrics.OutcomeNoCredentials).Inc()
		return nil, nil
	}
	if !vault.PasswordsEqual(creds.Password, password) {
		stats := s.tracker.Increment(ctx, id, models.ReasonWrongPassword, meta)
		s.audit.LoginFailedWrongPassword(ctx, meta, id, email, stats.LoginAttempts)
		metrics.AuthAttempts.WithLabelValues(metrics.OutcomeWrongPassword).Inc()
		return nil, nil
	}

	if err := s.tracker.Reset(ctx, id); err != nil {
		s.logger.Warn("resetting login stats failed", zap.String("user_id", id), zap.Error(err))
	}
	now := s.now()
	s.touchLastLogin(ctx, id, now)

	s.audit.LoginSuccess(ctx, meta, id, email)
	metrics.AuthAttempts.WithLabelValues(metrics.OutcomeSuccess).Inc()

	u.LastLogin = &now
	return &models.SystemUser{User: *u, Credentials: creds, LastLogin: &now}, nil
}

// ChangePassword replaces the credentials of userID (and of any configured
// aliases of its email), verifies the new password reads back, and clears
// any lockout.
func (s *Service) ChangePassword(ctx context.Context, userID, newPassword string) error {
	userID = normalize.UserID(userID)
	email, err := s.ident.EmailForUser(ctx, userID)
	if err != nil {
		return ErrUserNotFound
	}
	if err := s.checkPassword(newPassword, email); err != nil {
		return err
	}

	creds := models.UserCredentials{Email: email, Password: newPassword}
	if err := s.vault.Store(ctx, userID, creds); err != nil {
		return err
	}

	aliases := s.ident.AliasesFor(email, userID)
	for _, alias := range aliases {
		if err := s.vault.Store(ctx, alias, creds); err != nil {
			s.logger.Warn("replicating credentials to alias failed",
				zap.String("user_id", userID),
				zap.String("alias", alias),
				zap.Error(err))
		}
	}

	ok, err := s.vault.VerifyPassword(ctx, userID, newPassword)
	if err != nil || !ok {
		s.audit.PasswordChangeUnverified(ctx, userID)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPasswordChangeVerificationFailed, err)
		}
		return ErrPasswordChangeVerificationFailed
	}

	if err := s.tracker.ClearLockout(ctx, userID); err != nil {
		s.logger.Warn("clearing lockout after password change failed", zap.String("user_id", userID), zap.Error(err))
	}
	s.audit.PasswordChanged(ctx, userID, len(aliases))
	return nil
}

// checkPassword applies the password policy to a password chosen by a
// person. Generated temporary passwords skip it.
func (s *Service) checkPassword(password, email string, knownWords ...string) error {
	if err := authutil.ValidatePasswordFor(password, email); err != nil {
		return &InputError{Message: err.Error()}
	}
	if err := authutil.CheckStrength(password, s.minStrength, append(knownWords, email)...); err != nil {
		return &InputError{Message: err.Error()}
	}
	return nil
}

// CreateUserInput holds the fields for a new user. Password is optional;
// a user without one cannot log in until a password is set.
type CreateUserInput struct {
	Name     string `json:"name" validate:"required,max=200" label:"Name"`
	Email    string `json:"email" validate:"required,email,max=254" label:"Email"`
	Role     string `json:"role" validate:"required,role" label:"Role"`
	Password string `json:"password"`
	// IsActive defaults to true.
	IsActive     *bool `json:"is_active,omitempty"`
	TempPassword bool  `json:"temp_password,omitempty"`
}

// CreateUser creates the profile and, when a password is given, the
// credentials. TempPassword without a password generates one; it is
// returned in the result's Credentials. If the credentials cannot be stored
// the profile is removed.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*models.SystemUser, error) {
	in.Email = normalize.Email(in.Email)
	in.Name = normalize.Name(in.Name)
	in.Role = normalize.Role(in.Role)
	if res := inputval.Validate(in); res.HasErrors() {
		return nil, &InputError{Message: res.First()}
	}
	if in.Password == "" && in.TempPassword {
		pwd, err := authutil.GenerateTempPassword()
		if err != nil {
			return nil, fmt.Errorf("generate temporary password: %w", err)
		}
		in.Password = pwd
	} else if in.Password != "" {
		if err := s.checkPassword(in.Password, in.Email, in.Name); err != nil {
			return nil, err
		}
	}

	if s.tombs.hasEmail(ctx, in.Email) {
		return nil, ErrUserTombstoned
	}

	cctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.logger, "users.exists")
	exists, err := s.dir.ExistsByEmail(cctx, in.Email)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if exists {
		return nil, ErrUserExists
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	cctx, cancel = timeouts.WithTimeout(ctx, timeouts.Short(), s.logger, "users.create")
	u, err := s.dir.Create(cctx, userstore.CreateInput{
		Name:     in.Name,
		Email:    in.Email,
		Role:     in.Role,
		IsActive: active,
	})
	cancel()
	if err != nil {
		if errors.Is(err, userstore.ErrDuplicateEmail) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	id := u.ID.Hex()

	var creds *models.UserCredentials
	if in.Password != "" {
		c := models.UserCredentials{Email: u.Email, Password: in.Password, TempPassword: in.TempPassword}
		if err := s.vault.Store(ctx, id, c); err != nil {
			s.rollbackCreate(ctx, id)
			return nil, err
		}
		creds = &c
	}

	s.audit.UserCreated(ctx, id, u.Email, u.Role, creds != nil)
	return &models.SystemUser{User: u, Credentials: creds}, nil
}

func (s *Service) rollbackCreate(ctx context.Context, id string) {
	cctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.logger, "users.delete")
	defer cancel()
	if _, err := s.dir.Delete(cctx, id); err != nil {
		s.logger.Error("rolling back user creation failed", zap.String("user_id", id), zap.Error(err))
	}
}

// UpdateUserInput holds the optional profile changes. Email is not
// editable: the credential record is bound to it.
type UpdateUserInput struct {
	Name     *string `json:"name,omitempty"`
	Role     *string `json:"role,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// UpdateUser applies in to the profile of userID and returns the composed view.
func (s *Service) UpdateUser(ctx context.Context, userID string, in UpdateUserInput) (*models.SystemUser, error) {
	userID = normalize.UserID(userID)
	var upd userstore.UpdateInput
	var changed []string
	if in.Name != nil {
		name := normalize.Name(*in.Name)
		if name == "" {
			return nil, &InputError{Message: "Name is required."}
		}
		upd.Name = &name
		changed = append(changed, "name")
	}
	if in.Role != nil {
		role := normalize.Role(*in.Role)
		if !inputval.IsValidRole(role) {
			return nil, &InputError{Message: "Role is invalid."}
		}
		upd.Role = &role
		changed = append(changed, "role")
	}
	if in.IsActive != nil {
		upd.IsActive = in.IsActive
		changed = append(changed, "is_active")
	}

	cctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.logger, "users.update")
	err := s.dir.Update(cctx, userID, upd)
	cancel()
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	if len(changed) > 0 {
		s.audit.UserUpdated(ctx, userID, changed)
	}
	return s.GetSystemUser(ctx, userID)
}

// DeleteUser removes the profile, the credentials and the login stats of
// userID and tombstones its id and email.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	userID = normalize.UserID(userID)
	email, err := s.ident.EmailForUser(ctx, userID)
	if err != nil {
		return ErrUserNotFound
	}

	cctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.logger, "users.delete")
	_, err = s.dir.Delete(cctx, userID)
	cancel()
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	s.vault.Remove(ctx, userID)
	s.tombs.add(ctx, userID, email)
	s.audit.UserDeleted(ctx, userID, email)
	return nil
}

// GetSystemUser returns the composed view of userID, with credentials.
func (s *Service) GetSystemUser(ctx context.Context, userID string) (*models.SystemUser, error) {
	userID = normalize.UserID(userID)
	cctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.logger, "users.get")
	u, err := s.dir.GetByID(cctx, userID)
	cancel()
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	su := s.compose(ctx, *u)
	creds, err := s.vault.Retrieve(ctx, userID)
	if err != nil {
		return nil, err
	}
	su.Credentials = creds
	return &su, nil
}

// ListSystemUsers returns every directory user with its lockout state.
// Credentials are not loaded.
func (s *Service) ListSystemUsers(ctx context.Context) ([]models.SystemUser, error) {
	cctx, cancel := timeouts.WithTimeout(ctx, timeouts.Long(), s.logger, "users.list")
	users, err := s.dir.List(cctx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]models.SystemUser, 0, len(users))
	for _, u := range users {
		out = append(out, s.compose(ctx, u))
	}
	return out, nil
}

// UnlockUser clears the lockout of userID on an administrator's request.
func (s *Service) UnlockUser(ctx context.Context, userID string) error {
	userID = normalize.UserID(userID)
	if _, err := s.ident.EmailForUser(ctx, userID); err != nil {
		return ErrUserNotFound
	}
	if err := s.tracker.ClearLockout(ctx, userID); err != nil {
		return err
	}
	s.audit.UserUnlocked(ctx, userID)
	return nil
}

// LoginStats returns the lockout state of userID.
func (s *Service) LoginStats(ctx context.Context, userID string) (models.LoginStatus, error) {
	userID = normalize.UserID(userID)
	if _, err := s.ident.EmailForUser(ctx, userID); err != nil {
		return models.LoginStatus{}, ErrUserNotFound
	}
	return s.tracker.GetStats(ctx, userID), nil
}

// ClearTombstone allows email to be used for a new account again. It
// reports whether email was tombstoned.
func (s *Service) ClearTombstone(ctx context.Context, email string) (bool, error) {
	cleared, err := s.tombs.clearEmail(ctx, email)
	if err != nil {
		return false, err
	}
	if cleared {
		s.audit.TombstoneCleared(ctx, normalize.Email(email))
	}
	return cleared, nil
}

// IsDeleted reports whether userID belongs to a deleted account.
func (s *Service) IsDeleted(ctx context.Context, userID string) bool {
	return s.tombs.hasUser(ctx, normalize.UserID(userID))
}

// RepairCredentials rewrites every directory user's double-encrypted
// credentials in single-layer form and returns how many were repaired.
func (s *Service) RepairCredentials(ctx context.Context) (int, error) {
	cctx, cancel := timeouts.WithTimeout(ctx, timeouts.Long(), s.logger, "users.list")
	users, err := s.dir.List(cctx)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}
	repaired := 0
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return repaired, err
		}
		ok, err := s.vault.RepairDoubleEncrypted(ctx, u.ID.Hex())
		if err != nil {
			s.logger.Warn("credential repair failed", zap.String("user_id", u.ID.Hex()), zap.Error(err))
			continue
		}
		if ok {
			repaired++
		}
	}
	return repaired, nil
}

func (s *Service) compose(ctx context.Context, u models.User) models.SystemUser {
	st := s.tracker.GetStats(ctx, u.ID.Hex())
	su := models.SystemUser{
		User:          u,
		LastLogin:     u.LastLogin,
		LoginAttempts: st.LoginAttempts,
		IsLocked:      st.IsLocked,
		LockoutUntil:  st.LockoutUntil,
	}
	if st.LastLogin != nil && (su.LastLogin == nil || st.LastLogin.After(*su.LastLogin)) {
		su.LastLogin = st.LastLogin
	}
	return su
}

// userByEmail returns nil, nil for an unknown email.
func (s *Service) userByEmail(ctx context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, nil
	}
	cctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.logger, "users.get_by_email")
	defer cancel()
	u, err := s.dir.GetByEmail(cctx, email)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}
	return u, nil
}

func (s *Service) touchLastLogin(ctx context.Context, id string, at time.Time) {
	cctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.logger, "users.touch_last_login")
	defer cancel()
	if err := s.dir.TouchLastLogin(cctx, id, at); err != nil {
		s.logger.Warn("refreshing last login failed", zap.String("user_id", id), zap.Error(err))
	}
}
