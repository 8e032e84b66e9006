// Package authapi exposes authentication and user administration over the
// JSON API.
//
// Endpoints (mounted at /api):
//   - POST   /auth/login
//   - GET    /users
//   - POST   /users
//   - GET    /users/{id}
//   - PATCH  /users/{id}
//   - DELETE /users/{id}
//   - POST   /users/{id}/password
//   - POST   /users/{id}/unlock
//   - GET    /users/{id}/login-stats
//   - POST   /users/tombstones/clear
//
// Login failures are reported with one generic message so callers cannot
// tell an unknown email from a wrong password. A locked account is the
// exception and gets 423 with the remaining lockout time.
package authapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dalemusser/carexps/internal/app/services/usermgmt"
	"github.com/dalemusser/carexps/internal/app/services/vault"
	"github.com/dalemusser/carexps/internal/app/system/jsonutil"
	"github.com/dalemusser/carexps/internal/app/system/network"
	"github.com/dalemusser/carexps/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// MsgInvalidCredentials is the only message a failed login ever returns
// apart from the lockout message.
const MsgInvalidCredentials = "Invalid email or password"

// Users is the user service behind the API. *usermgmt.Service implements it.
type Users interface {
	Authenticate(ctx context.Context, email, password string, meta models.RequestMeta) (*models.SystemUser, error)
	ChangePassword(ctx context.Context, userID, newPassword string) error
	CreateUser(ctx context.Context, in usermgmt.CreateUserInput) (*models.SystemUser, error)
	UpdateUser(ctx context.Context, userID string, in usermgmt.UpdateUserInput) (*models.SystemUser, error)
	DeleteUser(ctx context.Context, userID string) error
	GetSystemUser(ctx context.Context, userID string) (*models.SystemUser, error)
	ListSystemUsers(ctx context.Context) ([]models.SystemUser, error)
	UnlockUser(ctx context.Context, userID string) error
	LoginStats(ctx context.Context, userID string) (models.LoginStatus, error)
	ClearTombstone(ctx context.Context, email string) (bool, error)
}

// Handler serves the auth and user endpoints.
type Handler struct {
	users  Users
	logger *zap.Logger
}

// NewHandler creates a Handler.
func NewHandler(users Users, logger *zap.Logger) *Handler {
	return &Handler{users: users, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the data of a successful login.
type LoginResponse struct {
	User *models.SystemUser `json:"user"`
	// MustChangePassword is set when the stored password is temporary.
	MustChangePassword bool `json:"must_change_password"`
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := jsonutil.Decode(w, r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(in.Email) == "" || in.Password == "" {
		jsonutil.BadRequest(w, "Email and password are required.")
		return
	}

	u, err := h.users.Authenticate(r.Context(), in.Email, in.Password, network.RequestMeta(r))
	if err != nil {
		var locked *usermgmt.LockedError
		if errors.As(err, &locked) {
			jsonutil.Locked(w, locked.Error())
			return
		}
		h.logger.Error("authentication failed with an internal error", zap.Error(err))
		jsonutil.Unauthorized(w, MsgInvalidCredentials)
		return
	}
	if u == nil {
		jsonutil.Unauthorized(w, MsgInvalidCredentials)
		return
	}

	jsonutil.OK(w, LoginResponse{
		User:               u,
		MustChangePassword: u.Credentials != nil && u.Credentials.TempPassword,
	})
}

// ListUsers handles GET /users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListSystemUsers(r.Context())
	if err != nil {
		h.writeError(w, "list users", err)
		return
	}
	jsonutil.OK(w, users)
}

// CreateUser handles POST /users.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var in usermgmt.CreateUserInput
	if err := jsonutil.Decode(w, r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	u, err := h.users.CreateUser(r.Context(), in)
	if err != nil {
		h.writeError(w, "create user", err)
		return
	}
	resp := CreateUserResponse{SystemUser: u}
	// A generated password is shown once; the caller hands it to the user.
	if in.Password == "" && u.Credentials != nil && u.Credentials.TempPassword {
		resp.TemporaryPassword = u.Credentials.Password
	}
	jsonutil.Created(w, resp)
}

// CreateUserResponse is the created user plus, when the server generated
// it, the temporary password.
type CreateUserResponse struct {
	*models.SystemUser
	TemporaryPassword string `json:"temporary_password,omitempty"`
}

// GetUser handles GET /users/{id}.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.GetSystemUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "get user", err)
		return
	}
	jsonutil.OK(w, u)
}

// UpdateUser handles PATCH /users/{id}.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var in usermgmt.UpdateUserInput
	if err := jsonutil.Decode(w, r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	u, err := h.users.UpdateUser(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, "update user", err)
		return
	}
	jsonutil.OK(w, u)
}

// DeleteUser handles DELETE /users/{id}.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.users.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, "delete user", err)
		return
	}
	jsonutil.NoContent(w)
}

type passwordRequest struct {
	Password string `json:"password"`
}

// ChangePassword handles POST /users/{id}/password.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var in passwordRequest
	if err := jsonutil.Decode(w, r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	if in.Password == "" {
		jsonutil.BadRequest(w, "Password is required.")
		return
	}
	if err := h.users.ChangePassword(r.Context(), chi.URLParam(r, "id"), in.Password); err != nil {
		h.writeError(w, "change password", err)
		return
	}
	jsonutil.OK(w, map[string]bool{"changed": true})
}

// Unlock handles POST /users/{id}/unlock.
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	if err := h.users.UnlockUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, "unlock user", err)
		return
	}
	jsonutil.OK(w, map[string]bool{"unlocked": true})
}

// LoginStats handles GET /users/{id}/login-stats.
func (h *Handler) LoginStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.users.LoginStats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "login stats", err)
		return
	}
	jsonutil.OK(w, st)
}

type tombstoneRequest struct {
	Email string `json:"email"`
}

// ClearTombstone handles POST /users/tombstones/clear.
func (h *Handler) ClearTombstone(w http.ResponseWriter, r *http.Request) {
	var in tombstoneRequest
	if err := jsonutil.Decode(w, r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(in.Email) == "" {
		jsonutil.BadRequest(w, "Email is required.")
		return
	}
	cleared, err := h.users.ClearTombstone(r.Context(), in.Email)
	if err != nil {
		h.writeError(w, "clear tombstone", err)
		return
	}
	jsonutil.OK(w, map[string]bool{"cleared": cleared})
}

// writeError maps service errors to responses. Unexpected errors are
// logged and answered with a message that carries no internals.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	var input *usermgmt.InputError
	switch {
	case errors.As(err, &input):
		jsonutil.BadRequest(w, input.Message)
	case errors.Is(err, usermgmt.ErrUserNotFound):
		jsonutil.NotFound(w, "User not found")
	case errors.Is(err, usermgmt.ErrUserExists), errors.Is(err, usermgmt.ErrUserTombstoned):
		jsonutil.Conflict(w, err.Error())
	case errors.Is(err, usermgmt.ErrAccountLocked):
		jsonutil.Locked(w, err.Error())
	case errors.Is(err, usermgmt.ErrPasswordChangeVerificationFailed):
		h.logger.Error(op+" failed", zap.Error(err))
		jsonutil.InternalError(w, "Password change could not be verified")
	case errors.Is(err, vault.ErrCredentialStoreFailed):
		h.logger.Error(op+" failed", zap.Error(err))
		jsonutil.InternalError(w, "Failed to store credentials")
	default:
		h.logger.Error(op+" failed", zap.Error(err))
		jsonutil.InternalError(w, "Internal error")
	}
}
