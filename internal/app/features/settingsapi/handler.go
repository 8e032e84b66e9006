// Package settingsapi exposes per-user settings over the JSON API.
//
// Endpoints (mounted at /api/settings):
//   - GET   /{userID}           cached read
//   - PATCH /{userID}           optimistic merge update
//   - POST  /{userID}/validate  validation only, nothing is written
//   - GET   /{userID}/export
//   - POST  /{userID}/import?mode=merge|overwrite
//   - POST  /{userID}/reset
//   - POST  /{userID}/sync      {"device_id": "..."}
//
// Responses carry the Retell API key in plaintext; it is encrypted only at
// rest. Export never includes it.
package settingsapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/dalemusser/carexps/internal/app/services/settingsync"
	"github.com/dalemusser/carexps/internal/app/system/jsonutil"
	"github.com/dalemusser/carexps/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Settings is the settings service behind the API.
// *settingsync.Service implements it.
type Settings interface {
	GetWithCache(ctx context.Context, userID string) (*models.UserSettings, error)
	UpdateSync(ctx context.Context, userID string, partial models.SettingsDoc, optimistic bool) (*models.UserSettings, error)
	Export(ctx context.Context, userID string) (*settingsync.Export, error)
	Import(ctx context.Context, userID string, settings models.SettingsDoc, mode string) (*models.UserSettings, error)
	ResetToDefaults(ctx context.Context, userID string) (*models.UserSettings, error)
	SyncAcrossDevices(ctx context.Context, userID, deviceID string) (*models.UserSettings, error)
}

// Handler serves the settings endpoints.
type Handler struct {
	settings Settings
	logger   *zap.Logger
}

// NewHandler creates a Handler.
func NewHandler(settings Settings, logger *zap.Logger) *Handler {
	return &Handler{settings: settings, logger: logger}
}

// Get handles GET /{userID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	us, err := h.settings.GetWithCache(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, "get settings", err)
		return
	}
	jsonutil.OK(w, us)
}

// Update handles PATCH /{userID}. The body is a partial settings document.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var partial models.SettingsDoc
	if err := jsonutil.Decode(w, r, &partial); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	if len(partial) == 0 {
		jsonutil.BadRequest(w, "No settings given.")
		return
	}
	if res := settingsync.Validate(partial); !res.IsValid {
		jsonutil.ValidationError(w, res.Errors)
		return
	}
	us, err := h.settings.UpdateSync(r.Context(), chi.URLParam(r, "userID"), partial, true)
	if err != nil {
		h.writeError(w, "update settings", err)
		return
	}
	jsonutil.OK(w, us)
}

// Validate handles POST /{userID}/validate.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var doc models.SettingsDoc
	if err := jsonutil.Decode(w, r, &doc); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	jsonutil.OK(w, settingsync.Validate(doc))
}

// Export handles GET /{userID}/export.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	exp, err := h.settings.Export(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, "export settings", err)
		return
	}
	jsonutil.OK(w, exp)
}

// importRequest accepts the Export shape; only settings is used.
type importRequest struct {
	Settings models.SettingsDoc `json:"settings"`
}

// Import handles POST /{userID}/import?mode=merge|overwrite.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	var in importRequest
	if err := jsonutil.Decode(w, r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	if in.Settings == nil {
		jsonutil.BadRequest(w, "settings is required.")
		return
	}
	us, err := h.settings.Import(r.Context(), chi.URLParam(r, "userID"), in.Settings, r.URL.Query().Get("mode"))
	if err != nil {
		h.writeError(w, "import settings", err)
		return
	}
	jsonutil.OK(w, us)
}

// Reset handles POST /{userID}/reset.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	us, err := h.settings.ResetToDefaults(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, "reset settings", err)
		return
	}
	jsonutil.OK(w, us)
}

type syncRequest struct {
	DeviceID string `json:"device_id"`
}

// Sync handles POST /{userID}/sync.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	var in syncRequest
	if err := jsonutil.Decode(w, r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	if in.DeviceID == "" {
		jsonutil.BadRequest(w, "device_id is required.")
		return
	}
	us, err := h.settings.SyncAcrossDevices(r.Context(), chi.URLParam(r, "userID"), in.DeviceID)
	if err != nil {
		h.writeError(w, "sync settings", err)
		return
	}
	jsonutil.OK(w, us)
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	var invalid *settingsync.InvalidSettingsError
	switch {
	case errors.As(err, &invalid):
		jsonutil.ValidationError(w, invalid.Errors)
	case errors.Is(err, settingsync.ErrEmptyUserID), errors.Is(err, settingsync.ErrInvalidImportMode):
		jsonutil.BadRequest(w, err.Error())
	default:
		h.logger.Error(op+" failed", zap.Error(err))
		jsonutil.Error(w, http.StatusServiceUnavailable, "Settings are temporarily unavailable")
	}
}
