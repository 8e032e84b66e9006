package settingsync

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/carexps/internal/app/store/audit"
	"github.com/dalemusser/carexps/internal/app/system/normalize"
	"github.com/dalemusser/carexps/internal/app/system/timeouts"
	"github.com/dalemusser/carexps/internal/domain/models"
	"go.uber.org/zap"
)

// ExportVersion is the format version written by Export.
const ExportVersion = 1

// ErrInvalidImportMode is returned for an unknown Import mode.
var ErrInvalidImportMode = errors.New("import mode must be merge or overwrite")

// InvalidSettingsError is returned when a document fails Validate.
type InvalidSettingsError struct {
	Errors []string
}

func (e *InvalidSettingsError) Error() string {
	return "invalid settings: " + strings.Join(e.Errors, "; ")
}

// Export is a portable copy of a user's settings. It never contains the
// Retell API key.
type Export struct {
	Version    int                `json:"version"`
	UserID     string             `json:"user_id"`
	ExportedAt time.Time          `json:"exported_at"`
	Settings   models.SettingsDoc `json:"settings"`
}

// SyncAcrossDevices brings the store and this process's cache into line for
// userID and records deviceID as the last device to sync. An unconfirmed
// local entry is pushed (merged over the stored document); otherwise the
// stored document is pulled into the cache.
func (s *Service) SyncAcrossDevices(ctx context.Context, userID, deviceID string) (*models.UserSettings, error) {
	userID = normalize.UserID(userID)
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	current, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	doc := current.Settings
	if entry := s.cacheLoad(ctx, userID); entry != nil && entry.Pending {
		doc = models.MergeSettings(doc, s.localDoc(entry))
	}

	stored, err := s.persist(ctx, userID, doc, deviceID)
	if err != nil {
		return nil, err
	}
	s.cacheStore(ctx, stored, false)
	s.recordWrite(ctx, audit.EventSettingsUpdated, userID, ModeDevice)
	return stored, nil
}

// Export returns userID's settings without the Retell API key.
func (s *Service) Export(ctx context.Context, userID string) (*Export, error) {
	us, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	doc := us.Settings.Clone()
	if rc := doc.Object(models.SettingRetellConfig); rc != nil {
		delete(rc, models.RetellAPIKey)
		doc[models.SettingRetellConfig] = rc
	}
	return &Export{
		Version:    ExportVersion,
		UserID:     us.UserID,
		ExportedAt: s.cfg.Now().UTC(),
		Settings:   doc,
	}, nil
}

// Import applies settings to userID. Merge applies them over the current
// document like UpdateSync. Overwrite replaces the document with the
// defaults plus settings, keeping the stored Retell API key when settings
// carries none.
func (s *Service) Import(ctx context.Context, userID string, settings models.SettingsDoc, mode string) (*models.UserSettings, error) {
	userID = normalize.UserID(userID)
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	if mode == "" {
		mode = ModeMerge
	}
	if mode != ModeMerge && mode != ModeOverwrite {
		return nil, ErrInvalidImportMode
	}
	if res := Validate(settings); !res.IsValid {
		return nil, &InvalidSettingsError{Errors: res.Errors}
	}

	current, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	var doc models.SettingsDoc
	if mode == ModeMerge {
		doc = models.MergeSettings(current.Settings, settings)
	} else {
		doc = models.MergeSettings(models.DefaultSettings(), settings)
		if key, ok := current.Settings.Object(models.SettingRetellConfig)[models.RetellAPIKey]; ok {
			rc := doc.Object(models.SettingRetellConfig)
			if rc == nil {
				rc = map[string]any{}
			}
			if _, has := rc[models.RetellAPIKey]; !has {
				rc[models.RetellAPIKey] = key
				doc[models.SettingRetellConfig] = rc
			}
		}
	}

	stored, err := s.persist(ctx, userID, doc, s.cfg.DeviceID)
	if err != nil {
		return nil, err
	}
	s.cacheStore(ctx, stored, false)
	s.recordWrite(ctx, audit.EventSettingsImported, userID, mode)
	return stored, nil
}

// ResetToDefaults deletes userID's settings, stores the defaults and drops
// the cached copy.
func (s *Service) ResetToDefaults(ctx context.Context, userID string) (*models.UserSettings, error) {
	userID = normalize.UserID(userID)
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	cctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.logger, "settings.delete")
	err := s.store.Delete(cctx, userID)
	cancel()
	if err != nil {
		return nil, err
	}
	s.cacheDrop(ctx, userID)

	stored, err := s.persist(ctx, userID, models.DefaultSettings(), s.cfg.DeviceID)
	if err != nil {
		s.logger.Warn("recreating default settings failed", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	s.recordWrite(ctx, audit.EventSettingsReset, userID, ModeReset)
	return stored, nil
}
