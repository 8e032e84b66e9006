package settingsync

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/dalemusser/carexps/internal/app/store/audit"
	"github.com/dalemusser/carexps/internal/app/system/cachekeys"
	"github.com/dalemusser/carexps/internal/app/system/kv"
	"github.com/dalemusser/carexps/internal/domain/models"
	"go.uber.org/zap"
)

// cacheEntry is the cached form of a user's settings. The api key inside
// Settings is sealed.
type cacheEntry struct {
	Settings *models.UserSettings `json:"settings"`
	CachedAt time.Time            `json:"cached_at"`
	Pending  bool                 `json:"pending"`
}

func (s *Service) cacheLoad(ctx context.Context, userID string) *cacheEntry {
	raw, err := s.cache.Get(ctx, cachekeys.Settings(userID))
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logger.Warn("reading settings cache failed", zap.String("user_id", userID), zap.Error(err))
		}
		return nil
	}
	var e cacheEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil || e.Settings == nil {
		s.logger.Warn("discarding unreadable settings cache entry", zap.String("user_id", userID))
		return nil
	}
	return &e
}

// cacheStore writes us to the cache. pending marks an optimistic entry the
// store has not confirmed; a confirmed write clears the mark.
func (s *Service) cacheStore(ctx context.Context, us *models.UserSettings, pending bool) {
	sealed, err := s.seal(us.Settings)
	if err != nil {
		s.logger.Warn("sealing settings for cache failed", zap.String("user_id", us.UserID), zap.Error(err))
		return
	}
	cp := *us
	cp.Settings = sealed
	cp.Pending = pending

	raw, err := json.Marshal(cacheEntry{Settings: &cp, CachedAt: s.cfg.Now().UTC(), Pending: pending})
	if err == nil {
		err = s.cache.Set(ctx, cachekeys.Settings(us.UserID), string(raw))
	}
	if err != nil {
		s.logger.Warn("writing settings cache failed", zap.String("user_id", us.UserID), zap.Error(err))
		return
	}
	s.setPending(ctx, us.UserID, pending)
}

func (s *Service) cacheDrop(ctx context.Context, userID string) {
	if err := s.cache.Delete(ctx, cachekeys.Settings(userID)); err != nil && !errors.Is(err, kv.ErrNotFound) {
		s.logger.Warn("dropping settings cache failed", zap.String("user_id", userID), zap.Error(err))
	}
	s.setPending(ctx, userID, false)
}

// fromCache returns a caller-facing copy of a cache entry.
func (s *Service) fromCache(e *cacheEntry) *models.UserSettings {
	us := e.Settings.Clone()
	us.Settings = models.MergeSettings(models.DefaultSettings(), us.Settings)
	s.openInPlace(us.Settings)
	us.Pending = e.Pending
	return us
}

// localDoc returns the decrypted settings of a cache entry as written,
// without defaults.
func (s *Service) localDoc(e *cacheEntry) models.SettingsDoc {
	doc := e.Settings.Settings.Clone()
	if doc == nil {
		doc = models.SettingsDoc{}
	}
	s.openInPlace(doc)
	return doc
}

func (s *Service) setPending(ctx context.Context, userID string, pending bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	list := s.pendingList(ctx)
	i := slices.Index(list, userID)
	switch {
	case pending && i < 0:
		list = append(list, userID)
	case !pending && i >= 0:
		list = slices.Delete(list, i, i+1)
	default:
		return
	}
	raw, err := json.Marshal(list)
	if err == nil {
		err = s.cache.Set(ctx, cachekeys.SettingsPending, string(raw))
	}
	if err != nil {
		s.logger.Warn("updating pending settings index failed", zap.Error(err))
	}
}

func (s *Service) pendingList(ctx context.Context) []string {
	raw, err := s.cache.Get(ctx, cachekeys.SettingsPending)
	if err != nil {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		s.logger.Warn("discarding unreadable pending settings index", zap.Error(err))
		return nil
	}
	return list
}

// Pending returns the user ids whose cached settings are unconfirmed.
func (s *Service) Pending(ctx context.Context) []string {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return s.pendingList(ctx)
}

// Reconcile pushes every pending cache entry to the store, merged over the
// stored document, and returns how many entries were confirmed. Entries that
// still fail stay pending.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	confirmed := 0
	for _, userID := range s.Pending(ctx) {
		if err := ctx.Err(); err != nil {
			return confirmed, err
		}
		entry := s.cacheLoad(ctx, userID)
		if entry == nil || !entry.Pending {
			s.setPending(ctx, userID, false)
			continue
		}
		current, err := s.Get(ctx, userID)
		if err != nil {
			s.logger.Warn("reconcile: settings store unavailable", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		doc := models.MergeSettings(current.Settings, s.localDoc(entry))
		stored, err := s.persist(ctx, userID, doc, entry.Settings.DeviceID)
		if err != nil {
			s.logger.Warn("reconcile: write failed", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		s.cacheStore(ctx, stored, false)
		s.recordWrite(ctx, audit.EventSettingsUpdated, userID, ModeReconcile)
		confirmed++
	}
	return confirmed, nil
}
