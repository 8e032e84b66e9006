// Package settingsync keeps one settings document per user in sync between
// the settings store, a short-lived local cache and live subscribers.
//
// retell_config.api_key is the only encrypted field. It is ciphertext in the
// store and in the cache, plaintext in everything returned to callers.
package settingsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dalemusser/carexps/internal/app/store/audit"
	"github.com/dalemusser/carexps/internal/app/system/auditlog"
	"github.com/dalemusser/carexps/internal/app/system/kv"
	"github.com/dalemusser/carexps/internal/app/system/metrics"
	"github.com/dalemusser/carexps/internal/app/system/normalize"
	"github.com/dalemusser/carexps/internal/app/system/phicrypt"
	"github.com/dalemusser/carexps/internal/app/system/timeouts"
	"github.com/dalemusser/carexps/internal/domain/models"
	"go.uber.org/zap"
)

// DefaultCacheTTL is how long a cached settings entry is served without
// going back to the store.
const DefaultCacheTTL = 5 * time.Minute

// Sync modes, used for metrics and audit details. ModeMerge and
// ModeOverwrite are also the Import modes.
const (
	ModeDirect     = "direct"
	ModeOptimistic = "optimistic"
	ModeMerge      = "merge"
	ModeOverwrite  = "overwrite"
	ModeDevice     = "device"
	ModeReset      = "reset"
	ModeReconcile  = "reconcile"
)

// ErrEmptyUserID is returned for operations called without a user id.
var ErrEmptyUserID = errors.New("settingsync: user id is required")

// Store persists settings documents. *settingsstore.Store implements it.
type Store interface {
	Get(ctx context.Context, userID string) (*models.UserSettings, error)
	Patch(ctx context.Context, userID string, fields models.SettingsDoc, deviceID string) (*models.UserSettings, error)
	Replace(ctx context.Context, userID string, doc models.SettingsDoc, deviceID string) (*models.UserSettings, error)
	Delete(ctx context.Context, userID string) error
}

// ChangeFeed delivers live settings changes until ctx ends.
type ChangeFeed interface {
	Watch(ctx context.Context, fn func(models.SettingsChange)) error
}

// Config tunes the service.
type Config struct {
	CacheTTL time.Duration
	// DeviceID is recorded on writes made by this process.
	DeviceID string
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Subscriber receives settings for one user. It must not block.
type Subscriber func(*models.UserSettings)

// Service is safe for concurrent use.
type Service struct {
	store  Store
	feed   ChangeFeed
	cache  kv.Backend
	cipher phicrypt.Cipher
	audit  *auditlog.Logger
	logger *zap.Logger
	cfg    Config

	mu     sync.RWMutex
	subs   map[string]map[uint64]Subscriber
	nextID uint64

	// pendingMu guards the pending index in the cache.
	pendingMu sync.Mutex

	lifeMu sync.Mutex
	stop   context.CancelFunc
	done   chan struct{}
}

// New returns a Service. feed and audit may be nil.
func New(store Store, feed ChangeFeed, cache kv.Backend, c phicrypt.Cipher, audit *auditlog.Logger, logger *zap.Logger, cfg Config) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:  store,
		feed:   feed,
		cache:  cache,
		cipher: c,
		audit:  audit,
		logger: logger,
		cfg:    cfg,
		subs:   make(map[string]map[uint64]Subscriber),
	}
}

// Init starts the live-update listener. A feed that cannot be opened (for
// example a standalone MongoDB without change streams) is logged and the
// service runs without live updates.
func (s *Service) Init(ctx context.Context) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.feed == nil || s.stop != nil {
		return
	}
	wctx, cancel := context.WithCancel(ctx)
	s.stop = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := s.feed.Watch(wctx, s.HandleChange); err != nil {
			s.logger.Warn("settings live updates unavailable", zap.Error(err))
		}
	}()
}

// Dispose stops the listener and drops every subscriber.
func (s *Service) Dispose() {
	s.lifeMu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.lifeMu.Unlock()

	if stop != nil {
		stop()
		<-done
	}

	s.mu.Lock()
	s.subs = make(map[string]map[uint64]Subscriber)
	s.mu.Unlock()
}

// Get returns the settings of userID with defaults filled in. A user with
// no stored document gets the defaults; nothing is written.
func (s *Service) Get(ctx context.Context, userID string) (*models.UserSettings, error) {
	userID = normalize.UserID(userID)
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	cctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.logger, "settings.get")
	us, err := s.store.Get(cctx, userID)
	cancel()
	if err != nil {
		return nil, err
	}
	if us == nil {
		return &models.UserSettings{UserID: userID, Settings: models.DefaultSettings()}, nil
	}
	return s.present(us), nil
}

// GetWithCache serves userID's settings from the cache while the entry is
// fresh, and refreshes it from Get otherwise. A stale entry is served when
// the store is unavailable.
func (s *Service) GetWithCache(ctx context.Context, userID string) (*models.UserSettings, error) {
	userID = normalize.UserID(userID)
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	entry := s.cacheLoad(ctx, userID)
	if entry != nil && s.cfg.Now().Sub(entry.CachedAt) < s.cfg.CacheTTL {
		return s.fromCache(entry), nil
	}

	us, err := s.Get(ctx, userID)
	if err != nil {
		if entry != nil {
			s.logger.Warn("settings store unavailable; serving stale cache",
				zap.String("user_id", userID),
				zap.Error(err))
			return s.fromCache(entry), nil
		}
		return nil, err
	}
	s.cacheStore(ctx, us, false)
	return us, nil
}

// Update writes the top-level fields of partial as given, replacing each
// one whole, and returns the stored result.
func (s *Service) Update(ctx context.Context, userID string, partial models.SettingsDoc) (*models.UserSettings, error) {
	userID = normalize.UserID(userID)
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	sealed, err := s.seal(partial)
	if err != nil {
		return nil, err
	}
	cctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.logger, "settings.patch")
	stored, err := s.store.Patch(cctx, userID, sealed, s.cfg.DeviceID)
	cancel()
	if err != nil {
		return nil, err
	}
	us := s.present(stored)
	s.cacheStore(ctx, us, false)
	s.recordWrite(ctx, audit.EventSettingsUpdated, userID, ModeDirect)
	return us, nil
}

// UpdateSync merges partial into the current settings (nested objects
// field by field) and persists the result. With optimistic set, the merged
// preview goes to subscribers and to the cache, marked pending, before the
// store is written; when the store cannot be read the cached copy is the
// base. A failed write leaves the pending entry for Reconcile.
func (s *Service) UpdateSync(ctx context.Context, userID string, partial models.SettingsDoc, optimistic bool) (*models.UserSettings, error) {
	userID = normalize.UserID(userID)
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	current, err := s.Get(ctx, userID)
	if err != nil {
		// An optimistic write can still build on the cached copy.
		entry := s.cacheLoad(ctx, userID)
		if !optimistic || entry == nil {
			return nil, err
		}
		current = s.fromCache(entry)
	}
	merged := models.MergeSettings(current.Settings, partial)

	mode := ModeMerge
	if optimistic {
		mode = ModeOptimistic
		preview := current.Clone()
		preview.Settings = merged
		preview.Pending = true
		s.notify(userID, preview)
		s.cacheStore(ctx, preview, true)
	}

	stored, err := s.persist(ctx, userID, merged, s.cfg.DeviceID)
	if err != nil {
		if optimistic {
			s.logger.Warn("optimistic settings write failed; left pending",
				zap.String("user_id", userID),
				zap.Error(err))
		}
		return nil, err
	}
	s.cacheStore(ctx, stored, false)
	s.recordWrite(ctx, audit.EventSettingsUpdated, userID, mode)
	return stored, nil
}

// Subscribe registers fn for userID's settings and returns the function
// that removes it.
func (s *Service) Subscribe(userID string, fn Subscriber) (unsubscribe func()) {
	userID = normalize.UserID(userID)
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	if s.subs[userID] == nil {
		s.subs[userID] = make(map[uint64]Subscriber)
	}
	s.subs[userID][id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs[userID], id)
			if len(s.subs[userID]) == 0 {
				delete(s.subs, userID)
			}
		})
	}
}

// HandleChange dispatches a live change to the user's subscribers. Deletes
// are ignored.
func (s *Service) HandleChange(ev models.SettingsChange) {
	switch ev.Op {
	case models.ChangeInsert, models.ChangeUpdate, models.ChangeReplace:
	default:
		return
	}
	if ev.Settings == nil || ev.UserID == "" {
		return
	}
	s.notify(ev.UserID, s.present(ev.Settings.Clone()))
}

func (s *Service) notify(userID string, us *models.UserSettings) {
	s.mu.RLock()
	fns := make([]Subscriber, 0, len(s.subs[userID]))
	for _, fn := range s.subs[userID] {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		s.deliver(userID, fn, us.Clone())
	}
}

func (s *Service) deliver(userID string, fn Subscriber, us *models.UserSettings) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("settings subscriber panicked",
				zap.String("user_id", userID),
				zap.Any("panic", r))
		}
	}()
	fn(us)
}

// persist seals doc and replaces the stored document with it.
func (s *Service) persist(ctx context.Context, userID string, doc models.SettingsDoc, deviceID string) (*models.UserSettings, error) {
	sealed, err := s.seal(doc)
	if err != nil {
		return nil, err
	}
	cctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.logger, "settings.replace")
	stored, err := s.store.Replace(cctx, userID, sealed, deviceID)
	cancel()
	if err != nil {
		return nil, err
	}
	return s.present(stored), nil
}

// present fills defaults and decrypts the api key of a stored document.
func (s *Service) present(us *models.UserSettings) *models.UserSettings {
	us.Settings = models.MergeSettings(models.DefaultSettings(), us.Settings)
	s.openInPlace(us.Settings)
	return us
}

func (s *Service) recordWrite(ctx context.Context, eventType, userID, mode string) {
	metrics.SettingsSyncs.WithLabelValues(mode).Inc()
	s.audit.Settings(ctx, eventType, userID, mode)
}

// seal returns a copy of doc with retell_config.api_key encrypted.
func (s *Service) seal(doc models.SettingsDoc) (models.SettingsDoc, error) {
	out := doc.Clone()
	rc := out.Object(models.SettingRetellConfig)
	if rc == nil {
		return out, nil
	}
	key, ok := rc[models.RetellAPIKey].(string)
	if !ok || key == "" || phicrypt.IsCiphertext(key) {
		return out, nil
	}
	enc, err := s.cipher.Encrypt(key)
	if err != nil {
		return nil, err
	}
	rc[models.RetellAPIKey] = enc
	out[models.SettingRetellConfig] = rc
	return out, nil
}

// openInPlace decrypts retell_config.api_key. A value that does not decrypt
// is kept as is: older documents hold it in plaintext.
func (s *Service) openInPlace(doc models.SettingsDoc) {
	rc := doc.Object(models.SettingRetellConfig)
	if rc == nil {
		return
	}
	key, ok := rc[models.RetellAPIKey].(string)
	if !ok || key == "" {
		return
	}
	if plain, err := s.cipher.Decrypt(key); err == nil {
		rc[models.RetellAPIKey] = plain
		doc[models.SettingRetellConfig] = rc
	}
}
