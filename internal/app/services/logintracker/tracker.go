// Package logintracker records failed logins and derives lockout state.
//
// Two sources feed the lockout decision: the failed-attempt log (remote,
// with a bounded local list as fallback) and the per-user stats record in
// the local cache. Each source yields a lockout-until timestamp; the latest
// one wins and the account is locked while it lies in the future. Expiry is
// lazy: nothing runs when a lockout ends.
package logintracker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	userstore "github.com/dalemusser/carexps/internal/app/store/users"
	"github.com/dalemusser/carexps/internal/app/system/cachekeys"
	"github.com/dalemusser/carexps/internal/app/system/kv"
	"github.com/dalemusser/carexps/internal/app/system/metrics"
	"github.com/dalemusser/carexps/internal/app/system/normalize"
	"github.com/dalemusser/carexps/internal/app/system/timeouts"
	"github.com/dalemusser/carexps/internal/domain/models"
	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts     = 3
	DefaultLockoutDuration = 30 * time.Minute
	// MaxLocalAttempts bounds the local fallback list; the oldest entries go first.
	MaxLocalAttempts = 100
)

// AttemptLog is the remote failed-attempt log.
type AttemptLog interface {
	Create(ctx context.Context, a models.FailedLoginAttempt) error
	ListSince(ctx context.Context, email string, since time.Time) ([]models.FailedLoginAttempt, error)
	DeleteByEmail(ctx context.Context, email string) (int64, error)
}

// EmailResolver maps user ids to login emails.
type EmailResolver interface {
	EmailForUser(ctx context.Context, userID string) (string, error)
}

// LastLoginToucher refreshes the directory's last-login timestamp.
type LastLoginToucher interface {
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// Config holds the lockout policy.
type Config struct {
	MaxAttempts     int
	LockoutDuration time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Tracker is safe for concurrent use within one process.
type Tracker struct {
	log    AttemptLog
	cache  kv.Backend
	ident  EmailResolver
	dir    LastLoginToucher
	cfg    Config
	logger *zap.Logger

	// mu guards read-modify-write of the local list and stats records.
	mu sync.Mutex
}

// New returns a Tracker. log and dir may be nil.
func New(log AttemptLog, cache kv.Backend, ident EmailResolver, dir LastLoginToucher, cfg Config, logger *zap.Logger) *Tracker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = DefaultLockoutDuration
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Tracker{
		log:    log,
		cache:  cache,
		ident:  ident,
		dir:    dir,
		cfg:    cfg,
		logger: logger,
	}
}

// Policy returns the effective lockout policy.
func (t *Tracker) Policy() (maxAttempts int, lockout time.Duration) {
	return t.cfg.MaxAttempts, t.cfg.LockoutDuration
}

// GetStats derives the current lockout state for userID.
func (t *Tracker) GetStats(ctx context.Context, userID string) models.LoginStatus {
	now := t.cfg.Now()

	t.mu.Lock()
	stats := t.loadStats(ctx, userID)
	t.mu.Unlock()

	until := stats.LockoutUntil
	count := 0
	if email, err := t.ident.EmailForUser(ctx, userID); err == nil {
		attempts := t.recentAttempts(ctx, email, now)
		count = len(attempts)
		if count >= t.cfg.MaxAttempts {
			u := newest(attempts).Add(t.cfg.LockoutDuration)
			until = later(until, &u)
		}
	}
	if local := t.windowCount(stats, now); local > count {
		count = local
	}

	status := models.LoginStatus{
		LoginAttempts: count,
		LastLogin:     stats.LastLogin,
	}
	if until != nil && until.After(now) {
		status.IsLocked = true
		status.LockoutUntil = until
	}
	return status
}

// RecordFailure appends a failed attempt for email to the remote log, or to
// the local list when the remote write fails.
func (t *Tracker) RecordFailure(ctx context.Context, email, reason string, meta models.RequestMeta) {
	a := models.FailedLoginAttempt{
		Email:       normalize.Email(email),
		IPAddress:   meta.IP,
		UserAgent:   meta.UserAgent,
		Reason:      reason,
		AttemptedAt: t.cfg.Now().UTC(),
	}
	if t.log != nil {
		cctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), t.logger, "failed_attempts.create")
		err := t.log.Create(cctx, a)
		cancel()
		if err == nil {
			return
		}
		t.logger.Warn("failed-attempt log unavailable; recording locally",
			zap.String("email", a.Email),
			zap.Error(err))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.loadLocalAttempts(ctx)
	list = append(list, a)
	if len(list) > MaxLocalAttempts {
		list = list[len(list)-MaxLocalAttempts:]
	}
	t.saveLocalAttempts(ctx, list)
}

// Increment records a failure for userID and bumps the local counter. When
// the counter reaches the limit the account is locked for LockoutDuration.
func (t *Tracker) Increment(ctx context.Context, userID, reason string, meta models.RequestMeta) models.LoginStats {
	if email, err := t.ident.EmailForUser(ctx, userID); err == nil {
		t.RecordFailure(ctx, email, reason, meta)
	} else {
		t.logger.Warn("cannot resolve email for failed attempt", zap.String("user_id", userID))
	}

	now := t.cfg.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	stats := t.loadStats(ctx, userID)
	if t.windowCount(stats, now) == 0 {
		stats.LoginAttempts = 0
		stats.LockoutUntil = nil
	}
	stats.LoginAttempts++
	stats.LastFailure = &now
	if stats.LoginAttempts >= t.cfg.MaxAttempts {
		until := now.Add(t.cfg.LockoutDuration)
		stats.LockoutUntil = &until
		metrics.Lockouts.Inc()
		t.logger.Warn("account locked after failed attempts",
			zap.String("user_id", userID),
			zap.Int("attempts", stats.LoginAttempts),
			zap.Time("lockout_until", until))
	}
	if err := t.saveStats(ctx, userID, stats); err != nil {
		t.logger.Warn("saving login stats failed", zap.String("user_id", userID), zap.Error(err))
	}
	return stats
}

// Reset clears failed attempts for userID and records a login at now.
func (t *Tracker) Reset(ctx context.Context, userID string) error {
	if email, err := t.ident.EmailForUser(ctx, userID); err == nil {
		t.clearAttempts(ctx, email)
	}

	now := t.cfg.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveStats(ctx, userID, models.LoginStats{LastLogin: &now})
}

// ClearLockout resets userID and refreshes the directory's last-login time.
func (t *Tracker) ClearLockout(ctx context.Context, userID string) error {
	if err := t.Reset(ctx, userID); err != nil {
		return err
	}
	if t.dir != nil {
		cctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), t.logger, "users.touch_last_login")
		err := t.dir.TouchLastLogin(cctx, userID, t.cfg.Now())
		cancel()
		if err != nil && !errors.Is(err, userstore.ErrNotFound) {
			t.logger.Warn("refreshing last login failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return nil
}

// ForceClear drops every trace of failed logins for userID: remote and
// local attempts for email, the local stats record and the locally cached
// credential blob. The remote credential tier is untouched. email may be
// empty, in which case it is resolved.
func (t *Tracker) ForceClear(ctx context.Context, userID, email string) {
	if email == "" {
		email, _ = t.ident.EmailForUser(ctx, userID)
	}
	if email != "" {
		t.clearAttempts(ctx, email)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, key := range []string{cachekeys.LoginStats(userID), cachekeys.Credentials(userID)} {
		if err := t.cache.Delete(ctx, key); err != nil && !errors.Is(err, kv.ErrNotFound) {
			t.logger.Warn("force clear: cache delete failed",
				zap.String("user_id", userID),
				zap.String("key", key),
				zap.Error(err))
		}
	}
}

func (t *Tracker) clearAttempts(ctx context.Context, email string) {
	email = normalize.Email(email)
	if t.log != nil {
		cctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), t.logger, "failed_attempts.delete")
		_, err := t.log.DeleteByEmail(cctx, email)
		cancel()
		if err != nil {
			t.logger.Warn("clearing remote failed attempts failed", zap.String("email", email), zap.Error(err))
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.loadLocalAttempts(ctx)
	kept := list[:0]
	for _, a := range list {
		if a.Email != email {
			kept = append(kept, a)
		}
	}
	if len(kept) != len(list) {
		t.saveLocalAttempts(ctx, kept)
	}
}

// recentAttempts returns the attempts for email inside the trailing window,
// from the remote log when reachable, else from the local list. The window
// excludes its start, matching windowCount.
func (t *Tracker) recentAttempts(ctx context.Context, email string, now time.Time) []models.FailedLoginAttempt {
	email = normalize.Email(email)
	since := now.Add(-t.cfg.LockoutDuration)
	if t.log != nil {
		cctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), t.logger, "failed_attempts.list")
		attempts, err := t.log.ListSince(cctx, email, since)
		cancel()
		if err == nil {
			return attempts
		}
		t.logger.Warn("failed-attempt log unavailable; using local list", zap.Error(err))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	var out []models.FailedLoginAttempt
	for _, a := range t.loadLocalAttempts(ctx) {
		if a.Email == email && a.AttemptedAt.After(since) {
			out = append(out, a)
		}
	}
	return out
}

// windowCount returns the local counter if its last failure is still inside
// the window and any lockout it set has not expired.
func (t *Tracker) windowCount(s models.LoginStats, now time.Time) int {
	if s.LastFailure == nil || now.Sub(*s.LastFailure) >= t.cfg.LockoutDuration {
		return 0
	}
	if s.LockoutUntil != nil && !s.IsLockedAt(now) {
		return 0
	}
	return s.LoginAttempts
}

func (t *Tracker) loadStats(ctx context.Context, userID string) models.LoginStats {
	var s models.LoginStats
	raw, err := t.cache.Get(ctx, cachekeys.LoginStats(userID))
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			t.logger.Warn("reading login stats failed", zap.String("user_id", userID), zap.Error(err))
		}
		return s
	}
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		t.logger.Warn("discarding unreadable login stats", zap.String("user_id", userID), zap.Error(err))
		return models.LoginStats{}
	}
	return s
}

func (t *Tracker) saveStats(ctx context.Context, userID string, s models.LoginStats) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return t.cache.Set(ctx, cachekeys.LoginStats(userID), string(raw))
}

func (t *Tracker) loadLocalAttempts(ctx context.Context) []models.FailedLoginAttempt {
	raw, err := t.cache.Get(ctx, cachekeys.FailedAttempts)
	if err != nil {
		return nil
	}
	var list []models.FailedLoginAttempt
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		t.logger.Warn("discarding unreadable local failed-attempt list", zap.Error(err))
		return nil
	}
	return list
}

func (t *Tracker) saveLocalAttempts(ctx context.Context, list []models.FailedLoginAttempt) {
	raw, err := json.Marshal(list)
	if err == nil {
		err = t.cache.Set(ctx, cachekeys.FailedAttempts, string(raw))
	}
	if err != nil {
		t.logger.Warn("saving local failed-attempt list failed", zap.Error(err))
	}
}

func newest(attempts []models.FailedLoginAttempt) time.Time {
	var n time.Time
	for _, a := range attempts {
		if a.AttemptedAt.After(n) {
			n = a.AttemptedAt
		}
	}
	return n
}

func later(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	}
	return a
}
