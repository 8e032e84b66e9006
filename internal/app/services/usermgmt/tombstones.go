package usermgmt

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"

	"github.com/dalemusser/carexps/internal/app/system/cachekeys"
	"github.com/dalemusser/carexps/internal/app/system/kv"
	"github.com/dalemusser/carexps/internal/app/system/normalize"
	"go.uber.org/zap"
)

// tombstones keeps the ids and lowercased emails of deleted users in the
// local cache so a deleted account cannot be silently recreated.
type tombstones struct {
	cache  kv.Backend
	logger *zap.Logger
	mu     sync.Mutex
}

func (t *tombstones) add(ctx context.Context, userID, email string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if userID != "" {
		t.appendTo(ctx, cachekeys.DeletedUsers, userID)
	}
	if email = normalize.Email(email); email != "" {
		t.appendTo(ctx, cachekeys.DeletedUserEmails, email)
	}
}

func (t *tombstones) hasEmail(ctx context.Context, email string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Contains(t.read(ctx, cachekeys.DeletedUserEmails), normalize.Email(email))
}

func (t *tombstones) hasUser(ctx context.Context, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Contains(t.read(ctx, cachekeys.DeletedUsers), userID)
}

// clearEmail removes email from the tombstone list and reports whether it
// was present.
func (t *tombstones) clearEmail(ctx context.Context, email string) (bool, error) {
	email = normalize.Email(email)
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.read(ctx, cachekeys.DeletedUserEmails)
	i := slices.Index(list, email)
	if i < 0 {
		return false, nil
	}
	return true, t.write(ctx, cachekeys.DeletedUserEmails, slices.Delete(list, i, i+1))
}

func (t *tombstones) appendTo(ctx context.Context, key, value string) {
	list := t.read(ctx, key)
	if slices.Contains(list, value) {
		return
	}
	if err := t.write(ctx, key, append(list, value)); err != nil {
		t.logger.Warn("writing tombstone failed", zap.String("key", key), zap.Error(err))
	}
}

func (t *tombstones) read(ctx context.Context, key string) []string {
	raw, err := t.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			t.logger.Warn("reading tombstones failed", zap.String("key", key), zap.Error(err))
		}
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		t.logger.Warn("discarding unreadable tombstone list", zap.String("key", key), zap.Error(err))
		return nil
	}
	return list
}

func (t *tombstones) write(ctx context.Context, key string, list []string) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return t.cache.Set(ctx, key, string(raw))
}
