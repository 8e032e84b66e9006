// Package vault stores and retrieves encrypted user credentials across the
// storage tiers (remote first, local cache last).
//
// A credential record is JSON, encrypted as a whole, and fully replaced on
// every write: the old ciphertext is deleted from every tier before the new
// one is written, then the write is read back and checked.
package vault

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dalemusser/carexps/internal/app/system/cachekeys"
	"github.com/dalemusser/carexps/internal/app/system/kv"
	"github.com/dalemusser/carexps/internal/app/system/phicrypt"
	"github.com/dalemusser/carexps/internal/domain/models"
	"go.uber.org/zap"
)

var (
	// ErrCredentialStoreFailed is returned when no tier accepted a credential write.
	ErrCredentialStoreFailed = errors.New("failed to store credentials")
	// ErrCredentialVerificationFailed is returned (wrapped in ErrCredentialStoreFailed)
	// when the stored credential does not read back with the expected email.
	ErrCredentialVerificationFailed = errors.New("credential verification failed")
)

// Options tunes the vault.
type Options struct {
	// LegacyDoubleEncrypt encrypts the password field on its own before the
	// whole record is encrypted. Only for interoperating with records written
	// that way; Retrieve unwraps both forms regardless.
	LegacyDoubleEncrypt bool
}

// Vault is the credential store. It is safe for concurrent use; writes for
// the same user are serialized.
type Vault struct {
	tiers  *kv.Tiers
	local  kv.Backend
	cipher phicrypt.Cipher
	logger *zap.Logger
	opts   Options
	locks  keyedMutex
}

// New returns a Vault. tiers holds the credential tiers in priority order,
// keyed by user id. local is the unprefixed local cache, used to drop the
// user's login-stats entry on Remove.
func New(c phicrypt.Cipher, tiers *kv.Tiers, local kv.Backend, logger *zap.Logger, opts Options) *Vault {
	return &Vault{
		tiers:  tiers,
		local:  local,
		cipher: c,
		logger: logger,
		opts:   opts,
	}
}

// Store replaces the credentials for userID on every tier.
func (v *Vault) Store(ctx context.Context, userID string, creds models.UserCredentials) error {
	unlock := v.locks.lock(userID)
	defer unlock()
	return v.store(ctx, userID, creds, v.opts.LegacyDoubleEncrypt)
}

func (v *Vault) store(ctx context.Context, userID string, creds models.UserCredentials, double bool) error {
	if err := v.tiers.DeleteAll(ctx, userID); err != nil {
		v.logger.Warn("credential delete before write failed on some tiers",
			zap.String("user_id", userID),
			zap.Error(err))
	}

	blob, err := v.seal(creds, double)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCredentialStoreFailed, err)
	}

	n, err := v.tiers.WriteAll(ctx, userID, blob)
	if n == 0 {
		return fmt.Errorf("%w: %w", ErrCredentialStoreFailed, err)
	}
	if err != nil {
		v.logger.Warn("credential write failed on some tiers",
			zap.String("user_id", userID),
			zap.Int("tiers_written", n),
			zap.Error(err))
	}

	got, _ := v.retrieve(ctx, userID)
	if got == nil || !strings.EqualFold(got.Email, creds.Email) {
		return fmt.Errorf("%w: %w", ErrCredentialStoreFailed, ErrCredentialVerificationFailed)
	}
	return nil
}

// Retrieve returns the credentials for userID from the first tier holding a
// record that decrypts and parses. It returns nil, nil when no tier has one.
// The only error is a cancelled or expired ctx.
func (v *Vault) Retrieve(ctx context.Context, userID string) (*models.UserCredentials, error) {
	unlock := v.locks.lock(userID)
	defer unlock()
	return v.retrieve(ctx, userID)
}

func (v *Vault) retrieve(ctx context.Context, userID string) (*models.UserCredentials, error) {
	var creds *models.UserCredentials
	err := v.tiers.Read(ctx, userID, func(raw string) error {
		c, _, err := v.open(raw)
		if err != nil {
			return err
		}
		creds = c
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, nil
	}
	return creds, nil
}

// Remove deletes the credentials for userID from every tier, and the user's
// login-stats cache entry. Failures are logged, never returned.
func (v *Vault) Remove(ctx context.Context, userID string) {
	unlock := v.locks.lock(userID)
	defer unlock()

	if err := v.tiers.DeleteAll(ctx, userID); err != nil {
		v.logger.Warn("credential remove failed on some tiers",
			zap.String("user_id", userID),
			zap.Error(err))
	}
	if err := v.local.Delete(ctx, cachekeys.LoginStats(userID)); err != nil && !errors.Is(err, kv.ErrNotFound) {
		v.logger.Warn("login stats remove failed",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

// IsDoubleEncrypted reports whether the stored record for userID has a
// password field that is itself ciphertext.
func (v *Vault) IsDoubleEncrypted(ctx context.Context, userID string) (bool, error) {
	var double bool
	err := v.tiers.Read(ctx, userID, func(raw string) error {
		_, d, err := v.open(raw)
		if err != nil {
			return err
		}
		double = d
		return nil
	})
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	return double, err
}

// RepairDoubleEncrypted rewrites a double-encrypted record in single-layer
// form. It reports whether a repair was made.
func (v *Vault) RepairDoubleEncrypted(ctx context.Context, userID string) (bool, error) {
	unlock := v.locks.lock(userID)
	defer unlock()

	var (
		creds  *models.UserCredentials
		double bool
	)
	err := v.tiers.Read(ctx, userID, func(raw string) error {
		c, d, err := v.open(raw)
		if err != nil {
			return err
		}
		creds, double = c, d
		return nil
	})
	if errors.Is(err, kv.ErrNotFound) || !double {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := v.store(ctx, userID, *creds, false); err != nil {
		return false, err
	}
	v.logger.Info("repaired double-encrypted credentials", zap.String("user_id", userID))
	return true, nil
}

// VerifyPassword reports whether password matches the stored password for
// userID. A user with no stored credentials never matches.
func (v *Vault) VerifyPassword(ctx context.Context, userID, password string) (bool, error) {
	creds, err := v.Retrieve(ctx, userID)
	if err != nil || creds == nil {
		return false, err
	}
	return PasswordsEqual(creds.Password, password), nil
}

// PasswordsEqual compares two passwords in constant time.
func PasswordsEqual(stored, given string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}

func (v *Vault) seal(creds models.UserCredentials, double bool) (string, error) {
	rec := creds
	if double {
		enc, err := v.cipher.Encrypt(rec.Password)
		if err != nil {
			return "", err
		}
		rec.Password = enc
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	return v.cipher.Encrypt(string(raw))
}

// open decrypts and parses a blob. The second result reports whether the
// password field was itself encrypted and has been unwrapped.
func (v *Vault) open(blob string) (*models.UserCredentials, bool, error) {
	plain, err := v.cipher.Decrypt(blob)
	if err != nil {
		return nil, false, err
	}
	var creds models.UserCredentials
	if err := json.Unmarshal([]byte(plain), &creds); err != nil {
		return nil, false, fmt.Errorf("parse credentials: %w", err)
	}
	if phicrypt.IsCiphertext(creds.Password) {
		if p, err := v.cipher.Decrypt(creds.Password); err == nil {
			creds.Password = p
			return &creds, true, nil
		}
	}
	return &creds, false, nil
}

// keyedMutex serializes work per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
