// Package identity maps user ids to login emails and holds the
// configuration-driven principal lists: accounts that can never be locked
// out, and user-id aliases that must receive the same credentials.
package identity

import (
	"context"
	"errors"

	userstore "github.com/dalemusser/carexps/internal/app/store/users"
	"github.com/dalemusser/carexps/internal/app/system/normalize"
	"github.com/dalemusser/carexps/internal/domain/models"
	"go.uber.org/zap"
)

// ErrUnknownUser is returned when no source knows the user's email.
var ErrUnknownUser = errors.New("identity: unknown user")

// Directory looks users up by id.
type Directory interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// CredentialReader reads a user's stored credentials.
type CredentialReader interface {
	Retrieve(ctx context.Context, userID string) (*models.UserCredentials, error)
}

// Config lists the configured principals.
type Config struct {
	// DemoUserEmails maps demo user ids to their login emails.
	DemoUserEmails map[string]string
	// NonLockable lists emails whose accounts are never locked out.
	NonLockable []string
	// Aliases maps an email to extra user ids that share its credentials.
	Aliases map[string][]string
}

// Resolver resolves user ids to emails. Lookups try the directory, then the
// demo map, then the credential record.
type Resolver struct {
	dir         Directory
	creds       CredentialReader
	demo        map[string]string
	nonLockable map[string]struct{}
	aliases     map[string][]string
	logger      *zap.Logger
}

// New returns a Resolver. dir and creds may be nil.
func New(dir Directory, creds CredentialReader, cfg Config, logger *zap.Logger) *Resolver {
	r := &Resolver{
		dir:         dir,
		creds:       creds,
		demo:        make(map[string]string, len(cfg.DemoUserEmails)),
		nonLockable: make(map[string]struct{}, len(cfg.NonLockable)),
		aliases:     make(map[string][]string, len(cfg.Aliases)),
		logger:      logger,
	}
	for id, email := range cfg.DemoUserEmails {
		r.demo[normalize.UserID(id)] = normalize.Email(email)
	}
	for _, email := range cfg.NonLockable {
		if e := normalize.Email(email); e != "" {
			r.nonLockable[e] = struct{}{}
		}
	}
	for email, ids := range cfg.Aliases {
		e := normalize.Email(email)
		for _, id := range ids {
			if id = normalize.UserID(id); id != "" {
				r.aliases[e] = append(r.aliases[e], id)
			}
		}
	}
	return r
}

// EmailForUser returns the login email for userID.
func (r *Resolver) EmailForUser(ctx context.Context, userID string) (string, error) {
	userID = normalize.UserID(userID)
	if userID == "" {
		return "", ErrUnknownUser
	}

	if r.dir != nil {
		u, err := r.dir.GetByID(ctx, userID)
		switch {
		case err == nil && u != nil && u.Email != "":
			return normalize.Email(u.Email), nil
		case err != nil && !errors.Is(err, userstore.ErrNotFound):
			r.logger.Warn("directory lookup failed; trying other sources",
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}

	if email, ok := r.demo[userID]; ok {
		return email, nil
	}

	if r.creds != nil {
		if c, err := r.creds.Retrieve(ctx, userID); err == nil && c != nil && c.Email != "" {
			return normalize.Email(c.Email), nil
		}
	}
	return "", ErrUnknownUser
}

// IsNonLockable reports whether email belongs to an account that is never
// locked out.
func (r *Resolver) IsNonLockable(email string) bool {
	_, ok := r.nonLockable[normalize.Email(email)]
	return ok
}

// AliasesFor returns the alias user ids for email, excluding exceptID.
func (r *Resolver) AliasesFor(email, exceptID string) []string {
	var out []string
	for _, id := range r.aliases[normalize.Email(email)] {
		if id != exceptID {
			out = append(out, id)
		}
	}
	return out
}
