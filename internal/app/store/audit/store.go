// internal/app/store/audit/store.go
package audit

// Terminology: User Identifiers
//   - UserID / userID / user_id: the string id of the affected user
//   - Email: the address typed at login (kept even when no user matched)

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Event categories
const (
	CategoryAuth     = "auth"
	CategoryAdmin    = "admin"
	CategorySettings = "settings"
)

// Auth event types
const (
	EventLoginSuccess             = "login_success"
	EventLoginFailedUserNotFound  = "login_failed_user_not_found"
	EventLoginFailedWrongPassword = "login_failed_wrong_password"
	EventLoginFailedNoCredentials = "login_failed_no_credentials"
	EventLoginFailedUserInactive  = "login_failed_user_inactive"
	EventLoginLockedOut           = "login_locked_out"
	EventLockoutBypassed          = "login_lockout_bypassed"
	EventPasswordChanged          = "password_changed"
	EventPasswordChangeUnverified = "password_change_verification_failed"
)

// Admin event types
const (
	EventUserCreated      = "user_created"
	EventUserUpdated      = "user_updated"
	EventUserDeleted      = "user_deleted"
	EventUserUnlocked     = "user_unlocked"
	EventTombstoneCleared = "tombstone_cleared"
)

// Settings event types
const (
	EventSettingsUpdated  = "settings_updated"
	EventSettingsImported = "settings_imported"
	EventSettingsReset    = "settings_reset"
)

// Event represents an audit event.
type Event struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`

	// Event classification
	Category  string `bson:"category" json:"category"`
	EventType string `bson:"event_type" json:"event_type"`

	// Who
	UserID string `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Email  string `bson:"email,omitempty" json:"email,omitempty"`

	// Context
	IP        string `bson:"ip" json:"ip,omitempty"`
	UserAgent string `bson:"user_agent,omitempty" json:"user_agent,omitempty"`

	// Outcome
	Success       bool   `bson:"success" json:"success"`
	FailureReason string `bson:"failure_reason,omitempty" json:"failure_reason,omitempty"`

	// Additional details (varies by event type)
	Details map[string]string `bson:"details,omitempty" json:"details,omitempty"`
}

// Filter narrows a Find or Count. Zero fields match everything; Since and
// Until bound created_at inclusively.
type Filter struct {
	UserID    string
	Email     string
	Category  string
	EventType string
	Since     time.Time
	Until     time.Time
	// Failures keeps only unsuccessful events.
	Failures bool
}

// DefaultLimit applies when Find is given a limit of zero or less.
const DefaultLimit = 100

// MaxLimit caps a single page.
const MaxLimit = 1000

// FailedLoginTypes are the auth events that count as a rejected login.
var FailedLoginTypes = []string{
	EventLoginFailedUserNotFound,
	EventLoginFailedWrongPassword,
	EventLoginFailedNoCredentials,
	EventLoginFailedUserInactive,
	EventLoginLockedOut,
}

// Store persists audit events in audit_logs. Indexes are owned by the
// indexes package.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("audit_logs")}
}

// Log inserts event, stamping the id and time when unset.
func (s *Store) Log(ctx context.Context, event Event) error {
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, event)
	return err
}

func (f Filter) query() bson.M {
	q := bson.M{}
	for key, val := range map[string]string{
		"user_id":    f.UserID,
		"email":      f.Email,
		"category":   f.Category,
		"event_type": f.EventType,
	} {
		if val != "" {
			q[key] = val
		}
	}
	if f.Failures {
		q["success"] = false
	}
	window := bson.M{}
	if !f.Since.IsZero() {
		window["$gte"] = f.Since
	}
	if !f.Until.IsZero() {
		window["$lte"] = f.Until
	}
	if len(window) > 0 {
		q["created_at"] = window
	}
	return q
}

// Find pages through matching events, newest first.
func (s *Store) Find(ctx context.Context, f Filter, limit, offset int64) ([]Event, error) {
	return s.find(ctx, f.query(), limit, offset)
}

// Count returns how many events match f.
func (s *Store) Count(ctx context.Context, f Filter) (int64, error) {
	return s.c.CountDocuments(ctx, f.query())
}

// FailedLogins returns rejected logins since the given time, newest first,
// including lockouts and attempts for unknown emails.
func (s *Store) FailedLogins(ctx context.Context, since time.Time, limit int64) ([]Event, error) {
	q := Filter{Category: CategoryAuth, Since: since, Failures: true}.query()
	q["event_type"] = bson.M{"$in": FailedLoginTypes}
	return s.find(ctx, q, limit, 0)
}

func (s *Store) find(ctx context.Context, q bson.M, limit, offset int64) ([]Event, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit)
	if offset > 0 {
		opts.SetSkip(offset)
	}

	cur, err := s.c.Find(ctx, q, opts)
	if err != nil {
		return nil, err
	}
	events := []Event{}
	if err := cur.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}
