// internal/domain/models/usersettings.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SettingsDoc is a user's settings document. Keys match the JSON API
// (theme, notifications, security_preferences, ...). Values are JSON-like:
// strings, numbers, bools, []any and nested SettingsDoc/map[string]any.
type SettingsDoc map[string]any

// Top-level settings keys.
const (
	SettingTheme                    = "theme"
	SettingNotifications            = "notifications"
	SettingSecurityPreferences      = "security_preferences"
	SettingDashboardLayout          = "dashboard_layout"
	SettingCommunicationPreferences = "communication_preferences"
	SettingAccessibility            = "accessibility_settings"
	SettingRetellConfig             = "retell_config"
)

// RetellAPIKey is the only field in retell_config that is stored encrypted.
const RetellAPIKey = "api_key"

// NestedSettings lists the top-level keys whose objects are merged field by
// field on update. All other keys are replaced whole.
var NestedSettings = []string{
	SettingNotifications,
	SettingSecurityPreferences,
	SettingDashboardLayout,
	SettingCommunicationPreferences,
	SettingAccessibility,
	SettingRetellConfig,
}

// Valid theme values.
var Themes = []string{"light", "dark", "auto"}

// UserSettings is the persisted settings record for one user.
type UserSettings struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	UserID     string             `bson:"user_id" json:"user_id"`
	Settings   SettingsDoc        `bson:"settings" json:"settings"`
	DeviceID   string             `bson:"device_id,omitempty" json:"device_id,omitempty"`
	LastSynced time.Time          `bson:"last_synced" json:"last_synced"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time          `bson:"updated_at" json:"updated_at"`

	// Pending is set on cached copies written optimistically and not yet
	// confirmed by the store.
	Pending bool `bson:"-" json:"pending,omitempty"`
}

// Clone returns a deep copy of s.
func (s *UserSettings) Clone() *UserSettings {
	if s == nil {
		return nil
	}
	out := *s
	out.Settings = s.Settings.Clone()
	return &out
}

// DefaultSettings returns a fresh copy of the settings a new user starts with.
func DefaultSettings() SettingsDoc {
	return SettingsDoc{
		SettingTheme: "light",
		SettingNotifications: map[string]any{
			"email":         true,
			"sms":           false,
			"push":          true,
			"in_app":        true,
			"call_alerts":   true,
			"sms_alerts":    true,
			"system_alerts": true,
		},
		SettingSecurityPreferences: map[string]any{
			"session_timeout":          15,
			"require_mfa":              true,
			"password_expiry_reminder": true,
			"login_notifications":      true,
		},
		SettingDashboardLayout: map[string]any{
			"widgets": []any{},
		},
		SettingCommunicationPreferences: map[string]any{
			"default_method":     "phone",
			"auto_reply_enabled": false,
			"business_hours": map[string]any{
				"enabled":  false,
				"start":    "09:00",
				"end":      "17:00",
				"timezone": "America/New_York",
			},
		},
		SettingAccessibility: map[string]any{
			"high_contrast":       false,
			"large_text":          false,
			"screen_reader":       false,
			"keyboard_navigation": false,
		},
	}
}

// Clone returns a deep copy of d.
func (d SettingsDoc) Clone() SettingsDoc {
	if d == nil {
		return nil
	}
	out := make(SettingsDoc, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

// Object returns the nested object stored under key, or nil.
func (d SettingsDoc) Object(key string) map[string]any {
	return AsObject(d[key])
}

// MergeSettings applies incoming on top of base. Top-level keys are replaced,
// except the NestedSettings keys whose objects are merged one level deep.
// Neither input is modified.
func MergeSettings(base, incoming SettingsDoc) SettingsDoc {
	out := base.Clone()
	if out == nil {
		out = SettingsDoc{}
	}
	for k, v := range incoming {
		if isNested(k) {
			cur, okCur := out[k].(map[string]any)
			upd := AsObject(v)
			if okCur && upd != nil {
				merged := make(map[string]any, len(cur)+len(upd))
				for ck, cv := range cur {
					merged[ck] = cv
				}
				for uk, uv := range upd {
					merged[uk] = cloneValue(uv)
				}
				out[k] = merged
				continue
			}
		}
		out[k] = cloneValue(v)
	}
	return out
}

// AsObject returns v as a map when it is an object value.
func AsObject(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case SettingsDoc:
		return map[string]any(m)
	case primitive.M:
		return map[string]any(m)
	case primitive.D:
		return cloneValue(m).(map[string]any)
	}
	return nil
}

func isNested(key string) bool {
	for _, k := range NestedSettings {
		if k == key {
			return true
		}
	}
	return false
}

// cloneValue deep-copies JSON-like values and flattens BSON container types
// into plain maps and slices.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case SettingsDoc:
		return cloneValue(map[string]any(t))
	case primitive.M:
		return cloneValue(map[string]any(t))
	case primitive.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = cloneValue(e.Value)
		}
		return out
	case primitive.A:
		return cloneValue([]any(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}

// Settings change operations delivered by the live-update feed.
const (
	ChangeInsert  = "insert"
	ChangeUpdate  = "update"
	ChangeReplace = "replace"
	ChangeDelete  = "delete"
)

// SettingsChange is one event from the live-update feed. Settings is nil for
// deletes.
type SettingsChange struct {
	Op       string
	UserID   string
	Settings *UserSettings
}
