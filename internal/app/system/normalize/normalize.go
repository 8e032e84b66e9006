// Package normalize canonicalizes the identifiers that key lookups across the
// user, credential, lockout and settings stores. Every write and every
// comparison goes through these so the stores agree on the key.
package normalize

import "strings"

// Email is the canonical form of a login email: trimmed and lowercased.
// Tombstones, lockout counters and the unique users index all use it.
func Email(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Name trims a display name. Case is preserved; sort keys come from text.Fold.
func Name(s string) string { return strings.TrimSpace(s) }

// Role lowercases and trims a role before it is matched against models roles.
func Role(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// UserID trims a user id. Ids are opaque and compared case-sensitively.
func UserID(s string) string { return strings.TrimSpace(s) }
