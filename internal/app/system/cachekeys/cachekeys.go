// Package cachekeys names the records kept in the local cache tier.
package cachekeys

// Fixed keys.
const (
	FailedAttempts    = "failedLoginAttempts"
	DeletedUsers      = "deletedUsers"
	DeletedUserEmails = "deletedUserEmails"
	SettingsPending   = "settingsPending"
)

// CredentialsPrefix namespaces credential blobs in the local tier.
const CredentialsPrefix = "userCredentials:"

// Credentials is the full local-tier key of a user's credential blob.
func Credentials(userID string) string {
	return CredentialsPrefix + userID
}

// LoginStats is the key of a user's lockout counter record.
func LoginStats(userID string) string {
	return "loginStats:" + userID
}

// Settings is the key of a user's cached settings entry.
func Settings(userID string) string {
	return "settings:" + userID
}
