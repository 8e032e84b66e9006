// Package authutil holds the password policy for staff accounts.
package authutil

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

// Length limits.
const (
	MinPasswordLength = 6
	MaxPasswordLength = 128

	// TempPasswordLength is the length of generated temporary passwords.
	TempPasswordLength = 12
)

// Policy errors. The messages are shown to the administrator as-is.
var (
	ErrPasswordTooShort = errors.New("Password must be at least 6 characters.")
	ErrPasswordTooLong  = errors.New("Password must be less than 128 characters.")
	ErrPasswordCommon   = errors.New("This password is too common. Please choose a different one.")
	ErrPasswordIsEmail  = errors.New("Password must not be the account email address.")
	ErrPasswordWeak     = errors.New("Password is too easy to guess. Try a longer phrase of unrelated words.")
)

// MaxStrength is the highest zxcvbn score.
const MaxStrength = 4

// commonPasswords are rejected regardless of case. The list leans toward
// what gets typed on a shared clinic workstation. Entries are at least
// MinPasswordLength long; shorter ones never get past the length check.
var commonPasswords = map[string]struct{}{
	"123456": {}, "1234567": {}, "12345678": {}, "123456789": {}, "1234567890": {},
	"111111": {}, "000000": {}, "123123": {}, "654321": {}, "abc123": {}, "abcdef": {},
	"password": {}, "password1": {}, "password123": {}, "passw0rd": {},
	"qwerty": {}, "qwerty123": {}, "letmein": {}, "welcome": {}, "welcome1": {},
	"administrator": {}, "admin123": {}, "login123": {}, "changeme": {}, "iloveyou": {},
	"doctor": {}, "nurse1": {}, "nurse123": {}, "hospital": {}, "clinic": {},
	"medical": {}, "patient": {}, "health": {}, "carexps": {},
}

// tempAlphabet leaves out characters that are easy to misread when a
// password is read aloud or copied from paper (0/O, 1/l/I).
const tempAlphabet = "abcdefghjkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// PasswordRules describes the policy for display next to a password field.
func PasswordRules() string {
	return "Password must be at least 6 characters and cannot be a common password like \"123456\" or \"password\"."
}

// ValidatePassword checks length and the common-password list.
func ValidatePassword(password string) error {
	switch {
	case len(password) < MinPasswordLength:
		return ErrPasswordTooShort
	case len(password) > MaxPasswordLength:
		return ErrPasswordTooLong
	}
	if _, common := commonPasswords[strings.ToLower(password)]; common {
		return ErrPasswordCommon
	}
	return nil
}

// ValidatePasswordFor applies ValidatePassword and also rejects the account
// email, or its local part when that is long enough to be a password.
func ValidatePasswordFor(password, email string) error {
	if err := ValidatePassword(password); err != nil {
		return err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}
	lower := strings.ToLower(password)
	if lower == email {
		return ErrPasswordIsEmail
	}
	if at := strings.IndexByte(email, '@'); at >= MinPasswordLength && lower == email[:at] {
		return ErrPasswordIsEmail
	}
	return nil
}

// GenerateTempPassword returns a random TempPasswordLength password drawn
// from an unambiguous alphabet. It always passes ValidatePassword.
func GenerateTempPassword() (string, error) {
	max := big.NewInt(int64(len(tempAlphabet)))
	var b strings.Builder
	b.Grow(TempPasswordLength)
	for i := 0; i < TempPasswordLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(tempAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// Strength scores password with zxcvbn from 0 (guessed in seconds) to
// MaxStrength. userInputs such as the account name and email count as known
// words.
func Strength(password string, userInputs ...string) int {
	return zxcvbn.PasswordStrength(password, userInputs).Score
}

// CheckStrength rejects a password scoring below minScore. A minScore of
// zero or less turns the check off; values above MaxStrength are clamped.
func CheckStrength(password string, minScore int, userInputs ...string) error {
	if minScore <= 0 {
		return nil
	}
	if Strength(password, userInputs...) < min(minScore, MaxStrength) {
		return ErrPasswordWeak
	}
	return nil
}
