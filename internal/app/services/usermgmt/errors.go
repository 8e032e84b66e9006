package usermgmt

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAccountLocked matches any *LockedError.
	ErrAccountLocked = errors.New("account temporarily locked")
	// ErrUserNotFound is returned when no source knows the user.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when creating a user whose email is taken.
	ErrUserExists = errors.New("a user with this email already exists")
	// ErrUserTombstoned is returned when creating a user whose email belongs
	// to a deleted account that has not been cleared for reuse.
	ErrUserTombstoned = errors.New("this email belongs to a deleted account")
	// ErrPasswordChangeVerificationFailed means the new password was written
	// but did not verify. Treat the change as failed.
	ErrPasswordChangeVerificationFailed = errors.New("password change verification failed")
	// ErrInvalidInput matches any *InputError.
	ErrInvalidInput = errors.New("invalid input")
)

// LockedError is returned by Authenticate for a locked account. Its message
// is safe to show to the caller.
type LockedError struct {
	Until     time.Time
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("Account is temporarily locked due to too many failed login attempts. Please try again in %d minutes.", e.Minutes())
}

func (e *LockedError) Is(target error) bool { return target == ErrAccountLocked }

// Minutes is the remaining lockout rounded up, never less than one.
func (e *LockedError) Minutes() int {
	m := int((e.Remaining + time.Minute - 1) / time.Minute)
	if m < 1 {
		m = 1
	}
	return m
}

// InputError carries a user-facing validation message.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

func (e *InputError) Is(target error) bool { return target == ErrInvalidInput }
