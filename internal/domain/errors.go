package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenNotFound      = errors.New("token not found")
	ErrForbidden          = errors.New("forbidden")

	ErrUserNotFound       = errors.New("user not found")
	ErrInvitationNotFound = errors.New("invitation not found")

	ErrInvalidState          = errors.New("operation conflicts with current state")
	ErrReminderLimitExceeded = errors.New("reminder limit reached")
	ErrDispatchFailed        = errors.New("notification dispatch failed")

	// ErrEmailTaken is returned by user stores on a unique-email violation.
	ErrEmailTaken = fmt.Errorf("%w: email already registered", ErrValidation)
)

// Validationf wraps ErrValidation with a caller-facing detail.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
