package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrRefreshExpired     = errors.New("refresh_expired")
	ErrRefreshNotFound    = errors.New("refresh_not_found")
	ErrTransientIO        = errors.New("transient_io")
	ErrValidation         = errors.New("validation_error")

	ErrBootstrapAlready      = errors.New("system already bootstrapped")
	ErrBootstrapUnauthorized = errors.New("unauthorized bootstrap attempt")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// GuardError is returned when the privilege-safety guard refuses a role or
// status change. Reason is safe to show to the caller.
type GuardError struct {
	Rule   string
	Reason string
}

func (e *GuardError) Error() string { return e.Reason }

func (e *GuardError) Unwrap() error { return ErrForbidden }

// transient marks a storage failure so callers can tell it apart from an
// authentication failure.
func transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransientIO, err)
}
