package models

import "errors"

var (
	// ErrInvalidState is returned when an operation does not apply to the
	// current cycle state, e.g. reporting a result while inactive.
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidConfiguration is returned when settings fail validation.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrInvalidInput is returned when a request carries malformed values,
	// e.g. an empty account ID or a multiplier below 1.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a versioned save lost a concurrent update.
	ErrConflict = errors.New("concurrent modification")
)
