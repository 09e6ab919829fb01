// Package storeerr defines the error kinds every internal/store repository
// returns, so callers can branch on retry-vs-report without sniffing driver
// errors.
package storeerr

import "errors"

var (
	// ErrNotFound means the row does not exist. Benign; callers treat it as
	// an empty optional, never a failure.
	ErrNotFound = errors.New("store: not found")

	// ErrBackendUnavailable means the underlying store could not be reached
	// or timed out. Triggers degraded mode in the license plane and backoff
	// in the usage tracker.
	ErrBackendUnavailable = errors.New("store: backend unavailable")

	// ErrConstraintViolation means the write violated a uniqueness or
	// check constraint. Surfaced to the caller immediately, never retried.
	ErrConstraintViolation = errors.New("store: constraint violation")
)
