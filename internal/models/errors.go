package models

import "errors"

// Error taxonomy shared by the store, the services and the HTTP layer. Callers
// wrap these with oops codes and match them with errors.Is.
var (
	// ErrValidation marks malformed input, e.g. a bad display name.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a uniqueness violation.
	ErrConflict = errors.New("already taken")
	// ErrAuthFailure marks bad credentials, whatever the cause.
	ErrAuthFailure = errors.New("invalid credentials")
	// ErrSessionInvalid marks an expired, tampered or orphaned session token.
	ErrSessionInvalid = errors.New("invalid session")
	// ErrStoreUnavailable marks a database failure.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNotFound marks a missing account.
	ErrNotFound = errors.New("not found")
)
