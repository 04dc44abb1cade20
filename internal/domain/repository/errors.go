package repository

import "errors"

// Storage errors shared by every backend.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a unique key already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrVersionConflict is returned when the stored capital version moved on.
	ErrVersionConflict = errors.New("capital version conflict")

	// ErrStateConflict is returned when a record is not in the state a
	// transition requires, e.g. settling a trade that is no longer open.
	ErrStateConflict = errors.New("state conflict")

	// ErrInvalidInput is returned when a record fails basic validation.
	ErrInvalidInput = errors.New("invalid input")
)
