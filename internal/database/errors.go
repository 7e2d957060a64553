package database

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateName is returned when enrolling a display name that already exists.
	ErrDuplicateName = errors.New("display name already exists")

	// ErrDimensionMismatch marks an embedding whose length differs from the configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrWriteConflict is a transactional precondition race. Ledgers retry it
	// internally; callers only see it once retries are exhausted.
	ErrWriteConflict = errors.New("ledger write conflict")

	// ErrLedgerUnavailable means storage timed out or is unreachable. Retryable.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
)
