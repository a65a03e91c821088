package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	// ErrSerialization marks a transaction aborted by the database because of
	// a concurrent writer (serialization failure or deadlock). The whole unit
	// may be retried.
	ErrSerialization = errors.New("serialization failure")
)

// IsRetryable reports whether err came from an aborted transaction that is
// safe to run again from the start.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSerialization)
}
