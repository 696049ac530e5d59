package store

import (
	"errors"
	"fmt"
)

// ErrNotFound marks a missing conversation or message.
var ErrNotFound = errors.New("not found")

// ValidationError reports a malformed or unusable request payload. It maps
// to a client error at the API boundary; nothing was mutated.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

func newValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// PersistenceError wraps a storage failure that aborted its transaction.
// The transaction rolled back entirely; no partial state was committed.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return "persistence: " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
