package receipt

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned when a draft cannot be saved as entered
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when a receipt or row id is unknown
	ErrNotFound = errors.New("not found")
	// ErrLastRow is returned when removing the only remaining row
	ErrLastRow = errors.New("at least one row is required")
	// ErrInvalidMode is returned when a session action is not allowed in the current mode
	ErrInvalidMode = errors.New("action not allowed in current mode")
)

// StorageError wraps a failure of the durable store
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFoundErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
