package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a referenced permission/role/group/user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates input rejected before any mutation was attempted.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a uniqueness or referential-integrity conflict.
	ErrConflict = errors.New("conflict")
)

// NotFoundf wraps ErrNotFound with a formatted message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// Conflictf wraps ErrConflict with a formatted message.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConflict}, args...)...)
}
