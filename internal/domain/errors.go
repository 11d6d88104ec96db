package domain

import (
	"errors"
	"fmt"
)

// Error kinds shared by every layer. Callers classify failures with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrUnavailable       = errors.New("store unavailable")
	ErrEmptyCart         = errors.New("cart is empty")
)

// FieldError reports a single invalid input field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return ErrValidation
}

// NewFieldError returns a validation error for field.
func NewFieldError(field, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}

// IsRetryable reports whether err may succeed if the call is repeated.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
