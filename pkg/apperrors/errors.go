package apperrors

import (
	"errors"
	"strings"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// ValidationError carries every field-level message found while validating
// a payload. Handlers surface Messages as the response's errors list.
type ValidationError struct {
	Messages []string
}

// NewValidationError returns a ValidationError for the given messages.
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Messages: messages}
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, "; ")
}

// Add appends a message.
func (e *ValidationError) Add(message string) {
	e.Messages = append(e.Messages, message)
}

// HasErrors reports whether any message was recorded.
func (e *ValidationError) HasErrors() bool {
	return e != nil && len(e.Messages) > 0
}

// OrNil returns e when it holds messages and nil otherwise, so callers can
// write `return v.OrNil()` without returning a typed nil.
func (e *ValidationError) OrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// IsValidation reports whether err is (or wraps) a ValidationError and
// returns it.
func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
