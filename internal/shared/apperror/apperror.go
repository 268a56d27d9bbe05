// Package apperror classifies domain errors so callers can tell bad input,
// missing entities and state conflicts apart from infrastructure failures.
package apperror

import (
	"errors"
	"fmt"
)

// Error kinds. Anything that does not wrap one of these is treated as a
// transient infrastructure failure.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("state conflict")
)

// Error is a domain error carrying a kind and a message safe to show to the caller.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap lets errors.Is match the kind.
func (e *Error) Unwrap() error {
	return e.Kind
}

// Validation creates an input validation error.
func Validation(message string) *Error {
	return &Error{Kind: ErrValidation, Message: message}
}

// Validationf creates a formatted input validation error.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a missing-entity error.
func NotFound(message string) *Error {
	return &Error{Kind: ErrNotFound, Message: message}
}

// NotFoundf creates a formatted missing-entity error.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict creates a state conflict error.
func Conflict(message string) *Error {
	return &Error{Kind: ErrConflict, Message: message}
}

// Conflictf creates a formatted state conflict error.
func Conflictf(format string, args ...any) *Error {
	return &Error{Kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is a state conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsDomain reports whether err is any classified domain error.
func IsDomain(err error) bool {
	return IsValidation(err) || IsNotFound(err) || IsConflict(err)
}
