// Package apperr defines the error kinds services return and how they map to
// HTTP status codes.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrUnauthorized        = errors.New("sign in required")
	ErrValidation          = errors.New("invalid input")
	ErrNotFoundOrForbidden = errors.New("not found or forbidden")
	ErrUnsupportedType     = errors.New("unsupported file type")
	ErrTooLarge            = errors.New("file too large")
)

// ValidationError reports a rejected input field. It matches ErrValidation
// under errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid is shorthand for a *ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Status maps an error to the HTTP status code a handler should respond with.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFoundOrForbidden):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrUnsupportedType),
		errors.Is(err, ErrTooLarge):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the text safe to show a user. Unknown errors collapse to a
// generic message so infrastructure details stay in the logs.
func Message(err error) string {
	if Status(err) == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
