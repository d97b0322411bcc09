// Package apperr holds the error taxonomy shared by the HTTP surface.
package apperr

import (
	"errors"
	"net/http"
)

// Error carries the HTTP status and client-facing message for a failure.
// Err keeps the underlying cause for logs and is never rendered.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by status and message so wrapped copies still compare
// equal to the sentinel they were derived from.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Status == t.Status && e.Message == t.Message
}

var (
	ErrAuthRequired     = &Error{Status: http.StatusUnauthorized, Message: "Email is required"}
	ErrNotAuthenticated = &Error{Status: http.StatusUnauthorized, Message: "User not authenticated"}
	ErrSessionExpired   = &Error{Status: http.StatusUnauthorized, Message: "Session expired"}
	ErrTokenExpired     = &Error{Status: http.StatusUnauthorized, Message: "Token expired"}
	ErrForbidden        = &Error{Status: http.StatusForbidden, Message: "Permission denied"}
	ErrNotFound         = &Error{Status: http.StatusNotFound, Message: "Event not found"}
	ErrValidation       = &Error{Status: http.StatusBadRequest, Message: "Invalid request"}
	ErrInternal         = &Error{Status: http.StatusInternalServerError, Message: "Something went wrong!"}
)

// Wrap returns a copy of sentinel that records cause.
func Wrap(sentinel *Error, cause error) *Error {
	return &Error{Status: sentinel.Status, Message: sentinel.Message, Err: cause}
}

// WithMessage returns a copy of sentinel with a more specific client message.
// The copy no longer matches sentinel through errors.Is; callers that need
// that should compare Status.
func WithMessage(sentinel *Error, message string) *Error {
	return &Error{Status: sentinel.Status, Message: message}
}

// Status extracts the HTTP status for err, defaulting to 500.
func Status(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}

// Message extracts the client-facing message for err. Unclassified errors
// get the generic internal message so provider detail never leaks.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ErrInternal.Message
}
