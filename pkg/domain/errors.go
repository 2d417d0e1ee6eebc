package domain

import (
	"errors"
	"net/http"
)

// ErrNotFound is returned by repositories when the addressed document does not exist.
var ErrNotFound = errors.New("not found")

// Error is a lifecycle failure that carries the HTTP status the caller should surface
// and the component that raised it.
type Error struct {
	Message string
	Status  int
	Source  string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Message == "" {
		return e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus lets transport code map the error without importing this package.
func (e *Error) HTTPStatus() int { return e.Status }

func (e *Error) ErrorSource() string { return e.Source }

func Validation(source, message string) *Error {
	return &Error{Message: message, Status: http.StatusBadRequest, Source: source}
}

func NotFound(source, message string) *Error {
	return &Error{Message: message, Status: http.StatusNotFound, Source: source, Cause: ErrNotFound}
}

func Unexpected(source string, cause error) *Error {
	msg := "unexpected error"
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Message: msg, Status: http.StatusInternalServerError, Source: source, Cause: cause}
}

// StatusOf reports the HTTP status for err. Errors that are not *Error map to 500.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Status
	}
	return http.StatusInternalServerError
}

// AsUnexpected keeps domain errors untouched and wraps anything else as a 500.
func AsUnexpected(source string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return Unexpected(source, err)
}
