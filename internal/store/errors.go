package store

import (
	"fmt"

	domainerrors "github.com/geoproapp/geopro-server/internal/errors"
)

// Error is a persistence failure classified by a domain error code, so the
// API renders it with the same status and code as domain errors.
type Error struct {
	Code domainerrors.Code
	// Entity and Key name what the operation touched, e.g. "session" and
	// its ID. Both are optional.
	Entity string
	Key    string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Message()
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Message describes the failure without the underlying cause.
func (e *Error) Message() string {
	var what string
	switch e.Code {
	case domainerrors.CodeNotFound:
		what = "not found"
	case domainerrors.CodeConflict:
		what = "already exists"
	case domainerrors.CodeValidation:
		what = "invalid"
	default:
		what = "failed"
	}

	switch {
	case e.Entity != "" && e.Key != "":
		return fmt.Sprintf("%s %s %s", e.Entity, e.Key, what)
	case e.Entity != "":
		return e.Entity + " " + what
	default:
		return "resource " + what
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any store error with the same code, so the sentinels below
// match errors created by NotFound and Exists.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// HTTPCode returns the HTTP status code associated with this error.
func (e *Error) HTTPCode() int { return e.Code.HTTPStatus() }

// NotFound reports a missing entity.
func NotFound(entity, key string) *Error {
	return &Error{Code: domainerrors.CodeNotFound, Entity: entity, Key: key}
}

// Exists reports a duplicate entity.
func Exists(entity, key string, cause error) *Error {
	return &Error{Code: domainerrors.CodeConflict, Entity: entity, Key: key, Err: cause}
}

// Sentinels for errors.Is.
var (
	ErrNotFound      = &Error{Code: domainerrors.CodeNotFound}
	ErrAlreadyExists = &Error{Code: domainerrors.CodeConflict}
	ErrInvalidInput  = &Error{Code: domainerrors.CodeValidation}
)
