// Package errors provides coded domain errors for the matching pipeline.
//
// Usage:
//
//	// Pipeline stages return typed errors
//	if len(rec.DisplayName) == 0 {
//	    return errors.MalformedRecordf("record %s has no name", rec.ID)
//	}
//
//	// Callers check by code
//	if errors.Is(err, errors.ErrRetrievalFailure) {
//	    // degrade to the zero-candidate path
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	CodeNotFound                 Code = "NOT_FOUND"
	CodeValidation               Code = "VALIDATION"
	CodeConflict                 Code = "CONFLICT"
	CodeInternal                 Code = "INTERNAL"
	CodeRetrievalFailure         Code = "RETRIEVAL_FAILURE"
	CodeMalformedSourceRecord    Code = "MALFORMED_SOURCE_RECORD"
	CodeUnresolvedAtFinalization Code = "UNRESOLVED_AT_FINALIZATION"
	CodeCategoryMappingMiss      Code = "CATEGORY_MAPPING_MISS"
	CodeInvalidDecision          Code = "INVALID_DECISION"
)

// HTTPStatus returns the appropriate HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeUnresolvedAtFinalization:
		return http.StatusConflict
	case CodeValidation, CodeMalformedSourceRecord, CodeInvalidDecision:
		return http.StatusBadRequest
	case CodeRetrievalFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error carrying details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: details, cause: e.cause}
}

// WithCause returns a copy of the error wrapping err.
func (e *Error) WithCause(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: e.Details, cause: err}
}

// Sentinel errors for use with errors.Is().
var (
	ErrNotFound                 = &Error{Code: CodeNotFound, Message: "not found"}
	ErrValidation               = &Error{Code: CodeValidation, Message: "validation error"}
	ErrConflict                 = &Error{Code: CodeConflict, Message: "conflict"}
	ErrInternal                 = &Error{Code: CodeInternal, Message: "internal error"}
	ErrRetrievalFailure         = &Error{Code: CodeRetrievalFailure, Message: "candidate retrieval failed"}
	ErrMalformedSourceRecord    = &Error{Code: CodeMalformedSourceRecord, Message: "malformed source record"}
	ErrUnresolvedAtFinalization = &Error{Code: CodeUnresolvedAtFinalization, Message: "unresolved records at finalization"}
	ErrCategoryMappingMiss      = &Error{Code: CodeCategoryMappingMiss, Message: "no category rule matched"}
	ErrInvalidDecision          = &Error{Code: CodeInvalidDecision, Message: "invalid decision"}
)

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Conflictf creates a conflict error with formatted message.
func Conflictf(format string, args ...any) *Error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

// Internalf creates an internal error with formatted message.
func Internalf(format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// RetrievalFailure wraps a backend error as a recoverable retrieval failure.
func RetrievalFailure(err error, recordID string) *Error {
	return &Error{
		Code:    CodeRetrievalFailure,
		Message: fmt.Sprintf("candidate retrieval failed for record %s", recordID),
		cause:   err,
	}
}

// MalformedRecord creates a malformed source record error with field details.
func MalformedRecord(recordID string, fields map[string]string) *Error {
	return &Error{
		Code:    CodeMalformedSourceRecord,
		Message: fmt.Sprintf("source record %s is malformed", recordID),
		Details: fields,
	}
}

// MalformedRecordf creates a malformed source record error with formatted message.
func MalformedRecordf(format string, args ...any) *Error {
	return &Error{Code: CodeMalformedSourceRecord, Message: fmt.Sprintf(format, args...)}
}

// Unresolved reports the records left without an outcome when finalizing.
func Unresolved(recordIDs []string) *Error {
	return &Error{
		Code:    CodeUnresolvedAtFinalization,
		Message: fmt.Sprintf("%d record(s) still need a decision", len(recordIDs)),
		Details: map[string]any{"record_ids": recordIDs},
	}
}

// InvalidDecisionf creates an invalid decision error with formatted message.
func InvalidDecisionf(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidDecision, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
