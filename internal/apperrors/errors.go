package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned by the service layer. The HTTP layer maps them 1:1
// to status codes and never invents its own.
const (
	CodeInvalidArgument = "invalid_argument"
	CodeForbidden       = "forbidden"
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
	CodeInternal        = "internal"
)

// Error is the one error type services return for caller-visible failures.
// Fields carries per-field validation messages when the failure is about
// request input.
type Error struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`

	err error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// WithFields attaches per-field detail to a validation error.
func (e *Error) WithFields(fields map[string]string) *Error {
	e.Fields = fields
	return e
}

func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func InvalidArgument(message string) *Error {
	return &Error{Code: CodeInvalidArgument, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Code: CodeForbidden, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Code: CodeConflict, Message: message}
}

// Internal wraps an unexpected error. The original error stays available for
// logging; the message shown to callers is generic.
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "internal server error", err: err}
}

// CodeOf extracts the taxonomy code from err, defaulting to internal for
// anything untyped.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// StatusOf maps an error to its HTTP status code.
func StatusOf(err error) int {
	switch CodeOf(err) {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// AsError returns the typed error inside err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
