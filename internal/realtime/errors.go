package realtime

import (
	"errors"
	"fmt"
)

// Code classifies a failure reported to a session.
type Code string

const (
	CodeAuthenticationFailed Code = "AuthenticationFailed"
	CodeInvalidRequest       Code = "InvalidRequest"
	CodeUnauthorized         Code = "Unauthorized"
	CodeNotFound             Code = "NotFound"
	CodePersistenceFailed    Code = "PersistenceFailed"
	// CodeRateLimited is reserved; nothing enforces rate limits yet.
	CodeRateLimited Code = "RateLimited"
)

// Error is the error type of every core operation.
type Error struct {
	Code   Code
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so errors.Is(err, ErrUnauthorized) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Detail == "" && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrAuthenticationFailed = &Error{Code: CodeAuthenticationFailed}
	ErrInvalidRequest       = &Error{Code: CodeInvalidRequest}
	ErrUnauthorized         = &Error{Code: CodeUnauthorized}
	ErrNotFound             = &Error{Code: CodeNotFound}
	ErrPersistenceFailed    = &Error{Code: CodePersistenceFailed}
	ErrRateLimited          = &Error{Code: CodeRateLimited}
)

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

func AuthenticationFailed(format string, args ...any) *Error {
	return newError(CodeAuthenticationFailed, format, args...)
}

func InvalidRequest(format string, args ...any) *Error {
	return newError(CodeInvalidRequest, format, args...)
}

func Unauthorized(format string, args ...any) *Error {
	return newError(CodeUnauthorized, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newError(CodeNotFound, format, args...)
}

// PersistenceFailed wraps a store or directory failure.
func PersistenceFailed(err error, format string, args ...any) *Error {
	e := newError(CodePersistenceFailed, format, args...)
	e.Err = err
	return e
}

// CodeOf returns the code carried by err. Errors that did not originate in
// this package are collaborator failures and classify as PersistenceFailed.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodePersistenceFailed
}

// DetailOf returns the client-safe detail of err. Wrapped causes are not
// exposed.
func DetailOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	return "internal error"
}
