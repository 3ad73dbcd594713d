// Package apperrors defines the failure taxonomy surfaced by the dashboard
// core. Every failure carries a Code so callers can branch with errors.Is
// against the sentinels below without caring about the message.
package apperrors

import (
	"errors"
	"fmt"
)

// Code classifies a failure.
type Code string

const (
	CodeAuthentication Code = "authentication"
	CodeAuthorization  Code = "authorization"
	CodeValidation     Code = "validation"
	CodeTransient      Code = "transient"
	CodeRejected       Code = "rejected"
)

// Sentinels for errors.Is. Only the code is compared.
var (
	ErrAuthentication = &Error{Code: CodeAuthentication}
	ErrAuthorization  = &Error{Code: CodeAuthorization}
	ErrValidation     = &Error{Code: CodeValidation}
	ErrTransient      = &Error{Code: CodeTransient}
	ErrRejected       = &Error{Code: CodeRejected}
)

// Error is a classified failure. Message is safe to show to the user.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Message == "" {
		return e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target has the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

// New creates an error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf formats the message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error that keeps cause in the chain.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or "" when err
// is not classified.
func CodeOf(err error) Code {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Code
	}
	return ""
}

// Message returns the user-facing message for err, falling back to fallback
// for unclassified errors.
func Message(err error, fallback string) string {
	var classified *Error
	if errors.As(err, &classified) && classified.Message != "" {
		return classified.Message
	}
	return fallback
}
