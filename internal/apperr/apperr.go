// Package apperr defines the error kinds and response contract shared by
// every component of the points core. Handlers translate an *apperr.Error
// into the {ok:false,code,message,issues?} envelope; everything below the
// HTTP layer only ever returns/wraps these.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport-layer mapping. It intentionally
// mirrors the client-visible taxonomy, not Go's own error hierarchy.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindUnauthenticated    Kind = "unauthenticated"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindInsufficientPoints Kind = "insufficient_points"
	KindStateInvalid       Kind = "state_invalid"
	KindRateLimited        Kind = "rate_limited"
	KindInternal           Kind = "internal"
)

// Error is the structured error type carried through service and repository
// layers. Code is a short machine-readable token (e.g. "key-reused-different-payload");
// Message is human-readable; Issues holds field-level validation detail.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Issues  []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a leaf *Error with no wrapped cause.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Newf is New with fmt.Sprintf-style message formatting.
func Newf(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind/code/message to an underlying cause, preserving it for
// errors.Is/As and logging while giving handlers a stable client-facing shape.
func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// WithIssues returns a copy of e with field-level validation issues attached.
func (e *Error) WithIssues(issues ...string) *Error {
	cp := *e
	cp.Issues = issues
	return &cp
}

// KindOf walks err's chain for an *Error and returns its Kind, defaulting to
// KindInternal when err is not (or does not wrap) an *apperr.Error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// CodeOf returns the machine-readable code of err, or "internal_error" if
// err does not carry one.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return "internal_error"
}

// IssuesOf returns the field-level issues of err, if any.
func IssuesOf(err error) []string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Issues
	}
	return nil
}

// HTTPStatus maps a Kind to the status code prescribed by §7 of the design.
func HTTPStatus(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInsufficientPoints:
		return http.StatusConflict
	case KindStateInvalid:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
