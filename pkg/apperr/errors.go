// Package apperr defines the application error taxonomy shared by handlers,
// middleware, and services. Every failure surfaced to a client maps to
// exactly one Kind, and the HTTP layer derives status codes from it.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind categorizes an application error.
type Kind int

const (
	// KindAuthentication covers missing, malformed, expired, and revoked
	// credentials. The reasons are never distinguished to the caller.
	KindAuthentication Kind = iota
	// KindAuthorization means the identity is valid but lacks privilege.
	KindAuthorization
	// KindValidation means the input itself is malformed or out of bounds.
	KindValidation
	// KindConflict means the request collides with existing state,
	// e.g. a duplicate email at registration.
	KindConflict
	// KindDependency means a backing service (database, object storage,
	// cache) is unavailable. Retryable.
	KindDependency
	// KindNotFound means a referenced entity does not exist.
	KindNotFound
	// KindInternal is the fallback for unexpected failures.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindDependency:
		return "dependency"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// HTTPStatus maps a kind to its response status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindConflict:
		return http.StatusConflict
	case KindDependency:
		return http.StatusServiceUnavailable
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is a categorized application error. Message is safe to return to
// clients; the wrapped cause is for logs only.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Retryable reports whether the client may retry the request as-is.
func (e *Error) Retryable() bool { return e.Kind == KindDependency }

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind with an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Authentication returns the generic authentication failure. A single
// non-enumerable message covers missing, invalid, expired, and revoked
// credentials.
func Authentication() *Error {
	return New(KindAuthentication, "invalid or expired credentials")
}

// Authorization returns the generic authorization failure.
func Authorization() *Error {
	return New(KindAuthorization, "insufficient privileges")
}

// Validationf returns a validation error with a specific, actionable message.
func Validationf(format string, args ...interface{}) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

// Conflict returns a conflict error.
func Conflict(message string) *Error {
	return New(KindConflict, message)
}

// Dependency wraps a backing-service failure. The message shown to clients
// stays generic; the cause is preserved for logging.
func Dependency(message string, cause error) *Error {
	return Wrap(KindDependency, message, cause)
}

// NotFound returns a not-found error.
func NotFound(entity string) *Error {
	return New(KindNotFound, entity+" not found")
}

// Internal wraps an unexpected failure.
func Internal(cause error) *Error {
	return Wrap(KindInternal, "internal error", cause)
}

// KindOf extracts the Kind from an error chain, defaulting to KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind reports whether the error chain contains an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}
