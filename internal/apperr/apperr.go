// Package apperr defines the domain error kinds shared by services,
// middleware and handlers.  Every kind carries the HTTP status and the
// machine readable error_type it is rendered with, so the boundary never has
// to guess.  Errors are compared by kind with errors.Is; a copy made with
// With keeps matching its sentinel.
package apperr

import (
	"errors"
	"net/http"
)

// StatusTokenExpired is the non-standard status used for expired tokens so
// clients can tell "refresh me" apart from "log in again".
const StatusTokenExpired = 419

// Error is a domain error rendered as
// {"detail", "error_type", "status_code", "extra"}.
type Error struct {
	Status int
	Type   string
	Detail string
	Extra  map[string]any
}

func (e *Error) Error() string { return e.Type + ": " + e.Detail }

// Is matches any *Error of the same Type.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Type == e.Type
}

// With returns a copy with a custom detail and extra payload.  An empty
// detail keeps the default one.
func (e *Error) With(detail string, extra map[string]any) *Error {
	cp := *e
	if detail != "" {
		cp.Detail = detail
	}
	cp.Extra = extra
	return &cp
}

func newKind(status int, typ, detail string) *Error {
	return &Error{Status: status, Type: typ, Detail: detail}
}

var (
	ErrInvalidCredentials   = newKind(http.StatusUnauthorized, "invalid_credentials", "invalid username or password")
	ErrForbidden            = newKind(http.StatusForbidden, "forbidden", "access denied")
	ErrVerificationRequired = newKind(http.StatusForbidden, "email_verification_required", "email verification required")
	ErrTokenMissing         = newKind(http.StatusUnauthorized, "token_missing", "token is missing")
	ErrTokenInvalid         = newKind(http.StatusUnprocessableEntity, "token_invalid", "token is invalid")
	ErrTokenExpired         = newKind(StatusTokenExpired, "token_expired", "token has expired")
	ErrUserNotFound         = newKind(http.StatusNotFound, "user_not_found", "user not found")
	ErrUserExists           = newKind(http.StatusConflict, "user_exists", "user already exists")
	ErrValidation           = newKind(http.StatusBadRequest, "validation_error", "invalid request")
	ErrStorage              = newKind(http.StatusInternalServerError, "storage_error", "file storage failed")
	ErrInvalidFileType      = newKind(http.StatusUnsupportedMediaType, "invalid_file_type", "unsupported file type")
	ErrTooManyRequests      = newKind(http.StatusTooManyRequests, "too_many_requests", "rate limit exceeded")
	ErrServiceUnavailable   = newKind(http.StatusServiceUnavailable, "service_unavailable", "service temporarily unavailable")
	ErrInternal             = newKind(http.StatusInternalServerError, "internal_error", "internal server error")
)

// IsTokenError reports whether err is one of the three token kinds.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrTokenMissing) || errors.Is(err, ErrTokenInvalid) || errors.Is(err, ErrTokenExpired)
}

// As extracts the domain error from err, or nil when err is not one.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}
