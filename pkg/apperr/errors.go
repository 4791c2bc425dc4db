// Package apperr defines the typed error taxonomy shared by every service
// package. Handlers map these kinds to HTTP status codes; business code
// never writes an HTTP status directly.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies one of the error classes from the error handling design.
type Kind string

const (
	KindValidation  Kind = "validation_error"
	KindAuthMissing Kind = "auth_missing"
	KindAuthInvalid Kind = "auth_invalid"
	KindForbidden   Kind = "forbidden"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindQuota       Kind = "quota_exceeded"
	KindRateLimited Kind = "rate_limited"
	KindStorage     Kind = "storage_unavailable"
	KindInternal    Kind = "internal"
)

// Error is a typed application error. Business services return these;
// internal/httpserver maps Kind to an HTTP status and sanitizes the message
// before it reaches the client.
type Error struct {
	Kind    Kind
	Message string
	Err     error

	// Resource names the thing a KindQuota error was raised against (a
	// quota.EventType), echoed back in the response body so a client can
	// tell which cap it hit.
	Resource string

	// RetryAfter is how long the caller should wait before retrying, for
	// KindQuota and KindRateLimited errors. Zero means no hint is sent.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(k Kind, msg string, wrap error) *Error {
	return &Error{Kind: k, Message: msg, Err: wrap}
}

func Validation(msg string) *Error         { return newErr(KindValidation, msg, nil) }
func AuthMissing(msg string) *Error        { return newErr(KindAuthMissing, msg, nil) }
func AuthInvalid(msg string) *Error        { return newErr(KindAuthInvalid, msg, nil) }
func Forbidden(msg string) *Error          { return newErr(KindForbidden, msg, nil) }
func NotFound(msg string) *Error           { return newErr(KindNotFound, msg, nil) }
func Conflict(msg string) *Error           { return newErr(KindConflict, msg, nil) }
func StorageUnavailable(err error) *Error  { return newErr(KindStorage, "storage unavailable", err) }
func Internal(err error) *Error            { return newErr(KindInternal, "internal error", err) }

// QuotaExceeded reports a daily cap reached for resource (a quota.EventType
// string), with retryAfter set to the time remaining until the quota's day
// boundary resets.
func QuotaExceeded(resource string, retryAfter time.Duration) *Error {
	e := newErr(KindQuota, fmt.Sprintf("daily cap for %s reached", resource), nil)
	e.Resource = resource
	e.RetryAfter = retryAfter
	return e
}

// RateLimited reports a rate limit rejection, with retryAfter set to the
// time remaining until the window that rejected the request resets.
func RateLimited(msg string, retryAfter time.Duration) *Error {
	e := newErr(KindRateLimited, msg, nil)
	e.RetryAfter = retryAfter
	return e
}

// StatusFor maps an error kind to the HTTP status code the httpserver
// package should write. Kept here, next to the kinds, so the mapping
// can't drift out of sync as kinds are added.
func StatusFor(k Kind) int {
	switch k {
	case KindValidation:
		return 400
	case KindAuthMissing, KindAuthInvalid:
		return 401
	case KindForbidden:
		return 403
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindQuota:
		return 402
	case KindRateLimited:
		return 429
	case KindStorage:
		return 503
	default:
		return 500
	}
}

// Is reports whether err (or anything it wraps) is an *Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == k
}

// As extracts the *Error from err, if any.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
