// Package apierr models expected outcomes (not-found, conflict,
// rate-limited, schedule-closed, ...) as tagged result variants per spec
// §7/§9, instead of using exceptions/panics for control flow. Only truly
// unexpected conditions should escape this package as a raw error.
package apierr

import (
	"errors"
	"fmt"
)

// Kind is the taxonomy from spec §7.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindSchedulerClosed Kind = "scheduler_closed"
	KindRateLimited     Kind = "rate_limited"
	KindUnauthorized    Kind = "unauthorized"
	KindForbidden       Kind = "forbidden"
	KindTransient       Kind = "transient"
)

// Error is a tagged outcome. Field is populated for Validation errors so
// the message can echo the offending field (spec §7).
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Err     error // wrapped cause, for Transient errors
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func SchedulerClosed(message string) *Error {
	return &Error{Kind: KindSchedulerClosed, Message: message}
}

func RateLimited(message string) *Error {
	return &Error{Kind: KindRateLimited, Message: message}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func Transient(message string, cause error) *Error {
	return &Error{Kind: KindTransient, Message: message, Err: cause}
}

// Is reports whether err is an *Error of the given Kind, unwrapping as
// needed. Named Is (not using errors.Is's Is interface) to keep call sites
// at the boundary simple: apierr.Is(err, apierr.KindNotFound).
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
