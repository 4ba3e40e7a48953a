// Package apierr defines the unified error taxonomy shared by every
// backend adapter, and the translation of raw transport failures into it.
// Transport failures are translated exactly once, at the adapter boundary;
// downstream components never re-wrap a classified error.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a failure into the fixed taxonomy.
type ErrorKind string

const (
	// KindAuthentication means the backend rejected the credentials.
	KindAuthentication ErrorKind = "authentication"

	// KindNotFound means the requested resource is absent.
	KindNotFound ErrorKind = "not_found"

	// KindRateLimit means the backend is throttling; RetryAfter may carry
	// a hint.
	KindRateLimit ErrorKind = "rate_limit"

	// KindValidation means the backend rejected the input; Fields may
	// carry per-field detail.
	KindValidation ErrorKind = "validation"

	// KindConfiguration means a local misconfiguration was detected
	// before any network call (missing status mapping, bad target status).
	KindConfiguration ErrorKind = "configuration"

	// KindAPI is a generic, unclassified backend failure.
	KindAPI ErrorKind = "api"

	// KindConnection is a network-level failure below the HTTP layer,
	// including cancellation and timeout surfaced by the transport.
	KindConnection ErrorKind = "connection"
)

// Error is a classified backend or configuration failure. It carries
// enough detail to build an actionable message without the raw payload,
// though the raw body stays available for diagnostics.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Body       string
	Fields     map[string]string
	RetryAfter time.Duration

	cause error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Configurationf builds a local misconfiguration error.
func Configurationf(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// kindOf extracts the taxonomy kind from err, or "" when err is not a
// classified error.
func kindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsAuthentication reports whether err is classified as an
// authentication failure.
func IsAuthentication(err error) bool { return kindOf(err) == KindAuthentication }

// IsNotFound reports whether err is classified as a missing resource.
func IsNotFound(err error) bool { return kindOf(err) == KindNotFound }

// IsRateLimit reports whether err is classified as backend throttling.
func IsRateLimit(err error) bool { return kindOf(err) == KindRateLimit }

// IsValidation reports whether err is classified as rejected input.
func IsValidation(err error) bool { return kindOf(err) == KindValidation }

// IsConfiguration reports whether err is a local misconfiguration.
func IsConfiguration(err error) bool { return kindOf(err) == KindConfiguration }

// IsConnection reports whether err is a network-level failure.
func IsConnection(err error) bool { return kindOf(err) == KindConnection }

// StatusError is the transport collaborator's failure shape: a non-2xx
// response with its status code, raw body, and Retry-After hint when
// present. It carries no classification; tables translate it.
type StatusError struct {
	StatusCode int
	Body       []byte
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transport failure: status %d", e.StatusCode)
}

// IsCanceled reports whether err stems from context cancellation or
// deadline expiry.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
