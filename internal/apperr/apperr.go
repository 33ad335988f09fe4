// Package apperr defines the closed error taxonomy shared by the LLM client,
// the report orchestrator, and the HTTP layer. Every failure that crosses a
// package boundary in the generation pipeline is an *Error carrying exactly
// one Kind, so callers can branch on the kind instead of on message text.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure. The set is closed; new kinds require a matching
// entry in the HTTP status table (handlers/errors.go).
type Kind string

const (
	KindAuthInvalid         Kind = "auth_invalid"
	KindQuotaExceeded       Kind = "quota_exceeded"
	KindModelNotFound       Kind = "model_not_found"
	KindRateLimited         Kind = "rate_limited"
	KindUnavailable         Kind = "unavailable"
	KindTimeout             Kind = "timeout"
	KindInvalidRequest      Kind = "invalid_request"
	KindSchemaInvalid       Kind = "schema_invalid"
	KindWeeklyLimitExceeded Kind = "weekly_limit_exceeded"
	KindInvalidCategories   Kind = "invalid_categories"
	KindPersistenceFailed   Kind = "persistence_failed"
)

// Retryable reports whether a transport-level failure of this kind may be
// retried by the LLM client. Orchestration-level kinds are never retryable.
func (k Kind) Retryable() bool {
	switch k {
	case KindRateLimited, KindUnavailable, KindTimeout:
		return true
	default:
		return false
	}
}

// Error is a classified failure.
//
// Fields:
//   - Kind: the taxonomy entry (never empty for errors built with New/Wrap).
//   - Message: short human-readable description, safe to show to users.
//   - Details: structured extras for precise rendering (e.g. quota counts).
//   - StatusCode: upstream HTTP status when the failure came from the LLM API.
//   - Err: the underlying cause, available through errors.Unwrap.
type Error struct {
	Kind       Kind
	Message    string
	Details    map[string]any
	StatusCode int
	Err        error

	retryable *bool
}

// New builds an *Error with no underlying cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap builds an *Error around cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

// WithDetail sets a detail field and returns e for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithRetryable overrides the kind's default retry verdict. The classifier
// uses it for unknown failures, which map to Unavailable but must not loop.
func (e *Error) WithRetryable(v bool) *Error {
	e.retryable = &v
	return e
}

// Retryable returns the retry verdict for this failure.
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	if e.retryable != nil {
		return *e.retryable
	}
	return e.Kind.Retryable()
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	base := string(e.Kind)
	if e.StatusCode > 0 {
		base += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		base += ": " + e.Message
	}
	if e.Err != nil {
		base += ": " + e.Err.Error()
	}
	return base
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, apperr.New(KindTimeout, ""))
// works regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || t == nil {
		return false
	}
	return t.Kind == e.Kind
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of the first *Error in err's chain, or "" when err
// carries no classification.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}
