package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-reflect-backend/internal/apperr"
)

// ClassifyStatus maps a non-2xx HTTP status from the LLM API to exactly one
// Kind with its retry verdict. The mapping is keyed on the status code only.
//
//	401, 403 -> AuthInvalid    (no retry)
//	402      -> QuotaExceeded  (no retry)
//	404      -> ModelNotFound  (no retry)
//	429      -> RateLimited    (retry)
//	5xx      -> Unavailable    (retry)
//	other 4xx-> InvalidRequest (no retry)
//	anything else -> Unavailable, not retried
func ClassifyStatus(status int, body []byte) *apperr.Error {
	msg := upstreamMessage(body)
	var e *apperr.Error
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		e = apperr.New(apperr.KindAuthInvalid, "llm credentials rejected")
	case status == http.StatusPaymentRequired:
		e = apperr.New(apperr.KindQuotaExceeded, "llm billing quota exceeded")
	case status == http.StatusNotFound:
		e = apperr.New(apperr.KindModelNotFound, "llm model not found")
	case status == http.StatusTooManyRequests:
		e = apperr.New(apperr.KindRateLimited, "llm rate limit exceeded")
	case status >= 500 && status <= 599:
		e = apperr.New(apperr.KindUnavailable, "llm temporarily unavailable")
	case status >= 400 && status < 500:
		e = apperr.New(apperr.KindInvalidRequest, "llm rejected the request")
	default:
		log.Warn().Int("status", status).Msg("llm: unclassified response status")
		e = apperr.New(apperr.KindUnavailable, fmt.Sprintf("unexpected llm status %d", status)).WithRetryable(false)
	}
	e.StatusCode = status
	if msg == "" {
		return e
	}
	switch e.Kind {
	case apperr.KindAuthInvalid, apperr.KindQuotaExceeded:
		// Credential and billing messages can echo key fragments or account
		// data; keep them in the logs only.
		log.Warn().Int("status", status).Str("kind", string(e.Kind)).Str("upstream_message", msg).
			Msg("llm: request rejected by provider")
	default:
		e.WithDetail("upstream_message", msg)
	}
	return e
}

// ClassifyTransportError maps an error that produced no HTTP status.
//
// parent is the caller's context and attempt the per-attempt context derived
// from it. A caller cancellation (parent done) is a non-retryable Timeout so
// the retry loop stops immediately; an elapsed per-attempt deadline or a
// network timeout is a retryable Timeout, and other network errors (refused,
// reset) a retryable Unavailable. Everything else is an unknown shape and
// becomes a non-retryable Unavailable.
func ClassifyTransportError(parent, attempt context.Context, err error) *apperr.Error {
	if parent != nil && parent.Err() != nil {
		return apperr.Wrap(apperr.KindTimeout, "request canceled by caller", parent.Err()).WithRetryable(false)
	}
	if attempt != nil && errors.Is(attempt.Err(), context.DeadlineExceeded) {
		return apperr.Wrap(apperr.KindTimeout, "llm attempt timed out", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.KindTimeout, "llm attempt timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return apperr.Wrap(apperr.KindTimeout, "llm network timeout", err)
		}
		return apperr.Wrap(apperr.KindUnavailable, "llm connection failure", err)
	}
	log.Warn().Err(err).Msg("llm: unclassified transport failure")
	return apperr.Wrap(apperr.KindUnavailable, "llm transport failure", err).WithRetryable(false)
}

// upstreamMessage extracts a short provider message from an error body without
// retaining the full payload.
func upstreamMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var env struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		return summarizeSnippet(env.Error.Message)
	}
	return summarizeSnippet(strings.TrimSpace(string(body)))
}
