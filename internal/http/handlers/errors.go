// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP responses
// (via the `fail()` helper in this package) and the single table that maps
// apperr kinds raised by the report pipeline to an HTTP status and code.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, unauthorized, conflict) mirror common HTTP
//     status semantics to aid interoperability.
//   - Pipeline failures reuse the apperr kind string as the code, so clients see
//     the same taxonomy the service logs.
//   - All error responses must include both an HTTP status and one of these codes.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "weekly_limit_exceeded",
//	  "message": "weekly report limit reached",
//	  "details": {"count": 3, "limit": 3, "week_start": "2025-03-23T23:00:00Z"}
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/tbourn/go-reflect-backend/internal/apperr"
	"github.com/tbourn/go-reflect-backend/internal/services"
)

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeListFailed       = "list_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// kindStatus maps every apperr.Kind to the status served to API clients.
// Upstream credential and schema problems are the server's fault (502), not
// the caller's.
var kindStatus = map[apperr.Kind]int{
	apperr.KindAuthInvalid:         http.StatusBadGateway,
	apperr.KindQuotaExceeded:       http.StatusServiceUnavailable,
	apperr.KindModelNotFound:       http.StatusBadGateway,
	apperr.KindRateLimited:         http.StatusServiceUnavailable,
	apperr.KindUnavailable:         http.StatusServiceUnavailable,
	apperr.KindTimeout:             http.StatusGatewayTimeout,
	apperr.KindInvalidRequest:      http.StatusBadRequest,
	apperr.KindSchemaInvalid:       http.StatusBadGateway,
	apperr.KindWeeklyLimitExceeded: http.StatusTooManyRequests,
	apperr.KindInvalidCategories:   http.StatusUnprocessableEntity,
	apperr.KindPersistenceFailed:   http.StatusInternalServerError,
}

// statusFor resolves err into (status, code, message, details).
func statusFor(err error) (int, string, string, map[string]any) {
	switch {
	case errors.Is(err, services.ErrReportNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "report not found", nil
	case errors.Is(err, services.ErrMissingUser):
		return http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required", nil
	}
	if ae, ok := apperr.As(err); ok {
		status, known := kindStatus[ae.Kind]
		if !known {
			status = http.StatusInternalServerError
		}
		msg := ae.Message
		if msg == "" {
			msg = string(ae.Kind)
		}
		return status, string(ae.Kind), msg, ae.Details
	}
	return http.StatusInternalServerError, ErrCodeInternal, "internal error", nil
}
