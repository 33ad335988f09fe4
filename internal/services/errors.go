// Package services defines the business logic for report generation and the
// read paths around it. This file centralizes the sentinel errors returned for
// predictable cases, next to the typed *apperr.Error used for the generation
// pipeline's failure taxonomy.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

var (
	// ErrReportNotFound indicates that the requested report does not exist or
	// is not owned by the current user.
	ErrReportNotFound = errors.New("report not found")

	// ErrMissingUser is returned when an operation is invoked without a caller
	// identity.
	ErrMissingUser = errors.New("user id is required")
)
