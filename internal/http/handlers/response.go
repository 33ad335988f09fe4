package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-reflect-backend/internal/http/middleware"
)

// ErrorResponse is the error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"resource not found"`
	// Structured extras for precise rendering
	Details map[string]any `json:"details,omitempty" swaggertype:"object"`
}

// fail aborts with an ErrorResponse and no details.
func fail(c *gin.Context, status int, code, msg string) {
	failDetails(c, status, code, msg, nil, nil)
}

// failDetails aborts with an ErrorResponse. The cause is attached to the gin
// context for the access log and, for 5xx, logged with the request logger.
func failDetails(c *gin.Context, status int, code, msg string, details map[string]any, cause error) {
	if cause != nil {
		_ = c.Error(cause)
	}
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Err(cause).
			Int("status", status).
			Str("code", code).
			Msg(msg)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: middleware.GetRequestID(c),
		Code:      code,
		Message:   msg,
		Details:   details,
	})
}

// failErr translates a service error through the kind table in errors.go.
// The underlying cause is logged for 5xx but never echoed to the client.
func failErr(c *gin.Context, err error) {
	status, code, msg, details := statusFor(err)
	failDetails(c, status, code, msg, details, err)
}

// Fail lets the router render fallbacks in the same envelope.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
