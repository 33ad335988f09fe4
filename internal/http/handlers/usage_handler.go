package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-reflect-backend/internal/llm"
)

// HeaderAdminToken carries the shared secret for admin endpoints.
const HeaderAdminToken = "X-Admin-Token"

// UsageResponse is the LLM gateway's current accounting and breaker state.
type UsageResponse struct {
	Usage   llm.UsageStats   `json:"usage"`
	Circuit llm.CircuitState `json:"circuit"`
}

// GetUsage godoc
// @ID          getLLMUsage
// @Summary     LLM usage statistics
// @Description Returns request, error and token counters, average latency over the last 100 calls,
// @Description the estimated cost, and the circuit breaker state.
// @Tags        LLM
// @Produce     json
// @Success     200  {object} handlers.UsageResponse
// @Router      /llm/usage [get]
func (h *Handlers) GetUsage(c *gin.Context) {
	ok(c, http.StatusOK, UsageResponse{Usage: h.usage.Usage(), Circuit: h.usage.CircuitState()})
}

// ResetUsage godoc
// @ID          resetLLMUsage
// @Summary     Reset LLM usage statistics
// @Description Zeroes the gateway counters. Requires the admin token.
// @Tags        Admin
// @Param       X-Admin-Token  header  string  true  "Admin token"
// @Success     204  {string} string "No Content"
// @Failure     403  {object} handlers.ErrorResponse "Forbidden"
// @Router      /admin/llm/usage/reset [post]
func (h *Handlers) ResetUsage(c *gin.Context) {
	got := c.GetHeader(HeaderAdminToken)
	if h.adminToken == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.adminToken)) != 1 {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "admin token required")
		return
	}
	h.usage.ResetUsage()
	noContent(c)
}
