// Report HTTP handlers.
//
// This file exposes REST endpoints for report resources:
//   - POST   /reports        (generate, idempotent via Idempotency-Key)
//   - GET    /reports        (list, paginated, ETag support)
//   - GET    /reports/{id}   (fetch one)
//   - DELETE /reports/{id}   (soft delete; still counts toward the weekly limit)
//
// Handlers are transport-thin: they validate input, call the report service,
// and translate outcomes and apperr kinds into HTTP responses.
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous generation
// with the same key succeeded, the stored report is returned with 200 and
// `Idempotent-Replayed: true` instead of 201.
package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-reflect-backend/internal/domain"
	"github.com/tbourn/go-reflect-backend/internal/http/middleware"
	"github.com/tbourn/go-reflect-backend/internal/llm"
	"github.com/tbourn/go-reflect-backend/internal/repo"
	"github.com/tbourn/go-reflect-backend/internal/services"
	"github.com/tbourn/go-reflect-backend/internal/utils"
)

// HeaderIdempotentReplayed marks a response served from an earlier request.
const HeaderIdempotentReplayed = "Idempotent-Replayed"

//
// Service contracts (context-aware)
//

// ReportService defines report generation and read operations consumed by
// HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ReportService interface {
	// Generate runs the full pipeline for one request.
	Generate(ctx context.Context, req services.GenerationRequest) (*services.GenerationOutcome, error)
	// GetReport returns a report owned by userID.
	GetReport(ctx context.Context, userID, id string) (*domain.Report, error)
	// ListReports returns a page of the user's reports and the total count.
	ListReports(ctx context.Context, userID string, page, pageSize int) ([]domain.Report, int64, error)
	// DeleteReport soft-deletes a report owned by userID.
	DeleteReport(ctx context.Context, userID, id string) error
}

// UsageService exposes the LLM gateway's counters and breaker state.
type UsageService interface {
	Usage() llm.UsageStats
	ResetUsage()
	CircuitState() llm.CircuitState
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for reports and LLM usage.
type Handlers struct {
	reports    ReportService
	usage      UsageService
	statsDB    *gorm.DB
	adminToken string
}

// Options carries optional handler dependencies.
type Options struct {
	// StatsDB enables weak ETags on GET /reports. Nil disables them.
	StatsDB *gorm.DB
	// AdminToken guards admin endpoints. Empty disables them.
	AdminToken string
}

// New constructs and returns a Handlers instance bound to the given services.
func New(reports ReportService, usage UsageService, opts Options) *Handlers {
	return &Handlers{reports: reports, usage: usage, statsDB: opts.StatsDB, adminToken: opts.AdminToken}
}

//
// DTOs
//

// CreateReportRequest is the JSON payload for generating a report.
type CreateReportRequest struct {
	// CategoryIDs selects the categories whose notes feed the report.
	CategoryIDs []string `json:"category_ids" example:"7f1c2a8e-3d4b-4c5d-9e6f-0a1b2c3d4e5f"`
}

// ReportResponse wraps a generated report.
type ReportResponse struct {
	Report *domain.Report `json:"report"`
	// Replayed is true when the report was produced by an earlier request.
	Replayed bool `json:"replayed"`
	// Warnings lists non-critical side effects that failed.
	Warnings []string `json:"warnings,omitempty"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListReportsResponse wraps a page of reports and pagination information.
type ListReportsResponse struct {
	Reports    []domain.Report `json:"reports"`
	Pagination Pagination      `json:"pagination"`
}

//
// Handlers
//

// CreateReport godoc
// @ID          createReport
// @Summary     Generate a report
// @Description Generates an on-demand report from the user's recent notes in the given categories.
// @Description Supports idempotency via the Idempotency-Key header (same key → same report).
// @Description At most three on-demand reports may be generated per local calendar week.
// @Tags        Reports
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (dev mode only)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.CreateReportRequest  true  "Categories to report on"
//
// @Success     201  {object}  handlers.ReportResponse  "Report generated"
// @Success     200  {object}  handlers.ReportResponse  "Replayed earlier report"
// @Header      200  {string}  Idempotent-Replayed      "true"
// @Failure     400  {object}  handlers.ErrorResponse   "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse   "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse   "Replayed report no longer exists"
// @Failure     422  {object}  handlers.ErrorResponse   "Categories not owned by the user"
// @Failure     429  {object}  handlers.ErrorResponse   "Weekly limit reached"
// @Failure     500  {object}  handlers.ErrorResponse   "Internal error"
// @Failure     502  {object}  handlers.ErrorResponse   "LLM rejected the request or returned invalid output"
// @Failure     503  {object}  handlers.ErrorResponse   "LLM unavailable"
// @Failure     504  {object}  handlers.ErrorResponse   "LLM timed out"
// @Router      /reports [post]
func (h *Handlers) CreateReport(c *gin.Context) {
	var req CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	out, err := h.reports.Generate(c.Request.Context(), services.GenerationRequest{
		UserID:         middleware.UserID(c),
		CategoryIDs:    req.CategoryIDs,
		IdempotencyKey: key,
	})
	if err != nil {
		failErr(c, err)
		return
	}

	resp := ReportResponse{Report: out.Report, Replayed: out.Replayed}
	for _, se := range out.SideEffects {
		resp.Warnings = append(resp.Warnings, se.Name)
	}
	if out.Replayed {
		c.Header(HeaderIdempotentReplayed, "true")
		ok(c, http.StatusOK, resp)
		return
	}
	ok(c, http.StatusCreated, resp)
}

// ListReports godoc
// @ID          listReports
// @Summary     List reports (paginated)
// @Description Returns a page of the user's reports, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Reports
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (dev mode only)"     example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListReportsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /reports [get]
func (h *Handlers) ListReports(c *gin.Context) {
	ctx := c.Request.Context()
	uid := middleware.UserID(c)
	page, pageSize := utils.ClampPage(c.Query("page"), c.Query("page_size"))

	// ETag pre-check (best effort).
	if h.statsDB != nil {
		count, newest, err := repo.ReportsStats(ctx, h.statsDB, uid)
		if err == nil {
			var ts int64
			if newest != nil {
				ts = newest.UnixNano()
			}
			etag := fmt.Sprintf(`W/"reports:%s:%d:%d:%d:%d"`, uid, count, ts, page, pageSize)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.reports.ListReports(ctx, uid, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}

	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, ListReportsResponse{
		Reports: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetReport godoc
// @ID          getReport
// @Summary     Get a report
// @Description Returns one report owned by the current user.
// @Tags        Reports
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (dev mode only)"  example(user123)
// @Param       id         path    string  true  "Report ID (UUID)"         format(uuid)
//
// @Success     200  {object} domain.Report
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Report not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /reports/{id} [get]
func (h *Handlers) GetReport(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "report id must be a UUID")
		return
	}
	rep, err := h.reports.GetReport(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, rep)
}

// DeleteReport godoc
// @ID          deleteReport
// @Summary     Delete a report
// @Description Soft-deletes a report. Deleted reports still count toward the weekly limit,
// @Description and replaying the Idempotency-Key that produced one returns 404.
// @Tags        Reports
//
// @Param       X-User-ID  header  string  false "User ID (dev mode only)"  example(user123)
// @Param       id         path    string  true  "Report ID (UUID)"         format(uuid)
//
// @Success     204
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Report not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /reports/{id} [delete]
func (h *Handlers) DeleteReport(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "report id must be a UUID")
		return
	}
	if err := h.reports.DeleteReport(c.Request.Context(), middleware.UserID(c), id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
