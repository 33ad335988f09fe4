// Package services – ReportService
//
// This file implements ReportService, the orchestrator behind on-demand report
// generation. A call walks a fixed sequence of stages and stops at the first
// failure:
//
//	start → idempotency_checked → categories_validated → quota_checked →
//	generated → persisted → done
//
// Gateway errors are returned with their original kind. Bookkeeping that runs
// after the report is stored (the idempotency record) never fails the call;
// its errors are attached to the outcome as SideEffect values.
//
// Observability: Generate is OpenTelemetry-instrumented (the final stage is a
// span attribute) and counted in report_generations_total by outcome.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-reflect-backend/internal/apperr"
	"github.com/tbourn/go-reflect-backend/internal/domain"
	"github.com/tbourn/go-reflect-backend/internal/llm"
	"github.com/tbourn/go-reflect-backend/internal/timeutil"
)

// DefaultNotesLimit bounds how many recent notes feed one report.
const DefaultNotesLimit = 100

// Stage is a step of the generation state machine.
type Stage string

const (
	StageStart               Stage = "start"
	StageIdempotencyChecked  Stage = "idempotency_checked"
	StageCategoriesValidated Stage = "categories_validated"
	StageQuotaChecked        Stage = "quota_checked"
	StageGenerated           Stage = "generated"
	StagePersisted           Stage = "persisted"
	StageDone                Stage = "done"
)

// AuthContextProvider returns the caller's timezone and active categories.
type AuthContextProvider interface {
	AuthContext(ctx context.Context, userID string) (domain.AuthContext, error)
}

// NotesReader returns a bounded, newest-first list of notes.
type NotesReader interface {
	RecentNotes(ctx context.Context, userID string, categoryIDs []string, limit int) ([]domain.Note, error)
}

// ReportWriter persists a report and fills in its ID and CreatedAt.
type ReportWriter interface {
	CreateReport(ctx context.Context, r *domain.Report) error
}

// ReportReader backs replays and the read API.
type ReportReader interface {
	GetReport(ctx context.Context, userID, id string) (*domain.Report, error)
	ListReports(ctx context.Context, userID string, offset, limit int) ([]domain.Report, int64, error)
}

// ReportDeleter soft-deletes a report owned by userID. Deleted reports still
// count against the weekly quota.
type ReportDeleter interface {
	DeleteReport(ctx context.Context, userID, id string) error
}

// IdempotencyStore maps (user, key) to the id of the report the key produced.
// Find reports found=false for missing and expired keys. Record treats an
// existing key as success and keeps the earlier value.
type IdempotencyStore interface {
	Find(ctx context.Context, userID, key string) (resultID string, found bool, err error)
	Record(ctx context.Context, userID, key, resultID string) error
}

// Completer is the subset of *llm.Gateway used here.
type Completer interface {
	Complete(ctx context.Context, model string, messages []llm.Message, opts llm.Options) (*llm.Completion, error)
}

// GenerationRequest asks for one on-demand report. An empty IdempotencyKey
// disables replay.
type GenerationRequest struct {
	UserID         string
	CategoryIDs    []string
	IdempotencyKey string
}

// SideEffect is a non-fatal failure of bookkeeping that ran after the report
// was stored.
type SideEffect struct {
	Name string
	Err  error
}

// GenerationOutcome is the result of a successful Generate.
type GenerationOutcome struct {
	Report *domain.Report
	// Replayed is true when the report came from an earlier call with the
	// same idempotency key.
	Replayed    bool
	Stage       Stage
	SideEffects []SideEffect
}

// ReportService orchestrates report generation and serves stored reports.
type ReportService struct {
	Auth        AuthContextProvider
	Notes       NotesReader
	Writer      ReportWriter
	Reader      ReportReader
	Deleter     ReportDeleter
	Idempotency IdempotencyStore
	Quota       *QuotaGuard
	LLM         Completer

	// Model is the chat completion model id.
	Model       string
	Temperature *float64
	MaxTokens   *int
	NotesLimit  int

	flights flightGroup
}

// Generate runs the pipeline for req.
//
// Errors are *apperr.Error values (InvalidRequest, InvalidCategories,
// WeeklyLimitExceeded, PersistenceFailed, or any gateway kind) except for
// ErrMissingUser and ErrReportNotFound (a replayed key whose report has since
// been deleted).
//
// Concurrent calls with the same user and key in this process share one
// execution. A caller whose ctx ends stops waiting with a Timeout error; the
// shared execution is cancelled only when no caller is left waiting on it.
func (s *ReportService) Generate(ctx context.Context, req GenerationRequest) (*GenerationOutcome, error) {
	tr := otel.Tracer("services/ReportService")
	ctx, span := tr.Start(ctx, "Generate",
		trace.WithAttributes(
			attribute.String("user.id", req.UserID),
			attribute.Int("categories.count", len(req.CategoryIDs)),
			attribute.Bool("idempotency.key_present", req.IdempotencyKey != ""),
		),
	)
	defer span.End()

	var (
		out   *GenerationOutcome
		stage Stage
		err   error
	)
	if req.IdempotencyKey == "" {
		out, stage, err = s.generate(ctx, req)
	} else {
		key := req.UserID + "\x00" + req.IdempotencyKey
		v, ferr := s.flights.Do(ctx, key, func(shared context.Context) (any, error) {
			o, st, e := s.generate(shared, req)
			return flightResult{out: o, stage: st}, e
		})
		r, _ := v.(flightResult)
		out, stage, err = r.out, r.stage, ferr
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ferr, ctxErr) {
			err = apperr.Wrap(apperr.KindTimeout, "request canceled by caller", ctxErr).WithRetryable(false)
		}
	}

	span.SetAttributes(attribute.String("report.stage", string(stage)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		reportGenerations.WithLabelValues(outcomeLabel(err)).Inc()
		return nil, err
	}
	if out.Replayed {
		reportGenerations.WithLabelValues("replayed").Inc()
	} else {
		reportGenerations.WithLabelValues("created").Inc()
	}
	span.SetAttributes(attribute.String("report.id", out.Report.ID))
	return out, nil
}

type flightResult struct {
	out   *GenerationOutcome
	stage Stage
}

// generate returns the last stage reached alongside the outcome or error.
func (s *ReportService) generate(ctx context.Context, req GenerationRequest) (*GenerationOutcome, Stage, error) {
	stage := StageStart
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, stage, ErrMissingUser
	}
	key := strings.TrimSpace(req.IdempotencyKey)

	// 1) replay
	if key != "" && s.Idempotency != nil {
		id, found, err := s.Idempotency.Find(ctx, userID, key)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("user_id", userID).Msg("idempotency lookup failed, continuing without replay")
		case found:
			r, err := s.loadReport(ctx, userID, id)
			if err != nil {
				return nil, stage, err
			}
			return &GenerationOutcome{Report: r, Replayed: true, Stage: StageDone}, StageDone, nil
		}
	}
	stage = StageIdempotencyChecked

	// 2) categories
	requested := dedupe(req.CategoryIDs)
	if len(requested) == 0 {
		return nil, stage, apperr.New(apperr.KindInvalidRequest, "category_ids must not be empty")
	}
	ac, err := s.Auth.AuthContext(ctx, userID)
	if err != nil {
		return nil, stage, apperr.Wrap(apperr.KindPersistenceFailed, "load authorization context", err)
	}
	if invalid := unauthorized(requested, ac.CategoryIDs); len(invalid) > 0 {
		return nil, stage, apperr.New(apperr.KindInvalidCategories, "categories are missing, inactive or not yours").
			WithDetail("invalid_ids", invalid)
	}
	stage = StageCategoriesValidated

	// 3) quota
	if _, err := s.Quota.CheckAndCount(ctx, userID, ac.Timezone); err != nil {
		return nil, stage, err
	}
	stage = StageQuotaChecked

	// 4) generate
	limit := s.NotesLimit
	if limit <= 0 {
		limit = DefaultNotesLimit
	}
	items, err := s.Notes.RecentNotes(ctx, userID, requested, limit)
	if err != nil {
		return nil, stage, apperr.Wrap(apperr.KindPersistenceFailed, "load notes", err)
	}
	loc, lerr := timeutil.LoadLocation(ac.Timezone)
	if lerr != nil {
		loc = time.UTC
	}
	comp, err := s.LLM.Complete(ctx, s.Model, buildMessages(items, loc), llm.Options{
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
		Schema:      &reportSchema,
	})
	if err != nil {
		return nil, stage, err
	}
	stage = StageGenerated

	// 5) persist
	if err := ctx.Err(); err != nil {
		return nil, stage, apperr.Wrap(apperr.KindTimeout, "request canceled before the report was stored", err).
			WithRetryable(false)
	}
	snapshot, err := json.Marshal(requested)
	if err != nil {
		return nil, stage, apperr.Wrap(apperr.KindPersistenceFailed, "encode categories snapshot", err)
	}
	report := &domain.Report{
		UserID:             userID,
		Kind:               domain.ReportKindOnDemand,
		CategoriesSnapshot: datatypes.JSON(snapshot),
		Title:              stringField(comp.JSON, "title"),
		HTML:               stringField(comp.JSON, "html"),
		TextVersion:        stringField(comp.JSON, "text"),
		Model:              comp.Model,
		PromptVersion:      PromptVersion,
		TokensUsed:         comp.Usage.TotalTokens,
	}
	if err := s.Writer.CreateReport(ctx, report); err != nil {
		return nil, stage, apperr.Wrap(apperr.KindPersistenceFailed, "store report", err)
	}
	stage = StagePersisted

	out := &GenerationOutcome{Report: report}

	// 6) best-effort idempotency record
	if key != "" && s.Idempotency != nil {
		if err := s.Idempotency.Record(ctx, userID, key, report.ID); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Str("report_id", report.ID).Msg("idempotency record failed")
			out.SideEffects = append(out.SideEffects, SideEffect{Name: "idempotency.record", Err: err})
		}
	}

	out.Stage = StageDone
	return out, StageDone, nil
}

// loadReport fetches the report an idempotency key points at.
func (s *ReportService) loadReport(ctx context.Context, userID, id string) (*domain.Report, error) {
	if s.Reader == nil {
		return nil, apperr.New(apperr.KindPersistenceFailed, "no report reader configured")
	}
	r, err := s.Reader.GetReport(ctx, userID, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistenceFailed, "load replayed report", err)
	}
	return r, nil
}

// GetReport returns a live report owned by userID.
func (s *ReportService) GetReport(ctx context.Context, userID, id string) (*domain.Report, error) {
	tr := otel.Tracer("services/ReportService")
	ctx, span := tr.Start(ctx, "GetReport",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("report.id", id),
		),
	)
	defer span.End()

	r, err := s.Reader.GetReport(ctx, userID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReportNotFound
		}
		return nil, err
	}
	return r, nil
}

// DeleteReport soft-deletes a report owned by userID. A key that produced the
// report replays as ErrReportNotFound afterwards.
func (s *ReportService) DeleteReport(ctx context.Context, userID, id string) error {
	tr := otel.Tracer("services/ReportService")
	ctx, span := tr.Start(ctx, "DeleteReport",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("report.id", id),
		),
	)
	defer span.End()

	if s.Deleter == nil {
		return apperr.New(apperr.KindPersistenceFailed, "no report deleter configured")
	}
	err := s.Deleter.DeleteReport(ctx, userID, id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrReportNotFound
	default:
		return apperr.Wrap(apperr.KindPersistenceFailed, "delete report", err)
	}
}

// ListReports returns a page of reports for a user, newest first, and the
// total count. Invalid page/pageSize fall back to 1 and 20.
func (s *ReportService) ListReports(ctx context.Context, userID string, page, pageSize int) ([]domain.Report, int64, error) {
	tr := otel.Tracer("services/ReportService")
	ctx, span := tr.Start(ctx, "ListReports",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	items, total, err := s.Reader.ListReports(ctx, userID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []domain.Report{}
	}
	return items, total, nil
}

// dedupe trims ids, drops blanks and keeps first occurrences in order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// unauthorized returns the sorted ids of requested that are not in allowed.
func unauthorized(requested, allowed []string) []string {
	ok := make(map[string]struct{}, len(allowed))
	for _, id := range allowed {
		ok[id] = struct{}{}
	}
	var bad []string
	for _, id := range requested {
		if _, found := ok[id]; !found {
			bad = append(bad, id)
		}
	}
	sort.Strings(bad)
	return bad
}

func stringField(obj map[string]any, key string) string {
	if v, ok := obj[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func outcomeLabel(err error) string {
	if k := apperr.KindOf(err); k != "" {
		return string(k)
	}
	if errors.Is(err, ErrReportNotFound) {
		return "not_found"
	}
	return "internal"
}
