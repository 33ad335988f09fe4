// Package services – QuotaGuard
//
// QuotaGuard enforces the weekly on-demand report limit. The week is the
// user's local calendar week (Monday 00:00:00 through Sunday 23:59:59 in their
// IANA timezone), and soft-deleted reports still count against it.
//
// The check is count-then-compare and is not isolated from concurrent
// requests of the same user: two racing requests may both pass at count
// limit-1. A strict limit needs an atomic insert-if-under-limit in the
// ReportCounter implementation.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-reflect-backend/internal/apperr"
	"github.com/tbourn/go-reflect-backend/internal/domain"
	"github.com/tbourn/go-reflect-backend/internal/timeutil"
)

// DefaultWeeklyLimit is the number of on-demand reports allowed per local week.
const DefaultWeeklyLimit = 3

// ReportCounter counts reports of a kind created in [start, until),
// soft-deleted rows included.
type ReportCounter interface {
	CountReports(ctx context.Context, userID, kind string, start, until time.Time) (int64, error)
}

// QuotaGuard checks the weekly limit before any model call is made.
type QuotaGuard struct {
	Counter ReportCounter
	Limit   int
	Now     func() time.Time
}

// NewQuotaGuard returns a guard with limit (DefaultWeeklyLimit when <= 0).
func NewQuotaGuard(counter ReportCounter, limit int) *QuotaGuard {
	if limit <= 0 {
		limit = DefaultWeeklyLimit
	}
	return &QuotaGuard{Counter: counter, Limit: limit, Now: time.Now}
}

func (q *QuotaGuard) now() time.Time {
	if q.Now != nil {
		return q.Now()
	}
	return time.Now()
}

// Window returns the current local week for tz. An unknown timezone falls
// back to UTC with a warning, because profile timezones are user input.
func (q *QuotaGuard) Window(tz string) timeutil.Window {
	now := q.now()
	w, err := timeutil.CurrentWeekBounds(tz, now)
	if err != nil {
		log.Warn().Err(err).Str("timezone", tz).Msg("quota: invalid timezone, using UTC")
		return timeutil.WeekBounds(time.UTC, now)
	}
	return w
}

// CheckAndCount returns the number of on-demand reports userID generated this
// week. When that number has reached the limit it returns a
// WeeklyLimitExceeded error carrying count, limit, week_start and week_end.
func (q *QuotaGuard) CheckAndCount(ctx context.Context, userID, tz string) (int, error) {
	w := q.Window(tz)
	n, err := q.Counter.CountReports(ctx, userID, domain.ReportKindOnDemand, w.Start, w.Until)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindPersistenceFailed, "count weekly reports", err)
	}
	count := int(n)
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultWeeklyLimit
	}
	if count >= limit {
		return count, apperr.New(apperr.KindWeeklyLimitExceeded, "weekly report limit reached").
			WithDetail("count", count).
			WithDetail("limit", limit).
			WithDetail("week_start", w.Start.UTC().Format(time.RFC3339)).
			WithDetail("week_end", w.End.UTC().Format(time.RFC3339))
	}
	return count, nil
}
