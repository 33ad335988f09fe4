// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Report model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only
// persistence and query composition.
//
// Error semantics:
//   - When a report is not found, functions return gorm.ErrRecordNotFound
//     (also exported as ErrNotFound).
//   - On DB errors the raw gorm error is propagated.
//
// Functions:
//
//   - CreateReport(ctx, db, r) -> error
//     Inserts a report, assigning a UUID and UTC CreatedAt when unset.
//
//   - GetReport(ctx, db, id, userID) -> *domain.Report, error
//     Fetches a live (not soft-deleted) report owned by userID.
//
//   - ListReportsPage(ctx, db, userID, offset, limit) -> []domain.Report, error
//     Returns a page of live reports, newest first.
//
//   - CountReports(ctx, db, userID) -> int64, error
//     Counts live reports for pagination metadata.
//
//   - CountReportsInWindow(ctx, db, userID, kind, start, until) -> int64, error
//     Counts reports of a kind created inside [start, until), soft-deleted
//     rows included. Backs the weekly quota.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-reflect-backend/internal/domain"
)

// CreateReport inserts r. ID and CreatedAt are filled in when empty.
func CreateReport(ctx context.Context, db *gorm.DB, r *domain.Report) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(r).Error
}

// GetReport fetches a single live report by its ID and owner.
func GetReport(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Report, error) {
	var r domain.Report
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListReportsPage returns a page of live reports for userID, newest first.
func ListReportsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Report, error) {
	var out []domain.Report
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc, id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountReports returns the number of live reports owned by userID.
func CountReports(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Report{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// CountReportsInWindow counts reports of kind created within [start, until).
// Soft-deleted reports are counted: deleting a report does not give back
// quota.
func CountReportsInWindow(ctx context.Context, db *gorm.DB, userID, kind string, start, until time.Time) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Unscoped().
		Model(&domain.Report{}).
		Where("user_id = ? AND kind = ? AND created_at >= ? AND created_at < ?", userID, kind, start.UTC(), until.UTC()).
		Count(&total).Error
	return total, err
}

// SoftDeleteReport marks a report deleted. Returns ErrNotFound when nothing
// matched.
func SoftDeleteReport(ctx context.Context, db *gorm.DB, id, userID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&domain.Report{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
