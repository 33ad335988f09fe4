// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Note model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-reflect-backend/internal/domain"
)

// CreateNote inserts a new note row.
func CreateNote(ctx context.Context, db *gorm.DB, userID, categoryID, content string) (*domain.Note, error) {
	n := &domain.Note{
		ID:         uuid.NewString(),
		UserID:     userID,
		CategoryID: categoryID,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
	return n, db.WithContext(ctx).Create(n).Error
}

// RecentNotes returns up to limit live notes of userID in categoryIDs,
// newest first (CreatedAt DESC, ID DESC for determinism).
func RecentNotes(ctx context.Context, db *gorm.DB, userID string, categoryIDs []string, limit int) ([]domain.Note, error) {
	var out []domain.Note
	if len(categoryIDs) == 0 {
		return out, nil
	}
	q := db.WithContext(ctx).
		Where("user_id = ? AND category_id IN ?", userID, categoryIDs).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
