// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Category
// and Profile models, the two sources of a user's authorization context.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-reflect-backend/internal/domain"
)

// CreateCategory inserts a category for userID. Inactive categories are
// written in a second statement because GORM skips zero-valued fields that
// carry a default.
func CreateCategory(ctx context.Context, db *gorm.DB, userID, name string, active bool) (*domain.Category, error) {
	c := &domain.Category{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		if !active {
			c.Active = false
			return tx.Model(c).Update("active", false).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ActiveCategoryIDs returns the IDs of userID's live, active categories.
func ActiveCategoryIDs(ctx context.Context, db *gorm.DB, userID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Category{}).
		Where("user_id = ? AND active = ?", userID, true).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// GetProfile returns the profile for userID or ErrNotFound.
func GetProfile(ctx context.Context, db *gorm.DB, userID string) (*domain.Profile, error) {
	var p domain.Profile
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertProfile creates or updates userID's timezone.
func UpsertProfile(ctx context.Context, db *gorm.DB, userID, timezone string) error {
	p := &domain.Profile{UserID: userID, Timezone: timezone}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"timezone", "updated_at"}),
		}).
		Create(p).Error
}

// UserTimezone returns the stored timezone, or "" when the user has no
// profile yet.
func UserTimezone(ctx context.Context, db *gorm.DB, userID string) (string, error) {
	p, err := GetProfile(ctx, db, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return p.Timezone, nil
}
