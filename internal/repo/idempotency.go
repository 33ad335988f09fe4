// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the Idempotency
// model used to implement safe-retry semantics for report generation.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-reflect-backend/internal/domain"
)

// DefaultIdempotencyTTL is how long a key replays its original result.
const DefaultIdempotencyTTL = 24 * time.Hour

// GetIdempotency returns a non-expired record or ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("user_id = ? AND scope = ? AND key = ? AND expires_at > ?", userID, scope, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateIdempotency inserts a record and returns ErrDuplicate on unique violation.
//
// An expired row for the same (user, scope, key) is removed first so a key can
// be reused once its TTL has passed.
func CreateIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key, resultID string, ttl time.Duration, now time.Time) (*domain.Idempotency, error) {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	now = now.UTC()
	rec := &domain.Idempotency{
		ID:        uuid.NewString(),
		UserID:    userID,
		Scope:     scope,
		Key:       key,
		ResultID:  resultID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND scope = ? AND key = ? AND expires_at <= ?", userID, scope, key, now).
			Delete(&domain.Idempotency{}).Error; err != nil {
			return err
		}
		return tx.Create(rec).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// PurgeExpiredIdempotency deletes rows whose TTL has passed and returns the
// number removed. Reads already ignore expired rows; this only reclaims space.
func PurgeExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now.UTC()).
		Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}

// IdempotencyStore is the database-backed key → result mapping used by the
// report service. Keys are scoped so the table can serve other operations.
type IdempotencyStore struct {
	DB    *gorm.DB
	Scope string
	TTL   time.Duration
	Now   func() time.Time
}

// NewIdempotencyStore returns a store for report generation keys.
func NewIdempotencyStore(db *gorm.DB, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{DB: db, Scope: domain.IdempotencyScopeReport, TTL: ttl, Now: time.Now}
}

func (s *IdempotencyStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Find returns the result id recorded for key. Missing and expired keys both
// report found=false with a nil error.
func (s *IdempotencyStore) Find(ctx context.Context, userID, key string) (string, bool, error) {
	rec, err := GetIdempotency(ctx, s.DB, userID, s.Scope, key, s.now())
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return rec.ResultID, true, nil
}

// Record stores key → resultID. Losing a uniqueness race is success: the
// earlier record wins and is left untouched.
func (s *IdempotencyStore) Record(ctx context.Context, userID, key, resultID string) error {
	_, err := CreateIdempotency(ctx, s.DB, userID, s.Scope, key, resultID, s.TTL, s.now())
	if errors.Is(err, ErrDuplicate) {
		return nil
	}
	return err
}
