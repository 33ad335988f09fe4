package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-reflect-backend/internal/domain"
)

// Store adapts the package functions to the collaborator interfaces the
// report service consumes.
type Store struct {
	DB *gorm.DB
}

// NewStore returns a Store over db.
func NewStore(db *gorm.DB) *Store { return &Store{DB: db} }

// AuthContext returns userID's timezone and active category IDs.
func (s *Store) AuthContext(ctx context.Context, userID string) (domain.AuthContext, error) {
	tz, err := UserTimezone(ctx, s.DB, userID)
	if err != nil {
		return domain.AuthContext{}, err
	}
	ids, err := ActiveCategoryIDs(ctx, s.DB, userID)
	if err != nil {
		return domain.AuthContext{}, err
	}
	return domain.AuthContext{Timezone: tz, CategoryIDs: ids}, nil
}

// RecentNotes implements the notes reader.
func (s *Store) RecentNotes(ctx context.Context, userID string, categoryIDs []string, limit int) ([]domain.Note, error) {
	return RecentNotes(ctx, s.DB, userID, categoryIDs, limit)
}

// CreateReport implements the report writer.
func (s *Store) CreateReport(ctx context.Context, r *domain.Report) error {
	return CreateReport(ctx, s.DB, r)
}

// CountReports implements the report counter (soft-deleted rows included).
func (s *Store) CountReports(ctx context.Context, userID, kind string, start, until time.Time) (int64, error) {
	return CountReportsInWindow(ctx, s.DB, userID, kind, start, until)
}

// GetReport returns a live report owned by userID.
func (s *Store) GetReport(ctx context.Context, userID, id string) (*domain.Report, error) {
	return GetReport(ctx, s.DB, id, userID)
}

// DeleteReport soft-deletes a report owned by userID.
func (s *Store) DeleteReport(ctx context.Context, userID, id string) error {
	return SoftDeleteReport(ctx, s.DB, id, userID)
}

// ListReports returns a page of live reports and the total count.
func (s *Store) ListReports(ctx context.Context, userID string, offset, limit int) ([]domain.Report, int64, error) {
	total, err := CountReports(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	items, err := ListReportsPage(ctx, s.DB, userID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
