package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Enforce FKs so cascades actually execute.
	db.Exec("PRAGMA foreign_keys=ON;")
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		(Report{}).TableName():      "reports",
		(Category{}).TableName():    "categories",
		(Note{}).TableName():        "notes",
		(Profile{}).TableName():     "profiles",
		(Idempotency{}).TableName(): "idempotency",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestMigrations_Indexes_AndCascades(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&Category{}, &Note{}, &Report{}, &Profile{}, &Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()

	if !m.HasIndex(&Report{}, "idx_user_kind_created") {
		t.Fatalf("expected index idx_user_kind_created on reports")
	}
	if !m.HasIndex(&Note{}, "idx_user_notes") {
		t.Fatalf("expected index idx_user_notes on notes")
	}
	if !m.HasIndex(&Idempotency{}, "ux_user_scope_key") {
		t.Fatalf("expected unique index ux_user_scope_key on idempotency")
	}

	now := time.Now().UTC()
	cat := &Category{ID: "c1", UserID: "u1", Name: "Work", Active: true}
	if err := db.Create(cat).Error; err != nil {
		t.Fatalf("insert category: %v", err)
	}
	for i := 0; i < 2; i++ {
		n := &Note{ID: fmt.Sprintf("n%d", i), UserID: "u1", CategoryID: "c1", Content: "x", CreatedAt: now}
		if err := db.Create(n).Error; err != nil {
			t.Fatalf("insert note: %v", err)
		}
	}

	// CASCADE: deleting the category removes its notes
	if err := db.Unscoped().Delete(&Category{}, "id = ?", "c1").Error; err != nil {
		t.Fatalf("delete category: %v", err)
	}
	var cnt int64
	if err := db.Unscoped().Model(&Note{}).Where("category_id = ?", "c1").Count(&cnt).Error; err != nil {
		t.Fatalf("count notes: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("expected notes to cascade-delete, got count=%d", cnt)
	}
}

func TestReport_KindCheck_AndSnapshotRoundTrip(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&Report{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	bad := &Report{ID: "r0", UserID: "u1", Kind: "weekly", CategoriesSnapshot: datatypes.JSON(`[]`)}
	if err := db.Create(bad).Error; err == nil {
		t.Fatalf("expected CHECK violation for unknown kind")
	}

	r := &Report{
		ID:                 "r1",
		UserID:             "u1",
		Kind:               ReportKindOnDemand,
		CategoriesSnapshot: datatypes.JSON(`["c1","c2"]`),
		Title:              "Week 12",
		HTML:               "<p>ok</p>",
		TextVersion:        "ok",
	}
	if err := db.Create(r).Error; err != nil {
		t.Fatalf("insert report: %v", err)
	}
	if err := db.Delete(&Report{}, "id = ?", "r1").Error; err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	var got Report
	if err := db.First(&got, "id = ?", "r1").Error; err == nil {
		t.Fatalf("soft-deleted report must be hidden from scoped queries")
	}
	if err := db.Unscoped().First(&got, "id = ?", "r1").Error; err != nil {
		t.Fatalf("unscoped read: %v", err)
	}
	if string(got.CategoriesSnapshot) != `["c1","c2"]` {
		t.Fatalf("snapshot = %s", got.CategoriesSnapshot)
	}
}
