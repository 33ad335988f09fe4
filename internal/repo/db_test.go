package repo

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-reflect-backend/internal/domain"
)

func TestOpenSQLite_MissingDirectory(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "missing", "reflect.db")
	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error for %q, got db=%v", bad, db)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want a not-exist error, got %v", err)
	}
}

func TestOpenSQLite_PragmasPoolAndSchema(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "reflect.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	pragmas := map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"foreign_keys": "1",
		"busy_timeout": "5000",
	}
	for name, want := range pragmas {
		var got string
		if err := db.Raw("PRAGMA " + name).Row().Scan(&got); err != nil {
			t.Fatalf("PRAGMA %s: %v", name, err)
		}
		if strings.ToLower(got) != want {
			t.Fatalf("PRAGMA %s = %q, want %q", name, got, want)
		}
	}
	if n := sqlDB.Stats().MaxOpenConnections; n != 10 {
		t.Fatalf("MaxOpenConnections = %d", n)
	}

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	for _, tbl := range []any{&domain.Profile{}, &domain.Category{}, &domain.Note{}, &domain.Report{}, &domain.Idempotency{}} {
		if !db.Migrator().HasTable(tbl) {
			t.Fatalf("missing table for %T", tbl)
		}
	}

	now := time.Now().UTC()
	rows := []any{
		&domain.Category{ID: "c1", UserID: "u1", Name: "Work", Active: true, CreatedAt: now, UpdatedAt: now},
		&domain.Note{ID: "n1", UserID: "u1", CategoryID: "c1", Content: "shipped the quarterly plan", CreatedAt: now, UpdatedAt: now},
		&domain.Idempotency{ID: "i1", Key: "k1", UserID: "u1", Scope: domain.IdempotencyScopeReport, ResultID: "r1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
	}
	for _, row := range rows {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("insert %T: %v", row, err)
		}
	}
	var got domain.Note
	if err := db.First(&got, "id = ?", "n1").Error; err != nil || got.CategoryID != "c1" {
		t.Fatalf("readback: err=%v got=%+v", err, got)
	}
}

func TestOpen_DriverDispatch(t *testing.T) {
	if _, err := Open("oracle", "x"); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("expected unsupported driver error, got %v", err)
	}
	if _, err := Open(DriverPostgres, "  "); err == nil {
		t.Fatalf("expected error for empty postgres DSN")
	}
	db, err := Open("", "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("default driver should be sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestGormLogger_HidesParamsAndFiltersNoise(t *testing.T) {
	buf := captureLog(t)
	db, err := Open(DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	buf.Reset()

	// Not found is routine and must not be logged.
	var n domain.Note
	if err := db.First(&n, "id = ?", "missing").Error; !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("not found was logged: %s", buf.String())
	}

	// A failing statement is logged without its bound values.
	_ = db.Exec("INSERT INTO no_such_table (content) VALUES (?)", "private reflection").Error
	out := buf.String()
	if !strings.Contains(out, `"level":"error"`) || !strings.Contains(out, "no_such_table") {
		t.Fatalf("failed statement not logged: %s", out)
	}
	if strings.Contains(out, "private reflection") {
		t.Fatalf("bound parameter leaked: %s", out)
	}
}

func TestGormLogger_Levels(t *testing.T) {
	buf := captureLog(t)
	begin := time.Now().Add(-time.Second)
	fc := func() (string, int64) { return "SELECT 1", 1 }

	newGormLogger(time.Millisecond).LogMode(logger.Silent).Trace(context.Background(), begin, fc, errors.New("x"))
	if buf.Len() != 0 {
		t.Fatalf("silent mode logged: %s", buf.String())
	}

	newGormLogger(time.Millisecond).Trace(context.Background(), begin, fc, nil)
	if !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Fatalf("slow query not logged at warn: %s", buf.String())
	}
	buf.Reset()

	newGormLogger(time.Hour).Trace(context.Background(), begin, fc, nil)
	if buf.Len() != 0 {
		t.Fatalf("fast query logged at warn level: %s", buf.String())
	}
	newGormLogger(time.Hour).LogMode(logger.Info).Trace(context.Background(), begin, fc, nil)
	if !strings.Contains(buf.String(), `"level":"debug"`) {
		t.Fatalf("info mode should trace at debug: %s", buf.String())
	}
}
