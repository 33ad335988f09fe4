package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-reflect-backend/internal/config"
	"github.com/tbourn/go-reflect-backend/internal/domain"
	"github.com/tbourn/go-reflect-backend/internal/repo"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func setupEnv(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "reports.db")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", dbPath)
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("REDIS_URL", "")
	return dbPath
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := newRootCommand()
	want := map[string]bool{"serve": false, "migrate": false, "reap": false}
	for _, c := range cmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("missing subcommand %q", name)
		}
	}
}

func TestMigrateAndReap(t *testing.T) {
	dbPath := setupEnv(t)

	out, err := runCLI(t, "--env-file", "", "migrate")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out, "schema up to date") {
		t.Fatalf("unexpected migrate output: %q", out)
	}

	db, err := repo.OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	now := time.Now().UTC()
	if _, err := repo.CreateIdempotency(context.Background(), db, "u1", domain.IdempotencyScopeReport, "old", "r1", time.Minute, now.Add(-time.Hour)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	out, err = runCLI(t, "--env-file", "", "reap")
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if !strings.Contains(out, "purged 1 ") {
		t.Fatalf("unexpected reap output: %q", out)
	}
}

func TestInvalidConfigFails(t *testing.T) {
	setupEnv(t)
	t.Setenv("DB_DRIVER", "oracle")
	if _, err := runCLI(t, "--env-file", "", "migrate"); err == nil {
		t.Fatalf("expected config validation error")
	}
}

func TestLoadEnvFile(t *testing.T) {
	if err := loadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("REPORTD_TEST_VALUE=from-file\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("REPORTD_TEST_VALUE", "")
	os.Unsetenv("REPORTD_TEST_VALUE")
	if err := loadEnvFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("REPORTD_TEST_VALUE"); got != "from-file" {
		t.Fatalf("env not loaded: %q", got)
	}
}

func TestBuildApp_WiresServices(t *testing.T) {
	setupEnv(t)
	cfg, err := (&commandContext{}).ensureConfig()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	a, err := buildApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	if a.reports == nil || a.gateway == nil || a.idempotency == nil {
		t.Fatalf("incomplete graph: %+v", a)
	}
	if _, ok := a.idempotency.(*repo.IdempotencyStore); !ok {
		t.Fatalf("without REDIS_URL the database store is used, got %T", a.idempotency)
	}
	if a.reports.Quota.Limit != cfg.Report.WeeklyLimit || a.reports.Model != cfg.LLM.Model {
		t.Fatalf("report service not configured from cfg")
	}
}

func TestRunReaper_StopsOnCancel(t *testing.T) {
	setupEnv(t)
	db, err := openDB(mustConfig(t))
	if err != nil {
		t.Fatalf("openDB: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	now := time.Now().UTC()
	_, _ = repo.CreateIdempotency(context.Background(), db, "u1", domain.IdempotencyScopeReport, "old", "r1", time.Minute, now.Add(-time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runReaper(ctx, db, 10*time.Millisecond, time.Now)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var n int64
		db.Model(&domain.Idempotency{}).Count(&n)
		if n == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("reaper did not stop after cancel")
	}
	var n int64
	db.Model(&domain.Idempotency{}).Count(&n)
	if n != 0 {
		t.Fatalf("expired key not reaped, %d rows left", n)
	}
}

func mustConfig(t *testing.T) config.Config {
	t.Helper()
	c, err := (&commandContext{}).ensureConfig()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return c
}
