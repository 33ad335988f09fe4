package main

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-reflect-backend/internal/cache"
	"github.com/tbourn/go-reflect-backend/internal/config"
	"github.com/tbourn/go-reflect-backend/internal/domain"
	"github.com/tbourn/go-reflect-backend/internal/llm"
	"github.com/tbourn/go-reflect-backend/internal/repo"
	"github.com/tbourn/go-reflect-backend/internal/services"
)

// app is the fully wired service graph.
type app struct {
	db          *gorm.DB
	redis       *redis.Client
	gateway     *llm.Gateway
	idempotency services.IdempotencyStore
	reports     *services.ReportService
}

// openDB opens the configured database and migrates the schema.
func openDB(cfg config.Config) (*gorm.DB, error) {
	dsn := cfg.DB.Path
	if cfg.DB.Driver == repo.DriverPostgres {
		dsn = cfg.DB.URL
	}
	db, err := repo.Open(cfg.DB.Driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{db: db}

	usage := llm.NewUsage(cfg.LLM.CostPer1KTokens)
	client := llm.NewClient(llm.Config{
		BaseURL:          cfg.LLM.BaseURL,
		APIKey:           cfg.LLM.APIKey,
		Timeout:          cfg.LLM.Timeout,
		MaxRetries:       cfg.LLM.MaxRetries,
		BackoffBase:      cfg.LLM.BackoffBase,
		BackoffCap:       cfg.LLM.BackoffCap,
		JitterMax:        cfg.LLM.BackoffJitter,
		BreakerThreshold: cfg.LLM.BreakerThreshold,
		BreakerCooldown:  cfg.LLM.BreakerCooldown,
	}, llm.WithUsage(usage), llm.WithLogger(log.Logger))
	a.gateway = llm.NewGateway(client, usage)
	if cfg.LLM.APIKey == "" {
		log.Warn().Msg("LLM_API_KEY is empty; report generation will fail with auth_invalid")
	}

	a.idempotency = repo.NewIdempotencyStore(db, cfg.IdempotencyTTL)
	if cfg.Redis.URL != "" {
		if err := a.useRedis(ctx, cfg); err != nil {
			log.Warn().Err(err).Msg("redis unavailable; using database idempotency store")
		}
	}

	store := repo.NewStore(db)
	temperature := cfg.LLM.Temperature
	maxTokens := cfg.LLM.MaxTokens
	a.reports = &services.ReportService{
		Auth:        store,
		Notes:       store,
		Writer:      store,
		Reader:      store,
		Deleter:     store,
		Idempotency: a.idempotency,
		Quota:       services.NewQuotaGuard(store, cfg.Report.WeeklyLimit),
		LLM:         a.gateway,
		Model:       cfg.LLM.Model,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
		NotesLimit:  cfg.Report.NotesLimit,
	}
	return a, nil
}

func (a *app) useRedis(ctx context.Context, cfg config.Config) error {
	client, err := cache.NewClient(cfg.Redis.URL)
	if err != nil {
		return err
	}
	store := cache.NewRedisIdempotencyStore(client, cfg.Redis.Prefix, domain.IdempotencyScopeReport, cfg.IdempotencyTTL)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		_ = client.Close()
		return err
	}
	a.redis = client
	a.idempotency = store
	log.Info().Str("prefix", cfg.Redis.Prefix).Msg("redis idempotency store enabled")
	return nil
}

func (a *app) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
