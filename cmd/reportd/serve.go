package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/go-reflect-backend/internal/config"
	httpapi "github.com/tbourn/go-reflect-backend/internal/http"
	"github.com/tbourn/go-reflect-backend/internal/observability"
	"github.com/tbourn/go-reflect-backend/internal/sysutil"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var reapEvery time.Duration
	reaper := sysutil.IsTruthy(sysutil.FirstNonEmpty(os.Getenv("REAPER_ENABLED"), "true"))

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !reaper {
				reapEvery = 0
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(runCtx, cfg, reapEvery)
		},
	}
	cmd.Flags().DurationVar(&reapEvery, "reap-interval", time.Hour, "How often to purge expired idempotency keys")
	cmd.Flags().BoolVar(&reaper, "reaper", reaper, "Run the idempotency reaper alongside the server (REAPER_ENABLED)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, reapEvery time.Duration) error {
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("close resources")
		}
	}()

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:          a.db,
		Reports:     a.reports,
		Usage:       a.gateway,
		Idempotency: a.idempotency,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info().Msg("shutting down http server")
		return srv.Shutdown(sctx)
	})
	if reapEvery > 0 {
		g.Go(func() error {
			runReaper(gctx, a.db, reapEvery, time.Now)
			return nil
		})
	}
	return g.Wait()
}

// runReaper purges expired idempotency rows every interval until ctx ends.
func runReaper(ctx context.Context, db *gorm.DB, every time.Duration, now func() time.Time) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := reapOnce(ctx, db, now()); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("idempotency reaper")
			}
		}
	}
}
