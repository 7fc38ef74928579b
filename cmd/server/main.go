package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	webAdapter "garments-erp/internal/adapters/web"
	"garments-erp/internal/app"
	"garments-erp/internal/config"
	"garments-erp/internal/db"
	"garments-erp/internal/logger"
	"garments-erp/internal/worker"
	"garments-erp/migrations"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if err := logger.Setup(logger.LogConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		TimeFormat: time.RFC3339,
		Output:     cfg.Logging.Output,
	}); err != nil {
		log.Fatal().Err(err).Msg("logger")
	}
	l := logger.WithComponent("server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Postgres)
	if err != nil {
		l.Fatal().Err(err).Msg("database")
	}
	defer pool.Close()

	applied, err := migrations.Apply(ctx, pool)
	if err != nil {
		l.Fatal().Err(err).Msg("migrations")
	}
	if len(applied) > 0 {
		l.Info().Strs("applied", applied).Msg("schema migrated")
	}

	services := app.NewServices(pool, cfg)
	svc := app.NewAppService(pool, services)

	if cfg.Reconciler.Enabled {
		go worker.NewReconciler(services.Bills, cfg.Reconciler).Run(ctx)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           webAdapter.NewHandler(svc, cfg.Server, cfg.Auth),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		l.Info().
			Str("address", cfg.Server.Address).
			Str("posting_mode", string(cfg.Posting.Mode)).
			Bool("auth", cfg.Auth.Enabled).
			Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error().Err(err).Msg("server")
			stop()
		}
	}()

	<-ctx.Done()
	l.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("graceful shutdown")
	}
}
