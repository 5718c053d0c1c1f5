package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/example/fleet-tracker/internal/config"
	httpapi "github.com/example/fleet-tracker/internal/http"
	"github.com/example/fleet-tracker/internal/logging"
	"github.com/example/fleet-tracker/internal/models"
	"github.com/example/fleet-tracker/internal/storage"
)

func main() {
	config.LoadDotEnvUp(6)
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(cfg.LogLevel, cfg.Environment).With().Str("service", "devbackend").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	history, closeHistory := openHistory(ctx, cfg, logger)
	defer closeHistory()

	srv := httpapi.NewServer(storage.NewAccounts(), history, logger)
	if cfg.DevBackend.AdminPassword != "" {
		if _, err := srv.SeedAccount(cfg.DevBackend.AdminName, cfg.DevBackend.AdminEmail, cfg.DevBackend.AdminPassword, models.RoleAdmin); err != nil {
			logger.Fatal().Err(err).Msg("seed admin failed")
		}
		logger.Info().Str("email", cfg.DevBackend.AdminEmail).Msg("admin account seeded")
	}

	httpSrv := &http.Server{
		Addr:              cfg.DevBackend.Addr,
		Handler:           newRouter(srv, cfg.Live.AllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.DevBackend.Addr).Msg("dev backend listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown failed")
	}
	logger.Info().Msg("dev backend stopped")
}

// newRouter mounts the API under /api.
func newRouter(api http.Handler, origins []string) http.Handler {
	r := mux.NewRouter()
	r.PathPrefix("/api/").Handler(http.StripPrefix("/api", api))
	return httpapi.WithCORS(r, origins)
}

// openHistory uses Postgres when a DSN is configured and memory otherwise.
func openHistory(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (storage.HistoryStore, func()) {
	if cfg.Postgres.DSN == "" {
		return storage.NewMemoryHistory(), func() {}
	}
	if cfg.Postgres.Migrate {
		if err := storage.Migrate(cfg.Postgres.DSN); err != nil {
			logger.Fatal().Err(err).Msg("migrations failed")
		}
		logger.Info().Msg("migrations applied")
	}
	pg, err := storage.NewPostgresHistory(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres unavailable")
	}
	return pg, func() { _ = pg.Close() }
}
