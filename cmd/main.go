// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/flock/internal/config"
	"github.com/Shivanand-hulikatti/flock/internal/database"
	"github.com/Shivanand-hulikatti/flock/internal/handler"
	"github.com/Shivanand-hulikatti/flock/internal/repository"
	"github.com/Shivanand-hulikatti/flock/internal/service"
	"github.com/Shivanand-hulikatti/flock/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "flock", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("otel shutdown", "error", err)
		}
	}()

	// ── 1. Open the store ─────────────────────────────────────────────────
	events, registrations, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// ── 2. Wire up layers ─────────────────────────────────────────────────
	lifecycle := service.NewEventLifecycle(events, registrations, logger)
	admission := service.NewAdmissionController(events, registrations, logger)
	eventHandler := handler.NewEventHandler(lifecycle, admission, logger)

	// ── 3. Build the router ───────────────────────────────────────────────
	router := handler.NewRouter(eventHandler, handler.RouterConfig{
		JWTSecret: []byte(cfg.JWTSecret),
		RateLimit: handler.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:             logger,
	})

	// ── 4. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", srv.Addr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// openStore builds the event store and ledger for the configured driver.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (service.EventStore, service.RegistrationLedger, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := database.NewPool(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("database: %w", err)
		}
		if err := database.MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("connected to PostgreSQL", "host", cfg.Postgres.Host, "db", cfg.Postgres.DBName)
		return repository.NewEventRepository(pool), repository.NewRegistrationRepository(pool), pool.Close, nil

	case config.DriverSQLite:
		writeDB, readDB, err := database.OpenSQLitePair(ctx, cfg.SQLitePath, 0)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("database: %w", err)
		}
		closeDBs := func() {
			_ = readDB.Close()
			_ = writeDB.Close()
		}
		if err := database.MigrateSQLite(ctx, writeDB); err != nil {
			closeDBs()
			return nil, nil, nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("opened SQLite", "path", cfg.SQLitePath)
		return repository.NewSQLiteEventRepository(writeDB, readDB),
			repository.NewSQLiteRegistrationRepository(writeDB, readDB), closeDBs, nil

	default:
		logger.Warn("using in-memory store, data is lost on restart")
		events := repository.NewMemoryEventRepository()
		return events, repository.NewMemoryRegistrationRepository(events), func() {}, nil
	}
}
