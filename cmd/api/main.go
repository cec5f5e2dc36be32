package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ordersync_backend/internal/adapters/storage"
	apphttp "ordersync_backend/internal/http"
	"ordersync_backend/internal/http/router"
	"ordersync_backend/internal/reconciliation"
	"ordersync_backend/internal/scheduler"
	"ordersync_backend/internal/serviceorders"
	"ordersync_backend/internal/serviceorders/progress"
	"ordersync_backend/platform/config"
	"ordersync_backend/platform/db"
	"ordersync_backend/platform/logger"
	"ordersync_backend/platform/metrics"
	"ordersync_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	val := validator.New()
	registry := metrics.NewRegistry()

	deps := serviceorders.Dependencies{Metrics: registry}

	if cfg.IsMinIOEnabled() {
		storageSvc, err := storage.NewMinIOService(cfg)
		if err != nil {
			log.Error("failed to initialize storage service", "error", err)
			panic("failed to initialize storage service: " + err.Error())
		}
		if err := withRetry(ctx, log, "ensure uploads bucket", 5, 2*time.Second, func() error {
			return storageSvc.EnsureBucketExists(ctx, cfg.GetMinioBucketUploads())
		}); err != nil {
			log.Error("failed to ensure storage bucket exists", "error", err, "bucket", cfg.GetMinioBucketUploads())
			panic("failed to ensure storage bucket exists: " + err.Error())
		}
		deps.Archive = storage.NewUploadArchive(storageSvc, cfg.GetMinioBucketUploads())
		log.Info("storage service initialized", "uploadsBucket", cfg.GetMinioBucketUploads())
	} else {
		log.Warn("MINIO_ENDPOINT not configured; uploads are not archived and async ingestion is disabled")
	}

	queue, closeQueue := initIngestQueue(cfg, log)
	if closeQueue != nil {
		defer closeQueue()
	}
	deps.Queue = queue

	if cfg.GetRedisURL() != "" {
		rdb, err := progress.NewRedisClient(cfg)
		if err != nil {
			log.Error("failed to initialize progress store", "error", err)
		} else {
			defer func() { _ = rdb.Close() }()
			deps.Progress = progress.New(rdb, cfg.GetProgressTTL(), log)
		}
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	serviceOrdersModule, err := serviceorders.NewModule(pool, cfg, val, deps, log)
	if err != nil {
		log.Error("failed to initialize service orders module", "error", err)
		panic("failed to initialize service orders module: " + err.Error())
	}
	reconciliationModule := reconciliation.NewModule(pool, cfg, val, registry, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:  cfg,
		Logger:  log,
		Health:  db.NewPoolAdapter(pool),
		Metrics: registry.Handler(),
		Modules: []apphttp.Module{
			serviceOrdersModule,
			reconciliationModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initIngestQueue(cfg config.SchedulerConfig, log *logger.Logger) (*scheduler.Client, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; asynchronous ingestion disabled")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize ingest queue client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
