package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ordersync_backend/internal/adapters/storage"
	"ordersync_backend/internal/scheduler"
	"ordersync_backend/internal/serviceorders"
	"ordersync_backend/internal/serviceorders/progress"
	"ordersync_backend/platform/config"
	"ordersync_backend/platform/db"
	"ordersync_backend/platform/logger"
	"ordersync_backend/platform/metrics"
	"ordersync_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	if !cfg.IsMinIOEnabled() {
		panic("MINIO_ENDPOINT is required: the worker reads queued uploads from the archive")
	}
	storageSvc, err := storage.NewMinIOService(cfg)
	if err != nil {
		log.Error("failed to initialize storage service", "error", err)
		panic("failed to initialize storage service: " + err.Error())
	}
	archive := storage.NewUploadArchive(storageSvc, cfg.GetMinioBucketUploads())

	rdb, err := progress.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to initialize progress store", "error", err)
		panic("failed to initialize progress store: " + err.Error())
	}
	defer func() { _ = rdb.Close() }()
	tracker := progress.New(rdb, cfg.GetProgressTTL(), log)

	registry := metrics.NewRegistry()

	// Worker-side ingestion wiring (no HTTP handlers required).
	serviceOrdersModule, err := serviceorders.NewModule(pool, cfg, validator.New(), serviceorders.Dependencies{
		Archive: archive,
		Metrics: registry,
	}, log)
	if err != nil {
		log.Error("failed to initialize service orders module", "error", err)
		panic("failed to initialize service orders module: " + err.Error())
	}

	cleanupInterval := getDurationEnv("INGEST_STALE_BATCH_CLEANUP_INTERVAL", time.Hour)
	staleBatchCleanup := scheduler.NewStaleBatchCleanup(serviceOrdersModule.Service(), log, cleanupInterval, cfg.GetStaleBatchRetention())
	go staleBatchCleanup.Run(ctx)

	ingestHandler := scheduler.NewIngestHandler(serviceOrdersModule.Service(), archive, tracker, log)
	worker, err := scheduler.NewWorker(cfg, ingestHandler, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	if addr := metricsAddr(); addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           metricsRouter(registry),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info("metrics listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	worker.Run(ctx)
}

// metricsAddr is the worker's scrape address. An explicitly empty
// SCHEDULER_METRICS_ADDR disables the listener.
func metricsAddr() string {
	addr, ok := os.LookupEnv("SCHEDULER_METRICS_ADDR")
	if !ok {
		return ":9091"
	}
	return strings.TrimSpace(addr)
}

func metricsRouter(registry *metrics.Registry) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/metrics", gin.WrapH(registry.Handler()))
	return engine
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}
