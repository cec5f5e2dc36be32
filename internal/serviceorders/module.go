// Package serviceorders provides the spreadsheet ingestion bounded context:
// uploads, batches, sources and the stored service orders.
package serviceorders

import (
	"fmt"

	"ordersync_backend/internal/adapters/storage"
	apphttp "ordersync_backend/internal/http"
	"ordersync_backend/internal/scheduler"
	"ordersync_backend/internal/serviceorders/domain"
	"ordersync_backend/internal/serviceorders/handler"
	"ordersync_backend/internal/serviceorders/normalize"
	"ordersync_backend/internal/serviceorders/progress"
	"ordersync_backend/internal/serviceorders/repository"
	"ordersync_backend/internal/serviceorders/service"
	"ordersync_backend/platform/config"
	"ordersync_backend/platform/httpkit"
	"ordersync_backend/platform/logger"
	"ordersync_backend/platform/metrics"
	"ordersync_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// roleBatchAdmin is required to delete upload batches.
const roleBatchAdmin = "admin"

// Dependencies are the optional collaborators of the module. A nil Archive
// disables archiving and archived-file downloads; Archive, Progress and Queue together enable async uploads.
type Dependencies struct {
	Archive  *storage.UploadArchive
	Progress *progress.Store
	Queue    *scheduler.Client
	Metrics  *metrics.Registry
}

// Module is the service-orders bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the service-orders module.
func NewModule(pool *pgxpool.Pool, cfg config.IngestConfig, val *validator.Validator, deps Dependencies, log *logger.Logger) (*Module, error) {
	classifier, err := domain.LoadClassifier(cfg.GetDepartmentKeywordsFile())
	if err != nil {
		return nil, fmt.Errorf("load department keywords: %w", err)
	}

	repo := repository.New(pool)
	normalizer := normalize.New(cfg.GetIngestLocation(), normalize.WithClassifier(classifier))

	opts := []service.Option{
		service.WithMetrics(deps.Metrics),
		service.WithMaxFileSize(cfg.GetIngestMaxFileSize()),
	}
	var (
		archive  service.Archiver
		tracker  handler.ProgressStore
		enqueuer scheduler.IngestEnqueuer
	)
	if deps.Archive != nil {
		archive = deps.Archive
		opts = append(opts, service.WithArchiver(deps.Archive), service.WithArchiveFiles(deps.Archive))
	}
	if deps.Progress != nil {
		tracker = deps.Progress
	}
	if deps.Queue != nil {
		enqueuer = deps.Queue
	}

	svc := service.New(repo, normalizer, log, opts...)
	h := handler.New(svc, val, archive, tracker, enqueuer, cfg.GetIngestMaxFileSize(), log)

	return &Module{handler: h, service: svc}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "serviceorders"
}

// Service returns the ingestion service, which the worker runs for queued
// uploads and the stale batch cleanup prunes through.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts the upload, batch, source and order routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/sources", m.handler.ListSources)

	orders := ctx.Protected.Group("/service-orders")
	orders.GET("", m.handler.ListOrders)
	orders.POST("/uploads", ctx.UploadRateLimiter.RateLimit(), m.handler.Upload)
	orders.GET("/uploads", m.handler.ListBatches)
	orders.GET("/uploads/:id", m.handler.GetBatch)
	orders.GET("/uploads/:id/file", m.handler.BatchFile)
	orders.DELETE("/uploads/:id", httpkit.RequireRole(roleBatchAdmin), m.handler.DeleteBatch)
	orders.GET("/jobs/:jobId/progress", m.handler.Progress)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
