// Package reconciliation provides the cross-source comparison bounded context.
package reconciliation

import (
	apphttp "ordersync_backend/internal/http"
	"ordersync_backend/internal/reconciliation/handler"
	"ordersync_backend/internal/reconciliation/repository"
	"ordersync_backend/internal/reconciliation/service"
	"ordersync_backend/platform/config"
	"ordersync_backend/platform/logger"
	"ordersync_backend/platform/metrics"
	"ordersync_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the reconciliation bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the reconciliation module.
func NewModule(pool *pgxpool.Pool, cfg config.IngestConfig, val *validator.Validator, m *metrics.Registry, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, val, log,
		service.WithShards(cfg.GetCompareShards()),
		service.WithMetrics(m),
	)
	return &Module{handler: handler.New(svc, val), service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "reconciliation"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts the comparison run routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	runs := ctx.Protected.Group("/reconciliation/runs")
	runs.POST("", m.handler.Compare)
	runs.GET("", m.handler.ListRuns)
	runs.GET("/:id", m.handler.GetRun)
	runs.GET("/:id/export", m.handler.Export)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
