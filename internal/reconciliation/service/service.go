// Package service runs cross-source comparisons and keeps their reports.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"ordersync_backend/internal/reconciliation/compare"
	"ordersync_backend/internal/reconciliation/repository"
	"ordersync_backend/internal/reconciliation/transport"
	"ordersync_backend/internal/serviceorders/domain"
	"ordersync_backend/internal/serviceorders/spreadsheet"
	"ordersync_backend/platform/apperr"
	"ordersync_backend/platform/logger"
	"ordersync_backend/platform/metrics"
	"ordersync_backend/platform/validator"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	exportSheet = "Divergencias"
)

var exportHeader = []string{"Número da Ordem", "Status Fonte A", "Status Fonte B", "Motivo"}

// CompareOptions tunes one comparison request.
type CompareOptions struct {
	Symmetric bool
}

type Service struct {
	repo    repository.Store
	val     *validator.Validator
	metrics *metrics.Registry
	log     *logger.Logger
	shards  int
	now     func() time.Time
}

type Option func(*Service)

// WithShards splits the comparison of large sources across n goroutines.
func WithShards(n int) Option {
	return func(s *Service) { s.shards = n }
}

func WithMetrics(m *metrics.Registry) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(repo repository.Store, val *validator.Validator, log *logger.Logger, opts ...Option) *Service {
	if val == nil {
		val = validator.New()
	}
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{repo: repo, val: val, log: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Compare loads both sources, reports every divergence and persists the run.
func (s *Service) Compare(ctx context.Context, sourceA, sourceB string, opts CompareOptions, createdBy string) (transport.RunResponse, error) {
	const op = "reconciliation.Compare"
	started := s.now()

	sourceA, sourceB = strings.TrimSpace(sourceA), strings.TrimSpace(sourceB)
	for _, id := range []string{sourceA, sourceB} {
		if err := s.val.Var(id, "required,sourceid"); err != nil {
			return transport.RunResponse{}, apperr.Reconciliation(fmt.Sprintf("malformed source id %q", id)).WithOp(op)
		}
	}
	if sourceA == sourceB {
		return transport.RunResponse{}, apperr.Reconciliation("a source cannot be compared with itself").WithOp(op)
	}

	for _, id := range []string{sourceA, sourceB} {
		exists, err := s.repo.SourceExists(ctx, id)
		if err != nil {
			return transport.RunResponse{}, apperr.Persistence("check source", err).WithOp(op)
		}
		if !exists {
			return transport.RunResponse{}, apperr.NotFound(fmt.Sprintf("source %q not found", id)).WithOp(op)
		}
	}

	var ordersA, ordersB []domain.ServiceOrder
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		ordersA, err = s.repo.LoadOrders(gctx, sourceA)
		return err
	})
	g.Go(func() (err error) {
		ordersB, err = s.repo.LoadOrders(gctx, sourceB)
		return err
	})
	if err := g.Wait(); err != nil {
		return transport.RunResponse{}, apperr.Persistence("load source orders", err).WithOp(op)
	}

	result := compare.Compare(ordersA, ordersB, compare.Options{Symmetric: opts.Symmetric, Shards: s.shards})
	counts := result.Counts()

	run, err := s.repo.CreateRun(ctx, repository.Run{
		SourceAID:       sourceA,
		SourceBID:       sourceB,
		TotalA:          result.TotalA,
		TotalB:          result.TotalB,
		DivergenceCount: len(result.Divergences),
		MissingCount:    counts[compare.ReasonMissingInB],
		MismatchCount:   counts[compare.ReasonStatusMismatch],
		MissingInACount: counts[compare.ReasonMissingInA],
		Symmetric:       opts.Symmetric,
		CreatedBy:       createdBy,
	}, result.Divergences)
	if err != nil {
		s.log.DatabaseError("create comparison run", err)
		return transport.RunResponse{}, apperr.Persistence("persist comparison run", err).WithOp(op)
	}

	byReason := make(map[string]int, len(counts))
	for reason, n := range counts {
		byReason[string(reason)] = n
	}
	s.metrics.ObserveComparison(byReason, s.now().Sub(started))
	s.log.WithContext(ctx).ComparisonCompleted(run.ID.String(), sourceA, sourceB, result.TotalA, result.TotalB, len(result.Divergences))

	return toRunResponse(run, result.Divergences), nil
}

// GetRun returns a stored run with its divergences in report order.
func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (transport.RunResponse, error) {
	run, divergences, err := s.loadRun(ctx, id, "reconciliation.GetRun")
	if err != nil {
		return transport.RunResponse{}, err
	}
	return toRunResponse(run, divergences), nil
}

func (s *Service) ListRuns(ctx context.Context, req transport.ListRunsRequest) (transport.RunListResponse, error) {
	page, pageSize := req.Page, req.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	runs, total, err := s.repo.ListRuns(ctx, repository.ListRunsParams{
		SourceID: req.Source,
		Limit:    pageSize,
		Offset:   (page - 1) * pageSize,
	})
	if err != nil {
		return transport.RunListResponse{}, apperr.Persistence("list comparison runs", err).WithOp("reconciliation.ListRuns")
	}

	resp := transport.RunListResponse{
		Items:    make([]transport.RunSummary, 0, len(runs)),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}
	if total > 0 {
		resp.TotalPages = (total + pageSize - 1) / pageSize
	}
	for _, run := range runs {
		resp.Items = append(resp.Items, toRunSummary(run))
	}
	return resp, nil
}

// ExportRun writes the divergence report of a run as an xlsx workbook and
// returns the suggested file name.
func (s *Service) ExportRun(ctx context.Context, id uuid.UUID, w io.Writer) (string, error) {
	const op = "reconciliation.ExportRun"
	run, divergences, err := s.loadRun(ctx, id, op)
	if err != nil {
		return "", err
	}

	rows := make([][]any, 0, len(divergences))
	for _, d := range divergences {
		rows = append(rows, []any{d.OrderNumber, deref(d.StatusSourceA), deref(d.StatusSourceB), string(d.Reason)})
	}
	if err := spreadsheet.Write(w, exportSheet, exportHeader, rows); err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "write divergence report", err).WithOp(op)
	}

	name := fmt.Sprintf("divergencias_%s_%s_%s.xlsx", run.SourceAID, run.SourceBID, run.CreatedAt.UTC().Format("20060102"))
	return name, nil
}

func (s *Service) loadRun(ctx context.Context, id uuid.UUID, op string) (repository.Run, []compare.Divergence, error) {
	run, err := s.repo.GetRun(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Run{}, nil, apperr.NotFound("comparison run not found").WithOp(op)
	}
	if err != nil {
		return repository.Run{}, nil, apperr.Persistence("get comparison run", err).WithOp(op)
	}
	divergences, err := s.repo.ListDivergences(ctx, id)
	if err != nil {
		return repository.Run{}, nil, apperr.Persistence("list divergences", err).WithOp(op)
	}
	return run, divergences, nil
}

func toRunSummary(run repository.Run) transport.RunSummary {
	return transport.RunSummary{
		ID:              run.ID,
		SourceA:         run.SourceAID,
		SourceB:         run.SourceBID,
		TotalA:          run.TotalA,
		TotalB:          run.TotalB,
		DivergenceCount: run.DivergenceCount,
		MissingCount:    run.MissingCount,
		MismatchCount:   run.MismatchCount,
		MissingInACount: run.MissingInACount,
		Symmetric:       run.Symmetric,
		CreatedBy:       run.CreatedBy,
		CreatedAt:       run.CreatedAt,
	}
}

func toRunResponse(run repository.Run, divergences []compare.Divergence) transport.RunResponse {
	resp := transport.RunResponse{
		RunSummary:       toRunSummary(run),
		Divergences:      make([]transport.DivergenceResponse, 0, len(divergences)),
		Missing:          make([]transport.DivergenceResponse, 0),
		StatusMismatches: make([]transport.DivergenceResponse, 0),
		MissingInA:       make([]transport.DivergenceResponse, 0),
	}
	for _, d := range divergences {
		item := transport.DivergenceResponse{
			OrderNumber:   d.OrderNumber,
			StatusSourceA: d.StatusSourceA,
			StatusSourceB: d.StatusSourceB,
			Reason:        string(d.Reason),
		}
		resp.Divergences = append(resp.Divergences, item)
		switch d.Reason {
		case compare.ReasonMissingInB:
			resp.Missing = append(resp.Missing, item)
		case compare.ReasonStatusMismatch:
			resp.StatusMismatches = append(resp.StatusMismatches, item)
		case compare.ReasonMissingInA:
			resp.MissingInA = append(resp.MissingInA, item)
		}
	}
	return resp
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
