package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ordersync_backend/internal/serviceorders/domain"
	"ordersync_backend/internal/serviceorders/repository"
	"ordersync_backend/internal/serviceorders/transport"
	"ordersync_backend/platform/apperr"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func totalPages(total, pageSize int) int {
	if total == 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// ListBatches returns upload batches, newest first.
func (s *Service) ListBatches(ctx context.Context, req transport.ListBatchesRequest) (transport.BatchListResponse, error) {
	page, pageSize := normalizePage(req.Page, req.PageSize)
	items, total, err := s.repo.ListBatches(ctx, repository.ListBatchesParams{
		SourceID: req.Source,
		Limit:    pageSize,
		Offset:   (page - 1) * pageSize,
	})
	if err != nil {
		return transport.BatchListResponse{}, apperr.Persistence("list upload batches", err).WithOp("serviceorders.ListBatches")
	}

	resp := transport.BatchListResponse{
		Items:      make([]transport.BatchResponse, 0, len(items)),
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}
	for _, b := range items {
		resp.Items = append(resp.Items, toBatchResponse(b))
	}
	return resp, nil
}

// GetBatch returns one batch.
func (s *Service) GetBatch(ctx context.Context, id uuid.UUID) (transport.BatchResponse, error) {
	b, err := s.repo.GetBatch(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return transport.BatchResponse{}, apperr.NotFound("upload batch not found")
	}
	if err != nil {
		return transport.BatchResponse{}, apperr.Persistence("get upload batch", err).WithOp("serviceorders.GetBatch")
	}
	return toBatchResponse(b), nil
}

// DeleteBatch removes a batch together with the orders it last wrote and its
// archived file.
func (s *Service) DeleteBatch(ctx context.Context, id uuid.UUID) (transport.DeleteBatchResponse, error) {
	deleted, err := s.repo.DeleteBatch(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return transport.DeleteBatchResponse{}, apperr.NotFound("upload batch not found")
	}
	if err != nil {
		return transport.DeleteBatchResponse{}, apperr.Persistence("delete upload batch", err).WithOp("serviceorders.DeleteBatch")
	}
	archiveRemoved := s.removeArchive(ctx, deleted.ArchiveKey)
	s.log.WithContext(ctx).Info("upload batch deleted", "batch_id", id.String(), "orders_removed", deleted.OrdersRemoved,
		"archive_removed", archiveRemoved)
	return transport.DeleteBatchResponse{ID: id, OrdersRemoved: deleted.OrdersRemoved, ArchiveRemoved: archiveRemoved}, nil
}

// DeleteStaleBatches removes batches left unprocessed since before, with their
// orders and archived files. It returns how many batches were removed.
func (s *Service) DeleteStaleBatches(ctx context.Context, before time.Time) (int, error) {
	deleted, err := s.repo.DeleteUnprocessedBatchesBefore(ctx, before)
	if err != nil {
		return 0, apperr.Persistence("delete stale batches", err).WithOp("serviceorders.DeleteStaleBatches")
	}
	for _, d := range deleted {
		s.removeArchive(ctx, d.ArchiveKey)
	}
	return len(deleted), nil
}

// removeArchive deletes an archived upload. The database row is already gone,
// so a storage failure is logged and left for manual cleanup.
func (s *Service) removeArchive(ctx context.Context, key *string) bool {
	if key == nil || *key == "" || s.files == nil {
		return false
	}
	if err := s.files.Remove(ctx, *key); err != nil {
		s.log.WithContext(ctx).Warn("archived upload not removed", "archive_key", *key, "error", err)
		return false
	}
	return true
}

// BatchFile presigns a download of the spreadsheet a batch was ingested from.
func (s *Service) BatchFile(ctx context.Context, id uuid.UUID) (transport.BatchFileResponse, error) {
	const op = "serviceorders.BatchFile"
	b, err := s.repo.GetBatch(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return transport.BatchFileResponse{}, apperr.NotFound("upload batch not found").WithOp(op)
	}
	if err != nil {
		return transport.BatchFileResponse{}, apperr.Persistence("get upload batch", err).WithOp(op)
	}
	if b.ArchiveKey == nil || *b.ArchiveKey == "" || s.files == nil {
		return transport.BatchFileResponse{}, apperr.NotFound("upload batch has no archived file").WithOp(op)
	}

	link, err := s.files.DownloadURL(ctx, *b.ArchiveKey)
	if err != nil {
		return transport.BatchFileResponse{}, apperr.Wrap(apperr.KindInternal, "presign archived upload", err).WithOp(op)
	}
	return transport.BatchFileResponse{
		BatchID:   b.ID,
		FileName:  b.FileName,
		URL:       link.URL,
		ExpiresAt: link.ExpiresAt,
	}, nil
}

// CheckSource reports a NotFound error when sourceID is not registered.
func (s *Service) CheckSource(ctx context.Context, sourceID string) error {
	const op = "serviceorders.CheckSource"
	if _, err := s.repo.GetSource(ctx, sourceID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound(fmt.Sprintf("source %q not found", sourceID)).WithOp(op)
		}
		return apperr.Persistence("load source", err).WithOp(op)
	}
	return nil
}

// ListSources returns every source with its record counts.
func (s *Service) ListSources(ctx context.Context) (transport.SourceListResponse, error) {
	sources, err := s.repo.ListSources(ctx)
	if err != nil {
		return transport.SourceListResponse{}, apperr.Persistence("list sources", err).WithOp("serviceorders.ListSources")
	}
	resp := transport.SourceListResponse{Items: make([]transport.SourceResponse, 0, len(sources))}
	for _, src := range sources {
		resp.Items = append(resp.Items, transport.SourceResponse{
			ID:         src.ID,
			Name:       src.Name,
			OrderCount: src.OrderCount,
			BatchCount: src.BatchCount,
			LastUpload: src.LastUpload,
		})
	}
	return resp, nil
}

// ListOrders pages through stored orders.
func (s *Service) ListOrders(ctx context.Context, req transport.ListOrdersRequest) (transport.OrderListResponse, error) {
	page, pageSize := normalizePage(req.Page, req.PageSize)
	items, total, err := s.repo.ListOrders(ctx, repository.ListOrdersParams{
		SourceID:   req.Source,
		Status:     req.Status,
		Department: req.Department,
		Limit:      pageSize,
		Offset:     (page - 1) * pageSize,
	})
	if err != nil {
		return transport.OrderListResponse{}, apperr.Persistence("list service orders", err).WithOp("serviceorders.ListOrders")
	}

	resp := transport.OrderListResponse{
		Items:      make([]transport.OrderResponse, 0, len(items)),
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}
	for _, o := range items {
		resp.Items = append(resp.Items, transport.OrderResponse{
			ID:                  o.ID,
			Source:              o.SourceID,
			OrderNumber:         o.OrderNumber,
			ServiceType:         o.ServiceType,
			TechnicalDepartment: string(o.TechnicalDepartment),
			Supplier:            o.Supplier,
			CreatedAt:           o.CreatedAt,
			Status:              o.Status,
			StatusChangedAt:     o.StatusChangedAt,
			Neighborhood:        o.Neighborhood,
			District:            o.District,
			BatchID:             o.BatchID,
		})
	}
	return resp, nil
}

func toBatchResponse(b domain.UploadBatch) transport.BatchResponse {
	return transport.BatchResponse{
		ID:             b.ID,
		Source:         b.SourceID,
		FileName:       b.FileName,
		Label:          b.Label,
		UploadedBy:     b.UploadedBy,
		UploadedAt:     b.UploadedAt,
		Processed:      b.Processed,
		IdempotencyKey: b.IdempotencyKey,
		ArchiveKey:     b.ArchiveKey,
		OrderCount:     b.OrderCount,
	}
}
