package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ordersync_backend/internal/serviceorders/domain"
)

// BatchStore manages upload batches.
type BatchStore interface {
	CreateBatch(ctx context.Context, params CreateBatchParams) (domain.UploadBatch, error)
	MarkBatchProcessed(ctx context.Context, id uuid.UUID) error
	DeleteBatch(ctx context.Context, id uuid.UUID) (DeletedBatch, error)
	DeleteUnprocessedBatchesBefore(ctx context.Context, before time.Time) ([]DeletedBatch, error)
	GetBatch(ctx context.Context, id uuid.UUID) (domain.UploadBatch, error)
	ListBatches(ctx context.Context, params ListBatchesParams) ([]domain.UploadBatch, int, error)
}

// OrderStore is the write side used by the upsert reconciler.
type OrderStore interface {
	FindByOrderKeys(ctx context.Context, sourceID string, keys []string) (map[string]ExistingOrder, error)
	InsertOrders(ctx context.Context, orders []domain.ServiceOrder) (int64, error)
	UpdateOrderStatuses(ctx context.Context, updates []StatusUpdate) (int64, error)
}

// OrderReader lists persisted orders.
type OrderReader interface {
	ListOrders(ctx context.Context, params ListOrdersParams) ([]domain.ServiceOrder, int, error)
}

// SourceReader reads the source catalogue.
type SourceReader interface {
	GetSource(ctx context.Context, id string) (domain.Source, error)
	ListSources(ctx context.Context) ([]domain.Source, error)
}

// Store is everything the ingestion module needs from persistence.
type Store interface {
	BatchStore
	OrderStore
	OrderReader
	SourceReader
}

type CreateBatchParams struct {
	ID             uuid.UUID
	SourceID       string
	FileName       string
	Label          *string
	UploadedBy     string
	IdempotencyKey *string
	ArchiveKey     *string
}

// DeletedBatch describes a removed batch. OrdersRemoved is only counted for
// single deletes; ArchiveKey is the uploaded file left to clean up.
type DeletedBatch struct {
	ID            uuid.UUID
	OrdersRemoved int64
	ArchiveKey    *string
}

type ListBatchesParams struct {
	SourceID string
	Limit    int
	Offset   int
}

type ListOrdersParams struct {
	SourceID   string
	Status     string
	Department string
	Limit      int
	Offset     int
}

// ExistingOrder is the slice of a stored order the upsert needs to classify a record.
type ExistingOrder struct {
	ID     uuid.UUID
	Key    string
	Status string
}

// StatusUpdate carries the only fields a re-ingest may change.
type StatusUpdate struct {
	ID              uuid.UUID
	Status          string
	StatusChangedAt *time.Time
	BatchID         uuid.UUID
}
