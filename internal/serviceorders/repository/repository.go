package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"ordersync_backend/internal/serviceorders/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrFileNameTaken       = errors.New("file name already ingested for source")
	ErrIdempotencyKeyTaken = errors.New("idempotency key already used")
)

const (
	uniqueViolation       = "23505"
	constraintFileName    = "upload_batches_source_file_name_key"
	constraintIdempotency = "upload_batches_idempotency_key_key"
)

var orderColumns = []string{
	"id", "source_id", "order_number", "order_key", "service_type", "technical_department",
	"supplier", "created_at", "status", "status_changed_at", "neighborhood", "district", "batch_id",
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

func (r *Repository) CreateBatch(ctx context.Context, params CreateBatchParams) (domain.UploadBatch, error) {
	batch := domain.UploadBatch{
		ID:             params.ID,
		SourceID:       params.SourceID,
		FileName:       params.FileName,
		Label:          params.Label,
		UploadedBy:     params.UploadedBy,
		IdempotencyKey: params.IdempotencyKey,
		ArchiveKey:     params.ArchiveKey,
	}
	if batch.ID == uuid.Nil {
		batch.ID = uuid.New()
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO upload_batches (id, source_id, file_name, label, uploaded_by, idempotency_key, archive_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING uploaded_at, processed
	`, batch.ID, batch.SourceID, batch.FileName, batch.Label, batch.UploadedBy, batch.IdempotencyKey, batch.ArchiveKey,
	).Scan(&batch.UploadedAt, &batch.Processed)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			switch pgErr.ConstraintName {
			case constraintIdempotency:
				return domain.UploadBatch{}, ErrIdempotencyKeyTaken
			case constraintFileName:
				return domain.UploadBatch{}, ErrFileNameTaken
			}
		}
		return domain.UploadBatch{}, fmt.Errorf("create upload batch: %w", err)
	}
	return batch, nil
}

func (r *Repository) MarkBatchProcessed(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE upload_batches SET processed = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark batch processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBatch removes a batch and, through the cascade, every order it last wrote.
func (r *Repository) DeleteBatch(ctx context.Context, id uuid.UUID) (DeletedBatch, error) {
	deleted := DeletedBatch{ID: id}
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM service_orders WHERE batch_id = $1`, id).Scan(&deleted.OrdersRemoved); err != nil {
		return DeletedBatch{}, fmt.Errorf("count batch orders: %w", err)
	}
	err := r.pool.QueryRow(ctx, `DELETE FROM upload_batches WHERE id = $1 RETURNING archive_key`, id).Scan(&deleted.ArchiveKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return DeletedBatch{}, ErrNotFound
	}
	if err != nil {
		return DeletedBatch{}, fmt.Errorf("delete upload batch: %w", err)
	}
	return deleted, nil
}

// DeleteUnprocessedBatchesBefore removes batches whose ingestion never finished
// and that were created before the cutoff, with their orders.
func (r *Repository) DeleteUnprocessedBatchesBefore(ctx context.Context, before time.Time) ([]DeletedBatch, error) {
	rows, err := r.pool.Query(ctx, `
		DELETE FROM upload_batches
		WHERE processed = false AND uploaded_at < $1
		RETURNING id, archive_key
	`, before)
	if err != nil {
		return nil, fmt.Errorf("delete stale batches: %w", err)
	}
	defer rows.Close()

	var deleted []DeletedBatch
	for rows.Next() {
		var d DeletedBatch
		if err := rows.Scan(&d.ID, &d.ArchiveKey); err != nil {
			return nil, fmt.Errorf("scan stale batch: %w", err)
		}
		deleted = append(deleted, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("delete stale batches: %w", err)
	}
	return deleted, nil
}

func (r *Repository) GetBatch(ctx context.Context, id uuid.UUID) (domain.UploadBatch, error) {
	var b domain.UploadBatch
	err := r.pool.QueryRow(ctx, `
		SELECT b.id, b.source_id, b.file_name, b.label, b.uploaded_by, b.uploaded_at, b.processed,
			b.idempotency_key, b.archive_key,
			(SELECT COUNT(*) FROM service_orders o WHERE o.batch_id = b.id)
		FROM upload_batches b
		WHERE b.id = $1
	`, id).Scan(&b.ID, &b.SourceID, &b.FileName, &b.Label, &b.UploadedBy, &b.UploadedAt, &b.Processed,
		&b.IdempotencyKey, &b.ArchiveKey, &b.OrderCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UploadBatch{}, ErrNotFound
	}
	if err != nil {
		return domain.UploadBatch{}, fmt.Errorf("get upload batch: %w", err)
	}
	return b, nil
}

func (r *Repository) ListBatches(ctx context.Context, params ListBatchesParams) ([]domain.UploadBatch, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM upload_batches WHERE ($1 = '' OR source_id = $1)
	`, params.SourceID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count upload batches: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT b.id, b.source_id, b.file_name, b.label, b.uploaded_by, b.uploaded_at, b.processed,
			b.idempotency_key, b.archive_key, COUNT(o.id)
		FROM upload_batches b
		LEFT JOIN service_orders o ON o.batch_id = b.id
		WHERE ($1 = '' OR b.source_id = $1)
		GROUP BY b.id
		ORDER BY b.uploaded_at DESC
		LIMIT $2 OFFSET $3
	`, params.SourceID, params.Limit, params.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list upload batches: %w", err)
	}
	defer rows.Close()

	items := make([]domain.UploadBatch, 0)
	for rows.Next() {
		var b domain.UploadBatch
		if err := rows.Scan(&b.ID, &b.SourceID, &b.FileName, &b.Label, &b.UploadedBy, &b.UploadedAt, &b.Processed,
			&b.IdempotencyKey, &b.ArchiveKey, &b.OrderCount); err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}
	return items, total, nil
}

// FindByOrderKeys looks up every key in one round trip. Keys with no stored
// order are simply absent from the result.
func (r *Repository) FindByOrderKeys(ctx context.Context, sourceID string, keys []string) (map[string]ExistingOrder, error) {
	found := make(map[string]ExistingOrder, len(keys))
	if len(keys) == 0 {
		return found, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, order_key, status
		FROM service_orders
		WHERE source_id = $1 AND order_key = ANY($2)
	`, sourceID, keys)
	if err != nil {
		return nil, fmt.Errorf("find orders by key: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e ExistingOrder
		if err := rows.Scan(&e.ID, &e.Key, &e.Status); err != nil {
			return nil, err
		}
		found[e.Key] = e
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return found, nil
}

// InsertOrders bulk-loads new orders with COPY.
func (r *Repository) InsertOrders(ctx context.Context, orders []domain.ServiceOrder) (int64, error) {
	if len(orders) == 0 {
		return 0, nil
	}
	n, err := r.pool.CopyFrom(ctx, pgx.Identifier{"service_orders"}, orderColumns,
		pgx.CopyFromSlice(len(orders), func(i int) ([]any, error) {
			o := orders[i]
			return []any{
				o.ID, o.SourceID, o.OrderNumber, o.Key(), o.ServiceType, string(o.TechnicalDepartment),
				o.Supplier, o.CreatedAt, o.Status, o.StatusChangedAt, o.Neighborhood, o.District, o.BatchID,
			}, nil
		}))
	if err != nil {
		return n, fmt.Errorf("copy service orders: %w", err)
	}
	return n, nil
}

// UpdateOrderStatuses applies every status change in one statement. Rows whose
// stored status already matches are left untouched.
func (r *Repository) UpdateOrderStatuses(ctx context.Context, updates []StatusUpdate) (int64, error) {
	if len(updates) == 0 {
		return 0, nil
	}

	ids := make([]uuid.UUID, len(updates))
	statuses := make([]string, len(updates))
	changedAt := make([]pgtype.Timestamptz, len(updates))
	batchIDs := make([]uuid.UUID, len(updates))
	for i, u := range updates {
		ids[i] = u.ID
		statuses[i] = u.Status
		if u.StatusChangedAt != nil {
			changedAt[i] = pgtype.Timestamptz{Time: *u.StatusChangedAt, Valid: true}
		}
		batchIDs[i] = u.BatchID
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE service_orders AS o
		SET status = u.status,
			status_changed_at = u.status_changed_at,
			batch_id = u.batch_id,
			updated_at = now()
		FROM unnest($1::uuid[], $2::text[], $3::timestamptz[], $4::uuid[])
			AS u(id, status, status_changed_at, batch_id)
		WHERE o.id = u.id
			AND lower(btrim(o.status)) <> lower(btrim(u.status))
	`, ids, statuses, changedAt, batchIDs)
	if err != nil {
		return 0, fmt.Errorf("update order statuses: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) ListOrders(ctx context.Context, params ListOrdersParams) ([]domain.ServiceOrder, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM service_orders
		WHERE ($1 = '' OR source_id = $1)
			AND ($2 = '' OR lower(btrim(status)) = lower(btrim($2)))
			AND ($3 = '' OR technical_department = $3)
	`, params.SourceID, params.Status, params.Department).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count service orders: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, source_id, order_number, service_type, technical_department, supplier, created_at,
			status, status_changed_at, neighborhood, district, batch_id
		FROM service_orders
		WHERE ($1 = '' OR source_id = $1)
			AND ($2 = '' OR lower(btrim(status)) = lower(btrim($2)))
			AND ($3 = '' OR technical_department = $3)
		ORDER BY created_at DESC, order_key ASC
		LIMIT $4 OFFSET $5
	`, params.SourceID, params.Status, params.Department, params.Limit, params.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list service orders: %w", err)
	}
	defer rows.Close()

	items, err := scanOrders(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func scanOrders(rows pgx.Rows) ([]domain.ServiceOrder, error) {
	items := make([]domain.ServiceOrder, 0)
	for rows.Next() {
		var (
			o    domain.ServiceOrder
			dept string
		)
		if err := rows.Scan(&o.ID, &o.SourceID, &o.OrderNumber, &o.ServiceType, &dept, &o.Supplier, &o.CreatedAt,
			&o.Status, &o.StatusChangedAt, &o.Neighborhood, &o.District, &o.BatchID); err != nil {
			return nil, err
		}
		o.TechnicalDepartment = domain.Department(dept)
		items = append(items, o)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

func (r *Repository) GetSource(ctx context.Context, id string) (domain.Source, error) {
	var s domain.Source
	err := r.pool.QueryRow(ctx, `
		SELECT s.id, s.name, s.created_at,
			(SELECT COUNT(*) FROM service_orders o WHERE o.source_id = s.id),
			(SELECT COUNT(*) FROM upload_batches b WHERE b.source_id = s.id),
			(SELECT MAX(b.uploaded_at) FROM upload_batches b WHERE b.source_id = s.id)
		FROM sources s
		WHERE s.id = $1
	`, id).Scan(&s.ID, &s.Name, &s.CreatedAt, &s.OrderCount, &s.BatchCount, &s.LastUpload)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Source{}, ErrNotFound
	}
	if err != nil {
		return domain.Source{}, fmt.Errorf("get source: %w", err)
	}
	return s, nil
}

func (r *Repository) ListSources(ctx context.Context) ([]domain.Source, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.name, s.created_at,
			(SELECT COUNT(*) FROM service_orders o WHERE o.source_id = s.id),
			(SELECT COUNT(*) FROM upload_batches b WHERE b.source_id = s.id),
			(SELECT MAX(b.uploaded_at) FROM upload_batches b WHERE b.source_id = s.id)
		FROM sources s
		ORDER BY s.id
	`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Source, 0)
	for rows.Next() {
		var (
			s          domain.Source
			lastUpload *time.Time
		)
		if err := rows.Scan(&s.ID, &s.Name, &s.CreatedAt, &s.OrderCount, &s.BatchCount, &lastUpload); err != nil {
			return nil, err
		}
		s.LastUpload = lastUpload
		items = append(items, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}
