package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ordersync_backend/internal/reconciliation/compare"
	"ordersync_backend/internal/serviceorders/domain"
)

var ErrNotFound = errors.New("not found")

var divergenceColumns = []string{
	"id", "comparison_run_id", "position", "order_number", "status_source_a", "status_source_b", "reason",
}

// Run is a persisted comparison between two sources.
type Run struct {
	ID              uuid.UUID
	SourceAID       string
	SourceBID       string
	TotalA          int
	TotalB          int
	DivergenceCount int
	MissingCount    int
	MismatchCount   int
	MissingInACount int
	Symmetric       bool
	CreatedBy       string
	CreatedAt       time.Time
}

type ListRunsParams struct {
	SourceID string
	Limit    int
	Offset   int
}

// Store is the storage contract of the reconciliation module.
type Store interface {
	SourceExists(ctx context.Context, id string) (bool, error)
	LoadOrders(ctx context.Context, sourceID string) ([]domain.ServiceOrder, error)
	CreateRun(ctx context.Context, run Run, divergences []compare.Divergence) (Run, error)
	GetRun(ctx context.Context, id uuid.UUID) (Run, error)
	ListDivergences(ctx context.Context, runID uuid.UUID) ([]compare.Divergence, error)
	ListRuns(ctx context.Context, params ListRunsParams) ([]Run, int, error)
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

func (r *Repository) SourceExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sources WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check source: %w", err)
	}
	return exists, nil
}

// LoadOrders returns the order number and status of every order held for a
// source, in a stable order so repeated comparisons report identically.
func (r *Repository) LoadOrders(ctx context.Context, sourceID string) ([]domain.ServiceOrder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, source_id, order_number, status
		FROM service_orders
		WHERE source_id = $1
		ORDER BY created_at ASC, order_key ASC
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("load source orders: %w", err)
	}
	defer rows.Close()

	items := make([]domain.ServiceOrder, 0)
	for rows.Next() {
		var o domain.ServiceOrder
		if err := rows.Scan(&o.ID, &o.SourceID, &o.OrderNumber, &o.Status); err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

// CreateRun stores the run and its divergences in one transaction. Divergences
// keep their report order through the position column.
func (r *Repository) CreateRun(ctx context.Context, run Run, divergences []compare.Divergence) (Run, error) {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Run{}, fmt.Errorf("begin comparison run: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO comparison_runs (
			id, source_a_id, source_b_id, total_a, total_b, divergence_count,
			missing_count, mismatch_count, missing_in_a_count, symmetric, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`, run.ID, run.SourceAID, run.SourceBID, run.TotalA, run.TotalB, run.DivergenceCount,
		run.MissingCount, run.MismatchCount, run.MissingInACount, run.Symmetric, run.CreatedBy,
	).Scan(&run.CreatedAt)
	if err != nil {
		return Run{}, fmt.Errorf("insert comparison run: %w", err)
	}

	if len(divergences) > 0 {
		_, err = tx.CopyFrom(ctx, pgx.Identifier{"divergences"}, divergenceColumns,
			pgx.CopyFromSlice(len(divergences), func(i int) ([]any, error) {
				d := divergences[i]
				return []any{uuid.New(), run.ID, i, d.OrderNumber, d.StatusSourceA, d.StatusSourceB, string(d.Reason)}, nil
			}))
		if err != nil {
			return Run{}, fmt.Errorf("copy divergences: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Run{}, fmt.Errorf("commit comparison run: %w", err)
	}
	return run, nil
}

const runColumns = `id, source_a_id, source_b_id, total_a, total_b, divergence_count,
	missing_count, mismatch_count, missing_in_a_count, symmetric, created_by, created_at`

func scanRun(row pgx.Row) (Run, error) {
	var run Run
	err := row.Scan(&run.ID, &run.SourceAID, &run.SourceBID, &run.TotalA, &run.TotalB, &run.DivergenceCount,
		&run.MissingCount, &run.MismatchCount, &run.MissingInACount, &run.Symmetric, &run.CreatedBy, &run.CreatedAt)
	return run, err
}

func (r *Repository) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	run, err := scanRun(r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM comparison_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("get comparison run: %w", err)
	}
	return run, nil
}

func (r *Repository) ListDivergences(ctx context.Context, runID uuid.UUID) ([]compare.Divergence, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT order_number, status_source_a, status_source_b, reason
		FROM divergences
		WHERE comparison_run_id = $1
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list divergences: %w", err)
	}
	defer rows.Close()

	items := make([]compare.Divergence, 0)
	for rows.Next() {
		var (
			d      compare.Divergence
			reason string
		)
		if err := rows.Scan(&d.OrderNumber, &d.StatusSourceA, &d.StatusSourceB, &reason); err != nil {
			return nil, err
		}
		d.Reason = compare.Reason(reason)
		items = append(items, d)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

func (r *Repository) ListRuns(ctx context.Context, params ListRunsParams) ([]Run, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM comparison_runs
		WHERE ($1 = '' OR source_a_id = $1 OR source_b_id = $1)
	`, params.SourceID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count comparison runs: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+runColumns+`
		FROM comparison_runs
		WHERE ($1 = '' OR source_a_id = $1 OR source_b_id = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, params.SourceID, params.Limit, params.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list comparison runs: %w", err)
	}
	defer rows.Close()

	items := make([]Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, run)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}
	return items, total, nil
}
