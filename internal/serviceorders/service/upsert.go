package service

import (
	"context"

	"ordersync_backend/internal/serviceorders/domain"
	"ordersync_backend/internal/serviceorders/repository"
	"ordersync_backend/platform/apperr"

	"github.com/google/uuid"
)

// UpsertResult counts how a batch of records landed in the store.
type UpsertResult struct {
	Inserted       []domain.ServiceOrder
	UpdatedCount   int
	UnchangedCount int
	SkippedCount   int
}

// InsertedCount is len(Inserted).
func (r UpsertResult) InsertedCount() int { return len(r.Inserted) }

// UpsertPlan is the classified form of an incoming batch, computed before any write.
type UpsertPlan struct {
	inserts   []domain.ServiceOrder
	updates   []repository.StatusUpdate
	unchanged int
	skipped   int
}

func (p UpsertPlan) InsertCount() int { return len(p.inserts) }
func (p UpsertPlan) UpdateCount() int { return len(p.updates) }

// Upserter merges normalized records into the store with a fixed number of
// round trips: one existence lookup, one bulk insert and one bulk update.
type Upserter struct {
	store repository.OrderStore
	newID func() uuid.UUID
}

func NewUpserter(store repository.OrderStore) *Upserter {
	return &Upserter{store: store, newID: uuid.New}
}

// Reconcile plans and applies in one call.
func (u *Upserter) Reconcile(ctx context.Context, sourceID string, records []domain.ServiceOrder) (UpsertResult, error) {
	plan, err := u.Plan(ctx, sourceID, records)
	if err != nil {
		return UpsertResult{SkippedCount: plan.skipped}, err
	}
	return u.Apply(ctx, plan)
}

// Plan dedupes records by order key and classifies each one against the store.
// Within a file the last occurrence of a key wins and takes the position of the
// first. Records without a key and superseded duplicates are counted as skipped.
func (u *Upserter) Plan(ctx context.Context, sourceID string, records []domain.ServiceOrder) (UpsertPlan, error) {
	var plan UpsertPlan

	unique := make([]domain.ServiceOrder, 0, len(records))
	position := make(map[string]int, len(records))
	for _, rec := range records {
		key := rec.Key()
		if key == "" {
			plan.skipped++
			continue
		}
		if idx, seen := position[key]; seen {
			unique[idx] = rec
			plan.skipped++
			continue
		}
		position[key] = len(unique)
		unique = append(unique, rec)
	}
	if len(unique) == 0 {
		return plan, nil
	}

	keys := make([]string, len(unique))
	for i, rec := range unique {
		keys[i] = rec.Key()
	}
	existing, err := u.store.FindByOrderKeys(ctx, sourceID, keys)
	if err != nil {
		return plan, apperr.Persistence("look up existing orders", err).WithOp("serviceorders.upsert.plan")
	}

	for _, rec := range unique {
		rec.SourceID = sourceID
		found, ok := existing[rec.Key()]
		switch {
		case !ok:
			rec.ID = u.newID()
			plan.inserts = append(plan.inserts, rec)
		case domain.SameStatus(found.Status, rec.Status):
			plan.unchanged++
		default:
			plan.updates = append(plan.updates, repository.StatusUpdate{
				ID:              found.ID,
				Status:          rec.Status,
				StatusChangedAt: rec.StatusChangedAt,
				BatchID:         rec.BatchID,
			})
		}
	}
	return plan, nil
}

// Apply writes a plan. Inserts and updates are separate statements; if the
// update fails the inserts stay and the returned result reports them.
func (u *Upserter) Apply(ctx context.Context, plan UpsertPlan) (UpsertResult, error) {
	result := UpsertResult{
		UnchangedCount: plan.unchanged,
		SkippedCount:   plan.skipped,
	}

	if len(plan.inserts) > 0 {
		if _, err := u.store.InsertOrders(ctx, plan.inserts); err != nil {
			return result, apperr.Persistence("insert service orders", err).
				WithOp("serviceorders.upsert.insert").
				WithDetails(partialCounts(result))
		}
		result.Inserted = plan.inserts
	}

	if len(plan.updates) > 0 {
		affected, err := u.store.UpdateOrderStatuses(ctx, plan.updates)
		if err != nil {
			return result, apperr.Persistence("update service order statuses", err).
				WithOp("serviceorders.upsert.update").
				WithDetails(partialCounts(result))
		}
		// A row changed concurrently to the incoming status is no longer an update.
		result.UpdatedCount = int(affected)
		result.UnchangedCount += len(plan.updates) - int(affected)
	}
	return result, nil
}

func partialCounts(r UpsertResult) map[string]int {
	return map[string]int{
		"newCount":       len(r.Inserted),
		"updatedCount":   r.UpdatedCount,
		"unchangedCount": r.UnchangedCount,
		"skippedCount":   r.SkippedCount,
	}
}
