package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"ordersync_backend/internal/serviceorders/domain"
	"ordersync_backend/internal/serviceorders/repository"

	"github.com/google/uuid"
)

// memoryStore is an in-memory repository.Store with the same uniqueness rules
// as the schema.
type memoryStore struct {
	mu      sync.Mutex
	sources map[string]domain.Source
	batches map[uuid.UUID]domain.UploadBatch
	orders  map[string]domain.ServiceOrder // source|key

	createBatchCalls int
	lookupCalls      int
	insertCalls      int
	updateCalls      int

	alwaysFileNameTaken bool
	failInsert          error
	failUpdate          error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		sources: map[string]domain.Source{
			domain.SourcePrimary: {ID: domain.SourcePrimary, Name: "Primary tracking system"},
			domain.SourcePanel:   {ID: domain.SourcePanel, Name: "Monitoring panel"},
		},
		batches: make(map[uuid.UUID]domain.UploadBatch),
		orders:  make(map[string]domain.ServiceOrder),
	}
}

func orderSlot(sourceID, key string) string { return sourceID + "|" + key }

func (m *memoryStore) CreateBatch(_ context.Context, p repository.CreateBatchParams) (domain.UploadBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createBatchCalls++

	for _, b := range m.batches {
		if p.IdempotencyKey != nil && b.IdempotencyKey != nil && *b.IdempotencyKey == *p.IdempotencyKey {
			return domain.UploadBatch{}, repository.ErrIdempotencyKeyTaken
		}
	}
	if m.alwaysFileNameTaken {
		return domain.UploadBatch{}, repository.ErrFileNameTaken
	}
	for _, b := range m.batches {
		if b.SourceID == p.SourceID && b.FileName == p.FileName {
			return domain.UploadBatch{}, repository.ErrFileNameTaken
		}
	}

	b := domain.UploadBatch{
		ID:             p.ID,
		SourceID:       p.SourceID,
		FileName:       p.FileName,
		Label:          p.Label,
		UploadedBy:     p.UploadedBy,
		UploadedAt:     time.Now(),
		IdempotencyKey: p.IdempotencyKey,
		ArchiveKey:     p.ArchiveKey,
	}
	m.batches[b.ID] = b
	return b, nil
}

func (m *memoryStore) MarkBatchProcessed(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return repository.ErrNotFound
	}
	b.Processed = true
	m.batches[id] = b
	return nil
}

func (m *memoryStore) DeleteBatch(_ context.Context, id uuid.UUID) (repository.DeletedBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return repository.DeletedBatch{}, repository.ErrNotFound
	}
	return m.dropBatch(b), nil
}

func (m *memoryStore) DeleteUnprocessedBatchesBefore(_ context.Context, before time.Time) ([]repository.DeletedBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted []repository.DeletedBatch
	for _, b := range m.batches {
		if !b.Processed && b.UploadedAt.Before(before) {
			deleted = append(deleted, m.dropBatch(b))
		}
	}
	return deleted, nil
}

// dropBatch removes b and the orders it last wrote. Callers hold mu.
func (m *memoryStore) dropBatch(b domain.UploadBatch) repository.DeletedBatch {
	delete(m.batches, b.ID)
	deleted := repository.DeletedBatch{ID: b.ID, ArchiveKey: b.ArchiveKey}
	for slot, o := range m.orders {
		if o.BatchID == b.ID {
			delete(m.orders, slot)
			deleted.OrdersRemoved++
		}
	}
	return deleted
}

func (m *memoryStore) GetBatch(_ context.Context, id uuid.UUID) (domain.UploadBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return domain.UploadBatch{}, repository.ErrNotFound
	}
	return b, nil
}

func (m *memoryStore) ListBatches(_ context.Context, p repository.ListBatchesParams) ([]domain.UploadBatch, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.UploadBatch
	for _, b := range m.batches {
		if p.SourceID == "" || b.SourceID == p.SourceID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })
	return out, len(out), nil
}

func (m *memoryStore) FindByOrderKeys(_ context.Context, sourceID string, keys []string) (map[string]repository.ExistingOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookupCalls++
	found := make(map[string]repository.ExistingOrder)
	for _, k := range keys {
		if o, ok := m.orders[orderSlot(sourceID, k)]; ok {
			found[k] = repository.ExistingOrder{ID: o.ID, Key: k, Status: o.Status}
		}
	}
	return found, nil
}

func (m *memoryStore) InsertOrders(_ context.Context, orders []domain.ServiceOrder) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertCalls++
	if m.failInsert != nil {
		return 0, m.failInsert
	}
	for _, o := range orders {
		slot := orderSlot(o.SourceID, o.Key())
		if _, exists := m.orders[slot]; exists {
			return 0, errors.New("duplicate key value violates unique constraint")
		}
	}
	for _, o := range orders {
		m.orders[orderSlot(o.SourceID, o.Key())] = o
	}
	return int64(len(orders)), nil
}

func (m *memoryStore) UpdateOrderStatuses(_ context.Context, updates []repository.StatusUpdate) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.failUpdate != nil {
		return 0, m.failUpdate
	}
	var affected int64
	for _, u := range updates {
		for slot, o := range m.orders {
			if o.ID != u.ID || domain.SameStatus(o.Status, u.Status) {
				continue
			}
			o.Status = u.Status
			o.StatusChangedAt = u.StatusChangedAt
			o.BatchID = u.BatchID
			m.orders[slot] = o
			affected++
		}
	}
	return affected, nil
}

func (m *memoryStore) ListOrders(_ context.Context, p repository.ListOrdersParams) ([]domain.ServiceOrder, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ServiceOrder
	for _, o := range m.orders {
		if p.SourceID != "" && o.SourceID != p.SourceID {
			continue
		}
		if p.Department != "" && string(o.TechnicalDepartment) != p.Department {
			continue
		}
		if p.Status != "" && !domain.SameStatus(o.Status, p.Status) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, len(out), nil
}

func (m *memoryStore) GetSource(_ context.Context, id string) (domain.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[id]
	if !ok {
		return domain.Source{}, repository.ErrNotFound
	}
	return s, nil
}

func (m *memoryStore) ListSources(_ context.Context) ([]domain.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Source, 0, len(m.sources))
	for _, s := range m.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *memoryStore) order(sourceID, key string) (domain.ServiceOrder, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderSlot(sourceID, key)]
	return o, ok
}

func (m *memoryStore) batchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}
