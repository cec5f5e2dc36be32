package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"ordersync_backend/internal/reconciliation/compare"
	"ordersync_backend/internal/reconciliation/repository"
	"ordersync_backend/internal/reconciliation/transport"
	"ordersync_backend/internal/serviceorders/domain"
	"ordersync_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

type fakeStore struct {
	sources     map[string][]domain.ServiceOrder
	runs        map[uuid.UUID]repository.Run
	divergences map[uuid.UUID][]compare.Divergence
	createErr   error
	loads       int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sources:     map[string][]domain.ServiceOrder{},
		runs:        map[uuid.UUID]repository.Run{},
		divergences: map[uuid.UUID][]compare.Divergence{},
	}
}

func (f *fakeStore) SourceExists(_ context.Context, id string) (bool, error) {
	_, ok := f.sources[id]
	return ok, nil
}

func (f *fakeStore) LoadOrders(_ context.Context, sourceID string) ([]domain.ServiceOrder, error) {
	f.loads++
	return f.sources[sourceID], nil
}

func (f *fakeStore) CreateRun(_ context.Context, run repository.Run, divergences []compare.Divergence) (repository.Run, error) {
	if f.createErr != nil {
		return repository.Run{}, f.createErr
	}
	run.ID = uuid.New()
	run.CreatedAt = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	f.runs[run.ID] = run
	f.divergences[run.ID] = append([]compare.Divergence(nil), divergences...)
	return run, nil
}

func (f *fakeStore) GetRun(_ context.Context, id uuid.UUID) (repository.Run, error) {
	run, ok := f.runs[id]
	if !ok {
		return repository.Run{}, repository.ErrNotFound
	}
	return run, nil
}

func (f *fakeStore) ListDivergences(_ context.Context, runID uuid.UUID) ([]compare.Divergence, error) {
	return f.divergences[runID], nil
}

func (f *fakeStore) ListRuns(_ context.Context, params repository.ListRunsParams) ([]repository.Run, int, error) {
	items := make([]repository.Run, 0, len(f.runs))
	for _, run := range f.runs {
		items = append(items, run)
	}
	return items, len(items), nil
}

func order(number, status string) domain.ServiceOrder {
	return domain.ServiceOrder{OrderNumber: number, Status: status}
}

func seeded() *fakeStore {
	store := newFakeStore()
	store.sources[domain.SourcePrimary] = []domain.ServiceOrder{
		order("001", "Aberta"),
		order("2", "Em execução"),
		order("3", "Fechada"),
	}
	store.sources[domain.SourcePanel] = []domain.ServiceOrder{
		order("1", "aberta "),
		order("2", "Concluída"),
		order("4", "Aberta"),
	}
	return store
}

func TestComparePersistsRun(t *testing.T) {
	store := seeded()
	svc := New(store, nil, nil, WithShards(2))

	resp, err := svc.Compare(context.Background(), domain.SourcePrimary, domain.SourcePanel, CompareOptions{}, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.TotalA != 3 || resp.TotalB != 3 || resp.DivergenceCount != 2 {
		t.Fatalf("unexpected summary %+v", resp.RunSummary)
	}
	if len(resp.Missing) != 1 || resp.Missing[0].OrderNumber != "3" {
		t.Fatalf("unexpected missing %+v", resp.Missing)
	}
	if len(resp.StatusMismatches) != 1 || *resp.StatusMismatches[0].StatusSourceB != "Concluída" {
		t.Fatalf("unexpected mismatches %+v", resp.StatusMismatches)
	}
	if len(resp.MissingInA) != 0 {
		t.Fatalf("expected no MissingInA without symmetric option")
	}

	stored, ok := store.runs[resp.ID]
	if !ok || stored.CreatedBy != "user-1" || stored.MissingCount != 1 || stored.MismatchCount != 1 {
		t.Fatalf("unexpected stored run %+v", stored)
	}
	if len(store.divergences[resp.ID]) != 2 {
		t.Fatalf("expected divergences persisted with the run")
	}
}

func TestCompareSymmetric(t *testing.T) {
	store := seeded()
	svc := New(store, nil, nil)

	resp, err := svc.Compare(context.Background(), domain.SourcePrimary, domain.SourcePanel, CompareOptions{Symmetric: true}, "u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.MissingInA) != 1 || resp.MissingInA[0].OrderNumber != "4" || resp.MissingInA[0].StatusSourceA != nil {
		t.Fatalf("unexpected MissingInA %+v", resp.MissingInA)
	}
	if !store.runs[resp.ID].Symmetric || store.runs[resp.ID].MissingInACount != 1 {
		t.Fatalf("expected symmetric run stored, got %+v", store.runs[resp.ID])
	}
}

func TestCompareRejectsMalformedSource(t *testing.T) {
	store := seeded()
	svc := New(store, nil, nil)

	for _, pair := range [][2]string{{"", "panel"}, {"primary", "Not A Slug"}, {"panel", " panel "}} {
		_, err := svc.Compare(context.Background(), pair[0], pair[1], CompareOptions{}, "u")
		if !apperr.Is(err, apperr.KindReconciliation) {
			t.Fatalf("expected reconciliation error for %q/%q, got %v", pair[0], pair[1], err)
		}
	}
	if store.loads != 0 {
		t.Fatalf("expected nothing loaded for malformed input")
	}
}

func TestCompareUnknownSource(t *testing.T) {
	svc := New(seeded(), nil, nil)
	_, err := svc.Compare(context.Background(), domain.SourcePrimary, "legacy", CompareOptions{}, "u")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCompareWrapsPersistenceFailure(t *testing.T) {
	store := seeded()
	store.createErr = errors.New("connection reset")
	svc := New(store, nil, nil)

	_, err := svc.Compare(context.Background(), domain.SourcePrimary, domain.SourcePanel, CompareOptions{}, "u")
	if !apperr.Is(err, apperr.KindPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
}

func TestGetRunNotFound(t *testing.T) {
	svc := New(newFakeStore(), nil, nil)
	if _, err := svc.GetRun(context.Background(), uuid.New()); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetRunReturnsStoredDivergences(t *testing.T) {
	store := seeded()
	svc := New(store, nil, nil)
	created, err := svc.Compare(context.Background(), domain.SourcePrimary, domain.SourcePanel, CompareOptions{}, "u")
	if err != nil {
		t.Fatalf("compare: %v", err)
	}

	got, err := svc.GetRun(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if len(got.Divergences) != len(created.Divergences) || got.Divergences[0].OrderNumber != created.Divergences[0].OrderNumber {
		t.Fatalf("stored divergences differ from reported ones")
	}
}

func TestListRunsPaging(t *testing.T) {
	store := seeded()
	svc := New(store, nil, nil)
	for i := 0; i < 3; i++ {
		if _, err := svc.Compare(context.Background(), domain.SourcePrimary, domain.SourcePanel, CompareOptions{}, "u"); err != nil {
			t.Fatalf("compare: %v", err)
		}
	}

	resp, err := svc.ListRuns(context.Background(), transport.ListRunsRequest{PageSize: 500})
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if resp.Total != 3 || resp.Page != 1 || resp.PageSize != maxPageSize || resp.TotalPages != 1 {
		t.Fatalf("unexpected page %+v", resp)
	}
}

func TestExportRunWritesWorkbook(t *testing.T) {
	store := seeded()
	svc := New(store, nil, nil)
	created, err := svc.Compare(context.Background(), domain.SourcePrimary, domain.SourcePanel, CompareOptions{}, "u")
	if err != nil {
		t.Fatalf("compare: %v", err)
	}

	var buf bytes.Buffer
	name, err := svc.ExportRun(context.Background(), created.ID, &buf)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if name != "divergencias_primary_panel_20240510.xlsx" {
		t.Fatalf("unexpected file name %q", name)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(exportSheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 3 || rows[0][0] != exportHeader[0] {
		t.Fatalf("unexpected rows %v", rows)
	}
	if rows[1][0] != "2" || rows[1][3] != string(compare.ReasonStatusMismatch) {
		t.Fatalf("unexpected first divergence row %v", rows[1])
	}
}
