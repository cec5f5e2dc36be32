package service

import (
	"context"
	"testing"

	"ordersync_backend/internal/serviceorders/domain"

	"github.com/google/uuid"
)

func order(number, status string) domain.ServiceOrder {
	return domain.ServiceOrder{OrderNumber: number, Status: status, TechnicalDepartment: domain.DepartmentA, BatchID: uuid.New()}
}

func TestUpsertDedupesWithLastOccurrenceWinning(t *testing.T) {
	store := newMemoryStore()
	u := NewUpserter(store)

	records := []domain.ServiceOrder{
		order("007", "Aberta"),
		order("", "Aberta"),
		order("8", "Aberta"),
		order("7", "Fechada"),
	}
	result, err := u.Reconcile(context.Background(), domain.SourcePrimary, records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.InsertedCount() != 2 || result.SkippedCount != 2 {
		t.Fatalf("unexpected counts %+v", result)
	}
	if result.Inserted[0].Key() != "7" || result.Inserted[0].Status != "Fechada" {
		t.Fatalf("expected key 7 first with last status, got %+v", result.Inserted[0])
	}
	if result.Inserted[0].SourceID != domain.SourcePrimary || result.Inserted[0].ID == uuid.Nil {
		t.Fatalf("expected source and id assigned, got %+v", result.Inserted[0])
	}
}

func TestUpsertUsesOneRoundTripPerPhase(t *testing.T) {
	store := newMemoryStore()
	u := NewUpserter(store)
	ctx := context.Background()

	seed := []domain.ServiceOrder{order("1", "Aberta"), order("2", "Aberta")}
	if _, err := u.Reconcile(ctx, domain.SourcePrimary, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	store.lookupCalls, store.insertCalls, store.updateCalls = 0, 0, 0
	next := []domain.ServiceOrder{order("1", "Fechada"), order("2", "ABERTA"), order("3", "Aberta"), order("4", "Aberta")}
	result, err := u.Reconcile(ctx, domain.SourcePrimary, next)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.InsertedCount() != 2 || result.UpdatedCount != 1 || result.UnchangedCount != 1 {
		t.Fatalf("unexpected counts %+v", result)
	}
	if store.lookupCalls != 1 || store.insertCalls != 1 || store.updateCalls != 1 {
		t.Fatalf("expected 1 lookup, 1 insert, 1 update; got %d, %d, %d", store.lookupCalls, store.insertCalls, store.updateCalls)
	}
}

func TestUpsertKeepsSourcesApart(t *testing.T) {
	store := newMemoryStore()
	u := NewUpserter(store)
	ctx := context.Background()

	if _, err := u.Reconcile(ctx, domain.SourcePrimary, []domain.ServiceOrder{order("1", "Aberta")}); err != nil {
		t.Fatalf("primary: %v", err)
	}
	result, err := u.Reconcile(ctx, domain.SourcePanel, []domain.ServiceOrder{order("1", "Aberta")})
	if err != nil {
		t.Fatalf("panel: %v", err)
	}
	if result.InsertedCount() != 1 {
		t.Fatalf("expected the panel copy inserted, got %+v", result)
	}
}

func TestUpsertEmptyInputSkipsStore(t *testing.T) {
	store := newMemoryStore()
	result, err := NewUpserter(store).Reconcile(context.Background(), domain.SourcePrimary, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.InsertedCount() != 0 || store.lookupCalls != 0 {
		t.Fatalf("expected no store calls, got %+v (%d lookups)", result, store.lookupCalls)
	}
}
