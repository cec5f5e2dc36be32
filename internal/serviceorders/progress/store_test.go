package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"ordersync_backend/internal/serviceorders/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, time.Hour, nil), mr
}

func TestStoreRecordsMilestonesInOrder(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Start(ctx, "job-1", "primary", "ordens.xlsx"); err != nil {
		t.Fatalf("start: %v", err)
	}
	reporter := store.Reporter("job-1")
	reporter.Report(ctx, service.Progress{Stage: service.StageValidating, Percent: 10, Label: "validated"})
	reporter.Report(ctx, service.Progress{Stage: service.StageParsing, Percent: 40, Label: "parsed"})

	snap, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if snap.FileName != "ordens.xlsx" || snap.SourceID != "primary" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if len(snap.Events) != 2 || snap.Events[0].Percent != 10 || snap.Current.Percent != 40 {
		t.Fatalf("unexpected events %+v", snap.Events)
	}
	if snap.Done() {
		t.Fatalf("job should not be done yet")
	}

	reporter.Report(ctx, service.Progress{
		Stage:   service.StageComplete,
		Percent: 100,
		Label:   "persisted",
		Result:  &service.IngestResult{Success: true, NewCount: 3},
	})
	snap, _ = store.Get(ctx, "job-1")
	if !snap.Done() || snap.Current.Result == nil || snap.Current.Result.NewCount != 3 {
		t.Fatalf("expected completed snapshot with result, got %+v", snap.Current)
	}
}

func TestStoreUnknownJob(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreEntriesExpire(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	if err := store.Start(ctx, "job-2", "panel", "painel.xlsx"); err != nil {
		t.Fatalf("start: %v", err)
	}
	mr.FastForward(2 * time.Hour)
	if _, err := store.Get(ctx, "job-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected entry to expire, got %v", err)
	}
}
