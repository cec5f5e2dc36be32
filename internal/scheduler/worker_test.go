package scheduler

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"ordersync_backend/internal/serviceorders/service"
	"ordersync_backend/platform/apperr"

	"github.com/hibiken/asynq"
)

type fakeIngest struct {
	req      service.IngestRequest
	content  string
	reporter service.ProgressReporter
	err      error
}

func (f *fakeIngest) Ingest(_ context.Context, req service.IngestRequest, reporter service.ProgressReporter) (service.IngestResult, error) {
	f.req = req
	f.reporter = reporter
	data, _ := io.ReadAll(req.Content)
	f.content = string(data)
	return service.IngestResult{Success: f.err == nil, RecordCount: 2}, f.err
}

type fakeArchive struct {
	files map[string]string
	err   error
}

func (f fakeArchive) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	content, ok := f.files[key]
	if !ok {
		return nil, errors.New("missing object")
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

type fakeTracker struct {
	jobs []string
}

func (f *fakeTracker) Reporter(jobID string) service.ProgressReporter {
	f.jobs = append(f.jobs, jobID)
	return service.ProgressFunc(func(context.Context, service.Progress) {})
}

func ingestTask(t *testing.T, payload IngestPayload) *asynq.Task {
	t.Helper()
	task, err := NewIngestTask(payload)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	return task
}

func TestIngestHandlerRunsArchivedUpload(t *testing.T) {
	ingest := &fakeIngest{}
	tracker := &fakeTracker{}
	h := NewIngestHandler(ingest, fakeArchive{files: map[string]string{"primary/2024/05/a_1.xlsx": "bytes"}}, tracker, nil)

	err := h.ProcessTask(context.Background(), ingestTask(t, IngestPayload{
		JobID:          "job-1",
		SourceID:       "primary",
		FileName:       "a.xlsx",
		ArchiveKey:     "primary/2024/05/a_1.xlsx",
		UploadedBy:     "user-9",
		IdempotencyKey: "k-1",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ingest.content != "bytes" || ingest.req.ArchiveKey != "primary/2024/05/a_1.xlsx" {
		t.Fatalf("unexpected request %+v", ingest.req)
	}
	if ingest.req.UploadedBy != "user-9" || ingest.req.IdempotencyKey != "k-1" {
		t.Fatalf("expected identity fields carried, got %+v", ingest.req)
	}
	if len(tracker.jobs) != 1 || tracker.jobs[0] != "job-1" || ingest.reporter == nil {
		t.Fatalf("expected reporter for job-1, got %v", tracker.jobs)
	}
}

func TestIngestHandlerRetriesDownloadFailure(t *testing.T) {
	h := NewIngestHandler(&fakeIngest{}, fakeArchive{err: errors.New("timeout")}, nil, nil)

	err := h.ProcessTask(context.Background(), ingestTask(t, IngestPayload{JobID: "j", ArchiveKey: "k", FileName: "a.xlsx"}))
	if err == nil {
		t.Fatalf("expected error")
	}
	if errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("download failures should be retried")
	}
}

func TestIngestHandlerDoesNotRetryIngestFailure(t *testing.T) {
	ingest := &fakeIngest{err: apperr.Collision("taken")}
	h := NewIngestHandler(ingest, fakeArchive{files: map[string]string{"k": "x"}}, nil, nil)

	err := h.ProcessTask(context.Background(), ingestTask(t, IngestPayload{JobID: "j", ArchiveKey: "k", FileName: "a.xlsx"}))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestIngestHandlerRejectsIncompletePayload(t *testing.T) {
	h := NewIngestHandler(&fakeIngest{}, fakeArchive{}, nil, nil)
	err := h.ProcessTask(context.Background(), ingestTask(t, IngestPayload{FileName: "a.xlsx"}))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestIngestPayloadRoundTrip(t *testing.T) {
	task := ingestTask(t, IngestPayload{JobID: "j", SourceID: "panel", FileName: "p.xls", ArchiveKey: "k", Label: "maio"})
	if task.Type() != TaskIngestServiceOrders {
		t.Fatalf("unexpected task type %q", task.Type())
	}
	payload, err := ParseIngestPayload(task)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if payload.SourceID != "panel" || payload.Label != "maio" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

type fakeDeleter struct {
	cutoffs []time.Time
}

func (f *fakeDeleter) DeleteStaleBatches(_ context.Context, before time.Time) (int, error) {
	f.cutoffs = append(f.cutoffs, before)
	return 1, nil
}

func TestStaleBatchCleanupUsesRetention(t *testing.T) {
	repo := &fakeDeleter{}
	c := NewStaleBatchCleanup(repo, nil, time.Minute, 6*time.Hour)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.cleanup(context.Background())
	if len(repo.cutoffs) != 1 || !repo.cutoffs[0].Equal(now.Add(-6*time.Hour)) {
		t.Fatalf("unexpected cutoffs %v", repo.cutoffs)
	}
}

func TestStaleBatchCleanupDisabledWithoutRetention(t *testing.T) {
	repo := &fakeDeleter{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	NewStaleBatchCleanup(repo, nil, time.Minute, 0).Run(ctx)
	if len(repo.cutoffs) != 0 {
		t.Fatalf("expected no cleanup when retention is zero")
	}
}
