package scheduler

import (
	"context"
	"fmt"
	"io"

	"ordersync_backend/internal/serviceorders/service"
	"ordersync_backend/platform/config"
	"ordersync_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// IngestProcessor runs one ingestion.
type IngestProcessor interface {
	Ingest(ctx context.Context, req service.IngestRequest, reporter service.ProgressReporter) (service.IngestResult, error)
}

// ArchiveReader opens an archived upload.
type ArchiveReader interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// ProgressTracker hands out a reporter per job.
type ProgressTracker interface {
	Reporter(jobID string) service.ProgressReporter
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, ingest *IngestHandler, log *logger.Logger) (*Worker, error) {
	if log == nil {
		log = logger.Nop()
	}
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 2
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
		Logger: asynqLogger{log: log},
	})

	mux := asynq.NewServeMux()
	mux.Handle(TaskIngestServiceOrders, ingest)

	return &Worker{server: server, mux: mux, log: log}, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

// IngestHandler processes TaskIngestServiceOrders.
type IngestHandler struct {
	ingest   IngestProcessor
	archive  ArchiveReader
	progress ProgressTracker
	log      *logger.Logger
}

func NewIngestHandler(ingest IngestProcessor, archive ArchiveReader, progress ProgressTracker, log *logger.Logger) *IngestHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &IngestHandler{ingest: ingest, archive: archive, progress: progress, log: log}
}

// ProcessTask downloads the archived file and ingests it. Download failures are
// retried; an ingestion failure is final, since the run has already reported
// its outcome and may have written a batch.
func (h *IngestHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseIngestPayload(task)
	if err != nil {
		return fmt.Errorf("decode ingest payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" || payload.ArchiveKey == "" {
		return fmt.Errorf("ingest payload missing job id or archive key: %w", asynq.SkipRetry)
	}

	ctx = context.WithValue(ctx, logger.JobIDKey, payload.JobID)
	log := h.log.WithContext(ctx)

	file, err := h.archive.Open(ctx, payload.ArchiveKey)
	if err != nil {
		log.Warn("archived upload unavailable", "archive_key", payload.ArchiveKey, "error", err)
		return fmt.Errorf("open archived upload: %w", err)
	}
	defer func() { _ = file.Close() }()

	var reporter service.ProgressReporter
	if h.progress != nil {
		reporter = h.progress.Reporter(payload.JobID)
	}

	result, err := h.ingest.Ingest(ctx, service.IngestRequest{
		FileName:       payload.FileName,
		Content:        file,
		SourceID:       payload.SourceID,
		BatchLabel:     payload.Label,
		UploadedBy:     payload.UploadedBy,
		IdempotencyKey: payload.IdempotencyKey,
		ArchiveKey:     payload.ArchiveKey,
	}, reporter)
	if err != nil {
		return fmt.Errorf("ingest %s: %v: %w", payload.FileName, err, asynq.SkipRetry)
	}

	log.Info("ingest job finished", "batch_id", result.BatchID.String(), "records", result.RecordCount)
	return nil
}

// asynqLogger routes asynq's internal logs through the application logger.
type asynqLogger struct {
	log *logger.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Error(fmt.Sprint(args...)) }
