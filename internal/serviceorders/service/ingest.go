package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"ordersync_backend/internal/adapters/storage"
	"ordersync_backend/internal/serviceorders/domain"
	"ordersync_backend/internal/serviceorders/normalize"
	"ordersync_backend/internal/serviceorders/repository"
	"ordersync_backend/internal/serviceorders/spreadsheet"
	"ordersync_backend/platform/apperr"
	"ordersync_backend/platform/logger"
	"ordersync_backend/platform/metrics"
	"ordersync_backend/platform/validator"

	"github.com/google/uuid"
)

const (
	opIngest = "serviceorders.ingest"

	collisionSuffixLayout = "20060102150405"
)

// Archiver stores the uploaded file and returns its object key.
type Archiver interface {
	Archive(ctx context.Context, sourceID, fileName string, content []byte) (string, error)
}

// ArchiveFiles manages files already in the upload archive.
type ArchiveFiles interface {
	DownloadURL(ctx context.Context, key string) (*storage.PresignedURL, error)
	Remove(ctx context.Context, key string) error
}

// IngestRequest describes one uploaded spreadsheet. ArchiveKey is set when
// the file was archived before ingestion (the async path).
type IngestRequest struct {
	FileName       string
	Content        io.Reader
	SourceID       string
	BatchLabel     string
	UploadedBy     string
	IdempotencyKey string
	ArchiveKey     string
}

// IngestResult is the outcome of one run. Counts are partial when Success is false
// and the batch was already created.
type IngestResult struct {
	Success        bool      `json:"success"`
	RecordCount    int       `json:"recordCount"`
	NewCount       int       `json:"newCount"`
	UpdatedCount   int       `json:"updatedCount"`
	UnchangedCount int       `json:"unchangedCount"`
	SkippedCount   int       `json:"skippedCount"`
	BatchID        uuid.UUID `json:"batchId"`
	FileName       string    `json:"fileName,omitempty"`
	Message        string    `json:"message"`
}

// Service runs spreadsheet ingestion and serves the batch, source and order listings.
type Service struct {
	repo        repository.Store
	upserter    *Upserter
	normalizer  *normalize.Normalizer
	archiver    Archiver
	files       ArchiveFiles
	metrics     *metrics.Registry
	log         *logger.Logger
	now         func() time.Time
	maxFileSize int64
}

// Option customizes a Service.
type Option func(*Service)

// WithArchiver archives uploads that arrive without an archive key.
func WithArchiver(a Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

// WithArchiveFiles presigns downloads of archived uploads and removes them
// together with their batch.
func WithArchiveFiles(f ArchiveFiles) Option {
	return func(s *Service) { s.files = f }
}

func WithMetrics(m *metrics.Registry) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMaxFileSize rejects uploads larger than n bytes. Zero disables the check.
func WithMaxFileSize(n int64) Option {
	return func(s *Service) { s.maxFileSize = n }
}

// New creates the ingestion service.
func New(repo repository.Store, normalizer *normalize.Normalizer, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{
		repo:       repo,
		upserter:   NewUpserter(repo),
		normalizer: normalizer,
		log:        log,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// run tracks the stage and last reported percentage of one ingestion.
type run struct {
	reporter ProgressReporter
	log      *logger.Logger
	fileName string
	now      func() time.Time
	stage    Stage
	percent  int
}

func (r *run) enter(stage Stage) { r.stage = stage }

func (r *run) milestone(ctx context.Context, stage Stage, percent int, label string, result *IngestResult) {
	r.stage = stage
	r.percent = percent
	r.log.IngestStage(r.fileName, string(stage), percent)
	r.reporter.Report(ctx, Progress{Stage: stage, Percent: percent, Label: label, Result: result, UpdatedAt: r.now()})
}

// Ingest validates, parses, normalizes and upserts one spreadsheet.
//
// Nothing is written until the file has parsed with every required column.
// Once the batch row exists the run is no longer cancellable and a failure
// leaves what was written in place; DeleteBatch is the recovery path.
func (s *Service) Ingest(ctx context.Context, req IngestRequest, reporter ProgressReporter) (IngestResult, error) {
	if reporter == nil {
		reporter = nopReporter{}
	}
	log := s.log.WithContext(ctx)
	started := s.now()
	r := &run{reporter: reporter, log: log, fileName: req.FileName, now: s.now, stage: StageIdle}

	result, err := s.ingest(ctx, req, r)
	elapsed := s.now().Sub(started)

	if err != nil {
		result.Success = false
		result.Message = err.Error()
		log.IngestFailed(req.FileName, string(r.stage), err)
		s.metrics.ObserveIngest("failed", result.NewCount, result.UpdatedCount, result.UnchangedCount, result.SkippedCount, elapsed)

		failure := Progress{Stage: StageError, Percent: r.percent, Label: "failed", Error: err.Error(), UpdatedAt: s.now()}
		if result.BatchID != uuid.Nil {
			partial := result
			failure.Result = &partial
		}
		reporter.Report(ctx, failure)
		return result, err
	}

	log.IngestCompleted(result.BatchID.String(), result.FileName, result.RecordCount, result.NewCount, result.UpdatedCount, result.UnchangedCount)
	s.metrics.ObserveIngest("success", result.NewCount, result.UpdatedCount, result.UnchangedCount, result.SkippedCount, elapsed)
	final := result
	r.milestone(ctx, StageComplete, PercentPersisted, "persisted", &final)
	return result, nil
}

func (s *Service) ingest(ctx context.Context, req IngestRequest, r *run) (IngestResult, error) {
	var result IngestResult

	r.enter(StageValidating)
	if !validator.IsSpreadsheetName(req.FileName) {
		return result, apperr.Validation("only .xlsx and .xls spreadsheets are accepted").
			WithOp(opIngest).
			WithDetails(map[string]string{"fileName": req.FileName})
	}
	if err := s.CheckSource(ctx, req.SourceID); err != nil {
		return result, err
	}
	r.milestone(ctx, StageValidating, PercentValidated, "validated", nil)

	r.enter(StageParsing)
	content, err := readContent(req.Content, s.maxFileSize)
	if err != nil {
		return result, err
	}
	rows, cols, err := spreadsheet.ParseFile(req.FileName, bytes.NewReader(content))
	if err != nil {
		return result, parseFailure(err)
	}
	result.RecordCount = len(rows)
	r.milestone(ctx, StageParsing, PercentParsed, "parsed", nil)

	if err := ctx.Err(); err != nil {
		return result, apperr.Wrap(apperr.KindInternal, "ingestion cancelled before write", err).WithOp(opIngest)
	}
	writeCtx := context.WithoutCancel(ctx)

	archiveKey := req.ArchiveKey
	if archiveKey == "" && s.archiver != nil {
		key, err := s.archiver.Archive(writeCtx, req.SourceID, req.FileName, content)
		if err != nil {
			r.log.Warn("upload archive failed", "file_name", req.FileName, "error", err)
		} else {
			archiveKey = key
		}
	}

	batch, err := s.createBatch(writeCtx, repository.CreateBatchParams{
		ID:             uuid.New(),
		SourceID:       req.SourceID,
		FileName:       req.FileName,
		Label:          optional(req.BatchLabel),
		UploadedBy:     req.UploadedBy,
		IdempotencyKey: optional(req.IdempotencyKey),
		ArchiveKey:     optional(archiveKey),
	})
	if err != nil {
		return result, err
	}
	result.BatchID = batch.ID
	result.FileName = batch.FileName

	r.enter(StageNormalizing)
	records := s.normalizer.NormalizeAll(rows, cols, batch.ID)

	r.enter(StageReconciling)
	plan, err := s.upserter.Plan(writeCtx, req.SourceID, records)
	if err != nil {
		return result, err
	}
	r.milestone(ctx, StageReconciling, PercentPreWrite, "pre-write", nil)

	r.enter(StagePersisting)
	upserted, err := s.upserter.Apply(writeCtx, plan)
	result.NewCount = upserted.InsertedCount()
	result.UpdatedCount = upserted.UpdatedCount
	result.UnchangedCount = upserted.UnchangedCount
	result.SkippedCount = upserted.SkippedCount
	if err != nil {
		return result, err
	}

	if err := s.repo.MarkBatchProcessed(writeCtx, batch.ID); err != nil {
		return result, apperr.Persistence("mark batch processed", err).WithOp(opIngest)
	}

	result.Success = true
	result.Message = fmt.Sprintf("%d records processed: %d new, %d updated, %d unchanged",
		result.RecordCount, result.NewCount, result.UpdatedCount, result.UnchangedCount)
	return result, nil
}

// createBatch inserts the batch row. A taken file name is retried exactly once
// under a timestamp-suffixed name; a taken idempotency key is not retried.
func (s *Service) createBatch(ctx context.Context, params repository.CreateBatchParams) (domain.UploadBatch, error) {
	original := params.FileName

	batch, err := s.repo.CreateBatch(ctx, params)
	if errors.Is(err, repository.ErrFileNameTaken) {
		s.metrics.ObserveCollision()
		params.FileName = timestampedName(original, s.now())
		s.log.WithContext(ctx).Info("batch file name taken, retrying",
			"file_name", original, "retry_name", params.FileName)

		batch, err = s.repo.CreateBatch(ctx, params)
		if errors.Is(err, repository.ErrFileNameTaken) {
			s.metrics.ObserveCollision()
			return domain.UploadBatch{}, apperr.Collision(fmt.Sprintf("file %q was already ingested for source %q", original, params.SourceID)).
				WithOp(opIngest).
				WithDetails(map[string]string{"fileName": original, "retryName": params.FileName})
		}
	}
	if errors.Is(err, repository.ErrIdempotencyKeyTaken) {
		s.metrics.ObserveCollision()
		return domain.UploadBatch{}, apperr.Collision("idempotency key was already used by another upload").
			WithOp(opIngest).
			WithDetails(map[string]string{"idempotencyKey": deref(params.IdempotencyKey)})
	}
	if err != nil {
		return domain.UploadBatch{}, apperr.Persistence("create upload batch", err).WithOp(opIngest)
	}
	return batch, nil
}

// timestampedName inserts _yyyyMMddHHmmss before the extension.
func timestampedName(name string, at time.Time) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "_" + at.Format(collisionSuffixLayout) + ext
}

func readContent(r io.Reader, limit int64) ([]byte, error) {
	if r == nil {
		return nil, apperr.Validation("file is required").WithOp(opIngest)
	}
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "file could not be read", err).WithOp(opIngest)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, apperr.Validation(fmt.Sprintf("file exceeds the %d byte limit", limit)).WithOp(opIngest)
	}
	return data, nil
}

func parseFailure(err error) error {
	var perr *spreadsheet.ParseError
	if !errors.As(err, &perr) {
		return apperr.Wrap(apperr.KindValidation, "spreadsheet could not be read", err).WithOp(opIngest)
	}
	details := map[string]any{"reason": perr.Kind.String()}
	if perr.Kind == spreadsheet.KindMissingColumns {
		details["missingColumns"] = perr.Columns
	}
	return apperr.Wrap(apperr.KindValidation, perr.Error(), perr).WithOp(opIngest).WithDetails(details)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
