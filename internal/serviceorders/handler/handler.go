package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ordersync_backend/internal/scheduler"
	"ordersync_backend/internal/serviceorders/progress"
	"ordersync_backend/internal/serviceorders/service"
	"ordersync_backend/internal/serviceorders/transport"
	"ordersync_backend/platform/apperr"
	"ordersync_backend/platform/httpkit"
	"ordersync_backend/platform/logger"
	"ordersync_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidBatchID   = "invalid upload batch ID"
	msgFileRequired     = "file is required"

	formFileField = "file"
	statusQueued  = "queued"
)

// OrderService is the slice of the ingestion service the handler needs.
type OrderService interface {
	Ingest(ctx context.Context, req service.IngestRequest, reporter service.ProgressReporter) (service.IngestResult, error)
	ListBatches(ctx context.Context, req transport.ListBatchesRequest) (transport.BatchListResponse, error)
	GetBatch(ctx context.Context, id uuid.UUID) (transport.BatchResponse, error)
	DeleteBatch(ctx context.Context, id uuid.UUID) (transport.DeleteBatchResponse, error)
	BatchFile(ctx context.Context, id uuid.UUID) (transport.BatchFileResponse, error)
	CheckSource(ctx context.Context, sourceID string) error
	ListSources(ctx context.Context) (transport.SourceListResponse, error)
	ListOrders(ctx context.Context, req transport.ListOrdersRequest) (transport.OrderListResponse, error)
}

// ProgressStore tracks asynchronous jobs.
type ProgressStore interface {
	Start(ctx context.Context, jobID, sourceID, fileName string) error
	Get(ctx context.Context, jobID string) (progress.Snapshot, error)
}

// Handler handles HTTP requests for spreadsheet uploads and stored orders.
type Handler struct {
	svc         OrderService
	val         *validator.Validator
	archive     service.Archiver
	progress    ProgressStore
	queue       scheduler.IngestEnqueuer
	maxFileSize int64
	log         *logger.Logger
}

// New creates the handler. archive, progress and queue may be nil, in which
// case asynchronous uploads are refused.
func New(svc OrderService, val *validator.Validator, archive service.Archiver, progress ProgressStore, queue scheduler.IngestEnqueuer, maxFileSize int64, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		svc:         svc,
		val:         val,
		archive:     archive,
		progress:    progress,
		queue:       queue,
		maxFileSize: maxFileSize,
		log:         log,
	}
}

func (h *Handler) asyncEnabled() bool {
	return h.archive != nil && h.progress != nil && h.queue != nil
}

// Upload ingests a spreadsheet. Synchronous uploads answer with the
// IngestResult; async uploads are archived, queued and answered with a job id.
// POST /api/v1/service-orders/uploads
func (h *Handler) Upload(c *gin.Context) {
	var req transport.UploadRequest
	if err := c.ShouldBind(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	fh, err := c.FormFile(formFileField)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgFileRequired, nil)
		return
	}
	if h.maxFileSize > 0 && fh.Size > h.maxFileSize {
		httpkit.HandleError(c, apperr.Validation(fmt.Sprintf("file exceeds the %d byte limit", h.maxFileSize)))
		return
	}
	file, err := fh.Open()
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgFileRequired, nil)
		return
	}
	defer func() { _ = file.Close() }()

	ingestReq := service.IngestRequest{
		FileName:       fh.Filename,
		Content:        file,
		SourceID:       req.Source,
		BatchLabel:     req.Label,
		UploadedBy:     identity.Subject(),
		IdempotencyKey: req.IdempotencyKey,
	}

	if req.Async {
		h.enqueue(c, ingestReq)
		return
	}

	result, err := h.svc.Ingest(c.Request.Context(), ingestReq, nil)
	if err != nil && result.BatchID != uuid.Nil {
		partialFailure(c, err, result)
		return
	}
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// partialFailure answers a run that failed after its batch was created. The
// body carries the batch id and the counts written so far, so the caller can
// inspect or delete the batch.
func partialFailure(c *gin.Context, err error, result service.IngestResult) {
	appErr := apperr.Internal("internal server error")
	var typed *apperr.Error
	if errors.As(err, &typed) {
		appErr = typed
	}
	httpkit.JSON(c, appErr.HTTPStatus(), httpkit.ErrorResponse{
		Error:   appErr.Message,
		Code:    appErr.Kind.String(),
		Details: result,
	})
}

func (h *Handler) enqueue(c *gin.Context, req service.IngestRequest) {
	if !h.asyncEnabled() {
		httpkit.Error(c, http.StatusServiceUnavailable, "asynchronous ingestion is not configured", nil)
		return
	}
	if !validator.IsSpreadsheetName(req.FileName) {
		httpkit.HandleError(c, apperr.Validation("only .xlsx and .xls spreadsheets are accepted").
			WithDetails(map[string]string{"fileName": req.FileName}))
		return
	}

	ctx := c.Request.Context()
	if httpkit.HandleError(c, h.svc.CheckSource(ctx, req.SourceID)) {
		return
	}
	content, err := io.ReadAll(req.Content)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "file could not be read", nil)
		return
	}

	key, err := h.archive.Archive(ctx, req.SourceID, req.FileName, content)
	if err != nil {
		h.log.WithContext(ctx).Error("archive upload failed", "file_name", req.FileName, "error", err)
		httpkit.HandleError(c, apperr.Wrap(apperr.KindInternal, "upload could not be stored", err))
		return
	}

	jobID := uuid.NewString()
	if err := h.progress.Start(ctx, jobID, req.SourceID, req.FileName); err != nil {
		h.log.WithContext(ctx).Warn("progress tracking unavailable", "job_id", jobID, "error", err)
	}

	err = h.queue.EnqueueIngest(ctx, scheduler.IngestPayload{
		JobID:          jobID,
		SourceID:       req.SourceID,
		FileName:       req.FileName,
		ArchiveKey:     key,
		Label:          req.BatchLabel,
		UploadedBy:     req.UploadedBy,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.log.WithContext(ctx).Error("enqueue ingest failed", "job_id", jobID, "error", err)
		httpkit.HandleError(c, apperr.Wrap(apperr.KindInternal, "upload could not be queued", err))
		return
	}

	httpkit.Accepted(c, transport.UploadAcceptedResponse{JobID: jobID, ArchiveKey: key, Status: statusQueued})
}

// Progress returns the milestones of an asynchronous upload.
// GET /api/v1/service-orders/jobs/:jobId/progress
func (h *Handler) Progress(c *gin.Context) {
	if h.progress == nil {
		httpkit.Error(c, http.StatusNotFound, "ingest job not found", nil)
		return
	}
	snap, err := h.progress.Get(c.Request.Context(), c.Param("jobId"))
	if errors.Is(err, progress.ErrNotFound) {
		httpkit.Error(c, http.StatusNotFound, "ingest job not found", nil)
		return
	}
	if err != nil {
		httpkit.HandleError(c, apperr.Wrap(apperr.KindInternal, "progress unavailable", err))
		return
	}
	httpkit.OK(c, snap)
}

// ListBatches lists upload batches.
// GET /api/v1/service-orders/uploads
func (h *Handler) ListBatches(c *gin.Context) {
	var req transport.ListBatchesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return
	}

	result, err := h.svc.ListBatches(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GetBatch returns one upload batch.
// GET /api/v1/service-orders/uploads/:id
func (h *Handler) GetBatch(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidBatchID, nil)
		return
	}

	result, err := h.svc.GetBatch(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// DeleteBatch removes an upload batch and the orders it last wrote.
// DELETE /api/v1/service-orders/uploads/:id
func (h *Handler) DeleteBatch(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidBatchID, nil)
		return
	}

	result, err := h.svc.DeleteBatch(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// BatchFile returns a presigned link to the spreadsheet a batch came from.
// GET /api/v1/service-orders/uploads/:id/file
func (h *Handler) BatchFile(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidBatchID, nil)
		return
	}

	result, err := h.svc.BatchFile(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ListSources lists record sources.
// GET /api/v1/sources
func (h *Handler) ListSources(c *gin.Context) {
	result, err := h.svc.ListSources(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ListOrders pages through stored service orders.
// GET /api/v1/service-orders
func (h *Handler) ListOrders(c *gin.Context) {
	var req transport.ListOrdersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return
	}

	result, err := h.svc.ListOrders(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}
