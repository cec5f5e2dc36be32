package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ordersync_backend/internal/reconciliation/service"
	"ordersync_backend/internal/reconciliation/transport"
	"ordersync_backend/platform/httpkit"
	"ordersync_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidRunID     = "invalid comparison run ID"

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// RunService is the reconciliation service as seen by the handler.
type RunService interface {
	Compare(ctx context.Context, sourceA, sourceB string, opts service.CompareOptions, createdBy string) (transport.RunResponse, error)
	GetRun(ctx context.Context, id uuid.UUID) (transport.RunResponse, error)
	ListRuns(ctx context.Context, req transport.ListRunsRequest) (transport.RunListResponse, error)
	ExportRun(ctx context.Context, id uuid.UUID, w io.Writer) (string, error)
}

// Handler handles HTTP requests for comparison runs.
type Handler struct {
	svc RunService
	val *validator.Validator
}

func New(svc RunService, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// Compare runs and stores a comparison between two sources.
// POST /api/v1/reconciliation/runs
func (h *Handler) Compare(c *gin.Context) {
	var req transport.CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
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

	result, err := h.svc.Compare(c.Request.Context(), req.SourceA, req.SourceB,
		service.CompareOptions{Symmetric: req.Symmetric}, identity.Subject())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, result)
}

// ListRuns lists stored comparison runs, newest first.
// GET /api/v1/reconciliation/runs
func (h *Handler) ListRuns(c *gin.Context) {
	var req transport.ListRunsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return
	}

	result, err := h.svc.ListRuns(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GetRun returns one run with its divergences.
// GET /api/v1/reconciliation/runs/:id
func (h *Handler) GetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRunID, nil)
		return
	}

	result, err := h.svc.GetRun(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Export downloads the divergence report of a run as xlsx.
// GET /api/v1/reconciliation/runs/:id/export
func (h *Handler) Export(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRunID, nil)
		return
	}

	var buf bytes.Buffer
	name, err := h.svc.ExportRun(c.Request.Context(), id, &buf)
	if httpkit.HandleError(c, err) {
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
