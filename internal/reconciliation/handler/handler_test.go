package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ordersync_backend/internal/reconciliation/service"
	"ordersync_backend/internal/reconciliation/transport"
	"ordersync_backend/platform/apperr"
	"ordersync_backend/platform/httpkit"
	"ordersync_backend/platform/validator"
)

type fakeRuns struct {
	createdBy string
	symmetric bool
	err       error
}

func (f *fakeRuns) Compare(_ context.Context, sourceA, sourceB string, opts service.CompareOptions, createdBy string) (transport.RunResponse, error) {
	if f.err != nil {
		return transport.RunResponse{}, f.err
	}
	f.createdBy = createdBy
	f.symmetric = opts.Symmetric
	return transport.RunResponse{RunSummary: transport.RunSummary{ID: uuid.New(), SourceA: sourceA, SourceB: sourceB}}, nil
}

func (f *fakeRuns) GetRun(context.Context, uuid.UUID) (transport.RunResponse, error) {
	return transport.RunResponse{}, apperr.NotFound("comparison run not found")
}

func (f *fakeRuns) ListRuns(context.Context, transport.ListRunsRequest) (transport.RunListResponse, error) {
	return transport.RunListResponse{Items: []transport.RunSummary{}}, nil
}

func (f *fakeRuns) ExportRun(_ context.Context, _ uuid.UUID, w io.Writer) (string, error) {
	_, _ = w.Write([]byte("xlsx"))
	return "divergencias.xlsx", nil
}

func newEngine(svc RunService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(svc, validator.New())
	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		c.Set(httpkit.ContextSubjectKey, "analyst")
		c.Next()
	})
	engine.POST("/runs", h.Compare)
	engine.GET("/runs/:id", h.GetRun)
	engine.GET("/runs/:id/export", h.Export)
	return engine
}

func TestCompareCreatesRun(t *testing.T) {
	svc := &fakeRuns{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader(`{"sourceA":"primary","sourceB":"panel","symmetric":true}`))
	req.Header.Set("Content-Type", "application/json")
	newEngine(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp transport.RunResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SourceA != "primary" || svc.createdBy != "analyst" || !svc.symmetric {
		t.Fatalf("unexpected run %+v (createdBy %q)", resp.RunSummary, svc.createdBy)
	}
}

func TestCompareMalformedInputIs422(t *testing.T) {
	svc := &fakeRuns{err: apperr.Reconciliation("a source cannot be compared with itself")}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader(`{"sourceA":"panel","sourceB":"panel"}`))
	req.Header.Set("Content-Type", "application/json")
	newEngine(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestCompareRequiresBothSources(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader(`{"sourceA":"primary"}`))
	req.Header.Set("Content-Type", "application/json")
	newEngine(&fakeRuns{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetRunRoutes(t *testing.T) {
	engine := newEngine(&fakeRuns{})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/bad", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/"+uuid.NewString(), nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestExportSetsAttachmentHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	newEngine(&fakeRuns{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/"+uuid.NewString()+"/export", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != xlsxContentType {
		t.Fatalf("unexpected content type %q", got)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "divergencias.xlsx") || rec.Body.String() != "xlsx" {
		t.Fatalf("unexpected export response")
	}
}
