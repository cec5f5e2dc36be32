package transport

import (
	"time"

	"github.com/google/uuid"
)

// UploadRequest holds the non-file multipart fields of an upload.
type UploadRequest struct {
	Source         string `form:"source" validate:"required,sourceid"`
	Label          string `form:"label" validate:"omitempty,max=200"`
	IdempotencyKey string `form:"idempotencyKey" validate:"omitempty,max=200"`
	Async          bool   `form:"async"`
}

type UploadAcceptedResponse struct {
	JobID      string `json:"jobId"`
	ArchiveKey string `json:"archiveKey"`
	Status     string `json:"status"`
}

type ListBatchesRequest struct {
	Source   string `form:"source" validate:"omitempty,sourceid"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

type BatchResponse struct {
	ID             uuid.UUID `json:"id"`
	Source         string    `json:"source"`
	FileName       string    `json:"fileName"`
	Label          *string   `json:"label,omitempty"`
	UploadedBy     string    `json:"uploadedBy"`
	UploadedAt     time.Time `json:"uploadedAt"`
	Processed      bool      `json:"processed"`
	IdempotencyKey *string   `json:"idempotencyKey,omitempty"`
	ArchiveKey     *string   `json:"archiveKey,omitempty"`
	OrderCount     int       `json:"orderCount"`
}

type BatchListResponse struct {
	Items      []BatchResponse `json:"items"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"pageSize"`
	TotalPages int             `json:"totalPages"`
}

type DeleteBatchResponse struct {
	ID             uuid.UUID `json:"id"`
	OrdersRemoved  int64     `json:"ordersRemoved"`
	ArchiveRemoved bool      `json:"archiveRemoved"`
}

// BatchFileResponse is a presigned link to the uploaded spreadsheet.
type BatchFileResponse struct {
	BatchID   uuid.UUID `json:"batchId"`
	FileName  string    `json:"fileName"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type SourceResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	OrderCount int        `json:"orderCount"`
	BatchCount int        `json:"batchCount"`
	LastUpload *time.Time `json:"lastUpload,omitempty"`
}

type SourceListResponse struct {
	Items []SourceResponse `json:"items"`
}

type ListOrdersRequest struct {
	Source     string `form:"source" validate:"omitempty,sourceid"`
	Status     string `form:"status" validate:"omitempty,max=100"`
	Department string `form:"department" validate:"omitempty,oneof=A B"`
	Page       int    `form:"page" validate:"omitempty,min=1"`
	PageSize   int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

type OrderResponse struct {
	ID                  uuid.UUID  `json:"id"`
	Source              string     `json:"source"`
	OrderNumber         string     `json:"orderNumber"`
	ServiceType         string     `json:"serviceType"`
	TechnicalDepartment string     `json:"technicalDepartment"`
	Supplier            *string    `json:"supplier,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	Status              string     `json:"status"`
	StatusChangedAt     *time.Time `json:"statusChangedAt,omitempty"`
	Neighborhood        *string    `json:"neighborhood,omitempty"`
	District            *string    `json:"district,omitempty"`
	BatchID             uuid.UUID  `json:"batchId"`
}

type OrderListResponse struct {
	Items      []OrderResponse `json:"items"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"pageSize"`
	TotalPages int             `json:"totalPages"`
}
