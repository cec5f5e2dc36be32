package transport

import (
	"time"

	"github.com/google/uuid"
)

type CompareRequest struct {
	SourceA   string `json:"sourceA" validate:"required"`
	SourceB   string `json:"sourceB" validate:"required"`
	Symmetric bool   `json:"symmetric"`
}

type ListRunsRequest struct {
	Source   string `form:"source" validate:"omitempty,sourceid"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

type DivergenceResponse struct {
	OrderNumber   string  `json:"orderNumber"`
	StatusSourceA *string `json:"statusSourceA"`
	StatusSourceB *string `json:"statusSourceB"`
	Reason        string  `json:"reason"`
}

type RunSummary struct {
	ID              uuid.UUID `json:"id"`
	SourceA         string    `json:"sourceA"`
	SourceB         string    `json:"sourceB"`
	TotalA          int       `json:"totalA"`
	TotalB          int       `json:"totalB"`
	DivergenceCount int       `json:"divergenceCount"`
	MissingCount    int       `json:"missingCount"`
	MismatchCount   int       `json:"mismatchCount"`
	MissingInACount int       `json:"missingInACount"`
	Symmetric       bool      `json:"symmetric"`
	CreatedBy       string    `json:"createdBy"`
	CreatedAt       time.Time `json:"createdAt"`
}

// RunResponse is a run with its divergences split by reason.
type RunResponse struct {
	RunSummary
	Divergences      []DivergenceResponse `json:"divergences"`
	Missing          []DivergenceResponse `json:"missing"`
	StatusMismatches []DivergenceResponse `json:"statusMismatches"`
	MissingInA       []DivergenceResponse `json:"missingInA"`
}

type RunListResponse struct {
	Items      []RunSummary `json:"items"`
	Total      int          `json:"total"`
	Page       int          `json:"page"`
	PageSize   int          `json:"pageSize"`
	TotalPages int          `json:"totalPages"`
}
