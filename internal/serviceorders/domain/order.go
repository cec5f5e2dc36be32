// Package domain holds the canonical service-order types and the identifier
// rules every other package compares and joins on.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Department is the technical department responsible for a service order.
type Department string

const (
	DepartmentA Department = "A"
	DepartmentB Department = "B"
)

// Valid reports whether d is a known department.
func (d Department) Valid() bool {
	return d == DepartmentA || d == DepartmentB
}

// Well-known source identifiers seeded by migration.
const (
	SourcePrimary = "primary"
	SourcePanel   = "panel"
)

// ServiceOrder is one unit of municipal work tracked by a source system.
type ServiceOrder struct {
	ID                  uuid.UUID
	SourceID            string
	OrderNumber         string
	ServiceType         string
	TechnicalDepartment Department
	Supplier            *string
	CreatedAt           time.Time
	Status              string
	StatusChangedAt     *time.Time
	Neighborhood        *string
	District            *string
	BatchID             uuid.UUID
}

// Key returns the normalized join key for the order.
func (o ServiceOrder) Key() string {
	return NormalizeOrderNumber(o.OrderNumber)
}

// UploadBatch is one ingestion run tied to one uploaded file.
type UploadBatch struct {
	ID             uuid.UUID
	SourceID       string
	FileName       string
	Label          *string
	UploadedBy     string
	UploadedAt     time.Time
	Processed      bool
	IdempotencyKey *string
	ArchiveKey     *string
	OrderCount     int
}

// Source is a named record universe (primary tracking system, monitoring panel).
type Source struct {
	ID         string
	Name       string
	CreatedAt  time.Time
	OrderCount int
	BatchCount int
	LastUpload *time.Time
}

// NormalizeOrderNumber trims surrounding whitespace and strips leading zeros,
// so "007", " 7 " and "7" share one key. An all-zero identifier keeps a single "0";
// a blank identifier stays blank.
func NormalizeOrderNumber(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	stripped := strings.TrimLeft(trimmed, "0")
	if stripped == "" {
		return "0"
	}
	return stripped
}

// NormalizeStatus is the comparison form of a status: trimmed and lower-cased.
func NormalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

// SameStatus reports whether two statuses are equal after normalization.
func SameStatus(a, b string) bool {
	return NormalizeStatus(a) == NormalizeStatus(b)
}
