// Package normalize turns resolved spreadsheet rows into canonical service orders.
package normalize

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"ordersync_backend/internal/serviceorders/domain"
	"ordersync_backend/internal/serviceorders/spreadsheet"
	"ordersync_backend/platform/sanitize"
)

// Layouts tried in order for textual dates. Day-first layouts come before
// the excelize month-first default so "03/02/2024" reads as 3 February.
var dateLayouts = []string{
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/2006",
	"02/01/06 15:04",
	"02/01/06",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01-02-06 15:04",
	"01-02-06",
}

// Largest serial excelize accepts (9999-12-31).
const maxExcelSerial = 2958465

// Normalizer maps raw rows to domain records. It never fails: unparsable
// optional values become nil and an unparsable creation date becomes now.
type Normalizer struct {
	loc        *time.Location
	now        func() time.Time
	classifier *domain.Classifier
}

// Option customizes a Normalizer.
type Option func(*Normalizer)

// WithClock injects the clock used for unparsable creation dates.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

// WithClassifier overrides the department classifier.
func WithClassifier(c *domain.Classifier) Option {
	return func(n *Normalizer) {
		if c != nil {
			n.classifier = c
		}
	}
}

// New creates a Normalizer that interprets dates in loc. A nil loc means UTC.
func New(loc *time.Location, opts ...Option) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	n := &Normalizer{
		loc:        loc,
		now:        time.Now,
		classifier: domain.DefaultClassifier(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize builds a ServiceOrder for the given batch. SourceID and ID are left
// for the caller.
func (n *Normalizer) Normalize(row spreadsheet.RawRow, cols spreadsheet.Columns, batchID uuid.UUID) domain.ServiceOrder {
	serviceType := strings.TrimSpace(row.Get(cols, spreadsheet.FieldServiceClassification))

	createdAt, ok := n.ParseDate(row.Get(cols, spreadsheet.FieldCreatedAt))
	if !ok {
		createdAt = n.now().In(n.loc)
	}

	var statusChangedAt *time.Time
	if t, ok := n.ParseDate(row.Get(cols, spreadsheet.FieldStatusDate)); ok {
		statusChangedAt = &t
	}

	return domain.ServiceOrder{
		OrderNumber:         strings.TrimSpace(row.Get(cols, spreadsheet.FieldOrderNumber)),
		ServiceType:         serviceType,
		TechnicalDepartment: n.classifier.Classify(serviceType),
		Supplier:            sanitize.TextPtr(row.Get(cols, spreadsheet.FieldSupplier)),
		CreatedAt:           createdAt,
		Status:              strings.TrimSpace(row.Get(cols, spreadsheet.FieldStatus)),
		StatusChangedAt:     statusChangedAt,
		Neighborhood:        sanitize.TextPtr(row.Get(cols, spreadsheet.FieldNeighborhood)),
		District:            sanitize.TextPtr(row.Get(cols, spreadsheet.FieldDistrict)),
		BatchID:             batchID,
	}
}

// NormalizeAll maps every row in order.
func (n *Normalizer) NormalizeAll(rows []spreadsheet.RawRow, cols spreadsheet.Columns, batchID uuid.UUID) []domain.ServiceOrder {
	out := make([]domain.ServiceOrder, 0, len(rows))
	for _, row := range rows {
		out = append(out, n.Normalize(row, cols, batchID))
	}
	return out
}

// ParseDate reads a cell as a timestamp in the normalizer's location. It accepts
// the day-first layouts used by the exports, ISO and RFC3339 text, and Excel
// serial day numbers.
func (n *Normalizer) ParseDate(raw string) (time.Time, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, false
	}

	if serial, err := strconv.ParseFloat(value, 64); err == nil {
		if !(serial > 0 && serial <= maxExcelSerial) {
			return time.Time{}, false
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, false
		}
		// Serials carry wall-clock time without a zone.
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, n.loc), true
	}

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.In(n.loc), true
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, n.loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
