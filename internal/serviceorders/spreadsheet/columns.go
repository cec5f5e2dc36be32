package spreadsheet

import (
	"strings"

	"ordersync_backend/platform/sanitize"
)

// Field is a canonical service-order column.
type Field string

const (
	FieldOrderNumber           Field = "order_number"
	FieldServiceClassification Field = "service_classification"
	FieldCreatedAt             Field = "created_at"
	FieldStatus                Field = "status"
	FieldStatusDate            Field = "status_date"
	FieldDistrict              Field = "district"
	FieldSupplier              Field = "supplier"
	FieldNeighborhood          Field = "neighborhood"
)

type columnSpec struct {
	field    Field
	target   string
	required bool
}

// Order matters only for the containment fallback: earlier fields pick first.
var columnSpecs = []columnSpec{
	{field: FieldOrderNumber, target: "Ordem de Serviço", required: true},
	{field: FieldServiceClassification, target: "Classificação de Serviço", required: true},
	{field: FieldCreatedAt, target: "Criado em", required: true},
	{field: FieldStatus, target: "Status", required: true},
	{field: FieldStatusDate, target: "Data do Status", required: true},
	{field: FieldDistrict, target: "Distrito", required: true},
	{field: FieldSupplier, target: "Fornecedor"},
	{field: FieldNeighborhood, target: "Bairro"},
}

// Target returns the Portuguese header a field is expected under.
func Target(f Field) string {
	for _, def := range columnSpecs {
		if def.field == f {
			return def.target
		}
	}
	return string(f)
}

// NormalizeColumnName reduces a header to its comparison form: accents
// removed, lower-cased, trimmed and with whitespace runs joined by "_".
// It is idempotent.
func NormalizeColumnName(name string) string {
	return sanitize.CollapseSpaces(strings.ToLower(sanitize.StripDiacritics(name)), "_")
}

// Columns maps each resolved canonical field to the verbatim header it was found under.
type Columns map[Field]string

// Header returns the source header for f.
func (c Columns) Header(f Field) (string, bool) {
	h, ok := c[f]
	return h, ok
}

// ResolveColumns matches headers to canonical fields. Exact normalized matches
// are taken first; unresolved fields then fall back to containment in either
// direction, taking the first unclaimed header in header order. It returns the
// resolution and the targets of required fields left unresolved.
func ResolveColumns(headers []string) (Columns, []string) {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = NormalizeColumnName(h)
	}

	cols := make(Columns, len(columnSpecs))
	claimed := make([]bool, len(headers))

	for _, def := range columnSpecs {
		target := NormalizeColumnName(def.target)
		for i, h := range normalized {
			if h == "" || claimed[i] {
				continue
			}
			if h == target {
				cols[def.field] = headers[i]
				claimed[i] = true
				break
			}
		}
	}

	for _, def := range columnSpecs {
		if _, ok := cols[def.field]; ok {
			continue
		}
		target := NormalizeColumnName(def.target)
		for i, h := range normalized {
			if h == "" || claimed[i] {
				continue
			}
			if strings.Contains(h, target) || strings.Contains(target, h) {
				cols[def.field] = headers[i]
				claimed[i] = true
				break
			}
		}
	}

	var missing []string
	for _, def := range columnSpecs {
		if !def.required {
			continue
		}
		if _, ok := cols[def.field]; !ok {
			missing = append(missing, def.target)
		}
	}
	return cols, missing
}
