package normalize

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"ordersync_backend/internal/serviceorders/domain"
	"ordersync_backend/internal/serviceorders/spreadsheet"
)

func saoPaulo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func row(cells map[string]string) (spreadsheet.RawRow, spreadsheet.Columns) {
	headers := make([]string, 0, len(cells))
	for h := range cells {
		headers = append(headers, h)
	}
	cols, _ := spreadsheet.ResolveColumns(headers)
	return spreadsheet.RawRow{Line: 2, Cells: cells}, cols
}

func TestNormalizeMapsFields(t *testing.T) {
	loc := saoPaulo(t)
	n := New(loc)
	batchID := uuid.New()

	r, cols := row(map[string]string{
		"Ordem de Serviço":         " 0042 ",
		"Classificação de Serviço": "Poda de árvore",
		"Criado em":                "15/03/2024 08:30",
		"Status":                   " Em execução ",
		"Data do Status":           "16/03/2024",
		"Distrito":                 "Sul",
		"Fornecedor":               "  ",
		"Bairro":                   "Vila  Nova",
	})

	got := n.Normalize(r, cols, batchID)
	if got.OrderNumber != "0042" {
		t.Fatalf("expected trimmed order number, got %q", got.OrderNumber)
	}
	if got.Key() != "42" {
		t.Fatalf("expected key 42, got %q", got.Key())
	}
	if got.TechnicalDepartment != domain.DepartmentB {
		t.Fatalf("expected department B, got %s", got.TechnicalDepartment)
	}
	if got.Status != "Em execução" {
		t.Fatalf("unexpected status %q", got.Status)
	}
	want := time.Date(2024, 3, 15, 8, 30, 0, 0, loc)
	if !got.CreatedAt.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got.CreatedAt)
	}
	if got.StatusChangedAt == nil || got.StatusChangedAt.Day() != 16 {
		t.Fatalf("unexpected status date %v", got.StatusChangedAt)
	}
	if got.Supplier != nil {
		t.Fatalf("expected blank supplier to be nil")
	}
	if got.Neighborhood == nil || *got.Neighborhood != "Vila Nova" {
		t.Fatalf("unexpected neighborhood %v", got.Neighborhood)
	}
	if got.BatchID != batchID {
		t.Fatalf("expected batch id carried through")
	}
}

func TestNormalizeBadDatesFallBack(t *testing.T) {
	loc := saoPaulo(t)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	n := New(loc, WithClock(func() time.Time { return fixed }))

	r, cols := row(map[string]string{
		"Ordem de Serviço":         "1",
		"Classificação de Serviço": "PAVIMENTAÇÃO",
		"Criado em":                "ontem",
		"Status":                   "Aberta",
		"Data do Status":           "sem data",
		"Distrito":                 "",
	})

	got := n.Normalize(r, cols, uuid.New())
	if !got.CreatedAt.Equal(fixed) {
		t.Fatalf("expected clock fallback, got %v", got.CreatedAt)
	}
	if got.StatusChangedAt != nil {
		t.Fatalf("expected nil status date, got %v", got.StatusChangedAt)
	}
	if got.District != nil {
		t.Fatalf("expected nil district")
	}
	if got.TechnicalDepartment != domain.DepartmentA {
		t.Fatalf("expected department A, got %s", got.TechnicalDepartment)
	}

	for _, bad := range []string{"NaN", "nan", "Inf", "-Inf", "1e400"} {
		r, cols := row(map[string]string{
			"Ordem de Serviço":         "2",
			"Classificação de Serviço": "PODA",
			"Criado em":                bad,
			"Status":                   "Aberta",
			"Data do Status":           bad,
			"Distrito":                 "Sul",
		})
		got := n.Normalize(r, cols, uuid.New())
		if !got.CreatedAt.Equal(fixed) {
			t.Fatalf("expected clock fallback for %q, got %v", bad, got.CreatedAt)
		}
		if got.StatusChangedAt != nil {
			t.Fatalf("expected nil status date for %q, got %v", bad, got.StatusChangedAt)
		}
	}
}

func TestParseDateFormats(t *testing.T) {
	loc := saoPaulo(t)
	n := New(loc)

	cases := []struct {
		in   string
		want time.Time
	}{
		{"03/02/2024", time.Date(2024, 2, 3, 0, 0, 0, 0, loc)},
		{"03/02/2024 14:05:09", time.Date(2024, 2, 3, 14, 5, 9, 0, loc)},
		{"3/2/2024", time.Date(2024, 2, 3, 0, 0, 0, 0, loc)},
		{"03/02/24", time.Date(2024, 2, 3, 0, 0, 0, 0, loc)},
		{"2024-02-03", time.Date(2024, 2, 3, 0, 0, 0, 0, loc)},
		{"2024-02-03 14:05", time.Date(2024, 2, 3, 14, 5, 0, 0, loc)},
		{"2024-02-03T17:05:00Z", time.Date(2024, 2, 3, 17, 5, 0, 0, time.UTC)},
		{"45323", time.Date(2024, 2, 1, 0, 0, 0, 0, loc)},
	}
	for _, tc := range cases {
		got, ok := n.ParseDate(tc.in)
		if !ok {
			t.Fatalf("ParseDate(%q) failed", tc.in)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("ParseDate(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	for _, bad := range []string{"", "  ", "-3", "31/31/2024", "amanhã", "NaN", "nan", "+Inf", "3000000"} {
		if _, ok := n.ParseDate(bad); ok {
			t.Fatalf("expected ParseDate(%q) to fail", bad)
		}
	}
}

func TestNormalizeAllKeepsOrder(t *testing.T) {
	n := New(time.UTC)
	r1, cols := row(map[string]string{"Ordem de Serviço": "2", "Status": "a"})
	r2 := spreadsheet.RawRow{Line: 3, Cells: map[string]string{"Ordem de Serviço": "1", "Status": "b"}}

	out := n.NormalizeAll([]spreadsheet.RawRow{r1, r2}, cols, uuid.New())
	if len(out) != 2 || out[0].OrderNumber != "2" || out[1].OrderNumber != "1" {
		t.Fatalf("unexpected order %+v", out)
	}
}
