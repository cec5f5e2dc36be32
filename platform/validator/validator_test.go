package validator

import "testing"

func TestIsSpreadsheetName(t *testing.T) {
	accepted := []string{"ordens.xlsx", "ORDENS.XLSX", "export 2024.xls", " relatorio.Xls "}
	for _, name := range accepted {
		if !IsSpreadsheetName(name) {
			t.Fatalf("expected %q to be accepted", name)
		}
	}

	rejected := []string{"ordens.csv", "ordens.xlsx.pdf", "ordens", ""}
	for _, name := range rejected {
		if IsSpreadsheetName(name) {
			t.Fatalf("expected %q to be rejected", name)
		}
	}
}

func TestCustomTags(t *testing.T) {
	type upload struct {
		FileName string `validate:"required,spreadsheet"`
		Source   string `validate:"required,sourceid"`
	}

	val := New()
	if err := val.Struct(upload{FileName: "a.xlsx", Source: "primary"}); err != nil {
		t.Fatalf("expected valid struct, got %v", err)
	}

	err := val.Struct(upload{FileName: "a.csv", Source: "Primary Source"})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	fields := FieldErrors(err)
	if fields["FileName"] != "spreadsheet" || fields["Source"] != "sourceid" {
		t.Fatalf("unexpected field errors %v", fields)
	}
}
