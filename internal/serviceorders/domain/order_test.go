package domain

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizeOrderNumber(t *testing.T) {
	cases := map[string]string{
		"007":      "7",
		"7":        "7",
		" 123 ":    "123",
		"\t0042\n": "42",
		"000":      "0",
		"":         "",
		"   ":      "",
		"A-001":    "A-001",
	}
	for in, want := range cases {
		if got := NormalizeOrderNumber(in); got != want {
			t.Fatalf("NormalizeOrderNumber(%q) = %q, want %q", in, got, want)
		}
	}
	if NormalizeOrderNumber("007") != NormalizeOrderNumber("7") {
		t.Fatalf("expected 007 and 7 to share a key")
	}
}

func TestSameStatusIgnoresCaseAndSpaces(t *testing.T) {
	if !SameStatus(" Em Execução", "em execução ") {
		t.Fatalf("expected statuses to match")
	}
	if SameStatus("Aberta", "Fechada") {
		t.Fatalf("expected statuses to differ")
	}
}

func TestClassifyPruningIsDepartmentB(t *testing.T) {
	c := DefaultClassifier()
	if got := c.Classify("PODA DE ÁRVORE EM VIA PÚBLICA"); got != DepartmentB {
		t.Fatalf("expected department B, got %s", got)
	}
	if got := c.Classify("poda"); got != DepartmentB {
		t.Fatalf("expected lower-case keyword to classify as B, got %s", got)
	}
}

func TestClassifyPavingDefaultsToDepartmentA(t *testing.T) {
	c := DefaultClassifier()
	if got := c.Classify("PAVIMENTAÇÃO - TAPA BURACO"); got != DepartmentA {
		t.Fatalf("expected department A, got %s", got)
	}
	if got := c.Classify(""); got != DepartmentA {
		t.Fatalf("expected blank service type to default to A, got %s", got)
	}
}

func TestClassifyIsAccentInsensitive(t *testing.T) {
	c := NewClassifier([]string{"limpeza de córrego"})
	if got := c.Classify("LIMPEZA DE CORREGO - TRECHO 2"); got != DepartmentB {
		t.Fatalf("expected department B, got %s", got)
	}
}

func TestClassifyIsOrderIndependent(t *testing.T) {
	a := NewClassifier([]string{"PODA", "DRENAGEM"})
	b := NewClassifier([]string{"DRENAGEM", "PODA"})
	inputs := []string{"poda", "drenagem", "pavimentacao", "sinalizacao", "Drenagem e poda"}
	for _, in := range inputs {
		if a.Classify(in) != b.Classify(in) {
			t.Fatalf("keyword order changed classification of %q", in)
		}
	}
}

func TestLoadClassifierFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keywords.yaml")
	content := "department_b:\n  - iluminação\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write keywords: %v", err)
	}

	c, err := LoadClassifier(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := c.Classify("TROCA DE ILUMINACAO"); got != DepartmentB {
		t.Fatalf("expected B from custom keywords, got %s", got)
	}
	if got := c.Classify("PODA"); got != DepartmentA {
		t.Fatalf("expected custom keywords to replace defaults, got %s", got)
	}
}

func TestLoadClassifierEmptyPathUsesDefaults(t *testing.T) {
	c, err := LoadClassifier("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Classify("ROÇADA") != DepartmentB {
		t.Fatalf("expected default keywords")
	}
}
