package domain

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"ordersync_backend/platform/sanitize"
)

// DefaultDepartmentBKeywords are the service-type fragments owned by department B:
// green-area upkeep, tree work, mowing/weeding, drainage and stream cleaning.
// Stored already folded (upper-case, no accents).
var DefaultDepartmentBKeywords = []string{
	"AREA VERDE",
	"AREAS VERDES",
	"MANUTENCAO DE PRACA",
	"PODA",
	"REMOCAO DE ARVORE",
	"ARVORE",
	"ROCADA",
	"CAPINA",
	"DRENAGEM",
	"LIMPEZA DE CORREGO",
	"CORREGO",
	"BOCA DE LOBO",
	"GALERIA",
	"PISCINAO",
}

// Classifier derives the technical department from a free-text service type.
// Classification is a pure containment check on folded text, so the result does
// not depend on keyword order, case or accents.
type Classifier struct {
	keywords []string
}

// NewClassifier builds a classifier for the given department-B keywords.
// Blank keywords are ignored.
func NewClassifier(keywords []string) *Classifier {
	folded := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if f := sanitize.Fold(kw); f != "" {
			folded = append(folded, f)
		}
	}
	return &Classifier{keywords: folded}
}

// DefaultClassifier uses DefaultDepartmentBKeywords.
func DefaultClassifier() *Classifier {
	return NewClassifier(DefaultDepartmentBKeywords)
}

type keywordFile struct {
	DepartmentB []string `yaml:"department_b"`
}

// LoadClassifier reads department-B keywords from a YAML file of the form
//
//	department_b:
//	  - poda
//	  - drenagem
//
// An empty path returns the default classifier.
func LoadClassifier(path string) (*Classifier, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultClassifier(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read department keywords: %w", err)
	}
	var file keywordFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse department keywords: %w", err)
	}
	if len(file.DepartmentB) == 0 {
		return nil, fmt.Errorf("department keywords file %s lists no department_b keywords", path)
	}
	return NewClassifier(file.DepartmentB), nil
}

// Classify returns DepartmentB when the folded service type contains any
// department-B keyword, DepartmentA otherwise.
func (c *Classifier) Classify(serviceType string) Department {
	folded := sanitize.Fold(serviceType)
	if folded == "" {
		return DepartmentA
	}
	for _, kw := range c.keywords {
		if strings.Contains(folded, kw) {
			return DepartmentB
		}
	}
	return DepartmentA
}
