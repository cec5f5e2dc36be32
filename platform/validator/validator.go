// Package validator provides validation infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package validator

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var sourceIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,39}$`)

// Validator wraps the go-playground validator for structured validation.
// Using a struct allows for dependency injection and easier testing.
type Validator struct {
	v *validator.Validate
}

// New creates a new Validator instance with the application's custom tags registered:
//
//	spreadsheet - file name ends in .xlsx or .xls (case-insensitive)
//	sourceid    - lower-case slug identifying a record source
func New() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("spreadsheet", func(fl validator.FieldLevel) bool {
		return IsSpreadsheetName(fl.Field().String())
	})
	_ = v.RegisterValidation("sourceid", func(fl validator.FieldLevel) bool {
		return sourceIDPattern.MatchString(fl.Field().String())
	})
	return &Validator{v: v}
}

// Struct validates a struct based on validation tags.
func (val *Validator) Struct(s interface{}) error {
	return val.v.Struct(s)
}

// Var validates a single variable against a tag.
func (val *Validator) Var(field interface{}, tag string) error {
	return val.v.Var(field, tag)
}

// RegisterValidation registers a custom validation function.
func (val *Validator) RegisterValidation(tag string, fn validator.Func) error {
	return val.v.RegisterValidation(tag, fn)
}

// IsSpreadsheetName reports whether the file name carries an accepted spreadsheet extension.
// Only the extension is checked; contents are never sniffed.
func IsSpreadsheetName(name string) bool {
	switch strings.ToLower(filepath.Ext(strings.TrimSpace(name))) {
	case ".xlsx", ".xls":
		return true
	default:
		return false
	}
}

// FieldErrors flattens validator errors into field -> failed tag pairs for response details.
func FieldErrors(err error) map[string]string {
	out := map[string]string{}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return out
	}
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
