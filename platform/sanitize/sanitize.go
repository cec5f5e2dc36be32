// Package sanitize provides text normalization helpers shared by the parsers
// and classifiers. Nothing here is domain-specific.
package sanitize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// StripDiacritics removes combining marks after canonical decomposition,
// so "Serviço" becomes "Servico" and "PAVIMENTAÇÃO" becomes "PAVIMENTACAO".
func StripDiacritics(s string) string {
	// transform.Chain is stateful; build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

// CollapseSpaces trims s and replaces every whitespace run with sep. Unicode
// spaces such as U+00A0 count as whitespace.
func CollapseSpaces(s, sep string) string {
	return strings.Join(strings.Fields(s), sep)
}

// Fold produces an upper-case, accent-free, single-spaced form of s for
// keyword containment checks.
func Fold(s string) string {
	return CollapseSpaces(strings.ToUpper(StripDiacritics(s)), " ")
}

// Text trims a cell or form value and collapses inner whitespace runs.
func Text(s string) string {
	return CollapseSpaces(s, " ")
}

// TextPtr returns nil for blank input, otherwise a pointer to Text(s).
func TextPtr(s string) *string {
	result := Text(s)
	if result == "" {
		return nil
	}
	return &result
}
