// Package spreadsheet reads service-order exports and resolves their loosely
// named headers into canonical fields.
package spreadsheet

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrorKind classifies a ParseError.
type ErrorKind int

const (
	KindMissingColumns ErrorKind = iota + 1
	KindEmptyFile
	KindUnreadable
)

func (k ErrorKind) String() string {
	switch k {
	case KindMissingColumns:
		return "missing_columns"
	case KindEmptyFile:
		return "empty_file"
	case KindUnreadable:
		return "unreadable"
	default:
		return "unknown"
	}
}

// ParseError is returned when a workbook cannot yield service-order rows.
type ParseError struct {
	Kind    ErrorKind
	Columns []string
	Err     error
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case KindMissingColumns:
		return "missing required columns: " + strings.Join(e.Columns, ", ")
	case KindEmptyFile:
		return "spreadsheet has no data rows"
	case KindUnreadable:
		if e.Err != nil {
			return "spreadsheet could not be read: " + e.Err.Error()
		}
		return "spreadsheet could not be read"
	default:
		return "spreadsheet parse error"
	}
}

func (e *ParseError) Unwrap() error { return e.Err }

// RawRow is one data row keyed by verbatim header text. Line is the 1-based
// sheet row it came from.
type RawRow struct {
	Line  int
	Cells map[string]string
}

// Get reads a canonical field through the resolved header. Unresolved fields
// and missing cells read as "".
func (r RawRow) Get(cols Columns, f Field) string {
	header, ok := cols.Header(f)
	if !ok {
		return ""
	}
	return r.Cells[header]
}

// ParseFile reads the first sheet of an uploaded workbook, choosing the
// decoder by extension: BIFF for .xls, OOXML for everything else.
func ParseFile(fileName string, r io.ReadSeeker) ([]RawRow, Columns, error) {
	if strings.EqualFold(filepath.Ext(fileName), ".xls") {
		grid, err := readLegacySheet(r)
		if err != nil {
			return nil, nil, err
		}
		return fromGrid(grid)
	}
	return Parse(r)
}

// Parse reads the first sheet of an xlsx workbook. Other sheets are ignored.
// The header row is resolved before any data row is read, so a missing
// required column fails without producing rows.
func Parse(r io.Reader) ([]RawRow, Columns, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, &ParseError{Kind: KindUnreadable, Err: err}
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, &ParseError{Kind: KindEmptyFile}
	}

	// Raw values keep dates as serial numbers instead of locale-formatted text.
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, nil, &ParseError{Kind: KindUnreadable, Err: fmt.Errorf("read sheet %q: %w", sheets[0], err)}
	}
	return fromGrid(rows)
}

// fromGrid turns a sheet grid, header row first, into keyed rows.
func fromGrid(rows [][]string) ([]RawRow, Columns, error) {
	if len(rows) == 0 {
		return nil, nil, &ParseError{Kind: KindEmptyFile}
	}

	headers := rows[0]
	cols, missing := ResolveColumns(headers)
	if len(missing) > 0 {
		return nil, nil, &ParseError{Kind: KindMissingColumns, Columns: missing}
	}

	out := make([]RawRow, 0, len(rows)-1)
	for i, cells := range rows[1:] {
		if isBlank(cells) {
			continue
		}
		row := RawRow{Line: i + 2, Cells: make(map[string]string, len(headers))}
		for j, h := range headers {
			if _, dup := row.Cells[h]; dup {
				continue
			}
			value := ""
			if j < len(cells) {
				value = cells[j]
			}
			row.Cells[h] = value
		}
		out = append(out, row)
	}
	if len(out) == 0 {
		return nil, nil, &ParseError{Kind: KindEmptyFile}
	}
	return out, cols, nil
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Write encodes a single-sheet workbook with a header row followed by rows.
func Write(w io.Writer, sheet string, header []string, rows [][]any) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if sheet != "" && sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return fmt.Errorf("name sheet: %w", err)
		}
	} else {
		sheet = "Sheet1"
	}

	headerCells := make([]any, len(header))
	for i, h := range header {
		headerCells[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &headerCells); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("encode workbook: %w", err)
	}
	return nil
}
