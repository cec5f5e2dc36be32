package spreadsheet

import (
	"fmt"
	"io"

	"github.com/extrame/xls"
)

// BIFF8 worksheets are at most 256 columns wide.
const maxLegacyColumns = 256

// readLegacySheet decodes the first sheet of a BIFF (.xls) workbook into the
// same header-first grid excelize returns. Trailing blank cells and rows are
// dropped; rows missing from the stream read as blank.
func readLegacySheet(r io.ReadSeeker) (grid [][]string, err error) {
	// The BIFF decoder panics on some truncated streams.
	defer func() {
		if p := recover(); p != nil {
			grid, err = nil, &ParseError{Kind: KindUnreadable, Err: fmt.Errorf("decode xls: %v", p)}
		}
	}()

	wb, err := xls.OpenReader(r, "utf-8")
	if err != nil {
		return nil, &ParseError{Kind: KindUnreadable, Err: err}
	}
	if wb.NumSheets() == 0 {
		return nil, nil
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, nil
	}

	last := int(sheet.MaxRow)
	grid = make([][]string, 0, last+1)
	for i := 0; i <= last; i++ {
		row := sheet.Row(i)
		if row == nil {
			grid = append(grid, nil)
			continue
		}
		cells := make([]string, maxLegacyColumns)
		width := 0
		for c := range cells {
			cells[c] = row.Col(c)
			if cells[c] != "" {
				width = c + 1
			}
		}
		grid = append(grid, cells[:width])
	}

	for len(grid) > 0 && len(grid[len(grid)-1]) == 0 {
		grid = grid[:len(grid)-1]
	}
	return grid, nil
}
