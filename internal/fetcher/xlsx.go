package fetcher

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions configures ReadXLSX.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// ReadXLSX parses an in-memory XLSX workbook into rows of strings.
func ReadXLSX(data []byte, opts XLSXOptions) ([][]string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open workbook")
	}

	sheet, err := pickSheet(f, opts)
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			cells[i] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func pickSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex < 0 || opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (%d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}
