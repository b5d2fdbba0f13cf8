package fetch

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/market-scanner/internal/model"
)

// XLSXOptions configures workbook parsing.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // overrides SheetIndex when set
	SkipRows   int    // rows discarded before the header
	MaxRows    int    // data row cap, default 100000
}

// ParseXLSX reads one sheet of a workbook into a Table. The first row after
// SkipRows is the header.
func ParseXLSX(data []byte, opts XLSXOptions) (model.Table, error) {
	if opts.MaxRows <= 0 {
		opts.MaxRows = 100000
	}

	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return model.Table{}, eris.Wrap(err, "fetch: open xlsx")
	}
	sheet, err := pickSheet(f, opts)
	if err != nil {
		return model.Table{}, err
	}

	var t model.Table
	for i, row := range sheet.Rows {
		if i < opts.SkipRows {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		if t.Columns == nil {
			t.Columns = cells
			continue
		}
		t.Rows = append(t.Rows, cells)
		if len(t.Rows) >= opts.MaxRows {
			break
		}
	}
	return t, nil
}

func pickSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("fetch: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("fetch: sheet index %d out of range (workbook has %d)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}
