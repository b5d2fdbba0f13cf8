package fetch

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-scanner/internal/model"
)

// CSVOptions configures tabular parsing.
type CSVOptions struct {
	Delimiter  rune // default ','
	Comment    rune // 0 = none
	LazyQuotes bool
	TrimSpace  bool
	SkipRows   int // rows discarded before the header
	MaxRows    int // data row cap, default 100000
}

// ParseCSV reads tabular data into a Table. The first row after SkipRows is
// the header; ragged rows are tolerated.
func ParseCSV(r io.Reader, opts CSVOptions) (model.Table, error) {
	if opts.MaxRows <= 0 {
		opts.MaxRows = 100000
	}

	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	if opts.Comment != 0 {
		reader.Comment = opts.Comment
	}
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1

	var t model.Table
	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return t, nil
		}
		if err != nil {
			return t, eris.Wrap(err, "fetch: read csv row")
		}

		if opts.TrimSpace {
			for i, field := range record {
				record[i] = strings.TrimSpace(field)
			}
		}

		row++
		switch {
		case row <= opts.SkipRows:
		case t.Columns == nil:
			t.Columns = record
		default:
			t.Rows = append(t.Rows, record)
			if len(t.Rows) >= opts.MaxRows {
				return t, nil
			}
		}
	}
}
