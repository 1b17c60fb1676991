// Package export serializes the current display sequence to CSV, XLSX
// and other sinks.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/litscope/internal/table"
)

// Table is the engine surface exports read from.
type Table interface {
	DisplayRows() []table.Row
	Columns() []table.Column
	KeyField() string
	Cell(columnID, rowID string) (table.CellValue, bool)
	ResolveCell(row table.Row, col table.Column) (table.Value, bool)
}

// Grid is a fully-rendered string grid: one header row plus data rows.
// Each visible derived column contributes two synthesized columns,
// "<label> (Confidence)" as a percentage string and "<label>
// (Reasoning)" as free text.
type Grid struct {
	Header []string
	Rows   [][]string
}

// BuildGrid renders the current display sequence.
func BuildGrid(t Table) Grid {
	cols := visibleColumns(t.Columns())
	keyField := t.KeyField()

	header := make([]string, 0, len(cols))
	for _, c := range cols {
		header = append(header, c.Label)
		if c.Kind == table.ColumnDerived {
			header = append(header, c.Label+" (Confidence)", c.Label+" (Reasoning)")
		}
	}

	displayRows := t.DisplayRows()
	rows := make([][]string, 0, len(displayRows))
	for _, row := range displayRows {
		record := make([]string, 0, len(header))
		for _, c := range cols {
			v, _ := t.ResolveCell(row, c)
			record = append(record, v.Display())
			if c.Kind == table.ColumnDerived {
				var confidence, reasoning string
				if cv, ok := t.Cell(c.ID, table.Identity(row, keyField)); ok && !cv.Failed {
					confidence = fmt.Sprintf("%.0f%%", cv.Confidence*100)
					reasoning = cv.Explanation
				}
				record = append(record, confidence, reasoning)
			}
		}
		rows = append(rows, record)
	}
	return Grid{Header: header, Rows: rows}
}

// WriteCSV writes the display sequence as CSV. encoding/csv applies
// standard quoting: values containing commas, quotes or newlines are
// wrapped and embedded quotes doubled.
func WriteCSV(w io.Writer, t Table) error {
	grid := BuildGrid(t)
	cw := csv.NewWriter(w)
	if err := cw.Write(grid.Header); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, record := range grid.Rows {
		if err := cw.Write(record); err != nil {
			return eris.Wrap(err, "export: write csv record")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

func visibleColumns(cols []table.Column) []table.Column {
	out := make([]table.Column, 0, len(cols))
	for _, c := range cols {
		if c.Visible {
			out = append(out, c)
		}
	}
	return out
}
