package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// WriteXLSX writes the display sequence to an XLSX workbook at path,
// same grid as the CSV export.
func WriteXLSX(path string, t Table) error {
	grid := BuildGrid(t)

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Results")
	if err != nil {
		return eris.Wrap(err, "export: add xlsx sheet")
	}

	headerRow := sheet.AddRow()
	for _, h := range grid.Header {
		headerRow.AddCell().SetString(h)
	}
	for _, record := range grid.Rows {
		row := sheet.AddRow()
		for _, v := range record {
			row.AddCell().SetString(v)
		}
	}

	return eris.Wrapf(f.Save(path), "export: save xlsx %s", path)
}
