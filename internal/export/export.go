// Package export writes rasterised score fields for rendering elsewhere.
package export

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/sitescore/internal/raster"
)

// Sheet names written by WriteXLSX.
const (
	SheetScores  = "scores"
	SheetSummary = "summary"
)

func formatScore(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteCSV writes the field in long format with a lng,lat,score header.
// Undefined cells have an empty score.
func WriteCSV(w io.Writer, f *raster.Field) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"lng", "lat", "score"}); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for r, lat := range f.Lats {
		latStr := strconv.FormatFloat(lat, 'f', -1, 64)
		for c, lng := range f.Lngs {
			rec := []string{strconv.FormatFloat(lng, 'f', -1, 64), latStr, formatScore(f.Values[r][c])}
			if err := cw.Write(rec); err != nil {
				return eris.Wrap(err, "export: write csv row")
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "export: flush csv")
	}
	return nil
}

// WriteXLSX saves the field as a workbook: a grid sheet with longitudes across
// the first row and latitudes down the first column, and a summary sheet.
// Undefined cells are left blank.
func WriteXLSX(path string, f *raster.Field) error {
	wb := xlsx.NewFile()

	grid, err := wb.AddSheet(SheetScores)
	if err != nil {
		return eris.Wrap(err, "export: add scores sheet")
	}
	header := grid.AddRow()
	header.AddCell().SetString("lat\\lng")
	for _, lng := range f.Lngs {
		header.AddCell().SetFloat(lng)
	}
	for r, lat := range f.Lats {
		row := grid.AddRow()
		row.AddCell().SetFloat(lat)
		for c := range f.Lngs {
			cell := row.AddCell()
			if v := f.Values[r][c]; !math.IsNaN(v) {
				cell.SetFloat(v)
			}
		}
	}

	summary, err := wb.AddSheet(SheetSummary)
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}
	s := f.Summary()
	addPair := func(key string, set func(*xlsx.Cell)) {
		row := summary.AddRow()
		row.AddCell().SetString(key)
		set(row.AddCell())
	}
	addPair("cols", func(c *xlsx.Cell) { c.SetInt(len(f.Lngs)) })
	addPair("rows", func(c *xlsx.Cell) { c.SetInt(len(f.Lats)) })
	addPair("defined", func(c *xlsx.Cell) { c.SetInt(s.Defined) })
	addPair("undefined", func(c *xlsx.Cell) { c.SetInt(s.Undefined) })
	addPair("zero", func(c *xlsx.Cell) { c.SetInt(s.Zero) })
	addPair("min", func(c *xlsx.Cell) { c.SetFloat(s.Min) })
	addPair("max", func(c *xlsx.Cell) { c.SetFloat(s.Max) })
	addPair("mean", func(c *xlsx.Cell) { c.SetFloat(s.Mean) })
	addPair("elapsed_secs", func(c *xlsx.Cell) { c.SetFloat(f.Elapsed.Seconds()) })

	if err := wb.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	zap.L().With(zap.String("component", "export.xlsx")).
		Info("workbook written", zap.String("path", path), zap.Int("cells", s.Cells))
	return nil
}
