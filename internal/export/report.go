package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/the-scouts/incognita-sub000/internal/boundary"
)

// DistrictRow summarises one district for the boundary report.
type DistrictRow struct {
	ID       string  `json:"id" yaml:"id"`
	Name     string  `json:"name" yaml:"name"`
	Points   int     `json:"points" yaml:"points"`
	Resolved int     `json:"resolved" yaml:"resolved"`
	AreaKm2  float64 `json:"area_km2" yaml:"area_km2"`
}

// Rows summarises every estimated district. Resolved counts points that
// contribute a circle of positive radius.
func Rows(res *boundary.Result) []DistrictRow {
	rows := make([]DistrictRow, 0, len(res.Districts))
	for _, d := range res.Districts {
		row := DistrictRow{ID: d.ID, Name: d.Name, Points: len(d.Points), AreaKm2: d.Area() / 1e6}
		for _, i := range d.Points {
			if b := res.Points.Points[i].Buffer; b.Resolved && b.Distance > 0 {
				row.Resolved++
			}
		}
		rows = append(rows, row)
	}
	return rows
}

var reportHeader = []string{"D_ID", "D_name", "points", "resolved_points", "area_km2"}

// WriteReport saves the district summary as an XLSX workbook with a
// "districts" sheet and, when any were skipped, a "skipped" sheet.
func WriteReport(path string, rows []DistrictRow, skipped []boundary.DistrictInfo) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet("districts")
	if err != nil {
		return eris.Wrap(err, "export: add districts sheet")
	}
	addStrings(sheet.AddRow(), reportHeader...)
	for _, r := range rows {
		row := sheet.AddRow()
		addStrings(row, r.ID, r.Name)
		row.AddCell().SetInt(r.Points)
		row.AddCell().SetInt(r.Resolved)
		row.AddCell().SetFloat(r.AreaKm2)
	}

	if len(skipped) > 0 {
		sk, err := f.AddSheet("skipped")
		if err != nil {
			return eris.Wrap(err, "export: add skipped sheet")
		}
		addStrings(sk.AddRow(), "D_ID", "D_name")
		for _, d := range skipped {
			addStrings(sk.AddRow(), d.ID, d.Name)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func addStrings(row *xlsx.Row, values ...string) {
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
