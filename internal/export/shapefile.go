package export

import (
	"os"
	"slices"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/the-scouts/incognita-sub000/internal/boundary"
)

// wgs84PRJ is the ESRI WKT for EPSG:4326.
const wgs84PRJ = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],` +
	`PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// Shapefile attribute columns, in order.
const (
	fieldID = iota
	fieldName
	fieldArea
)

// WriteShapefile writes districts as a polygon shapefile with a WGS84 .prj.
// Districts with empty geometry have no shape to write and are left out.
func WriteShapefile(path string, districts []boundary.District) error {
	if !strings.HasSuffix(path, ".shp") {
		return eris.Errorf("export: shapefile path %s must end in .shp", path)
	}
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "export: create shapefile %s", path)
	}
	defer w.Close()

	w.SetFields([]shp.Field{
		shp.StringField("D_ID", 20),
		shp.StringField("D_name", 100),
		shp.FloatField("area_km2", 18, 4),
	})

	var empty int
	for _, d := range districts {
		parts := shapeParts(d.Geometry)
		if len(parts) == 0 {
			empty++
			continue
		}
		poly := shp.Polygon(*shp.NewPolyLine(parts))
		row := int(w.Write(&poly))
		attrs := []any{fieldID: d.ID, fieldName: d.Name, fieldArea: d.Area() / 1e6}
		for field, v := range attrs {
			if err := w.WriteAttribute(row, field, v); err != nil {
				return eris.Wrapf(err, "export: write attributes for district %s", d.ID)
			}
		}
	}
	if empty > 0 {
		zap.L().Warn("export: empty districts left out of shapefile", zap.Int("districts", empty))
	}

	prj := strings.TrimSuffix(path, ".shp") + ".prj"
	if err := os.WriteFile(prj, []byte(wgs84PRJ), 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", prj)
	}
	return nil
}

// shapeParts flattens a polygonal geometry into shapefile rings: exteriors
// clockwise, holes counter-clockwise.
func shapeParts(g geom.T) [][]shp.Point {
	var polys []*geom.Polygon
	switch t := g.(type) {
	case *geom.Polygon:
		polys = append(polys, t)
	case *geom.MultiPolygon:
		for i := range t.NumPolygons() {
			polys = append(polys, t.Polygon(i))
		}
	}

	var parts [][]shp.Point
	for _, p := range polys {
		for j := range p.NumLinearRings() {
			ring := p.LinearRing(j)
			pts := ringPoints(ring.FlatCoords(), ring.Stride())
			if len(pts) < 4 {
				continue
			}
			if clockwise := signedArea(pts) < 0; clockwise != (j == 0) {
				slices.Reverse(pts)
			}
			parts = append(parts, pts)
		}
	}
	return parts
}

func ringPoints(flat []float64, stride int) []shp.Point {
	pts := make([]shp.Point, 0, len(flat)/stride)
	for i := 0; i+1 < len(flat); i += stride {
		pts = append(pts, shp.Point{X: flat[i], Y: flat[i+1]})
	}
	return pts
}

// signedArea is positive for counter-clockwise rings.
func signedArea(pts []shp.Point) float64 {
	var a float64
	for i := range len(pts) - 1 {
		a += pts[i].X*pts[i+1].Y - pts[i+1].X*pts[i].Y
	}
	return a / 2
}
