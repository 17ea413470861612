package export

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/the-scouts/incognita-sub000/internal/boundary"
)

// estimate runs the planar pipeline on two districts near Leeds plus an
// empty catalogue entry.
func estimate(t *testing.T) *boundary.Result {
	t.Helper()
	e, err := boundary.NewEstimator(boundary.Options{Projection: boundary.DefaultProjection()})
	require.NoError(t, err)

	const x0, y0 = 430000.0, 433000.0
	res, err := e.EstimatePlanar(context.Background(), []boundary.Location{
		{ObjectID: "a0", DistrictID: "101", X: x0, Y: y0},
		{ObjectID: "a1", DistrictID: "101", X: x0, Y: y0 + 10},
		{ObjectID: "b0", DistrictID: "B7", X: x0, Y: y0 + 100},
		{ObjectID: "b1", DistrictID: "B7", X: x0, Y: y0 + 110},
	}, []boundary.DistrictInfo{
		{ID: "101", Name: "Leeds North"},
		{ID: "999", Name: "Dormant"},
		{ID: "B7", Name: "Bramley"},
	})
	require.NoError(t, err)
	require.Len(t, res.Districts, 2)
	return res
}

func TestWriteGeoJSON(t *testing.T) {
	res := estimate(t)

	var buf bytes.Buffer
	require.NoError(t, WriteGeoJSON(&buf, res.Districts))

	var raw struct {
		Type     string `json:"type"`
		Features []struct {
			Type       string         `json:"type"`
			Properties map[string]any `json:"properties"`
			Geometry   struct {
				Type string `json:"type"`
			} `json:"geometry"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	assert.Equal(t, "FeatureCollection", raw.Type)
	require.Len(t, raw.Features, 2)

	assert.Equal(t, float64(101), raw.Features[0].Properties["id"], "numeric ids stay numeric")
	assert.Equal(t, "Leeds North", raw.Features[0].Properties["name"])
	assert.Equal(t, "B7", raw.Features[1].Properties["id"])
	assert.Equal(t, "Polygon", raw.Features[0].Geometry.Type)

	var fc geojson.FeatureCollection
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fc))
	p, ok := fc.Features[0].Geometry.(*geom.Polygon)
	require.True(t, ok)
	assert.InDelta(t, 53.8, p.Bounds().Min(1), 0.5)
}

func TestWriteGeoJSON_EmptyGeometry(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteGeoJSON(&buf, []boundary.District{
		{ID: "5", Name: "Gone", Geometry: geom.NewMultiPolygon(geom.XY)},
	}))
	assert.Contains(t, buf.String(), `"MultiPolygon"`)

	err := WriteGeoJSON(&buf, []boundary.District{{ID: "6"}})
	assert.Error(t, err)
}

func TestWriteGeoJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "districts.geojson")
	require.NoError(t, WriteGeoJSONFile(path, estimate(t).Districts))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), `{"type":"FeatureCollection"`))

	assert.Error(t, WriteGeoJSONFile(filepath.Join(t.TempDir(), "missing", "x.geojson"), nil))
}

func TestWriteShapefile(t *testing.T) {
	res := estimate(t)
	districts := append(res.Districts, boundary.District{
		ID: "5", Name: "Gone", Geometry: geom.NewMultiPolygon(geom.XY),
	})

	dir := t.TempDir()
	path := filepath.Join(dir, "districts.shp")
	require.NoError(t, WriteShapefile(path, districts))

	_, err := os.Stat(filepath.Join(dir, "districts.prj"))
	require.NoError(t, err)

	reader, err := shp.Open(path)
	require.NoError(t, err)
	defer reader.Close()

	fields := reader.Fields()
	require.Len(t, fields, 3)
	assert.Equal(t, "D_ID", strings.TrimRight(fields[0].String(), "\x00"))

	var ids []string
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		require.True(t, ok)
		require.Positive(t, poly.NumParts)
		outer := poly.Points[:partEnd(poly, 0)]
		assert.Negative(t, signedArea(outer), "exterior rings are clockwise")
		ids = append(ids, strings.TrimSpace(reader.Attribute(0)))
	}
	assert.Equal(t, []string{"101", "B7"}, ids, "empty districts are left out")
}

func TestWriteShapefile_BadPath(t *testing.T) {
	assert.Error(t, WriteShapefile(filepath.Join(t.TempDir(), "districts.geojson"), nil))
}

func TestShapeParts_Orientation(t *testing.T) {
	// Counter-clockwise exterior with a clockwise hole: both get flipped.
	p := geom.NewPolygonFlat(geom.XY, []float64{
		0, 0, 10, 0, 10, 10, 0, 10, 0, 0,
		2, 2, 2, 4, 4, 4, 4, 2, 2, 2,
	}, []int{10, 20})

	parts := shapeParts(p)
	require.Len(t, parts, 2)
	assert.Negative(t, signedArea(parts[0]))
	assert.Positive(t, signedArea(parts[1]))

	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(p))
	assert.Len(t, shapeParts(mp), 2)
	assert.Empty(t, shapeParts(geom.NewPoint(geom.XY)))
}

func TestRows(t *testing.T) {
	rows := Rows(estimate(t))
	require.Len(t, rows, 2)

	assert.Equal(t, "101", rows[0].ID)
	assert.Equal(t, 2, rows[0].Points)
	assert.Equal(t, 2, rows[0].Resolved)
	assert.Greater(t, rows[0].AreaKm2, 0.0)
	// Two tangent circles of 55m and 45m: the 55m one contains the other.
	assert.InDelta(t, 3.14159*55*55/1e6, rows[0].AreaKm2, 0.0005)
}

func TestWriteReport(t *testing.T) {
	res := estimate(t)
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, WriteReport(path, Rows(res), res.Skipped))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	districts := f.Sheet["districts"]
	require.NotNil(t, districts)
	require.Len(t, districts.Rows, 3)
	assert.Equal(t, "D_ID", districts.Rows[0].Cells[0].String())
	assert.Equal(t, "B7", districts.Rows[2].Cells[0].String())
	n, err := districts.Rows[1].Cells[2].Int()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	area, err := districts.Rows[1].Cells[4].Float()
	require.NoError(t, err)
	assert.Greater(t, area, 0.0)

	skipped := f.Sheet["skipped"]
	require.NotNil(t, skipped)
	assert.Equal(t, "999", skipped.Rows[1].Cells[0].String())
	assert.Equal(t, "Dormant", skipped.Rows[1].Cells[1].String())
}

func TestWriteReport_NoSkippedSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, WriteReport(path, nil, nil))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Sheets, 1)
}

func TestSummaryRoundTrip(t *testing.T) {
	res := estimate(t)
	started := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	s := NewSummary("run-1", "census.csv", started, res)
	s.Outputs = []string{"districts.geojson"}

	path := filepath.Join(t.TempDir(), "summary.yaml")
	require.NoError(t, WriteSummary(path, s))

	got, err := ReadSummary(path)
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.True(t, started.Equal(got.StartedAt))
	assert.Equal(t, []string{"999"}, got.Skipped)
	assert.Equal(t, res.Solve, got.Solve)
	assert.Equal(t, 4, got.Dedup.Points)
	require.Len(t, got.Districts, 2)
	assert.Equal(t, "Bramley", got.Districts[1].Name)
	assert.Empty(t, got.Unresolved)

	_, err = ReadSummary(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func partEnd(p *shp.Polygon, part int) int32 {
	if int32(part+1) < p.NumParts {
		return p.Parts[part+1]
	}
	return int32(len(p.Points))
}
