// Package export writes estimated district boundaries to files.
package export

import (
	"encoding/json"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/the-scouts/incognita-sub000/internal/boundary"
)

// FeatureCollection builds one feature per district. The id property is
// numeric when the district id parses as an integer.
func FeatureCollection(districts []boundary.District) (*geojson.FeatureCollection, error) {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(districts))}
	for _, d := range districts {
		if d.Geometry == nil {
			return nil, eris.Errorf("export: district %s has no geometry", d.ID)
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       d.ID,
			Geometry: d.Geometry,
			Properties: map[string]any{
				"id":   propertyID(d.ID),
				"name": d.Name,
			},
		})
	}
	return fc, nil
}

// WriteGeoJSON encodes districts as a GeoJSON FeatureCollection.
func WriteGeoJSON(w io.Writer, districts []boundary.District) error {
	fc, err := FeatureCollection(districts)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(w).Encode(fc); err != nil {
		return eris.Wrap(err, "export: encode geojson")
	}
	return nil
}

// WriteGeoJSONFile writes districts to path, replacing any existing file.
func WriteGeoJSONFile(path string, districts []boundary.District) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := WriteGeoJSON(f, districts); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}

func propertyID(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}
