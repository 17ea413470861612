package store

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/the-scouts/incognita-sub000/internal/boundary"
)

// GeoJSONFile serves districts from a FeatureCollection written by the
// boundaries command. The file is re-read on every call so a new run is
// picked up without a restart.
type GeoJSONFile struct {
	Path string
}

// ListDistricts decodes the file. Feature ids come from the "id" property,
// falling back to the feature id.
func (f GeoJSONFile) ListDistricts(ctx context.Context) ([]boundary.District, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "store: list districts")
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: read %s", f.Path)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "store: decode %s", f.Path)
	}

	// Properties decode as float64 above; read ids again as raw JSON so
	// large numeric ids keep every digit.
	var raw struct {
		Features []struct {
			Properties struct {
				ID json.RawMessage `json:"id"`
			} `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrapf(err, "store: decode ids %s", f.Path)
	}

	out := make([]boundary.District, 0, len(fc.Features))
	for i, feat := range fc.Features {
		d := boundary.District{ID: feat.ID, Geometry: feat.Geometry}
		if i < len(raw.Features) {
			if id, ok := propertyID(raw.Features[i].Properties.ID); ok {
				d.ID = id
			}
		}
		if name, ok := feat.Properties["name"].(string); ok {
			d.Name = name
		}
		out = append(out, d)
	}
	return out, nil
}

// propertyID reads a string or numeric id without going through float64.
func propertyID(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}
