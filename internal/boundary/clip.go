package boundary

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkb"
	"github.com/twpayne/go-geos"
)

// LoadClipMask reads a WGS84 GeoJSON outline (a FeatureCollection, Feature or
// bare geometry), projects it and unions it into one planar mask.
func LoadClipMask(path string, projector *Projector) (*geos.Geom, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: read clip mask %s", path)
	}
	geoms, err := decodeGeoJSON(data)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: parse clip mask %s", path)
	}
	if len(geoms) == 0 {
		return nil, eris.Errorf("boundary: clip mask %s has no geometry", path)
	}

	parts := make([]*geos.Geom, 0, len(geoms))
	for _, g := range geoms {
		if err := projector.ForwardFlat(g.FlatCoords(), g.Stride()); err != nil {
			return nil, eris.Wrapf(err, "boundary: project clip mask %s", path)
		}
		b, err := wkb.Marshal(g, wkb.NDR)
		if err != nil {
			return nil, eris.Wrap(err, "boundary: encode clip mask")
		}
		part, err := geos.NewGeomFromWKB(b)
		if err != nil {
			return nil, eris.Wrap(err, "boundary: load clip mask")
		}
		parts = append(parts, part)
	}
	return geos.NewCollection(geos.TypeIDGeometryCollection, parts).UnaryUnion(), nil
}

func decodeGeoJSON(data []byte) ([]geom.T, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	switch head.Type {
	case "FeatureCollection":
		var fc geojson.FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, err
		}
		out := make([]geom.T, 0, len(fc.Features))
		for _, f := range fc.Features {
			if f.Geometry != nil {
				out = append(out, f.Geometry)
			}
		}
		return out, nil
	case "Feature":
		var f geojson.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		if f.Geometry == nil {
			return nil, nil
		}
		return []geom.T{f.Geometry}, nil
	default:
		var g geom.T
		if err := geojson.Unmarshal(data, &g); err != nil {
			return nil, err
		}
		return []geom.T{g}, nil
	}
}
