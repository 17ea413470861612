package boundary

import (
	"cmp"
	"slices"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"github.com/twpayne/go-geos"
	"go.uber.org/zap"
)

// DefaultQuadSegs is the number of segments per quarter circle in a buffer.
const DefaultQuadSegs = 16

// DistrictInfo identifies a district independently of its points.
type DistrictInfo struct {
	ID   string
	Name string
}

// District is an estimated district territory.
type District struct {
	ID     string
	Name   string
	Points []int

	// Planar is the union of buffered points in projected metres.
	Planar *geos.Geom
	// Geometry is Planar re-projected to WGS84 lon/lat.
	Geometry geom.T
}

// Area returns the planar area in square metres.
func (d *District) Area() float64 {
	if d.Planar == nil {
		return 0
	}
	return d.Planar.Area()
}

// PolygonBuilder turns solved points into district polygons.
type PolygonBuilder struct {
	projector *Projector
	quadSegs  int
	clip      *geos.Geom
}

// NewPolygonBuilder creates a builder. A nil clip disables clipping; when set
// it must be in the same planar CRS as the points.
func NewPolygonBuilder(projector *Projector, quadSegs int, clip *geos.Geom) *PolygonBuilder {
	if quadSegs <= 0 {
		quadSegs = DefaultQuadSegs
	}
	return &PolygonBuilder{projector: projector, quadSegs: quadSegs, clip: clip}
}

// Build unions each district's circles. Districts without points are
// returned separately as skipped; they are not an error.
func (b *PolygonBuilder) Build(set *PointSet, districts []DistrictInfo) ([]District, []DistrictInfo, error) {
	log := zap.L().With(zap.String("component", "boundary.polygon"))
	byDistrict := set.ByDistrict()

	var (
		out     []District
		skipped []DistrictInfo
	)
	for n, info := range districts {
		idx := byDistrict[info.ID]
		if len(idx) == 0 {
			skipped = append(skipped, info)
			continue
		}
		log.Debug("building district boundary",
			zap.String("district_id", info.ID),
			zap.String("district", info.Name),
			zap.Int("n", n+1),
			zap.Int("of", len(districts)),
			zap.Int("points", len(idx)),
		)

		planar := b.union(set, idx)
		if b.clip != nil {
			planar = planar.Intersection(b.clip)
		}
		if planar.IsEmpty() {
			log.Warn("district boundary is empty", zap.String("district_id", info.ID), zap.Int("points", len(idx)))
		}

		g, err := b.toGeographic(planar)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "boundary: district %s", info.ID)
		}
		out = append(out, District{ID: info.ID, Name: info.Name, Points: idx, Planar: planar, Geometry: g})
	}

	if len(skipped) > 0 {
		log.Info("skipped districts without valid locations", zap.Int("skipped", len(skipped)))
	}
	return out, skipped, nil
}

// union buffers every resolved point by its radius and merges the circles.
func (b *PolygonBuilder) union(set *PointSet, idx []int) *geos.Geom {
	circles := make([]*geos.Geom, 0, len(idx))
	for _, i := range idx {
		p := set.Points[i]
		if !p.Buffer.Resolved || p.Buffer.Distance <= 0 {
			continue
		}
		circles = append(circles, geos.NewPointFromXY(p.X, p.Y).Buffer(p.Buffer.Distance, b.quadSegs))
	}
	return geos.NewCollection(geos.TypeIDGeometryCollection, circles).UnaryUnion()
}

func (b *PolygonBuilder) toGeographic(planar *geos.Geom) (geom.T, error) {
	if planar.IsEmpty() {
		return geom.NewMultiPolygon(geom.XY), nil
	}
	g, err := wkb.Unmarshal(planar.ToWKB())
	if err != nil {
		return nil, eris.Wrap(err, "boundary: decode polygon")
	}
	switch g.(type) {
	case *geom.Polygon, *geom.MultiPolygon:
	default:
		// Unions of circles are areal; anything else means an empty
		// collection slipped through.
		return geom.NewMultiPolygon(geom.XY), nil
	}
	if err := b.projector.InverseFlat(g.FlatCoords(), g.Stride()); err != nil {
		return nil, err
	}
	return g, nil
}

// SortDistricts orders districts by id for stable output.
func SortDistricts(ds []District) {
	slices.SortFunc(ds, func(a, b District) int { return cmp.Compare(a.ID, b.ID) })
}
