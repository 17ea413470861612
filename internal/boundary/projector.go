package boundary

import (
	"math"

	"github.com/ctessum/geom/proj"
	"github.com/rotisserie/eris"
)

const (
	// WGS84 is the geographic CRS of the census coordinates and the output.
	WGS84 = "+proj=longlat +datum=WGS84 +no_defs"

	// BritishNationalGrid (EPSG:27700) measures in metres with low distortion
	// across Great Britain and Northern Ireland.
	BritishNationalGrid = "+proj=tmerc +lat_0=49 +lon_0=-2 +k=0.9996012717 +x_0=400000 +y_0=-100000 " +
		"+ellps=airy +towgs84=446.448,-125.157,542.06,0.15,0.247,0.842,-20.489 +units=m +no_defs"
)

// Domain is the lon/lat window a projection is trusted over.
type Domain struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// BritishNationalGridDomain is the area of use of EPSG:27700, padded slightly.
var BritishNationalGridDomain = Domain{MinLon: -9.5, MinLat: 49.0, MaxLon: 2.5, MaxLat: 61.5}

func (d Domain) contains(lon, lat float64) bool {
	return lon >= d.MinLon && lon <= d.MaxLon && lat >= d.MinLat && lat <= d.MaxLat
}

// ProjectionConfig selects the geographic and planar reference systems.
type ProjectionConfig struct {
	Geographic string
	Planar     string
	Domain     Domain
}

// DefaultProjection projects WGS84 onto the British National Grid.
func DefaultProjection() ProjectionConfig {
	return ProjectionConfig{
		Geographic: WGS84,
		Planar:     BritishNationalGrid,
		Domain:     BritishNationalGridDomain,
	}
}

// Projector converts between geographic lon/lat and planar metres.
type Projector struct {
	forward proj.Transformer
	inverse proj.Transformer
	domain  Domain
}

// NewProjector parses both proj4 definitions and prepares the transforms.
func NewProjector(cfg ProjectionConfig) (*Projector, error) {
	geo, err := proj.Parse(cfg.Geographic)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: parse geographic crs")
	}
	planar, err := proj.Parse(cfg.Planar)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: parse planar crs")
	}
	fwd, err := geo.NewTransform(planar)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: forward transform")
	}
	inv, err := planar.NewTransform(geo)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: inverse transform")
	}
	return &Projector{forward: fwd, inverse: inv, domain: cfg.Domain}, nil
}

// Forward projects lon/lat degrees to planar metres.
func (p *Projector) Forward(lon, lat float64) (float64, float64, error) {
	if !finite(lon, lat) || !p.domain.contains(lon, lat) {
		return 0, 0, &ProjectionError{X: lon, Y: lat, Reason: "outside projection domain"}
	}
	x, y, err := p.forward(lon, lat)
	if err != nil {
		return 0, 0, &ProjectionError{X: lon, Y: lat, Reason: "forward transform", Err: err}
	}
	if !finite(x, y) {
		return 0, 0, &ProjectionError{X: lon, Y: lat, Reason: "forward transform is not finite"}
	}
	return x, y, nil
}

// Inverse maps planar metres back to lon/lat degrees.
func (p *Projector) Inverse(x, y float64) (float64, float64, error) {
	if !finite(x, y) {
		return 0, 0, &ProjectionError{X: x, Y: y, Reason: "coordinate is not finite"}
	}
	lon, lat, err := p.inverse(x, y)
	if err != nil {
		return 0, 0, &ProjectionError{X: x, Y: y, Reason: "inverse transform", Err: err}
	}
	if !finite(lon, lat) || !p.domain.contains(lon, lat) {
		return 0, 0, &ProjectionError{X: x, Y: y, Reason: "inverse falls outside projection domain"}
	}
	return lon, lat, nil
}

// InverseFlat rewrites an interleaved coordinate slice in place.
func (p *Projector) InverseFlat(flat []float64, stride int) error {
	return transformFlat(flat, stride, p.Inverse)
}

// ForwardFlat rewrites an interleaved lon/lat slice into planar metres in place.
func (p *Projector) ForwardFlat(flat []float64, stride int) error {
	return transformFlat(flat, stride, p.Forward)
}

func transformFlat(flat []float64, stride int, fn func(a, b float64) (float64, float64, error)) error {
	if stride < 2 {
		return eris.Errorf("boundary: invalid coordinate stride %d", stride)
	}
	for i := 0; i+1 < len(flat); i += stride {
		a, b, err := fn(flat[i], flat[i+1])
		if err != nil {
			return err
		}
		flat[i], flat[i+1] = a, b
	}
	return nil
}

func finite(a, b float64) bool {
	return !math.IsNaN(a) && !math.IsNaN(b) && !math.IsInf(a, 0) && !math.IsInf(b, 0)
}
