package boundary

import (
	"context"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Record is one geocoded census row ready for estimation.
type Record struct {
	ObjectID   string
	DistrictID string
	Lon, Lat   float64
}

// Options configures an Estimator.
type Options struct {
	Projection ProjectionConfig
	Solver     SolverConfig
	Workers    int
	QuadSegs   int
	// ClipPath optionally names a WGS84 GeoJSON outline to clip districts to.
	ClipPath string
}

// Result is the outcome of one estimation run.
type Result struct {
	Districts []District
	Skipped   []DistrictInfo
	Points    *PointSet
	Dedup     DedupStats
	Solve     SolveStats
	Elapsed   time.Duration
}

// Estimator runs projection, deduplication, neighbour search, solving and
// polygon building in order.
type Estimator struct {
	projector *Projector
	finder    NeighborFinder
	solver    *Solver
	builder   *PolygonBuilder
}

// NewEstimator wires the pipeline stages from options.
func NewEstimator(opts Options) (*Estimator, error) {
	projector, err := NewProjector(opts.Projection)
	if err != nil {
		return nil, err
	}
	builder := NewPolygonBuilder(projector, opts.QuadSegs, nil)
	if opts.ClipPath != "" {
		mask, err := LoadClipMask(opts.ClipPath, projector)
		if err != nil {
			return nil, err
		}
		builder = NewPolygonBuilder(projector, opts.QuadSegs, mask)
	}
	return &Estimator{
		projector: projector,
		finder:    NeighborFinder{Workers: opts.Workers},
		solver:    NewSolver(opts.Solver),
		builder:   builder,
	}, nil
}

// Projector exposes the estimator's coordinate transform.
func (e *Estimator) Projector() *Projector { return e.projector }

// Estimate projects geographic records and estimates district boundaries.
// Any coordinate outside the projection domain aborts the run.
func (e *Estimator) Estimate(ctx context.Context, records []Record, districts []DistrictInfo) (*Result, error) {
	locs := make([]Location, len(records))
	for i, r := range records {
		x, y, err := e.projector.Forward(r.Lon, r.Lat)
		if err != nil {
			return nil, eris.Wrapf(err, "boundary: record %s", r.ObjectID)
		}
		locs[i] = Location{ObjectID: r.ObjectID, DistrictID: r.DistrictID, X: x, Y: y}
	}
	return e.EstimatePlanar(ctx, locs, districts)
}

// EstimatePlanar estimates district boundaries from already projected locations.
func (e *Estimator) EstimatePlanar(ctx context.Context, locs []Location, districts []DistrictInfo) (*Result, error) {
	start := time.Now()
	log := zap.L().With(zap.String("component", "boundary"))

	set, dedup := Deduplicate(locs)
	log.Info("found distinct section locations",
		zap.Int("records", dedup.Records),
		zap.Int("points", dedup.Points),
		zap.Int("district_conflicts", dedup.Conflicts),
	)

	if err := e.finder.Find(ctx, set); err != nil {
		return nil, err
	}
	stats := e.solver.Solve(set)

	built, skipped, err := e.builder.Build(set, withPointDistricts(set, districts))
	if err != nil {
		return nil, err
	}
	SortDistricts(built)

	res := &Result{
		Districts: built,
		Skipped:   skipped,
		Points:    set,
		Dedup:     dedup,
		Solve:     stats,
		Elapsed:   time.Since(start),
	}
	log.Info("district boundaries estimated",
		zap.Int("districts", len(built)),
		zap.Int("skipped", len(skipped)),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

// withPointDistricts appends any district that owns points but is missing
// from the catalogue, so no point is silently dropped.
func withPointDistricts(set *PointSet, districts []DistrictInfo) []DistrictInfo {
	known := make(map[string]bool, len(districts))
	for _, d := range districts {
		known[d.ID] = true
	}
	out := slices.Clone(districts)
	for i := range set.Points {
		id := set.Points[i].DistrictID
		if !known[id] {
			known[id] = true
			out = append(out, DistrictInfo{ID: id})
		}
	}
	return out
}
