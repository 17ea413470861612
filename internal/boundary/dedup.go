package boundary

import (
	"cmp"
	"slices"

	"go.uber.org/zap"
)

// Location is a single census record placed in planar space.
type Location struct {
	ObjectID   string
	DistrictID string
	X, Y       float64
}

// DedupStats summarises a deduplication pass.
type DedupStats struct {
	Records   int `json:"records" yaml:"records"`
	Points    int `json:"points" yaml:"points"`
	Conflicts int `json:"conflicts" yaml:"conflicts"`
}

// Deduplicate collapses records sharing identical coordinates into one Point.
// The first district seen at a location wins; disagreeing records are logged
// and counted. Points are indexed in (x, y) order so that the same records in
// any order produce the same PointSet.
func Deduplicate(locs []Location) (*PointSet, DedupStats) {
	log := zap.L().With(zap.String("component", "boundary.dedup"))

	type key struct{ x, y float64 }
	byKey := make(map[key]*Point, len(locs))
	stats := DedupStats{Records: len(locs)}

	for _, loc := range locs {
		k := key{loc.X, loc.Y}
		p, ok := byKey[k]
		if !ok {
			byKey[k] = &Point{X: loc.X, Y: loc.Y, DistrictID: loc.DistrictID, ObjectIDs: []string{loc.ObjectID}}
			continue
		}
		if p.DistrictID != loc.DistrictID {
			stats.Conflicts++
			log.Warn("co-located records disagree on district, keeping first",
				zap.Float64("x", loc.X),
				zap.Float64("y", loc.Y),
				zap.String("kept", p.DistrictID),
				zap.String("dropped", loc.DistrictID),
				zap.String("object_id", loc.ObjectID),
			)
		}
		if !slices.Contains(p.ObjectIDs, loc.ObjectID) {
			p.ObjectIDs = append(p.ObjectIDs, loc.ObjectID)
		}
	}

	points := make([]Point, 0, len(byKey))
	for _, p := range byKey {
		slices.Sort(p.ObjectIDs)
		points = append(points, *p)
	}
	slices.SortFunc(points, func(a, b Point) int {
		if c := cmp.Compare(a.X, b.X); c != 0 {
			return c
		}
		return cmp.Compare(a.Y, b.Y)
	})
	for i := range points {
		points[i].Index = i
	}

	stats.Points = len(points)
	return &PointSet{Points: points}, stats
}
