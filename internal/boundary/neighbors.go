package boundary

import (
	"cmp"
	"context"
	"math"
	"runtime"
	"slices"

	"github.com/dhconnelly/rtreego"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// candidateFactor bounds the cross-district neighbours that can ever
	// constrain a point: a resolved buffer never exceeds D(p).
	candidateFactor = 2.0
	// interestFactor bounds the wider set watched for chained tie-breaks.
	interestFactor = 3.0

	rtreeMinChildren = 25
	rtreeMaxChildren = 50
	pointTolerance   = 1e-9
)

// indexedPoint adapts a Point for the R-tree.
type indexedPoint struct {
	index int
	rect  rtreego.Rect
}

func (p indexedPoint) Bounds() rtreego.Rect { return p.rect }

// NeighborFinder fills in Point.Nearest and Point.Interest.
type NeighborFinder struct {
	// Workers shards the per-point queries. Zero uses GOMAXPROCS.
	Workers int
}

// Find computes candidate neighbours for every point in the set. Each point
// is only written by the worker that owns it; the tree and coordinates are
// shared read-only.
func (f NeighborFinder) Find(ctx context.Context, set *PointSet) error {
	n := set.Len()
	if n == 0 {
		return nil
	}

	objs := make([]rtreego.Spatial, n)
	for i := range set.Points {
		p := &set.Points[i]
		objs[i] = indexedPoint{index: i, rect: rtreego.Point{p.X, p.Y}.ToRect(pointTolerance)}
	}
	tree := rtreego.NewTree(2, rtreeMinChildren, rtreeMaxChildren, objs...)

	workers := f.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunk := (n + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return eris.Wrap(err, "boundary: neighbour search cancelled")
				}
				findNeighbors(tree, set, i)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	isolated := 0
	for i := range set.Points {
		if len(set.Points[i].Nearest) == 0 {
			isolated++
		}
	}
	zap.L().Debug("boundary: neighbour search complete",
		zap.Int("points", n),
		zap.Int("workers", workers),
		zap.Int("isolated", isolated),
	)
	return nil
}

func findNeighbors(tree *rtreego.Rtree, set *PointSet, i int) {
	p := &set.Points[i]
	approx, ok := nearestOtherDistrict(tree, set, i)
	if !ok {
		p.Nearest = nil
		p.Interest = nil
		return
	}

	// The R-tree measures to padded rectangles, so widen the window and take
	// the exact minimum from the hits.
	window := candidateFactor*approx + 2*pointTolerance
	hits := tree.SearchIntersect(rtreego.Point{p.X, p.Y}.ToRect(window))
	nearest := math.Inf(1)
	for _, h := range hits {
		j := h.(indexedPoint).index
		if set.Points[j].DistrictID == p.DistrictID {
			continue
		}
		nearest = min(nearest, set.Distance(i, j))
	}

	var cands []Neighbor
	for _, h := range hits {
		j := h.(indexedPoint).index
		if set.Points[j].DistrictID == p.DistrictID {
			continue
		}
		if d := set.Distance(i, j); d < candidateFactor*nearest {
			cands = append(cands, Neighbor{Index: j, Distance: d})
		}
	}
	slices.SortFunc(cands, compareNeighbors)
	p.Nearest = cands

	var interest []int
	for _, h := range tree.SearchIntersect(rtreego.Point{p.X, p.Y}.ToRect(interestFactor*nearest + pointTolerance)) {
		j := h.(indexedPoint).index
		if set.Distance(i, j) < interestFactor*nearest {
			interest = append(interest, j)
		}
	}
	slices.Sort(interest)
	p.Interest = interest
}

// nearestOtherDistrict grows a k-nearest query until a point from another
// district turns up.
func nearestOtherDistrict(tree *rtreego.Rtree, set *PointSet, i int) (float64, bool) {
	p := &set.Points[i]
	n := set.Len()
	for k := min(8, n); ; k = min(k*2, n) {
		for _, s := range tree.NearestNeighbors(k, rtreego.Point{p.X, p.Y}) {
			if s == nil {
				continue
			}
			j := s.(indexedPoint).index
			if set.Points[j].DistrictID != p.DistrictID {
				return set.Distance(i, j), true
			}
		}
		if k == n {
			return 0, false
		}
	}
}

func compareNeighbors(a, b Neighbor) int {
	if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
		return c
	}
	return cmp.Compare(a.Index, b.Index)
}
