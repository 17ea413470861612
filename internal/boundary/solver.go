package boundary

import (
	"slices"

	"go.uber.org/zap"
)

// SolverConfig bounds the fixpoint iteration.
type SolverConfig struct {
	// MaxPasses caps the number of passes. Zero means one pass per point.
	MaxPasses int
}

// SolveStats reports how the fixpoint went.
type SolveStats struct {
	Passes     int  `json:"passes" yaml:"passes"`
	Resolved   int  `json:"resolved" yaml:"resolved"`
	Unresolved int  `json:"unresolved" yaml:"unresolved"`
	CapReached bool `json:"cap_reached" yaml:"cap_reached"`
}

// Solver assigns buffer distances to a PointSet whose neighbours are known.
type Solver struct {
	cfg SolverConfig
	log *zap.Logger
}

// NewSolver creates a Solver.
func NewSolver(cfg SolverConfig) *Solver {
	return &Solver{cfg: cfg, log: zap.L().With(zap.String("component", "boundary.solver"))}
}

// Solve runs passes until every point resolves or a pass resolves nothing.
//
// Each pass evaluates points against the buffers as they stood when the pass
// began and commits its results together, so the outcome does not depend on
// evaluation order. After the first pass only points watching a newly
// resolved point are evaluated again; any other point would see unchanged
// inputs and reach the same verdict.
//
// Points left unresolved keep a zero radius and are reported.
func (s *Solver) Solve(set *PointSet) SolveStats {
	n := set.Len()
	maxPasses := s.cfg.MaxPasses
	if maxPasses <= 0 {
		maxPasses = max(n, 1)
	}

	watchers := buildWatchers(set)
	pending := make([]int, 0, n)
	for i := range set.Points {
		if !set.Points[i].Buffer.Resolved {
			pending = append(pending, i)
		}
	}

	var stats SolveStats
	for len(pending) > 0 {
		if stats.Passes == maxPasses {
			stats.CapReached = true
			break
		}
		stats.Passes++

		snap := set.Buffers()
		var resolved []int
		for _, i := range pending {
			if d, ok := evaluate(set, snap, i); ok {
				set.Points[i].Buffer = Buffer{Distance: d, Resolved: true}
				resolved = append(resolved, i)
			}
		}

		s.log.Debug("pass complete",
			zap.Int("pass", stats.Passes),
			zap.Int("evaluated", len(pending)),
			zap.Int("resolved", len(resolved)),
		)
		if len(resolved) == 0 {
			break
		}
		pending = wake(set, watchers, resolved)
	}

	stats.Unresolved = set.Unresolved()
	stats.Resolved = n - stats.Unresolved

	if stats.CapReached {
		s.log.Warn("pass limit reached before fixpoint",
			zap.Int("max_passes", maxPasses),
			zap.Int("unresolved", stats.Unresolved),
		)
	}
	if stats.Unresolved > 0 {
		for i := range set.Points {
			if !set.Points[i].Buffer.Resolved {
				set.Points[i].Buffer.Distance = 0
			}
		}
		s.log.Warn("points left without a buffer distance, defaulting to zero",
			zap.Int("unresolved", stats.Unresolved),
			zap.Int("points", n),
		)
	}
	s.log.Info("buffer distances solved",
		zap.Int("points", n),
		zap.Int("passes", stats.Passes),
		zap.Int("resolved", stats.Resolved),
	)
	return stats
}

// evaluate derives a buffer for point i from the snapshot. It returns false
// when the point has no bound yet or when a mutual pair could not be
// confirmed this pass.
func evaluate(set *PointSet, snap []Buffer, i int) (float64, bool) {
	var (
		bound    float64
		hasBound bool
	)
	for _, nb := range set.Points[i].Nearest {
		q, d := nb.Index, nb.Distance
		if snap[q].Resolved {
			// A zero buffer still binds: q is a real location that p must not cover.
			if c := d - snap[q].Distance; !hasBound || c < bound {
				bound, hasBound = c, true
			}
			continue
		}
		if hasBound && bound <= d/2 {
			continue
		}
		if !mutualPair(set, snap, i, q) {
			return 0, false
		}
		bound, hasBound = d/2, true
	}
	if !hasBound {
		return 0, false
	}
	return max(bound, 0), true
}

// mutualPair reports whether p is q's closest unresolved neighbour and
// nothing closer to q claims more than half of its distance to q.
func mutualPair(set *PointSet, snap []Buffer, p, q int) bool {
	list := set.Points[q].Nearest
	closest := slices.IndexFunc(list, func(nb Neighbor) bool { return !snap[nb.Index].Resolved })
	if closest < 0 || list[closest].Index != p {
		return false
	}
	limit := list[closest].Distance
	for _, nb := range list[:closest] {
		if nb.Distance < limit && snap[nb.Index].Distance > nb.Distance/2 {
			return false
		}
	}
	return true
}

// buildWatchers maps each point to the points whose evaluation reads it: its
// candidates, their candidates, and its points of interest.
func buildWatchers(set *PointSet) [][]int {
	watchers := make([][]int, set.Len())
	for i := range set.Points {
		p := &set.Points[i]
		deps := slices.Clone(p.Interest)
		for _, nb := range p.Nearest {
			deps = append(deps, nb.Index)
			for _, nn := range set.Points[nb.Index].Nearest {
				deps = append(deps, nn.Index)
			}
		}
		slices.Sort(deps)
		for _, d := range slices.Compact(deps) {
			if d != i {
				watchers[d] = append(watchers[d], i)
			}
		}
	}
	return watchers
}

// wake returns the unresolved points that watch any of the resolved ones.
func wake(set *PointSet, watchers [][]int, resolved []int) []int {
	var next []int
	for _, r := range resolved {
		for _, w := range watchers[r] {
			if !set.Points[w].Buffer.Resolved {
				next = append(next, w)
			}
		}
	}
	slices.Sort(next)
	return slices.Compact(next)
}
