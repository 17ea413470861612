// Package boundary estimates district territories from scattered meeting
// place locations.
//
// Each unique location becomes a Point owned by one district. Every point is
// given a buffer radius such that circles from different districts never
// overlap, and each district's circles are unioned into its polygon.
package boundary

import "math"

// Buffer is a point's territorial radius in metres. Distance is only
// meaningful once Resolved is set; an unresolved point is not the same thing
// as a point with a zero radius.
type Buffer struct {
	Distance float64
	Resolved bool
}

// Neighbor references another point in the same PointSet.
type Neighbor struct {
	Index    int
	Distance float64
}

// Point is one unique planar location.
type Point struct {
	Index      int
	X, Y       float64
	DistrictID string
	ObjectIDs  []string

	// Nearest holds cross-district points closer than twice the distance to
	// the nearest one, ascending by distance then index.
	Nearest []Neighbor

	// Interest holds the indexes of every point, of any district, closer
	// than three times that distance.
	Interest []int

	Buffer Buffer
}

// PointSet is the point table owned by one estimation run.
type PointSet struct {
	Points []Point
}

// Len returns the number of points.
func (s *PointSet) Len() int { return len(s.Points) }

// Distance is the Euclidean distance between two points.
func (s *PointSet) Distance(i, j int) float64 {
	a, b := &s.Points[i], &s.Points[j]
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Unresolved counts points whose buffer has not been fixed.
func (s *PointSet) Unresolved() int {
	n := 0
	for i := range s.Points {
		if !s.Points[i].Buffer.Resolved {
			n++
		}
	}
	return n
}

// Buffers copies the current buffer state, indexed like Points.
func (s *PointSet) Buffers() []Buffer {
	out := make([]Buffer, len(s.Points))
	for i := range s.Points {
		out[i] = s.Points[i].Buffer
	}
	return out
}

// ByDistrict groups point indexes by district id.
func (s *PointSet) ByDistrict() map[string][]int {
	out := make(map[string][]int)
	for i := range s.Points {
		id := s.Points[i].DistrictID
		out[id] = append(out[id], i)
	}
	return out
}
