package model

import (
	"github.com/pkg/errors"
)

// DefaultLandmarkCount is the number of points in a face mesh landmark set.
const DefaultLandmarkCount = 468

// ErrShortLandmarkSet is returned when a detection carries fewer points than required.
var ErrShortLandmarkSet = errors.New("landmark set has fewer points than required")

// Point is a normalized 3D landmark coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// LandmarkSet is an immutable, fixed-length sequence of facial landmarks.
// The zero value is an empty set and is never produced by NewLandmarkSet.
type LandmarkSet struct {
	points []Point
}

// NewLandmarkSet builds a set of exactly k points. Longer inputs are
// truncated to the first k points, shorter inputs are rejected.
func NewLandmarkSet(points []Point, k int) (LandmarkSet, error) {
	if k <= 0 {
		return LandmarkSet{}, errors.Errorf("invalid landmark count %d", k)
	}
	if len(points) < k {
		return LandmarkSet{}, errors.Wrapf(ErrShortLandmarkSet, "got %d, want %d", len(points), k)
	}

	owned := make([]Point, k)
	copy(owned, points[:k])
	return LandmarkSet{points: owned}, nil
}

// Len returns the number of points in the set.
func (s LandmarkSet) Len() int {
	return len(s.points)
}

// Points returns a copy of the landmark points.
func (s LandmarkSet) Points() []Point {
	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}

// At returns the i-th point.
func (s LandmarkSet) At(i int) Point {
	return s.points[i]
}
