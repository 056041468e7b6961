package models

import (
	"math"
)

// Point is a coordinate in image index space. Integral and fractional
// coordinates are both allowed.
type Point []float64

// PointSet is an ordered collection of points. Order is significant: it
// defines row and column identity in score matrices.
type PointSet []Point

// Dims returns the dimensionality of the point
func (p Point) Dims() int { return len(p) }

// DistanceTo returns the Euclidean distance between two points
func (p Point) DistanceTo(q Point) float64 {
	sum := 0.0
	for i := range p {
		d := p[i] - q[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Ints returns the coordinate truncated toward zero on every axis
func (p Point) Ints() []int {
	idx := make([]int, len(p))
	for i, c := range p {
		idx[i] = int(c)
	}
	return idx
}

// Clone returns an independent copy of the point
func (p Point) Clone() Point {
	return append(Point(nil), p...)
}

// Dims returns the common dimensionality of the set, or -1 when the points
// disagree. An empty set has dimensionality 0.
func (ps PointSet) Dims() int {
	if len(ps) == 0 {
		return 0
	}
	d := len(ps[0])
	for _, p := range ps[1:] {
		if len(p) != d {
			return -1
		}
	}
	return d
}

// PointFromInts builds a point from integer coordinates
func PointFromInts(idx ...int) Point {
	p := make(Point, len(idx))
	for i, c := range idx {
		p[i] = float64(c)
	}
	return p
}

// Blob is a detected point of interest together with the source image
// intensity at its location
type Blob struct {
	Coord     Point
	Intensity float64
}

// Coords extracts the coordinates of a list of blobs in order
func Coords(blobs []Blob) PointSet {
	ps := make(PointSet, len(blobs))
	for i, b := range blobs {
		ps[i] = b.Coord
	}
	return ps
}

// Pair links row A of a score matrix to column B
type Pair struct {
	A int `yaml:"a"`
	B int `yaml:"b"`
}
