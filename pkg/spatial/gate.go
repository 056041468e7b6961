// Package spatial answers range queries between two point sets using a k-d tree.
package spatial

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"

	"spotmatch/internal/models"
)

var (
	// ErrDims is returned when the two point sets do not share a dimensionality
	ErrDims = errors.New("point dimensionality mismatch")

	// ErrDistance is returned for a negative or NaN maximum distance
	ErrDistance = errors.New("invalid maximum distance")
)

// indexedPoint is a point that remembers its position in the original set
type indexedPoint struct {
	coord models.Point
	index int
}

// Compare implements the kdtree.Comparable interface
func (p indexedPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(indexedPoint)
	return p.coord[d] - q.coord[d]
}

// Dims returns the number of dimensions for the KD-tree
func (p indexedPoint) Dims() int { return len(p.coord) }

// Distance returns the squared Euclidean distance between two points
func (p indexedPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(indexedPoint)
	sum := 0.0
	for i := range p.coord {
		d := p.coord[i] - q.coord[i]
		sum += d * d
	}
	return sum
}

// indexedPoints is a collection of indexedPoint that satisfies kdtree.Interface
type indexedPoints []indexedPoint

func (p indexedPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p indexedPoints) Len() int                              { return len(p) }
func (p indexedPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p indexedPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(plane{indexedPoints: p, Dim: d}, kdtree.MedianOfRandoms(plane{indexedPoints: p, Dim: d}, 100))
}

// plane implements sort.Interface and kdtree.SortSlicer for indexedPoints
type plane struct {
	indexedPoints
	kdtree.Dim
}

func (p plane) Less(i, j int) bool {
	return p.indexedPoints[i].coord[p.Dim] < p.indexedPoints[j].coord[p.Dim]
}

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{indexedPoints: p.indexedPoints[start:end], Dim: p.Dim}
}

func (p plane) Swap(i, j int) {
	p.indexedPoints[i], p.indexedPoints[j] = p.indexedPoints[j], p.indexedPoints[i]
}

// Index is a k-d tree over a point set that answers "all points within r"
// queries by original point index.
type Index struct {
	tree *kdtree.Tree
	dims int
	size int
}

// NewIndex builds a k-d tree over points. The points are copied; the caller's
// slice is not reordered.
func NewIndex(points models.PointSet) (*Index, error) {
	dims := points.Dims()
	if dims < 0 {
		return nil, fmt.Errorf("%w: points in the indexed set disagree", ErrDims)
	}
	if dims == 0 && len(points) > 0 {
		return nil, fmt.Errorf("%w: points have no axes", ErrDims)
	}

	ips := make(indexedPoints, len(points))
	for i, p := range points {
		ips[i] = indexedPoint{coord: p, index: i}
	}
	idx := &Index{dims: dims, size: len(points)}
	if len(ips) > 0 {
		idx.tree = kdtree.New(ips, false)
	}
	return idx, nil
}

// Len returns the number of indexed points
func (x *Index) Len() int { return x.size }

// Within returns the indices of all indexed points whose Euclidean distance to
// q is at most r, in ascending order.
func (x *Index) Within(q models.Point, r float64) ([]int, error) {
	if math.IsNaN(r) || r < 0 {
		return nil, fmt.Errorf("%w: %v", ErrDistance, r)
	}
	if x.tree == nil {
		return []int{}, nil
	}
	if len(q) != x.dims {
		return nil, fmt.Errorf("%w: query has %d axes, index has %d", ErrDims, len(q), x.dims)
	}

	r2 := r * r
	keeper := kdtree.NewDistKeeper(r2)
	x.tree.NearestSet(keeper, indexedPoint{coord: q, index: -1})

	found := make([]int, 0, keeper.Len())
	for _, item := range keeper.Heap {
		// Skip the sentinel value
		if item.Comparable == nil || item.Dist > r2 {
			continue
		}
		found = append(found, item.Comparable.(indexedPoint).index)
	}
	sort.Ints(found)
	return found, nil
}

// Gate returns, for every point of a, the ascending indices of the points of
// b within maxDistance. The tree is built once over b.
func Gate(a, b models.PointSet, maxDistance float64) ([][]int, error) {
	if math.IsNaN(maxDistance) || maxDistance < 0 {
		return nil, fmt.Errorf("%w: %v", ErrDistance, maxDistance)
	}
	if da, db := a.Dims(), b.Dims(); da < 0 || db < 0 || (len(a) > 0 && len(b) > 0 && da != db) {
		return nil, fmt.Errorf("%w: %d-d points against %d-d points", ErrDims, da, db)
	}

	index, err := NewIndex(b)
	if err != nil {
		return nil, err
	}

	pairs := make([][]int, len(a))
	for i, p := range a {
		if pairs[i], err = index.Within(p, maxDistance); err != nil {
			return nil, fmt.Errorf("query for point %d: %w", i, err)
		}
	}
	return pairs, nil
}
