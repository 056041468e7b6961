// Package neighborhood extracts fixed-size windows of voxels around points.
package neighborhood

import (
	"errors"
	"fmt"

	"spotmatch/internal/models"
)

var (
	// ErrRadiusDims is returned when a per-axis radius does not match the volume dimensionality
	ErrRadiusDims = errors.New("radius dimensionality does not match volume")

	// ErrCoordDims is returned when a coordinate does not match the volume dimensionality
	ErrCoordDims = errors.New("coordinate dimensionality does not match volume")
)

// Radius is the half width of a neighborhood. A single value applies to every
// axis, otherwise there must be one value per axis.
type Radius []int

// UniformRadius returns a radius applied identically to every axis
func UniformRadius(r int) Radius { return Radius{r} }

// AxisRadius returns a radius with one value per axis
func AxisRadius(r ...int) Radius { return Radius(append([]int(nil), r...)) }

// PerAxis expands the radius to ndim values
func (r Radius) PerAxis(ndim int) ([]int, error) {
	if len(r) == 1 {
		out := make([]int, ndim)
		for i := range out {
			out[i] = r[0]
		}
		return out, nil
	}
	if len(r) != ndim {
		return nil, fmt.Errorf("%w: got %d values for %d axes", ErrRadiusDims, len(r), ndim)
	}
	return append([]int(nil), r...), nil
}

// Width returns the full window width 2r+1 on every axis
func (r Radius) Width(ndim int) ([]int, error) {
	per, err := r.PerAxis(ndim)
	if err != nil {
		return nil, err
	}
	for i := range per {
		per[i] = 2*per[i] + 1
	}
	return per, nil
}

// Extract returns the neighborhood of every coordinate, in the same order as
// coords. On each axis the window covers [int(c-r), int(c+r+1)).
//
// Windows are not clamped to the volume. Bounds outside the volume follow
// slice normalisation: a negative bound counts back from the end of the axis,
// then both bounds are limited to [0, n] and an inverted range is empty. A
// point closer to an edge than its radius therefore yields a truncated (or
// empty) neighborhood. Callers that need uniform shapes must pass interior
// points only.
//
// Every neighborhood is a copy and stays valid after vol is discarded.
func Extract(vol *models.Volume, coords models.PointSet, radius Radius) ([]*models.Volume, error) {
	ndim := vol.NDim()
	per, err := radius.PerAxis(ndim)
	if err != nil {
		return nil, err
	}

	contexts := make([]*models.Volume, 0, len(coords))
	lo := make([]int, ndim)
	hi := make([]int, ndim)
	for i, c := range coords {
		if len(c) != ndim {
			return nil, fmt.Errorf("%w: coordinate %d has %d axes, volume has %d", ErrCoordDims, i, len(c), ndim)
		}
		for axis := range c {
			r := float64(per[axis])
			lo[axis], hi[axis] = sliceBounds(int(c[axis]-r), int(c[axis]+r+1), vol.Shape[axis])
		}
		contexts = append(contexts, crop(vol, lo, hi))
	}
	return contexts, nil
}

// sliceBounds normalises a half-open [start, stop) range against an axis of
// length n the way sequence slicing does.
func sliceBounds(start, stop, n int) (int, int) {
	norm := func(b int) int {
		if b < 0 {
			b += n
			if b < 0 {
				b = 0
			}
		}
		if b > n {
			b = n
		}
		return b
	}
	start, stop = norm(start), norm(stop)
	if stop < start {
		stop = start
	}
	return start, stop
}

// crop copies the box [lo, hi) out of vol
func crop(vol *models.Volume, lo, hi []int) *models.Volume {
	ndim := len(lo)
	shape := make([]int, ndim)
	for axis := range shape {
		shape[axis] = hi[axis] - lo[axis]
	}
	out := models.NewVolume(shape...)
	if out.Len() == 0 {
		return out
	}
	if ndim == 0 {
		out.Data[0] = vol.Data[0]
		return out
	}

	// Copy contiguous runs along the last axis
	last := ndim - 1
	run := shape[last]
	idx := append([]int(nil), lo...)
	for dst := 0; dst < out.Len(); dst += run {
		src := vol.Offset(idx...)
		copy(out.Data[dst:dst+run], vol.Data[src:src+run])

		// Advance the multi-index over every axis but the last
		for axis := last - 1; axis >= 0; axis-- {
			idx[axis]++
			if idx[axis] < hi[axis] {
				break
			}
			idx[axis] = lo[axis]
		}
	}
	return out
}
