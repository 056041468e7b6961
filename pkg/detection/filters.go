package detection

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"spotmatch/internal/models"
)

// ErrLimits is returned for winsorization limits outside [0, 1)
var ErrLimits = errors.New("invalid winsorize limits")

// Limits are the fractions of voxels clipped at the low and high end of the
// intensity distribution
type Limits struct {
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

// Winsorize returns a copy of vol in which the lowest int(Low·n) voxels are
// raised to the next smallest value and the highest int(High·n) voxels are
// lowered to the next largest value.
func Winsorize(vol *models.Volume, lim Limits) (*models.Volume, error) {
	if lim.Low < 0 || lim.High < 0 || lim.Low+lim.High >= 1 || math.IsNaN(lim.Low) || math.IsNaN(lim.High) {
		return nil, fmt.Errorf("%w: (%v, %v)", ErrLimits, lim.Low, lim.High)
	}
	out := vol.Clone()
	n := out.Len()
	if n == 0 {
		return out, nil
	}

	sorted := append([]float64(nil), out.Data...)
	inds := make([]int, n)
	floats.Argsort(sorted, inds)

	lowIdx := int(lim.Low * float64(n))
	upIdx := n - int(lim.High*float64(n))
	if lowIdx > 0 {
		lowVal := sorted[lowIdx]
		for _, i := range inds[:lowIdx] {
			out.Data[i] = lowVal
		}
	}
	if upIdx < n {
		upVal := sorted[upIdx-1]
		for _, i := range inds[upIdx:] {
			out.Data[i] = upVal
		}
	}
	return out, nil
}

// WhiteTopHat subtracts the grey opening of vol from vol, removing background
// structures wider than the box footprint of half width radius per axis.
func WhiteTopHat(vol *models.Volume, radius []int) *models.Volume {
	opened := MaxFilter(MinFilter(vol, radius), radius)
	floats.SubTo(opened.Data, vol.Data, opened.Data)
	return opened
}

// MinFilter returns the minimum over a box of half width radius around every voxel
func MinFilter(vol *models.Volume, radius []int) *models.Volume {
	return separable(vol, radius, math.Min)
}

// MaxFilter returns the maximum over a box of half width radius around every voxel
func MaxFilter(vol *models.Volume, radius []int) *models.Volume {
	return separable(vol, radius, math.Max)
}

// separable applies a rank reduction along one axis at a time. Samples beyond
// the edge are mirrored (d c b a | a b c d).
func separable(vol *models.Volume, radius []int, reduce func(a, b float64) float64) *models.Volume {
	src := vol.Clone()
	if src.Len() == 0 {
		return src
	}
	dst := models.NewVolume(vol.Shape...)
	strides := vol.Strides()

	for axis, n := range vol.Shape {
		r := radius[axis]
		if r <= 0 || n == 1 {
			continue
		}
		stride := strides[axis]
		line := make([]float64, n)

		for base := 0; base < src.Len(); base++ {
			// Visit each line once, from the voxel where this axis index is 0
			if (base/stride)%n != 0 {
				continue
			}
			for i := 0; i < n; i++ {
				line[i] = src.Data[base+i*stride]
			}
			for i := 0; i < n; i++ {
				acc := line[i]
				for k := i - r; k <= i+r; k++ {
					acc = reduce(acc, line[reflect(k, n)])
				}
				dst.Data[base+i*stride] = acc
			}
		}
		src, dst = dst, src
	}
	return src
}

// reflect maps an out-of-range index onto [0, n) by mirroring about the edges
func reflect(i, n int) int {
	for i < 0 || i >= n {
		if i < 0 {
			i = -i - 1
		}
		if i >= n {
			i = 2*n - i - 1
		}
	}
	return i
}

// ApplyForegroundMask keeps the spots whose location is non-zero in mask. The
// mask may be sampled on a different grid: spot coordinates are scaled by the
// mask-to-image shape ratio, rounded, and limited to the mask extent.
func ApplyForegroundMask(spots models.PointSet, imageShape []int, mask *models.Volume) (models.PointSet, error) {
	if mask.NDim() != len(imageShape) {
		return nil, fmt.Errorf("mask has %d axes, image has %d", mask.NDim(), len(imageShape))
	}
	ratio := make([]float64, len(imageShape))
	for axis := range ratio {
		ratio[axis] = float64(mask.Shape[axis]) / float64(imageShape[axis])
	}

	kept := make(models.PointSet, 0, len(spots))
	if mask.Len() == 0 {
		return kept, nil
	}
	idx := make([]int, len(imageShape))
	for _, s := range spots {
		if len(s) < len(imageShape) {
			return nil, fmt.Errorf("spot %v has fewer axes than the image", s)
		}
		for axis := range idx {
			m := int(math.RoundToEven(s[axis] * ratio[axis]))
			if m >= mask.Shape[axis] {
				m = mask.Shape[axis] - 1
			}
			if m < 0 {
				m = 0
			}
			idx[axis] = m
		}
		if mask.At(idx...) != 0 {
			kept = append(kept, s)
		}
	}
	return kept, nil
}
