package detection

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"spotmatch/internal/models"
)

// LocalMaxFinder is a single-scale BlobFinder: a voxel is a blob centre when
// it is the maximum of the box of half width ceil(MinSigma·√ndim) around it
// and exceeds the threshold. It does not search scale space, so it is a
// stand-in for a real LoG/DoG implementation.
type LocalMaxFinder struct {
	// ExcludeBorder drops maxima closer to the edge than the footprint
	ExcludeBorder bool
}

// FindBlobs implements BlobFinder
func (f LocalMaxFinder) FindBlobs(vol *models.Volume, p FinderParams) (models.PointSet, error) {
	if vol.Len() == 0 {
		return models.PointSet{}, nil
	}
	ndim := vol.NDim()
	scale := math.Sqrt(float64(ndim))
	radius := make([]int, ndim)
	for axis := range radius {
		r := 1.0
		if axis < len(p.MinSigma) {
			r = math.Ceil(p.MinSigma[axis] * scale)
		}
		radius[axis] = int(math.Max(r, 1))
	}

	threshold := p.ThresholdRel * floats.Max(vol.Data)
	if p.Threshold != nil {
		threshold = math.Max(threshold, *p.Threshold)
	}

	peaks := MaxFilter(vol, radius)
	strides := vol.Strides()
	spots := models.PointSet{}
	for off, v := range vol.Data {
		if v != peaks.Data[off] || v <= threshold {
			continue
		}
		p := make(models.Point, ndim)
		inside := true
		for axis := range p {
			i := (off / strides[axis]) % vol.Shape[axis]
			if f.ExcludeBorder && (i < radius[axis] || i >= vol.Shape[axis]-radius[axis]) {
				inside = false
				break
			}
			p[axis] = float64(i)
		}
		if inside {
			spots = append(spots, p)
		}
	}
	return spots, nil
}
