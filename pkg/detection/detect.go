// Package detection finds blob-like structures (cell bodies, puncta) in a
// volume. The scale-space search itself is delegated to a BlobFinder; this
// package adapts the caller's radii into detector sigmas, preprocesses the
// volume, filters the result by a foreground mask and attaches intensities.
package detection

import (
	"errors"
	"fmt"
	"math"
	"time"

	"spotmatch/internal/logging"
	"spotmatch/internal/models"
)

// Method selects the scale-space detector
type Method string

const (
	// LoG is the Laplacian of Gaussian detector
	LoG Method = "log"

	// DoG is the difference of Gaussian detector
	DoG Method = "dog"
)

// DefaultThresholdRel is the relative threshold used when no absolute
// threshold is given
const DefaultThresholdRel = 0.1

// DefaultNumSigma is the number of scales sampled by the LoG detector
const DefaultNumSigma = 5

var (
	// ErrRadius is returned for missing, non-positive or inverted blob radii
	ErrRadius = errors.New("invalid blob radius")

	// ErrNoFinder is returned when a Detector has no BlobFinder
	ErrNoFinder = errors.New("no blob finder configured")
)

// Params controls blob detection
type Params struct {
	// MinRadius is the smallest blob radius in voxels, one value for all axes
	// or one per axis
	MinRadius []float64

	// MaxRadius is the largest blob radius in voxels, one value for all axes
	// or one per axis
	MaxRadius []float64

	// NumSigma is the number of scales the LoG detector samples; 0 means DefaultNumSigma
	NumSigma int

	// Method picks LoG (default) or DoG
	Method Method

	// Threshold is the absolute detector threshold. When nil, ThresholdRel is used.
	Threshold *float64

	// ThresholdRel is relative to the detector's maximum response; 0 means DefaultThresholdRel
	ThresholdRel float64

	// Winsorize clips the intensity distribution before detection
	Winsorize *Limits

	// BackgroundSubtract applies a white top-hat of MaxRadius before detection
	BackgroundSubtract bool

	// Mask restricts detections to its non-zero voxels
	Mask *models.Volume
}

// FinderParams is what the BlobFinder receives
type FinderParams struct {
	Method       Method
	MinSigma     []float64
	MaxSigma     []float64
	NumSigma     int
	Threshold    *float64
	ThresholdRel float64
}

// BlobFinder locates blob centres in a volume. Implementations return one
// point per blob with at least vol.NDim() coordinates; extra trailing values
// (such as the detected sigma) are ignored.
type BlobFinder interface {
	FindBlobs(vol *models.Volume, p FinderParams) (models.PointSet, error)
}

// Detector adapts detection parameters for a BlobFinder
type Detector struct {
	finder BlobFinder
	log    *logging.Logger
}

// NewDetector creates a detector around finder
func NewDetector(finder BlobFinder) *Detector {
	return &Detector{finder: finder, log: logging.Default().WithStage("detection")}
}

// SetLogger replaces the detector's logger
func (d *Detector) SetLogger(l *logging.Logger) {
	if l != nil {
		d.log = l.WithStage("detection")
	}
}

// Detect finds blobs in vol and returns their integer coordinates together
// with the intensity of the unprocessed volume at each of them.
func (d *Detector) Detect(vol *models.Volume, p Params) ([]models.Blob, error) {
	if d.finder == nil {
		return nil, ErrNoFinder
	}
	ndim := vol.NDim()
	minRadius, err := perAxis(p.MinRadius, ndim)
	if err != nil {
		return nil, fmt.Errorf("min radius: %w", err)
	}
	maxRadius, err := perAxis(p.MaxRadius, ndim)
	if err != nil {
		return nil, fmt.Errorf("max radius: %w", err)
	}
	for axis := range minRadius {
		if minRadius[axis] > maxRadius[axis] {
			return nil, fmt.Errorf("%w: min %v exceeds max %v on axis %d", ErrRadius, minRadius[axis], maxRadius[axis], axis)
		}
	}

	fp := finderParams(p, minRadius, maxRadius, ndim)
	start := time.Now()
	d.log.Info("start spot detection",
		"min_radius", minRadius,
		"max_radius", maxRadius,
		"method", fp.Method,
		"num_sigma", fp.NumSigma,
		"threshold_rel", fp.ThresholdRel,
	)

	processed := vol.Clone()
	if p.Winsorize != nil {
		if processed, err = Winsorize(processed, *p.Winsorize); err != nil {
			return nil, err
		}
		d.log.Elapsed("winsorization completed", start)
	}
	if p.BackgroundSubtract {
		processed = WhiteTopHat(processed, roundAll(maxRadius))
		d.log.Elapsed("white top hat completed", start)
	}

	found, err := d.finder.FindBlobs(processed, fp)
	if err != nil {
		return nil, fmt.Errorf("blob finder failed: %w", err)
	}
	spots := make(models.PointSet, 0, len(found))
	for i, f := range found {
		if len(f) < ndim {
			return nil, fmt.Errorf("blob %d has %d coordinates, volume has %d axes", i, len(f), ndim)
		}
		spot := make(models.Point, ndim)
		for axis := range spot {
			spot[axis] = math.Trunc(f[axis])
		}
		spots = append(spots, spot)
	}
	d.log.Elapsed("spot detection completed", start, "count", len(spots))

	if p.Mask != nil {
		if spots, err = ApplyForegroundMask(spots, vol.Shape, p.Mask); err != nil {
			return nil, fmt.Errorf("foreground mask: %w", err)
		}
		d.log.Debug("foreground mask applied", "count", len(spots))
	}

	blobs := make([]models.Blob, len(spots))
	for i, s := range spots {
		idx := s.Ints()
		if !vol.Contains(idx...) {
			return nil, fmt.Errorf("blob %d at %v lies outside the volume %v", i, idx, vol.Shape)
		}
		blobs[i] = models.Blob{Coord: s, Intensity: vol.At(idx...)}
	}
	return blobs, nil
}

// finderParams converts radii to sigmas (r/√ndim) and fills in defaults
func finderParams(p Params, minRadius, maxRadius []float64, ndim int) FinderParams {
	fp := FinderParams{
		Method:       p.Method,
		MinSigma:     make([]float64, ndim),
		MaxSigma:     make([]float64, ndim),
		Threshold:    p.Threshold,
		ThresholdRel: p.ThresholdRel,
	}
	if fp.Method != DoG {
		fp.Method = LoG
		fp.NumSigma = p.NumSigma
		if fp.NumSigma <= 0 {
			fp.NumSigma = DefaultNumSigma
		}
	}
	if fp.Threshold == nil && fp.ThresholdRel == 0 {
		fp.ThresholdRel = DefaultThresholdRel
	}
	scale := math.Sqrt(float64(ndim))
	for axis := 0; axis < ndim; axis++ {
		fp.MinSigma[axis] = minRadius[axis] / scale
		fp.MaxSigma[axis] = maxRadius[axis] / scale
	}
	return fp
}

func perAxis(r []float64, ndim int) ([]float64, error) {
	var out []float64
	switch len(r) {
	case 1:
		out = make([]float64, ndim)
		for i := range out {
			out[i] = r[0]
		}
	case ndim:
		out = append([]float64(nil), r...)
	default:
		return nil, fmt.Errorf("%w: %d values for %d axes", ErrRadius, len(r), ndim)
	}
	for _, v := range out {
		if !(v > 0) {
			return nil, fmt.Errorf("%w: %v", ErrRadius, v)
		}
	}
	return out, nil
}

func roundAll(r []float64) []int {
	out := make([]int, len(r))
	for i, v := range r {
		out[i] = int(math.Round(v))
	}
	return out
}
