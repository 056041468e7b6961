// Package pipeline wires detection, neighborhood extraction, correlation and
// matching into a single call that finds corresponding blobs in a fixed and a
// moving volume.
package pipeline

import (
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"spotmatch/internal/logging"
	"spotmatch/internal/models"
	"spotmatch/pkg/config"
	"spotmatch/pkg/correlation"
	"spotmatch/pkg/detection"
	"spotmatch/pkg/matching"
	"spotmatch/pkg/neighborhood"
)

// Params holds everything a matching run needs besides the volumes.
type Params struct {
	// Detection configures blob detection; the same settings are used for both volumes
	Detection detection.Params

	// ContextRadius is the neighborhood half width used for correlation
	ContextRadius neighborhood.Radius

	// Threshold is the minimum correlation for a match (strict)
	Threshold float64

	// MaxDistance gates matches by distance in voxels; nil disables gating
	MaxDistance *float64

	// MaxSpots keeps only the brightest blobs of each volume; 0 keeps all
	MaxSpots int

	// NumCores bounds how many volumes are detected at once
	NumCores int
}

// ParamsFromConfig converts a loaded configuration into pipeline parameters
func ParamsFromConfig(cfg *config.Config) Params {
	p := Params{
		Detection: detection.Params{
			MinRadius:          cfg.Detection.MinRadius,
			MaxRadius:          cfg.Detection.MaxRadius,
			NumSigma:           cfg.Detection.NumSigma,
			Method:             detection.Method(cfg.Detection.Method),
			Threshold:          cfg.Detection.Threshold,
			ThresholdRel:       cfg.Detection.ThresholdRel,
			BackgroundSubtract: cfg.Detection.BackgroundSubtract,
		},
		ContextRadius: neighborhood.Radius(cfg.Context.Radius),
		Threshold:     cfg.Matching.Threshold,
		MaxDistance:   cfg.Matching.MaxDistance,
		MaxSpots:      cfg.Matching.MaxSpots,
		NumCores:      cfg.Processing.NumCores,
	}
	if lim := cfg.Detection.WinsorizeLimits; len(lim) == 2 {
		p.Detection.Winsorize = &detection.Limits{Low: lim[0], High: lim[1]}
	}
	return p
}

// Metrics summarises a run
type Metrics struct {
	FixedSpots     int
	MovingSpots    int
	FixedInterior  int
	MovingInterior int
	Matches        int
	DetectTime     time.Duration
	CorrelateTime  time.Duration
	MatchTime      time.Duration
}

// Pipeline finds corresponding blobs in two volumes
type Pipeline struct {
	params   Params
	detector *detection.Detector
	log      *logging.Logger
	metrics  Metrics
}

// New creates a pipeline that detects blobs with finder
func New(params Params, finder detection.BlobFinder) *Pipeline {
	log := logging.Default().WithStage("pipeline")
	return &Pipeline{
		params:   params,
		detector: detection.NewDetector(finder),
		log:      log,
	}
}

// SetLogger replaces the logger of the pipeline and its detector
func (p *Pipeline) SetLogger(l *logging.Logger) {
	if l == nil {
		return
	}
	p.log = l.WithStage("pipeline")
	p.detector.SetLogger(l)
}

// Metrics returns the metrics of the last Process call
func (p *Pipeline) Metrics() Metrics { return p.metrics }

// Process detects blobs in both volumes, keeps those whose neighborhood fits
// inside the volume, correlates their neighborhoods and matches fixed blobs
// to moving blobs.
func (p *Pipeline) Process(fixed, moving *models.Volume) (*matching.Result, error) {
	p.metrics = Metrics{}

	// Step 1: detect blobs in both volumes
	start := time.Now()
	fixedBlobs, movingBlobs, err := p.detectBoth(fixed, moving)
	if err != nil {
		return nil, err
	}
	p.metrics.FixedSpots = len(fixedBlobs)
	p.metrics.MovingSpots = len(movingBlobs)
	p.metrics.DetectTime = time.Since(start)

	// Step 2: keep interior blobs so every neighborhood has the full shape
	if fixedBlobs, err = p.prepare(fixedBlobs, fixed.Shape); err != nil {
		return nil, fmt.Errorf("fixed spots: %w", err)
	}
	if movingBlobs, err = p.prepare(movingBlobs, moving.Shape); err != nil {
		return nil, fmt.Errorf("moving spots: %w", err)
	}
	p.metrics.FixedInterior = len(fixedBlobs)
	p.metrics.MovingInterior = len(movingBlobs)
	p.log.Info("spots ready",
		"fixed", len(fixedBlobs),
		"moving", len(movingBlobs),
	)

	fixedPoints := models.Coords(fixedBlobs)
	movingPoints := models.Coords(movingBlobs)
	if len(fixedPoints) == 0 || len(movingPoints) == 0 {
		p.log.Warn("nothing to match", "fixed", len(fixedPoints), "moving", len(movingPoints))
		return matching.Match(fixedPoints, movingPoints, nil, p.params.Threshold)
	}

	// Step 3: extract neighborhoods and correlate them
	start = time.Now()
	fixedContexts, err := neighborhood.Extract(fixed, fixedPoints, p.params.ContextRadius)
	if err != nil {
		return nil, fmt.Errorf("failed to extract fixed neighborhoods: %w", err)
	}
	movingContexts, err := neighborhood.Extract(moving, movingPoints, p.params.ContextRadius)
	if err != nil {
		return nil, fmt.Errorf("failed to extract moving neighborhoods: %w", err)
	}
	scores, err := correlation.Pairwise(fixedContexts, movingContexts)
	if err != nil {
		return nil, fmt.Errorf("failed to correlate neighborhoods: %w", err)
	}
	p.metrics.CorrelateTime = time.Since(start)

	// Step 4: resolve correspondences
	start = time.Now()
	var opts []matching.Option
	if p.params.MaxDistance != nil {
		opts = append(opts, matching.WithMaxDistance(*p.params.MaxDistance))
	}
	res, err := matching.Match(fixedPoints, movingPoints, scores, p.params.Threshold, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to match points: %w", err)
	}
	p.metrics.MatchTime = time.Since(start)
	p.metrics.Matches = res.Len()
	p.log.Info("matching completed",
		"matches", res.Len(),
		"elapsed", p.metrics.DetectTime+p.metrics.CorrelateTime+p.metrics.MatchTime,
	)
	return res, nil
}

// detectBoth runs detection on the fixed and moving volumes concurrently
func (p *Pipeline) detectBoth(fixed, moving *models.Volume) ([]models.Blob, []models.Blob, error) {
	var fixedBlobs, movingBlobs []models.Blob

	var g errgroup.Group
	if p.params.NumCores > 0 {
		g.SetLimit(p.params.NumCores)
	}
	g.Go(func() error {
		var err error
		if fixedBlobs, err = p.detector.Detect(fixed, p.params.Detection); err != nil {
			return fmt.Errorf("failed to detect fixed spots: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if movingBlobs, err = p.detector.Detect(moving, p.params.Detection); err != nil {
			return fmt.Errorf("failed to detect moving spots: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return fixedBlobs, movingBlobs, nil
}

// prepare drops blobs too close to the edge and keeps the brightest ones
func (p *Pipeline) prepare(blobs []models.Blob, shape []int) ([]models.Blob, error) {
	blobs, err := FilterInterior(blobs, shape, p.params.ContextRadius)
	if err != nil {
		return nil, err
	}
	return BrightestN(blobs, p.params.MaxSpots), nil
}

// FilterInterior keeps the blobs whose neighborhood of the given radius lies
// entirely inside a volume of the given shape, preserving order.
func FilterInterior(blobs []models.Blob, shape []int, radius neighborhood.Radius) ([]models.Blob, error) {
	per, err := radius.PerAxis(len(shape))
	if err != nil {
		return nil, err
	}
	kept := make([]models.Blob, 0, len(blobs))
	for _, b := range blobs {
		if len(b.Coord) != len(shape) {
			return nil, fmt.Errorf("blob at %v does not have %d axes", b.Coord, len(shape))
		}
		inside := true
		for axis, c := range b.Coord {
			lo, hi := int(c)-per[axis], int(c)+per[axis]
			if lo < 0 || hi >= shape[axis] {
				inside = false
				break
			}
		}
		if inside {
			kept = append(kept, b)
		}
	}
	return kept, nil
}

// BrightestN keeps the n most intense blobs in descending intensity, ties in
// input order. n <= 0 keeps every blob in its original order.
func BrightestN(blobs []models.Blob, n int) []models.Blob {
	if n <= 0 {
		return blobs
	}
	sorted := append([]models.Blob(nil), blobs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Intensity > sorted[j].Intensity
	})
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}
