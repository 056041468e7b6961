// Package matching resolves point correspondences from a score matrix.
package matching

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"spotmatch/internal/models"
	"spotmatch/pkg/spatial"
)

var (
	// ErrDims is returned when the score matrix does not have one row per
	// point of A and one column per point of B
	ErrDims = errors.New("score matrix dimensions do not match point sets")

	// ErrInvalidScore is returned when the score matrix contains NaN
	ErrInvalidScore = errors.New("score matrix contains NaN")
)

// Result holds matched points in correspondence order: A[k] matches B[k].
type Result struct {
	A     models.PointSet `yaml:"a"`
	B     models.PointSet `yaml:"b"`
	Pairs []models.Pair   `yaml:"pairs"`
}

// Len returns the number of correspondences
func (r *Result) Len() int { return len(r.Pairs) }

type options struct {
	maxDistance float64
	gated       bool
}

// Option configures Match
type Option func(*options)

// WithMaxDistance restricts matches to pairs no further apart than d
func WithMaxDistance(d float64) Option {
	return func(o *options) {
		o.maxDistance = d
		o.gated = true
	}
}

// Match pairs every point of a with its best scoring point of b and keeps the
// pairs whose score is strictly above threshold.
//
// With WithMaxDistance, pairs within range are lifted by max(scores)+1 and the
// threshold is lifted by the same amount, so out-of-range pairs can never pass
// however high their raw score. Ties go to the lowest column index. A point
// of b may be matched by several points of a.
//
// scores is not modified.
func Match(a, b models.PointSet, scores mat.Matrix, threshold float64, opts ...Option) (*Result, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	res := &Result{
		A:     models.PointSet{},
		B:     models.PointSet{},
		Pairs: []models.Pair{},
	}
	if len(a) == 0 || len(b) == 0 {
		return res, nil
	}

	rows, cols := scores.Dims()
	if rows != len(a) || cols != len(b) {
		return nil, fmt.Errorf("%w: scores are %d×%d, points are %d and %d", ErrDims, rows, cols, len(a), len(b))
	}
	if hasNaN(scores) {
		return nil, ErrInvalidScore
	}

	offset := mat.Max(scores) + 1

	var inRange [][]bool
	if o.gated {
		pairs, err := spatial.Gate(a, b, o.maxDistance)
		if err != nil {
			return nil, fmt.Errorf("distance gating failed: %w", err)
		}
		inRange = make([][]bool, rows)
		for i, js := range pairs {
			inRange[i] = make([]bool, cols)
			for _, j := range js {
				inRange[i][j] = true
			}
		}
		threshold += offset
	}

	for i := 0; i < rows; i++ {
		best := 0
		bestScore := math.Inf(-1)
		for j := 0; j < cols; j++ {
			s := scores.At(i, j)
			if inRange != nil && inRange[i][j] {
				s += offset
			}
			// Strict comparison keeps the first maximum
			if j == 0 || s > bestScore {
				best, bestScore = j, s
			}
		}
		if bestScore > threshold {
			res.A = append(res.A, a[i])
			res.B = append(res.B, b[best])
			res.Pairs = append(res.Pairs, models.Pair{A: i, B: best})
		}
	}
	return res, nil
}

func hasNaN(m mat.Matrix) bool {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if math.IsNaN(m.At(i, j)) {
				return true
			}
		}
	}
	return false
}
