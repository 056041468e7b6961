// Package correlation computes Pearson correlation between every pair of
// neighborhoods drawn from two sets.
package correlation

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"spotmatch/internal/logging"
	"spotmatch/internal/models"
)

var (
	// ErrShapeMismatch is returned when neighborhoods cannot be flattened to a common length
	ErrShapeMismatch = errors.New("neighborhood shape mismatch")

	// ErrEmpty is returned when statistics are requested for an empty set
	ErrEmpty = errors.New("no neighborhoods to correlate")
)

// ShapeMismatchError reports the neighborhood that does not share the
// reference shape
type ShapeMismatchError struct {
	// Set names the input the neighborhood came from ("A" or "B")
	Set string

	// Index is the position of the neighborhood in its set
	Index int

	// Want is the shape of the first neighborhood of A
	Want []int

	// Got is the shape of the offending neighborhood
	Got []int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("neighborhood shape mismatch: %s[%d] has shape %v (%d values), expected %v (%d values)",
		e.Set, e.Index, e.Got, size(e.Got), e.Want, size(e.Want))
}

func (e *ShapeMismatchError) Unwrap() error { return ErrShapeMismatch }

// Pairwise returns the N×M matrix of Pearson correlation coefficients between
// every neighborhood of a and every neighborhood of b.
//
// All neighborhoods must flatten to the same number of values. A neighborhood
// with no variance correlates 0 with everything, including itself.
func Pairwise(a, b []*models.Volume) (*mat.Dense, error) {
	length, err := commonLength(a, b)
	if err != nil {
		return nil, err
	}

	if length == 0 {
		// Fully truncated windows carry no signal
		if len(a) == 0 || len(b) == 0 {
			return nil, statsError(0, length)
		}
		return mat.NewDense(len(a), len(b), nil), nil
	}

	aCon, aStd, err := centered(a, length)
	if err != nil {
		return nil, err
	}
	bCon, bStd, err := centered(b, length)
	if err != nil {
		return nil, err
	}

	var corr mat.Dense
	corr.Mul(aCon, bCon.T())

	rows, _ := corr.Dims()
	n := float64(length)
	for i := 0; i < rows; i++ {
		row := corr.RawRowView(i)
		for j := range row {
			v := row[j] / aStd[i] / bStd[j] / n
			if math.IsNaN(v) || aStd[i] == 0 || bStd[j] == 0 {
				v = 0
			}
			row[j] = v
		}
	}
	return &corr, nil
}

// commonLength checks that every neighborhood flattens to the same length and
// returns it
func commonLength(a, b []*models.Volume) (int, error) {
	var ref *models.Volume
	switch {
	case len(a) > 0:
		ref = a[0]
	case len(b) > 0:
		ref = b[0]
	default:
		return 0, nil
	}
	for _, set := range []struct {
		name string
		vols []*models.Volume
	}{{"A", a}, {"B", b}} {
		for i, v := range set.vols {
			if v == nil || v.Len() != ref.Len() || len(v.Data) != size(v.Shape) {
				var got []int
				if v != nil {
					got = v.Shape
				}
				return 0, &ShapeMismatchError{Set: set.name, Index: i, Want: ref.Shape, Got: got}
			}
		}
	}
	return ref.Len(), nil
}

// centered flattens the neighborhoods into the rows of a matrix, subtracts
// every row's mean and returns the population standard deviation per row.
func centered(vols []*models.Volume, length int) (*mat.Dense, []float64, error) {
	if len(vols) == 0 {
		return nil, nil, statsError(len(vols), length)
	}

	con := mat.NewDense(len(vols), length, nil)
	std := make([]float64, len(vols))
	for i, v := range vols {
		row := con.RawRowView(i)
		copy(row, v.Data)

		mean, sd := stat.PopMeanStdDev(row, nil)
		if floats.Max(row) == floats.Min(row) {
			// Rounding in the mean can leave a tiny spread on constant input
			sd = 0
		}
		floats.AddConst(-mean, row)
		std[i] = sd
	}
	return con, std, nil
}

// statsError logs the failed statistics computation with the array shape and
// returns the error to propagate
func statsError(rows, length int) error {
	err := fmt.Errorf("%w: stats for array of shape [%d %d]", ErrEmpty, rows, length)
	logging.Default().Error("stats exception",
		"shape", []int{rows, length},
		"time", time.Now().Format(time.RFC3339),
		"error", err,
	)
	return err
}

func size(shape []int) int {
	if shape == nil {
		return 0
	}
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}
