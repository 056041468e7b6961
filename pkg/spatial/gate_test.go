package spatial

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotmatch/internal/models"
)

// bruteForce is the reference O(N·M) range query
func bruteForce(a, b models.PointSet, r float64) [][]int {
	out := make([][]int, len(a))
	for i, p := range a {
		out[i] = []int{}
		for j, q := range b {
			if p.DistanceTo(q) <= r {
				out[i] = append(out[i], j)
			}
		}
	}
	return out
}

func randomPoints(rng *rand.Rand, n int, extent float64) models.PointSet {
	ps := make(models.PointSet, n)
	for i := range ps {
		ps[i] = models.Point{rng.Float64() * extent, rng.Float64() * extent, rng.Float64() * extent}
	}
	return ps
}

func TestGateMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	a := randomPoints(rng, 60, 50)
	b := randomPoints(rng, 200, 50)

	for _, r := range []float64{0, 2.5, 8, 30, 1000} {
		got, err := Gate(a, b, r)
		require.NoError(t, err)
		if diff := cmp.Diff(bruteForce(a, b, r), got); diff != "" {
			t.Errorf("Gate(r=%v) mismatch (-want +got):\n%s", r, diff)
		}
	}
}

func TestGateInclusiveBoundary(t *testing.T) {
	a := models.PointSet{{0, 0, 0}}
	b := models.PointSet{{0, 0, 10}, {0, 0, 10.000001}, {6, 8, 0}}

	got, err := Gate(a, b, 10)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 2}}, got)
}

func TestGateExample(t *testing.T) {
	a := models.PointSet{{0, 0, 0}}
	b := models.PointSet{{0, 0, 5}, {0, 0, 100}}

	got, err := Gate(a, b, 10)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0}}, got)
}

func TestGateDuplicatePoints(t *testing.T) {
	a := models.PointSet{{1, 1}}
	b := models.PointSet{{1, 1}, {1, 1}, {1, 1}}

	got, err := Gate(a, b, 0)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 1, 2}}, got)
}

func TestGateEmptySets(t *testing.T) {
	got, err := Gate(models.PointSet{{1, 2, 3}}, nil, 5)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{}}, got)

	got, err = Gate(nil, models.PointSet{{1, 2, 3}}, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGateErrors(t *testing.T) {
	a := models.PointSet{{0, 0, 0}}

	_, err := Gate(a, models.PointSet{{0, 0}}, 1)
	assert.ErrorIs(t, err, ErrDims)

	_, err = Gate(a, models.PointSet{{0, 0, 0}, {0, 0}}, 1)
	assert.ErrorIs(t, err, ErrDims)

	_, err = Gate(a, a, -1)
	assert.ErrorIs(t, err, ErrDistance)

	_, err = Gate(a, a, math.NaN())
	assert.ErrorIs(t, err, ErrDistance)
}

func TestIndexDoesNotReorderInput(t *testing.T) {
	b := models.PointSet{{9}, {1}, {5}, {3}}
	_, err := NewIndex(b)
	require.NoError(t, err)
	assert.Equal(t, models.PointSet{{9}, {1}, {5}, {3}}, b)
}

func TestIndexWithinOneDimension(t *testing.T) {
	idx, err := NewIndex(models.PointSet{{9}, {1}, {5}, {3}})
	require.NoError(t, err)
	assert.Equal(t, 4, idx.Len())

	got, err := idx.Within(models.Point{4}, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, got)
}
