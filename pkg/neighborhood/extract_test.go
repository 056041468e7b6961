package neighborhood

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotmatch/internal/models"
)

// ramp builds a volume whose voxel value equals its flat offset
func ramp(shape ...int) *models.Volume {
	vol := models.NewVolume(shape...)
	for i := range vol.Data {
		vol.Data[i] = float64(i)
	}
	return vol
}

func TestExtract1DWindowWidth(t *testing.T) {
	vol := ramp(20)

	got, err := Extract(vol, models.PointSet{{10}}, UniformRadius(2))
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, []int{5}, got[0].Shape)
	assert.Equal(t, []float64{8, 9, 10, 11, 12}, got[0].Data)
}

func TestExtract3DValues(t *testing.T) {
	vol := ramp(6, 7, 8)
	coords := models.PointSet{{2, 3, 4}, {3, 3, 3}}

	got, err := Extract(vol, coords, UniformRadius(1))
	require.NoError(t, err)
	require.Len(t, got, 2)

	for n, c := range coords {
		ctx := got[n]
		require.Equal(t, []int{3, 3, 3}, ctx.Shape)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				for k := 0; k < 3; k++ {
					want := vol.At(int(c[0])-1+i, int(c[1])-1+j, int(c[2])-1+k)
					assert.Equal(t, want, ctx.At(i, j, k))
				}
			}
		}
	}
}

func TestExtractPerAxisRadius(t *testing.T) {
	vol := ramp(10, 10, 10)

	got, err := Extract(vol, models.PointSet{{5, 5, 5}}, AxisRadius(0, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 5}, got[0].Shape)
	assert.Equal(t, vol.At(5, 4, 3), got[0].At(0, 0, 0))
	assert.Equal(t, vol.At(5, 6, 7), got[0].At(0, 2, 4))
}

func TestExtractRadiusDimsMismatch(t *testing.T) {
	vol := ramp(4, 4, 4)

	_, err := Extract(vol, models.PointSet{{1, 1, 1}}, AxisRadius(1, 1))
	assert.ErrorIs(t, err, ErrRadiusDims)
}

func TestExtractCoordDimsMismatch(t *testing.T) {
	vol := ramp(4, 4, 4)

	_, err := Extract(vol, models.PointSet{{1, 1}}, UniformRadius(1))
	assert.ErrorIs(t, err, ErrCoordDims)
}

func TestExtractIsACopy(t *testing.T) {
	vol := ramp(10)

	got, err := Extract(vol, models.PointSet{{5}}, UniformRadius(1))
	require.NoError(t, err)

	vol.Data[5] = -1
	assert.Equal(t, []float64{4, 5, 6}, got[0].Data)
}

func TestExtractPreservesOrder(t *testing.T) {
	vol := ramp(30)
	coords := models.PointSet{{20}, {3}, {10}}

	got, err := Extract(vol, coords, UniformRadius(0))
	require.NoError(t, err)
	for i, c := range coords {
		assert.Equal(t, []float64{c[0]}, got[i].Data)
	}
}

// Windows near the edge are truncated, not clamped or padded.
func TestExtractEdgeTruncation(t *testing.T) {
	vol := ramp(10)

	cases := []struct {
		name   string
		coord  float64
		radius int
		want   []float64
	}{
		// stop beyond the axis is limited to the axis length
		{"upper edge", 9, 2, []float64{7, 8, 9}},
		// start -2 counts back from the end (8), stop is 3: inverted, so empty
		{"lower edge", 0, 2, []float64{}},
		{"far above", 50, 2, []float64{}},
		// both bounds negative: [-6, -3) becomes [4, 7)
		{"negative window", -5, 1, []float64{4, 5, 6}},
		{"interior", 5, 1, []float64{4, 5, 6}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Extract(vol, models.PointSet{{tc.coord}}, UniformRadius(tc.radius))
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, len(tc.want), got[0].Len())
			if len(tc.want) > 0 {
				assert.Equal(t, tc.want, got[0].Data)
			}
		})
	}
}

func TestSliceBounds(t *testing.T) {
	cases := []struct {
		start, stop, n  int
		wantLo, wantHi int
	}{
		{2, 5, 10, 2, 5},
		{-3, 10, 10, 7, 10},
		{-20, 3, 10, 0, 3},
		{8, 14, 10, 8, 10},
		{12, 15, 10, 10, 10},
		{5, 2, 10, 5, 5},
		{-2, 3, 10, 8, 8},
	}
	for _, tc := range cases {
		lo, hi := sliceBounds(tc.start, tc.stop, tc.n)
		assert.Equal(t, tc.wantLo, lo, "start of [%d,%d) on %d", tc.start, tc.stop, tc.n)
		assert.Equal(t, tc.wantHi, hi, "stop of [%d,%d) on %d", tc.start, tc.stop, tc.n)
	}
}

func TestRadiusWidth(t *testing.T) {
	w, err := UniformRadius(3).Width(3)
	require.NoError(t, err)
	assert.Equal(t, []int{7, 7, 7}, w)
}
