package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStableRank(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   []float64
	}{
		{
			name:   "distinct values",
			values: []float64{30, 10, 20},
			want:   []float64{3, 1, 2},
		},
		{
			name:   "ties rank in encounter order",
			values: []float64{1, 1, 1, 1},
			want:   []float64{1, 2, 3, 4},
		},
		{
			name:   "mixed ties",
			values: []float64{2, 1, 2, 1},
			want:   []float64{3, 1, 4, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stableRank(tt.values))
		})
	}
}

func TestPercentileInterpolates(t *testing.T) {
	values := []float64{1, 2, 3, 4}

	assert.InDelta(t, 1.75, percentile(values, 0.25), 1e-9)
	assert.InDelta(t, 2.5, percentile(values, 0.50), 1e-9)
	assert.InDelta(t, 3.25, percentile(values, 0.75), 1e-9)
	assert.Equal(t, 4.0, percentile(values, 1.0))
	assert.Equal(t, 1.0, percentile(values, 0.0))
}

func TestQuartileCuts(t *testing.T) {
	cuts, err := quartileCuts([]float64{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)
	assert.InDelta(t, 2.75, cuts[0], 1e-9)
	assert.InDelta(t, 4.5, cuts[1], 1e-9)
	assert.InDelta(t, 6.25, cuts[2], 1e-9)
}

func TestQuartileCutsDegenerate(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
	}{
		{name: "too few values", values: []float64{1, 2, 3}},
		{name: "all equal", values: []float64{5, 5, 5, 5, 5}},
		{name: "heavy tie block", values: []float64{1, 1, 1, 1, 1, 1, 1, 9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := quartileCuts(tt.values)
			require.Error(t, err)
		})
	}
}

func TestScoreByCuts(t *testing.T) {
	cuts := [3]float64{2.75, 4.5, 6.25}

	assert.Equal(t, 1, scoreByCuts(1, cuts, false))
	assert.Equal(t, 1, scoreByCuts(2.75, cuts, false)) // boundary falls low
	assert.Equal(t, 2, scoreByCuts(3, cuts, false))
	assert.Equal(t, 3, scoreByCuts(5, cuts, false))
	assert.Equal(t, 4, scoreByCuts(8, cuts, false))

	// Inverted mapping used for recency.
	assert.Equal(t, 4, scoreByCuts(1, cuts, true))
	assert.Equal(t, 1, scoreByCuts(8, cuts, true))
}
