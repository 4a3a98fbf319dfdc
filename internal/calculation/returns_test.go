package calculation

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func identityCorr(n int) *mat.SymDense {
	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		m.SetSym(i, i, 1.0)
	}
	return m
}

func TestSampleDimensions(t *testing.T) {
	gen := NewReturnGenerator(rand.New(rand.NewSource(1)))

	samples, err := gen.Sample([]float64{0.07, 0.04, 0.02}, []float64{0.15, 0.05, 0.01}, identityCorr(3), 5)
	require.NoError(t, err)
	require.Len(t, samples, 5)
	for _, row := range samples {
		assert.Len(t, row, 3)
	}
}

func TestSampleZeroPeriods(t *testing.T) {
	gen := NewReturnGenerator(rand.New(rand.NewSource(1)))

	samples, err := gen.Sample([]float64{0.07}, []float64{0.15}, identityCorr(1), 0)
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestSampleDeterministicUnderSeed(t *testing.T) {
	means := []float64{0.07, 0.04}
	vols := []float64{0.15, 0.05}
	corr := identityCorr(2)

	a, err := NewReturnGenerator(rand.New(rand.NewSource(42))).Sample(means, vols, corr, 20)
	require.NoError(t, err)
	b, err := NewReturnGenerator(rand.New(rand.NewSource(42))).Sample(means, vols, corr, 20)
	require.NoError(t, err)

	assert.Equal(t, a, b, "identical seeds must reproduce the draw sequence exactly")
}

func TestSampleZeroVolatilityReturnsMeans(t *testing.T) {
	means := []float64{0.05, -0.01}
	gen := NewReturnGenerator(rand.New(rand.NewSource(7)))

	samples, err := gen.Sample(means, []float64{0, 0}, identityCorr(2), 10)
	require.NoError(t, err)
	for _, row := range samples {
		assert.Equal(t, means[0], row[0], "zero volatility collapses the draw to its mean")
		assert.Equal(t, means[1], row[1])
	}
}

func TestSamplePreservesCorrelation(t *testing.T) {
	corr := mat.NewSymDense(2, nil)
	corr.SetSym(0, 0, 1.0)
	corr.SetSym(1, 1, 1.0)
	corr.SetSym(0, 1, 0.9)

	gen := NewReturnGenerator(rand.New(rand.NewSource(99)))
	samples, err := gen.Sample([]float64{0, 0}, []float64{0.2, 0.2}, corr, 4000)
	require.NoError(t, err)

	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	for i, row := range samples {
		xs[i] = row[0]
		ys[i] = row[1]
	}
	sampleCorr := stat.Correlation(xs, ys, nil)
	assert.InDelta(t, 0.9, sampleCorr, 0.05,
		"sample correlation %f should track the requested 0.9", sampleCorr)
}

func TestSampleInputErrors(t *testing.T) {
	gen := NewReturnGenerator(rand.New(rand.NewSource(1)))

	tests := []struct {
		name     string
		means    []float64
		vols     []float64
		corr     *mat.SymDense
		nPeriods int
	}{
		{"no assets", nil, nil, identityCorr(1), 1},
		{"length mismatch", []float64{0.05}, []float64{0.1, 0.2}, identityCorr(1), 1},
		{"matrix dimension mismatch", []float64{0.05, 0.04}, []float64{0.1, 0.2}, identityCorr(3), 1},
		{"negative periods", []float64{0.05}, []float64{0.1}, identityCorr(1), -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gen.Sample(tt.means, tt.vols, tt.corr, tt.nPeriods)
			assert.Error(t, err)
		})
	}
}
