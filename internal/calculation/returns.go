package calculation

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// ReturnGenerator draws correlated annual return vectors from a
// multivariate normal distribution. The random source is injected so that
// parallel trials stay reproducible under a seed-per-trial scheme; there
// is no package-global randomness here.
type ReturnGenerator struct {
	rng *rand.Rand
}

// NewReturnGenerator creates a generator backed by the given source.
func NewReturnGenerator(rng *rand.Rand) *ReturnGenerator {
	return &ReturnGenerator{rng: rng}
}

// Sample draws nPeriods independent return vectors, one per simulated
// year, from N(means, corr ⊙ outer(vols, vols)). Cross-asset correlation
// is preserved within each year; years are independent of each other.
//
// The covariance factor is built from a symmetric eigen-decomposition
// rather than a Cholesky factorization so that repaired matrices sitting
// exactly on the PSD boundary still sample cleanly.
func (g *ReturnGenerator) Sample(means, vols []float64, corr *mat.SymDense, nPeriods int) ([][]float64, error) {
	n := len(means)
	if n == 0 {
		return nil, fmt.Errorf("at least one asset is required")
	}
	if len(vols) != n {
		return nil, fmt.Errorf("means and volatilities length mismatch: %d vs %d", n, len(vols))
	}
	if r := corr.SymmetricDim(); r != n {
		return nil, fmt.Errorf("correlation matrix is %dx%d, want %dx%d", r, r, n, n)
	}
	if nPeriods < 0 {
		return nil, fmt.Errorf("number of periods cannot be negative")
	}

	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, corr.At(i, j)*vols[i]*vols[j])
		}
	}

	factor, err := covarianceFactor(cov)
	if err != nil {
		return nil, err
	}

	samples := make([][]float64, nPeriods)
	z := make([]float64, n)
	for p := 0; p < nPeriods; p++ {
		for k := range z {
			z[k] = g.rng.NormFloat64()
		}
		row := make([]float64, n)
		for i := 0; i < n; i++ {
			x := means[i]
			for k := 0; k < n; k++ {
				x += factor.At(i, k) * z[k]
			}
			row[i] = x
		}
		samples[p] = row
	}
	return samples, nil
}

// covarianceFactor returns L = Q·diag(√max(λ,0)) such that L·Lᵗ equals the
// covariance with any numerically-negative eigenvalues floored at zero.
func covarianceFactor(cov *mat.SymDense) (*mat.Dense, error) {
	n := cov.SymmetricDim()

	var es mat.EigenSym
	if !es.Factorize(cov, true) {
		return nil, fmt.Errorf("covariance eigen-decomposition failed")
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	factor := mat.NewDense(n, n, nil)
	for k := 0; k < n; k++ {
		s := 0.0
		if vals[k] > 0 {
			s = math.Sqrt(vals[k])
		}
		for i := 0; i < n; i++ {
			factor.Set(i, k, vecs.At(i, k)*s)
		}
	}
	return factor, nil
}
