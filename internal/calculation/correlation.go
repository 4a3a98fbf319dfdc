package calculation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// symmetryTolerance is the maximum |m[i][j] - m[j][i]| accepted before a
	// matrix is reported as asymmetric.
	symmetryTolerance = 1e-10
	// psdTolerance is how far below zero an eigenvalue may sit before the
	// matrix is treated as non-PSD and repaired.
	psdTolerance = 1e-8
	// eigenFloor is the value eigenvalues are clipped to during repair.
	eigenFloor = 1e-8

	highCorrelationWarnLevel = 0.9
	meanCorrelationWarnLevel = 0.6
)

// MatrixValidation reports the outcome of validating a candidate
// correlation matrix. Warnings flag suspicious but usable inputs.
type MatrixValidation struct {
	IsValid  bool
	Errors   []string
	Warnings []string
}

// ValidateCorrelationMatrix checks squareness, symmetry, unit diagonal,
// entry bounds and positive semi-definiteness. A non-PSD matrix is an
// error here; callers that want auto-repair use RepairCorrelationMatrix.
func ValidateCorrelationMatrix(m *mat.Dense) MatrixValidation {
	v := MatrixValidation{}
	rows, cols := m.Dims()
	if rows != cols {
		v.Errors = append(v.Errors, fmt.Sprintf("matrix must be square, got %dx%d", rows, cols))
		return v
	}
	if rows == 0 {
		v.Errors = append(v.Errors, "matrix is empty")
		return v
	}

	var offDiagSum float64
	var offDiagCount int
	maxAbsOffDiag := 0.0

	for i := 0; i < rows; i++ {
		if math.Abs(m.At(i, i)-1.0) > symmetryTolerance {
			v.Errors = append(v.Errors, fmt.Sprintf("diagonal entry (%d,%d) must be 1.0, got %g", i, i, m.At(i, i)))
		}
		for j := 0; j < rows; j++ {
			e := m.At(i, j)
			if e < -1.0 || e > 1.0 {
				v.Errors = append(v.Errors, fmt.Sprintf("entry (%d,%d) outside [-1,1]: %g", i, j, e))
			}
			if j > i {
				if math.Abs(e-m.At(j, i)) > symmetryTolerance {
					v.Errors = append(v.Errors, fmt.Sprintf("matrix not symmetric at (%d,%d): %g vs %g", i, j, e, m.At(j, i)))
				}
				offDiagSum += math.Abs(e)
				offDiagCount++
				if math.Abs(e) > maxAbsOffDiag {
					maxAbsOffDiag = math.Abs(e)
				}
			}
		}
	}

	if minEig, ok := minEigenvalue(symmetrize(m)); ok && minEig < -psdTolerance {
		v.Errors = append(v.Errors, fmt.Sprintf("matrix is not positive semi-definite (min eigenvalue %g)", minEig))
	} else if !ok {
		v.Errors = append(v.Errors, "eigenvalue decomposition failed")
	}

	if maxAbsOffDiag > highCorrelationWarnLevel {
		v.Warnings = append(v.Warnings, fmt.Sprintf("pairwise correlation magnitude %g exceeds %g", maxAbsOffDiag, highCorrelationWarnLevel))
	}
	if offDiagCount > 0 && offDiagSum/float64(offDiagCount) > meanCorrelationWarnLevel {
		v.Warnings = append(v.Warnings, fmt.Sprintf("mean absolute correlation %.3f exceeds %g", offDiagSum/float64(offDiagCount), meanCorrelationWarnLevel))
	}

	v.IsValid = len(v.Errors) == 0
	return v
}

// RepairCorrelationMatrix turns a candidate matrix into a valid correlation
// matrix: symmetrize, clip eigenvalues below the PSD tolerance, reconstruct
// and rescale so the diagonal is exactly 1.0. The boolean reports whether a
// PSD repair was necessary; already-valid matrices pass through unchanged
// apart from symmetrization.
func RepairCorrelationMatrix(m *mat.Dense) (*mat.SymDense, bool, error) {
	rows, cols := m.Dims()
	if rows != cols {
		return nil, false, fmt.Errorf("matrix must be square, got %dx%d", rows, cols)
	}
	if rows == 0 {
		return nil, false, fmt.Errorf("matrix is empty")
	}

	sym := symmetrize(m)

	var es mat.EigenSym
	if !es.Factorize(sym, true) {
		return nil, false, fmt.Errorf("eigenvalue decomposition failed")
	}
	vals := es.Values(nil)

	minEig := vals[0]
	for _, e := range vals {
		if e < minEig {
			minEig = e
		}
	}
	if minEig >= -psdTolerance {
		return sym, false, nil
	}

	// Clip the spectrum and reconstruct Q·Λ'·Qᵗ.
	var vecs mat.Dense
	es.VectorsTo(&vecs)
	n := rows
	clipped := make([]float64, n)
	for i, e := range vals {
		if e < eigenFloor {
			clipped[i] = eigenFloor
		} else {
			clipped[i] = e
		}
	}

	rebuilt := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var sum float64
			for k := 0; k < n; k++ {
				sum += vecs.At(i, k) * clipped[k] * vecs.At(j, k)
			}
			rebuilt.Set(i, j, sum)
		}
	}

	// Rescale so the diagonal returns to exactly 1.0.
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if i == j {
				out.SetSym(i, j, 1.0)
				continue
			}
			d := math.Sqrt(rebuilt.At(i, i) * rebuilt.At(j, j))
			if d == 0 {
				out.SetSym(i, j, 0)
				continue
			}
			out.SetSym(i, j, rebuilt.At(i, j)/d)
		}
	}
	return out, true, nil
}

// defaultPairCorrelations is the built-in table of annual-return
// correlations between known asset classes, keyed by unordered name pair.
var defaultPairCorrelations = map[[2]string]float64{
	{"US Stocks", "International Stocks"}: 0.85,
	{"US Stocks", "Emerging Markets"}:     0.75,
	{"US Stocks", "Bonds"}:                -0.10,
	{"US Stocks", "Real Estate"}:          0.70,
	{"US Stocks", "Gold"}:                 0.05,
	{"US Stocks", "Commodities"}:          0.30,

	{"International Stocks", "Emerging Markets"}: 0.80,
	{"International Stocks", "Bonds"}:            -0.05,
	{"International Stocks", "Real Estate"}:      0.60,
	{"International Stocks", "Gold"}:             0.10,
	{"International Stocks", "Commodities"}:      0.35,

	{"Emerging Markets", "Bonds"}:       0.00,
	{"Emerging Markets", "Real Estate"}: 0.55,
	{"Emerging Markets", "Gold"}:        0.15,
	{"Emerging Markets", "Commodities"}: 0.40,

	{"Bonds", "Real Estate"}: 0.20,
	{"Bonds", "Gold"}:        0.25,
	{"Bonds", "Commodities"}: -0.05,
	{"Bonds", "Cash"}:        0.10,

	{"Real Estate", "Gold"}:        0.10,
	{"Real Estate", "Commodities"}: 0.25,

	{"Gold", "Commodities"}: 0.45,
}

// knownAssetNames is derived from the pair table; anything outside it is
// treated as a user-defined asset.
var knownAssetNames = func() map[string]bool {
	names := make(map[string]bool)
	for pair := range defaultPairCorrelations {
		names[pair[0]] = true
		names[pair[1]] = true
	}
	return names
}()

const (
	unknownPairCorrelation = 0.1
	customPairCorrelation  = 0.2
)

// lookupPairCorrelation returns the table correlation for an unordered name
// pair, falling back to a small positive default: 0.2 when either asset is
// user-defined, 0.1 otherwise.
func lookupPairCorrelation(a, b string) float64 {
	if c, ok := defaultPairCorrelations[[2]string{a, b}]; ok {
		return c
	}
	if c, ok := defaultPairCorrelations[[2]string{b, a}]; ok {
		return c
	}
	if !knownAssetNames[a] || !knownAssetNames[b] {
		return customPairCorrelation
	}
	return unknownPairCorrelation
}

// DefaultCorrelationMatrix synthesizes a correlation matrix for the given
// asset names from the built-in pair table.
func DefaultCorrelationMatrix(names []string) *mat.SymDense {
	n := len(names)
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetSym(i, i, 1.0)
		for j := i + 1; j < n; j++ {
			out.SetSym(i, j, lookupPairCorrelation(names[i], names[j]))
		}
	}
	return out
}

// Named correlation scenarios selectable instead of an explicit matrix.
const (
	ScenarioHistorical  = "historical"
	ScenarioCrisis      = "crisis"
	ScenarioIndependent = "independent"
)

// Under the crisis scenario off-diagonal correlations are blended toward
// crisisCorrelation, reflecting how diversification breaks down in drawdowns.
const (
	crisisBlend       = 0.6
	crisisCorrelation = 0.9
)

// ScenarioCorrelationMatrix builds the matrix for a named scenario. An
// empty name means the historical default table.
func ScenarioCorrelationMatrix(scenario string, names []string) (*mat.SymDense, error) {
	switch scenario {
	case "", ScenarioHistorical:
		return DefaultCorrelationMatrix(names), nil
	case ScenarioIndependent:
		n := len(names)
		out := mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			out.SetSym(i, i, 1.0)
		}
		return out, nil
	case ScenarioCrisis:
		base := DefaultCorrelationMatrix(names)
		n := len(names)
		dense := mat.NewDense(n, n, nil)
		for i := 0; i < n; i++ {
			dense.Set(i, i, 1.0)
			for j := i + 1; j < n; j++ {
				c := (1-crisisBlend)*base.At(i, j) + crisisBlend*crisisCorrelation
				dense.Set(i, j, c)
				dense.Set(j, i, c)
			}
		}
		repaired, _, err := RepairCorrelationMatrix(dense)
		if err != nil {
			return nil, fmt.Errorf("building crisis scenario matrix: %w", err)
		}
		return repaired, nil
	default:
		return nil, fmt.Errorf("unknown correlation scenario %q", scenario)
	}
}

func symmetrize(m *mat.Dense) *mat.SymDense {
	n, _ := m.Dims()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, (m.At(i, j)+m.At(j, i))/2)
		}
	}
	return out
}

func minEigenvalue(s *mat.SymDense) (float64, bool) {
	var es mat.EigenSym
	if !es.Factorize(s, false) {
		return 0, false
	}
	vals := es.Values(nil)
	min := vals[0]
	for _, e := range vals {
		if e < min {
			min = e
		}
	}
	return min, true
}
