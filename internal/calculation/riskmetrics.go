package calculation

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/finsim/retirement-simulator/internal/domain"
)

// lossThresholds are the drawdown levels, relative to a reference value,
// at which loss probabilities are reported.
var lossThresholds = []float64{0, 0.10, 0.20, 0.30, 0.50}

// ValueAtRisk returns the (1-confidence) percentile of the distribution:
// the threshold at or below which outcomes occur with probability
// (1-confidence). 95% confidence means the 5th percentile.
func ValueAtRisk(values []float64, confidence float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return stat.Quantile(1-confidence, stat.Empirical, sorted, nil)
}

// ConditionalValueAtRisk is the mean of all values at or below the VaR
// threshold. When no value sits in the tail it degrades to VaR, so
// CVaR ≤ VaR holds for every non-empty input.
func ConditionalValueAtRisk(values []float64, confidence float64) float64 {
	if len(values) == 0 {
		return 0
	}
	threshold := ValueAtRisk(values, confidence)
	sum := 0.0
	count := 0
	for _, v := range values {
		if v <= threshold {
			sum += v
			count++
		}
	}
	if count == 0 {
		return threshold
	}
	return sum / float64(count)
}

// LossProbability is the observed chance of the outcome falling below
// reference·(1-Threshold).
type LossProbability struct {
	Threshold   float64 `json:"threshold"`
	Probability float64 `json:"probability"`
}

// LossProbabilities evaluates the standard loss thresholds against a
// reference value (typically the expected or median outcome).
func LossProbabilities(values []float64, reference float64) []LossProbability {
	out := make([]LossProbability, 0, len(lossThresholds))
	for _, th := range lossThresholds {
		bar := reference * (1 - th)
		below := 0
		for _, v := range values {
			if v < bar {
				below++
			}
		}
		p := 0.0
		if len(values) > 0 {
			p = float64(below) / float64(len(values))
		}
		out = append(out, LossProbability{Threshold: th, Probability: p})
	}
	return out
}

// AssetRiskShare apportions portfolio VaR/CVaR to one asset.
type AssetRiskShare struct {
	Name       string  `json:"name"`
	Allocation float64 `json:"allocation"`
	VaR        float64 `json:"var"`
	CVaR       float64 `json:"cvar"`
}

// RiskAttribution splits total VaR and CVaR across assets linearly by
// allocation weight. This is a deliberate approximation, not a
// decomposition of realized per-asset contribution.
func RiskAttribution(values []float64, assets []domain.Asset, confidence float64) []AssetRiskShare {
	totalVaR := ValueAtRisk(values, confidence)
	totalCVaR := ConditionalValueAtRisk(values, confidence)

	out := make([]AssetRiskShare, 0, len(assets))
	for i := range assets {
		alloc := assets[i].Allocation.InexactFloat64()
		out = append(out, AssetRiskShare{
			Name:       assets[i].Name,
			Allocation: alloc,
			VaR:        totalVaR * alloc,
			CVaR:       totalCVaR * alloc,
		})
	}
	return out
}

// ConfidenceMetrics holds VaR and CVaR at one confidence level.
type ConfidenceMetrics struct {
	Confidence float64 `json:"confidence"`
	VaR        float64 `json:"var"`
	CVaR       float64 `json:"cvar"`
}

// RiskReport bundles the distributional risk metrics for one outcome
// series.
type RiskReport struct {
	Levels            []ConfidenceMetrics `json:"levels"`
	LossProbabilities []LossProbability   `json:"loss_probabilities"`
	Attribution       []AssetRiskShare    `json:"attribution,omitempty"`
}

// DefaultConfidenceLevels are used when the caller does not choose levels.
var DefaultConfidenceLevels = []float64{0.90, 0.95, 0.99}

// BuildRiskReport computes the full risk-metrics bundle over the final
// balances of a simulation result. The reference value anchors the loss
// thresholds; attribution uses the decumulation asset set when provided.
func BuildRiskReport(result *domain.SimulationResult, assets []domain.Asset, confidences []float64, reference float64) RiskReport {
	if len(confidences) == 0 {
		confidences = DefaultConfidenceLevels
	}

	values := make([]float64, len(result.Trials))
	for i := range result.Trials {
		values[i] = result.Trials[i].FinalBalance.InexactFloat64()
	}

	report := RiskReport{
		LossProbabilities: LossProbabilities(values, reference),
	}
	for _, c := range confidences {
		report.Levels = append(report.Levels, ConfidenceMetrics{
			Confidence: c,
			VaR:        ValueAtRisk(values, c),
			CVaR:       ConditionalValueAtRisk(values, c),
		})
	}
	if len(assets) > 0 && len(confidences) > 0 {
		report.Attribution = RiskAttribution(values, assets, confidences[0])
	}
	return report
}
