package output

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/finsim/retirement-simulator/internal/calculation"
	"github.com/finsim/retirement-simulator/internal/domain"
)

func sampleResult() *domain.SimulationResult {
	stats := domain.SeriesStats{
		Mean:   decimal.NewFromInt(1500),
		Median: decimal.NewFromInt(1400),
		P10:    decimal.NewFromInt(900),
		P25:    decimal.NewFromInt(1100),
		P75:    decimal.NewFromInt(1800),
		P90:    decimal.NewFromInt(2100),
	}
	return &domain.SimulationResult{
		NumTrials:                1000,
		SuccessRate:              decimal.NewFromFloat(0.857),
		NominalAccumulationStats: stats,
		RealAccumulationStats:    stats,
		FinalBalanceStats:        stats,
	}
}

func TestFormatSummary(t *testing.T) {
	out := NewConsoleFormatter().FormatSummary(sampleResult())

	assert.Contains(t, out, "SIMULATION SUMMARY")
	assert.Contains(t, out, "Trials:        1000")
	assert.Contains(t, out, "Success rate:  85.7%")
	assert.Contains(t, out, "ACCUMULATION (NOMINAL)")
	assert.Contains(t, out, "FINAL BALANCE")
	assert.Contains(t, out, "Median: $1400.00")
	assert.NotContains(t, out, "partial", "complete runs carry no partial marker")
	assert.NotContains(t, out, "TAXES", "tax block is omitted when nothing was withdrawn")
}

func TestFormatSummaryPartialRun(t *testing.T) {
	result := sampleResult()
	result.Partial = true
	result.NumTrials = 137

	out := NewConsoleFormatter().FormatSummary(result)
	assert.Contains(t, out, "Trials:        137 (partial, run was cancelled)")
}

func TestFormatSummaryTaxesAndWarnings(t *testing.T) {
	result := sampleResult()
	result.AverageTaxes = domain.TaxSummary{
		TotalContributions: decimal.NewFromInt(50000),
		TotalWithdrawals:   decimal.NewFromInt(40000),
		TotalTaxesPaid:     decimal.NewFromInt(3000),
		TotalCapitalGains:  decimal.NewFromInt(20000),
		EffectiveTaxRate:   decimal.NewFromFloat(0.075),
	}
	result.Warnings = []string{"supplied correlation matrix was not positive semi-definite and was repaired"}

	out := NewConsoleFormatter().FormatSummary(result)
	assert.Contains(t, out, "TAXES (per-trial averages)")
	assert.Contains(t, out, "Effective tax rate: 7.50%")
	assert.Contains(t, out, "WARNING: supplied correlation matrix")
}

func TestFormatRiskReport(t *testing.T) {
	report := calculation.RiskReport{
		Levels: []calculation.ConfidenceMetrics{
			{Confidence: 0.95, VaR: 850.5, CVaR: 620.25},
		},
		LossProbabilities: []calculation.LossProbability{
			{Threshold: 0.10, Probability: 0.125},
		},
		Attribution: []calculation.AssetRiskShare{
			{Name: "US Stocks", Allocation: 0.7, VaR: 595.35, CVaR: 434.175},
		},
	}

	out := NewConsoleFormatter().FormatRiskReport(report)
	assert.Contains(t, out, "RISK METRICS")
	assert.Contains(t, out, "95% confidence: VaR $850.50, CVaR $620.25")
	assert.Contains(t, out, "LOSS PROBABILITIES")
	assert.Contains(t, out, "RISK ATTRIBUTION")
	assert.True(t, strings.Contains(out, "US Stocks"))
}
