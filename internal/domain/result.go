package domain

import (
	"github.com/shopspring/decimal"
)

// TaxSummary holds the running totals extracted from one trial's tax-lot
// ledger at the end of the trial.
type TaxSummary struct {
	TotalContributions decimal.Decimal `json:"total_contributions"`
	TotalWithdrawals   decimal.Decimal `json:"total_withdrawals"`
	TotalTaxesPaid     decimal.Decimal `json:"total_taxes_paid"`
	TotalCapitalGains  decimal.Decimal `json:"total_capital_gains_realized"`
	EffectiveTaxRate   decimal.Decimal `json:"effective_tax_rate"`
}

// TrialResult is the immutable record produced by one simulation trial.
type TrialResult struct {
	NominalAccumulation decimal.Decimal `json:"nominal_accumulation"`
	RealAccumulation    decimal.Decimal `json:"real_accumulation"`
	FinalBalance        decimal.Decimal `json:"final_balance"`
	AverageWithdrawal   decimal.Decimal `json:"average_withdrawal"`
	Success             bool            `json:"success"`
	Taxes               TaxSummary      `json:"taxes"`
}

// SeriesStats summarizes the distribution of one per-trial value series.
type SeriesStats struct {
	Mean   decimal.Decimal `json:"mean"`
	Median decimal.Decimal `json:"median"`
	P10    decimal.Decimal `json:"p10"`
	P25    decimal.Decimal `json:"p25"`
	P75    decimal.Decimal `json:"p75"`
	P90    decimal.Decimal `json:"p90"`
}

// SimulationResult bundles every trial record with derived summary
// statistics. Display collaborators consume this directly.
type SimulationResult struct {
	Trials []TrialResult `json:"trials"`

	NumTrials   int             `json:"num_trials"`
	SuccessRate decimal.Decimal `json:"success_rate"`

	NominalAccumulationStats SeriesStats `json:"nominal_accumulation_stats"`
	RealAccumulationStats    SeriesStats `json:"real_accumulation_stats"`
	FinalBalanceStats        SeriesStats `json:"final_balance_stats"`

	// AverageTaxes averages each TaxSummary field across trials; zero when
	// tax tracking is disabled.
	AverageTaxes TaxSummary `json:"average_taxes"`

	// Warnings carries non-fatal conditions surfaced during the run, such
	// as a correlation matrix that needed repair.
	Warnings []string `json:"warnings,omitempty"`

	// Partial is set when the run was cancelled and Trials holds only the
	// prefix completed before cancellation.
	Partial bool `json:"partial,omitempty"`
}
