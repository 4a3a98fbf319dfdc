package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/finsim/retirement-simulator/internal/calculation"
	"github.com/finsim/retirement-simulator/internal/domain"
)

// Scenario is the on-disk shape of one simulation scenario. It maps
// one-to-one onto calculation.SimulationParams; the decumulation asset
// list is optional and defaults to the accumulation list.
type Scenario struct {
	Name string `yaml:"name"`

	InitialBalance    decimal.Decimal `yaml:"initial_balance"`
	YearsToRetirement int             `yaml:"years_to_retirement"`
	YearsRetired      int             `yaml:"years_retired"`

	AnnualContribution            decimal.Decimal `yaml:"annual_contribution"`
	ContributionInflationAdjusted bool            `yaml:"contribution_inflation_adjusted"`
	InflationRate                 decimal.Decimal `yaml:"inflation_rate"`

	AnnualWithdrawal  decimal.Decimal `yaml:"annual_withdrawal"`
	UseRealWithdrawal bool            `yaml:"use_real_withdrawal"`

	TrackTaxes          bool            `yaml:"track_taxes"`
	CapitalGainsTaxRate decimal.Decimal `yaml:"capital_gains_tax_rate"`

	NumTrials int   `yaml:"num_trials"`
	Seed      int64 `yaml:"seed"`

	CorrelationScenario string      `yaml:"correlation_scenario"`
	CorrelationMatrix   [][]float64 `yaml:"correlation_matrix"`

	AccumulationAssets []domain.Asset `yaml:"accumulation_assets"`
	DecumulationAssets []domain.Asset `yaml:"decumulation_assets"`
}

// LoadScenario reads and validates a YAML scenario file, returning
// simulation parameters ready to run.
func LoadScenario(filename string) (*calculation.SimulationParams, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filename, err)
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	params := scenario.Params()
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("scenario validation failed: %w", err)
	}
	return params, nil
}

// Params converts the scenario into simulation parameters, applying the
// same-portfolio default when no decumulation assets are given.
func (s *Scenario) Params() *calculation.SimulationParams {
	dec := s.DecumulationAssets
	if len(dec) == 0 {
		dec = s.AccumulationAssets
	}
	return &calculation.SimulationParams{
		AccumulationAssets:            s.AccumulationAssets,
		DecumulationAssets:            dec,
		InitialBalance:                s.InitialBalance,
		YearsToRetirement:             s.YearsToRetirement,
		YearsRetired:                  s.YearsRetired,
		AnnualContribution:            s.AnnualContribution,
		ContributionInflationAdjusted: s.ContributionInflationAdjusted,
		InflationRate:                 s.InflationRate,
		AnnualWithdrawal:              s.AnnualWithdrawal,
		UseRealWithdrawal:             s.UseRealWithdrawal,
		TrackTaxes:                    s.TrackTaxes,
		CapitalGainsTaxRate:           s.CapitalGainsTaxRate,
		NumTrials:                     s.NumTrials,
		Seed:                          s.Seed,
		CorrelationScenario:           s.CorrelationScenario,
		CorrelationMatrix:             s.CorrelationMatrix,
	}
}
