package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AllocationTolerance is the maximum absolute deviation from 1.0 allowed
// when summing the allocations of an asset list.
var AllocationTolerance = decimal.NewFromFloat(1e-4)

// Asset describes one holding in a simulated portfolio. Instances are
// constructed by the caller before a run and never mutated by the engine.
type Asset struct {
	Name         string          `yaml:"name" json:"name"`
	Allocation   decimal.Decimal `yaml:"allocation" json:"allocation"`
	ExpenseRatio decimal.Decimal `yaml:"expense_ratio" json:"expense_ratio"`
	MeanReturn   decimal.Decimal `yaml:"mean_return" json:"mean_return"`
	Volatility   decimal.Decimal `yaml:"volatility" json:"volatility"`
	MinReturn    decimal.Decimal `yaml:"min_return" json:"min_return"`
	MaxReturn    decimal.Decimal `yaml:"max_return" json:"max_return"`
}

// Validate checks a single asset's fields.
func (a *Asset) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("asset name is required")
	}
	if a.Allocation.LessThan(decimal.Zero) || a.Allocation.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("allocation must be between 0 and 1, got %s", a.Allocation)
	}
	if a.ExpenseRatio.LessThan(decimal.Zero) {
		return fmt.Errorf("expense ratio cannot be negative, got %s", a.ExpenseRatio)
	}
	if a.Volatility.LessThan(decimal.Zero) {
		return fmt.Errorf("volatility cannot be negative, got %s", a.Volatility)
	}
	if a.MinReturn.GreaterThan(a.MaxReturn) {
		return fmt.Errorf("min return %s exceeds max return %s", a.MinReturn, a.MaxReturn)
	}
	return nil
}

// ValidateAssets checks an asset list for a simulation phase: every asset
// must be valid on its own and the allocations must sum to 1.0 within
// AllocationTolerance.
func ValidateAssets(assets []Asset) error {
	if len(assets) == 0 {
		return fmt.Errorf("at least one asset is required")
	}

	total := decimal.Zero
	for i := range assets {
		if err := assets[i].Validate(); err != nil {
			return fmt.Errorf("asset %q: %w", assets[i].Name, err)
		}
		total = total.Add(assets[i].Allocation)
	}

	if total.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(AllocationTolerance) {
		return fmt.Errorf("asset allocations must sum to 1.0, got %s", total)
	}
	return nil
}
