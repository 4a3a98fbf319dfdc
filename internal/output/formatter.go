package output

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/finsim/retirement-simulator/internal/calculation"
	"github.com/finsim/retirement-simulator/internal/domain"
)

// ConsoleFormatter renders a simulation result bundle as plain text for
// terminal display.
type ConsoleFormatter struct{}

// NewConsoleFormatter creates a console formatter.
func NewConsoleFormatter() *ConsoleFormatter {
	return &ConsoleFormatter{}
}

// FormatSummary renders the aggregate statistics of a run.
func (f *ConsoleFormatter) FormatSummary(result *domain.SimulationResult) string {
	var b strings.Builder

	b.WriteString("SIMULATION SUMMARY\n")
	b.WriteString("==================\n")
	fmt.Fprintf(&b, "Trials:        %d", result.NumTrials)
	if result.Partial {
		b.WriteString(" (partial, run was cancelled)")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Success rate:  %s%%\n", result.SuccessRate.Mul(decimal.NewFromInt(100)).StringFixed(1))
	b.WriteString("\n")

	f.writeSeries(&b, "Accumulation (nominal)", result.NominalAccumulationStats)
	f.writeSeries(&b, "Accumulation (real)", result.RealAccumulationStats)
	f.writeSeries(&b, "Final balance", result.FinalBalanceStats)

	if result.AverageTaxes.TotalWithdrawals.GreaterThan(decimal.Zero) {
		b.WriteString("TAXES (per-trial averages)\n")
		fmt.Fprintf(&b, "  Contributions:      $%s\n", result.AverageTaxes.TotalContributions.StringFixed(2))
		fmt.Fprintf(&b, "  Withdrawals:        $%s\n", result.AverageTaxes.TotalWithdrawals.StringFixed(2))
		fmt.Fprintf(&b, "  Taxes paid:         $%s\n", result.AverageTaxes.TotalTaxesPaid.StringFixed(2))
		fmt.Fprintf(&b, "  Realized gains:     $%s\n", result.AverageTaxes.TotalCapitalGains.StringFixed(2))
		fmt.Fprintf(&b, "  Effective tax rate: %s%%\n", result.AverageTaxes.EffectiveTaxRate.Mul(decimal.NewFromInt(100)).StringFixed(2))
		b.WriteString("\n")
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(&b, "WARNING: %s\n", w)
	}

	return b.String()
}

func (f *ConsoleFormatter) writeSeries(b *strings.Builder, label string, stats domain.SeriesStats) {
	fmt.Fprintf(b, "%s\n", strings.ToUpper(label))
	fmt.Fprintf(b, "  Mean:   $%s\n", stats.Mean.StringFixed(2))
	fmt.Fprintf(b, "  Median: $%s\n", stats.Median.StringFixed(2))
	fmt.Fprintf(b, "  P10:    $%s    P25: $%s\n", stats.P10.StringFixed(2), stats.P25.StringFixed(2))
	fmt.Fprintf(b, "  P75:    $%s    P90: $%s\n", stats.P75.StringFixed(2), stats.P90.StringFixed(2))
	b.WriteString("\n")
}

// FormatRiskReport renders the risk-metrics bundle.
func (f *ConsoleFormatter) FormatRiskReport(report calculation.RiskReport) string {
	var b strings.Builder

	b.WriteString("RISK METRICS (final balance)\n")
	b.WriteString("============================\n")
	for _, level := range report.Levels {
		fmt.Fprintf(&b, "  %.0f%% confidence: VaR $%.2f, CVaR $%.2f\n",
			level.Confidence*100, level.VaR, level.CVaR)
	}
	b.WriteString("\nLOSS PROBABILITIES\n")
	for _, lp := range report.LossProbabilities {
		fmt.Fprintf(&b, "  >%2.0f%% below reference: %5.1f%%\n", lp.Threshold*100, lp.Probability*100)
	}
	if len(report.Attribution) > 0 {
		b.WriteString("\nRISK ATTRIBUTION (by allocation weight)\n")
		for _, share := range report.Attribution {
			fmt.Fprintf(&b, "  %-24s %5.1f%%  VaR $%.2f  CVaR $%.2f\n",
				share.Name, share.Allocation*100, share.VaR, share.CVaR)
		}
	}
	b.WriteString("\n")
	return b.String()
}
