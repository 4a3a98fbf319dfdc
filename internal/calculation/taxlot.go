package calculation

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/finsim/retirement-simulator/internal/domain"
)

// TaxLot is one unit of invested capital with its own cost basis. Amount
// tracks current market value and moves with applied returns; CostBasis
// only ever shrinks, and only through withdrawals.
type TaxLot struct {
	Amount       decimal.Decimal
	CostBasis    decimal.Decimal
	PurchaseYear int
}

// PortfolioStatus is a snapshot of the ledger's value and basis totals.
type PortfolioStatus struct {
	TotalValue     decimal.Decimal
	TotalBasis     decimal.Decimal
	UnrealizedGain decimal.Decimal
}

// WithdrawalResult reports one executed withdrawal. Gross is the amount
// removed from the ledger; Net is Gross minus tax.
type WithdrawalResult struct {
	Gross        decimal.Decimal
	Net          decimal.Decimal
	TaxOwed      decimal.Decimal
	RealizedGain decimal.Decimal
}

// TaxLotLedger tracks cost-basis lots for a single trial and levies
// capital-gains tax on the realized-gain portion of each withdrawal.
// Return of basis is untaxed. A ledger is owned by exactly one trial and
// discarded once its summary has been extracted.
type TaxLotLedger struct {
	lots    []TaxLot
	taxRate decimal.Decimal
	log     zerolog.Logger

	totalContributions decimal.Decimal
	totalWithdrawals   decimal.Decimal
	totalTaxesPaid     decimal.Decimal
	totalCapitalGains  decimal.Decimal
}

// NewTaxLotLedger creates an empty ledger taxing realized gains at taxRate.
func NewTaxLotLedger(taxRate decimal.Decimal, log zerolog.Logger) *TaxLotLedger {
	return &TaxLotLedger{
		taxRate: taxRate,
		log:     log.With().Str("component", "taxlot").Logger(),
	}
}

// AddContribution appends a new lot whose basis equals its value, so a
// fresh contribution carries zero unrealized gain. Non-positive amounts
// are ignored.
func (l *TaxLotLedger) AddContribution(amount decimal.Decimal, year int) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return
	}
	l.lots = append(l.lots, TaxLot{
		Amount:       amount,
		CostBasis:    amount,
		PurchaseYear: year,
	})
	l.totalContributions = l.totalContributions.Add(amount)
}

// ApplyReturn grows every non-empty lot by (1 + annualReturn). Cost bases
// are untouched; this is how unrealized gains accrue.
func (l *TaxLotLedger) ApplyReturn(annualReturn decimal.Decimal, year int) {
	factor := decimal.NewFromInt(1).Add(annualReturn)
	for i := range l.lots {
		if l.lots[i].Amount.GreaterThan(decimal.Zero) {
			l.lots[i].Amount = l.lots[i].Amount.Mul(factor)
		}
	}
	l.log.Debug().Int("year", year).Str("return", annualReturn.String()).Msg("applied annual return")
}

// Status sums lot values and bases. Unrealized gain is floored at zero.
func (l *TaxLotLedger) Status() PortfolioStatus {
	value := decimal.Zero
	basis := decimal.Zero
	for i := range l.lots {
		value = value.Add(l.lots[i].Amount)
		basis = basis.Add(l.lots[i].CostBasis)
	}
	gain := value.Sub(basis)
	if gain.LessThan(decimal.Zero) {
		gain = decimal.Zero
	}
	return PortfolioStatus{TotalValue: value, TotalBasis: basis, UnrealizedGain: gain}
}

// Withdraw removes up to requested from the ledger, slicing each lot in
// proportion to its share of total portfolio value at the moment of
// withdrawal. Within a lot, withdrawing fraction r removes r of its cost
// basis and realizes max(0, withdrawal − r·basis) of gain. Tax is levied
// on the aggregate realized gain and can never exceed the gross amount
// actually withdrawn.
func (l *TaxLotLedger) Withdraw(requested decimal.Decimal) WithdrawalResult {
	status := l.Status()
	if requested.LessThanOrEqual(decimal.Zero) || status.TotalValue.LessThanOrEqual(decimal.Zero) {
		return WithdrawalResult{}
	}
	if requested.GreaterThan(status.TotalValue) {
		requested = status.TotalValue
	}

	remaining := requested
	gross := decimal.Zero
	gain := decimal.Zero

	for i := range l.lots {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		lot := &l.lots[i]
		if lot.Amount.LessThanOrEqual(decimal.Zero) {
			continue
		}

		share := lot.Amount.Div(status.TotalValue)
		w := requested.Mul(share)
		if w.GreaterThan(lot.Amount) {
			w = lot.Amount
		}
		if w.GreaterThan(remaining) {
			w = remaining
		}
		if w.LessThanOrEqual(decimal.Zero) {
			continue
		}

		frac := w.Div(lot.Amount)
		basisOut := frac.Mul(lot.CostBasis)
		lotGain := w.Sub(basisOut)
		if lotGain.LessThan(decimal.Zero) {
			lotGain = decimal.Zero
		}

		lot.Amount = lot.Amount.Sub(w)
		if lot.Amount.LessThan(decimal.Zero) {
			lot.Amount = decimal.Zero
		}
		lot.CostBasis = lot.CostBasis.Sub(basisOut)
		if lot.CostBasis.LessThan(decimal.Zero) {
			lot.CostBasis = decimal.Zero
		}

		gross = gross.Add(w)
		gain = gain.Add(lotGain)
		remaining = remaining.Sub(w)
	}

	tax := gain.Mul(l.taxRate)
	if tax.GreaterThan(gross) {
		// Floating-point drift can only push tax past gross by a hair;
		// clamp and record the anomaly rather than failing the trial.
		l.log.Warn().
			Str("tax", tax.String()).
			Str("gross", gross.String()).
			Msg("computed tax exceeded gross withdrawal, clamping")
		tax = gross
	}
	net := gross.Sub(tax)
	if net.LessThan(decimal.Zero) {
		net = decimal.Zero
	}

	l.totalWithdrawals = l.totalWithdrawals.Add(gross)
	l.totalTaxesPaid = l.totalTaxesPaid.Add(tax)
	l.totalCapitalGains = l.totalCapitalGains.Add(gain)

	return WithdrawalResult{Gross: gross, Net: net, TaxOwed: tax, RealizedGain: gain}
}

// Summary extracts the ledger's running totals for the trial record.
func (l *TaxLotLedger) Summary() domain.TaxSummary {
	effective := decimal.Zero
	if l.totalWithdrawals.GreaterThan(decimal.Zero) {
		effective = l.totalTaxesPaid.Div(l.totalWithdrawals)
	}
	return domain.TaxSummary{
		TotalContributions: l.totalContributions,
		TotalWithdrawals:   l.totalWithdrawals,
		TotalTaxesPaid:     l.totalTaxesPaid,
		TotalCapitalGains:  l.totalCapitalGains,
		EffectiveTaxRate:   effective,
	}
}
