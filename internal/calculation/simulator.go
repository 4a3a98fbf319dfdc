package calculation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/mat"

	"github.com/finsim/retirement-simulator/internal/domain"
)

// defaultMaxConcurrent bounds how many trials run at once.
const defaultMaxConcurrent = 10

// SimulationParams is the read-only snapshot of inputs for one run.
// Callers running a single portfolio through both phases pass the same
// asset list twice.
type SimulationParams struct {
	AccumulationAssets []domain.Asset
	DecumulationAssets []domain.Asset

	InitialBalance    decimal.Decimal
	YearsToRetirement int
	YearsRetired      int

	AnnualContribution            decimal.Decimal
	ContributionInflationAdjusted bool
	InflationRate                 decimal.Decimal

	AnnualWithdrawal  decimal.Decimal
	UseRealWithdrawal bool

	TrackTaxes          bool
	CapitalGainsTaxRate decimal.Decimal

	NumTrials int
	Seed      int64

	// CorrelationMatrix, when set, is used for both phases and must match
	// their asset counts. Otherwise CorrelationScenario (or the default
	// heuristic table) supplies a matrix per phase.
	CorrelationMatrix   [][]float64
	CorrelationScenario string

	// Progress, when set, receives (completed, total) after each finished
	// trial. It is advisory and never alters numerical results.
	Progress func(completed, total int)
}

// Validate rejects a configuration before any sampling occurs.
func (p *SimulationParams) Validate() error {
	if err := domain.ValidateAssets(p.AccumulationAssets); err != nil {
		return fmt.Errorf("accumulation assets: %w", err)
	}
	if err := domain.ValidateAssets(p.DecumulationAssets); err != nil {
		return fmt.Errorf("decumulation assets: %w", err)
	}
	if p.NumTrials <= 0 {
		return fmt.Errorf("number of trials must be positive, got %d", p.NumTrials)
	}
	if p.YearsToRetirement < 0 {
		return fmt.Errorf("years to retirement cannot be negative")
	}
	if p.YearsRetired < 0 {
		return fmt.Errorf("years retired cannot be negative")
	}
	if p.YearsToRetirement+p.YearsRetired == 0 {
		return fmt.Errorf("simulation horizon is empty")
	}
	if p.InitialBalance.LessThan(decimal.Zero) {
		return fmt.Errorf("initial balance cannot be negative")
	}
	if p.AnnualContribution.LessThan(decimal.Zero) {
		return fmt.Errorf("annual contribution cannot be negative")
	}
	if p.AnnualWithdrawal.LessThan(decimal.Zero) {
		return fmt.Errorf("annual withdrawal cannot be negative")
	}
	if p.InflationRate.LessThanOrEqual(decimal.NewFromInt(-1)) {
		return fmt.Errorf("inflation rate must be greater than -100%%")
	}
	if p.CapitalGainsTaxRate.LessThan(decimal.Zero) || p.CapitalGainsTaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("capital gains tax rate must be in [0, 1)")
	}
	switch p.CorrelationScenario {
	case "", ScenarioHistorical, ScenarioCrisis, ScenarioIndependent:
	default:
		return fmt.Errorf("unknown correlation scenario %q", p.CorrelationScenario)
	}
	if p.CorrelationMatrix != nil {
		n := len(p.CorrelationMatrix)
		if n != len(p.AccumulationAssets) || n != len(p.DecumulationAssets) {
			return fmt.Errorf("correlation matrix is %dx%d but asset lists have %d and %d entries",
				n, n, len(p.AccumulationAssets), len(p.DecumulationAssets))
		}
		for i, row := range p.CorrelationMatrix {
			if len(row) != n {
				return fmt.Errorf("correlation matrix row %d has %d entries, want %d", i, len(row), n)
			}
			for j, e := range row {
				if e < -1 || e > 1 {
					return fmt.Errorf("correlation matrix entry (%d,%d) outside [-1,1]: %g", i, j, e)
				}
			}
			// A non-unit diagonal is a malformed matrix, not a repairable
			// one: PSD repair would pass it through and silently rescale
			// the covariance.
			if math.Abs(row[i]-1.0) > symmetryTolerance {
				return fmt.Errorf("correlation matrix diagonal entry (%d,%d) must be 1.0, got %g", i, i, row[i])
			}
		}
	}
	return nil
}

// phase is the float snapshot of one phase's asset inputs plus its
// correlation matrix. Built once per run, read-only afterwards.
type phase struct {
	means, vols  []float64
	mins, maxs   []float64
	ters, allocs []float64
	corr         *mat.SymDense
}

// Simulator drives the per-trial accumulation/decumulation state machine
// over many independent trials and aggregates their outcomes.
type Simulator struct {
	log           zerolog.Logger
	maxConcurrent int
}

// NewSimulator creates a simulator. Pass zerolog.Nop() for a silent one.
func NewSimulator(log zerolog.Logger) *Simulator {
	return &Simulator{
		log:           log.With().Str("component", "simulator").Logger(),
		maxConcurrent: defaultMaxConcurrent,
	}
}

// Run executes the full simulation. Cancellation is checked between
// trials only; a cancelled run returns the completed prefix with the
// Partial flag set, never an error. Invalid configurations are rejected
// before any trial runs.
func (s *Simulator) Run(ctx context.Context, params SimulationParams) (*domain.SimulationResult, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulation parameters: %w", err)
	}

	var warnings []string
	accPhase, w, err := s.buildPhase(params.AccumulationAssets, &params)
	if err != nil {
		return nil, fmt.Errorf("accumulation phase: %w", err)
	}
	warnings = append(warnings, w...)
	decPhase, w, err := s.buildPhase(params.DecumulationAssets, &params)
	if err != nil {
		return nil, fmt.Errorf("decumulation phase: %w", err)
	}
	warnings = append(warnings, w...)

	seed := params.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	s.log.Info().
		Int("trials", params.NumTrials).
		Int("years_to_retirement", params.YearsToRetirement).
		Int("years_retired", params.YearsRetired).
		Bool("track_taxes", params.TrackTaxes).
		Msg("starting simulation run")

	results := make([]domain.TrialResult, params.NumTrials)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
		firstErr  error
	)
	sem := make(chan struct{}, s.maxConcurrent)

	dispatched := 0
	cancelled := false
	for i := 0; i < params.NumTrials; i++ {
		select {
		case <-ctx.Done():
			cancelled = true
		default:
		}
		if cancelled {
			break
		}
		dispatched++
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			trial, trialErr := s.runTrial(idx, &params, accPhase, decPhase, seed)

			mu.Lock()
			defer mu.Unlock()
			if trialErr != nil {
				if firstErr == nil {
					firstErr = trialErr
				}
				return
			}
			results[idx] = trial
			completed++
			if params.Progress != nil {
				params.Progress(completed, params.NumTrials)
			}
		}(i)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, fmt.Errorf("trial failed: %w", firstErr)
	}

	trials := results[:dispatched]
	if cancelled {
		s.log.Warn().Int("completed", dispatched).Int("requested", params.NumTrials).Msg("run cancelled, reporting completed prefix")
	}

	result := aggregate(trials)
	result.Warnings = warnings
	result.Partial = cancelled
	return result, nil
}

// buildPhase snapshots one phase's asset inputs and resolves its
// correlation matrix from the explicit matrix, the named scenario, or the
// default heuristic table. A non-PSD explicit matrix is repaired and the
// repair surfaced as a warning, not an error.
func (s *Simulator) buildPhase(assets []domain.Asset, params *SimulationParams) (*phase, []string, error) {
	n := len(assets)
	ph := &phase{
		means:  make([]float64, n),
		vols:   make([]float64, n),
		mins:   make([]float64, n),
		maxs:   make([]float64, n),
		ters:   make([]float64, n),
		allocs: make([]float64, n),
	}
	names := make([]string, n)
	for i := range assets {
		names[i] = assets[i].Name
		ph.means[i] = assets[i].MeanReturn.InexactFloat64()
		ph.vols[i] = assets[i].Volatility.InexactFloat64()
		ph.mins[i] = assets[i].MinReturn.InexactFloat64()
		ph.maxs[i] = assets[i].MaxReturn.InexactFloat64()
		ph.ters[i] = assets[i].ExpenseRatio.InexactFloat64()
		ph.allocs[i] = assets[i].Allocation.InexactFloat64()
	}

	var warnings []string
	if params.CorrelationMatrix != nil {
		dense := mat.NewDense(n, n, nil)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				dense.Set(i, j, params.CorrelationMatrix[i][j])
			}
		}
		// Validate has already rejected bad dimensions, out-of-bounds
		// entries and non-unit diagonals, so the only errors the full
		// validation can still report here are asymmetry and non-PSD,
		// both of which repair resolves.
		validation := ValidateCorrelationMatrix(dense)
		warnings = append(warnings, validation.Warnings...)

		repaired, wasRepaired, err := RepairCorrelationMatrix(dense)
		if err != nil {
			return nil, nil, err
		}
		if wasRepaired {
			s.log.Warn().Msg("supplied correlation matrix was not positive semi-definite; repaired")
			warnings = append(warnings, "supplied correlation matrix was not positive semi-definite and was repaired")
		}
		ph.corr = repaired
		return ph, warnings, nil
	}

	corr, err := ScenarioCorrelationMatrix(params.CorrelationScenario, names)
	if err != nil {
		return nil, nil, err
	}
	ph.corr = corr
	return ph, warnings, nil
}

// runTrial executes one independent trial: nominal accumulation followed
// by real-terms decumulation, with an optional tax-lot ledger.
func (s *Simulator) runTrial(idx int, params *SimulationParams, acc, dec *phase, seed int64) (domain.TrialResult, error) {
	rng := rand.New(rand.NewSource(seed + int64(idx)))
	gen := NewReturnGenerator(rng)

	one := decimal.NewFromInt(1)
	inflFactor := one.Add(params.InflationRate)
	inflFloat := params.InflationRate.InexactFloat64()

	// Accumulation phase, nominal arithmetic. Returns for the whole phase
	// are drawn in one bulk call.
	accReturns, err := gen.Sample(acc.means, acc.vols, acc.corr, params.YearsToRetirement)
	if err != nil {
		return domain.TrialResult{}, err
	}

	var ledger *TaxLotLedger
	balance := params.InitialBalance
	if params.TrackTaxes {
		ledger = NewTaxLotLedger(params.CapitalGainsTaxRate, s.log)
		ledger.AddContribution(params.InitialBalance, 0)
	}

	contribution := params.AnnualContribution
	for y := 0; y < params.YearsToRetirement; y++ {
		ret := decimal.NewFromFloat(portfolioReturn(acc, accReturns[y]))
		if ledger != nil {
			ledger.ApplyReturn(ret, y+1)
			ledger.AddContribution(contribution, y+1)
		} else {
			balance = balance.Mul(one.Add(ret)).Add(contribution)
		}
		if params.ContributionInflationAdjusted {
			contribution = contribution.Mul(inflFactor)
		}
	}

	nominalAcc := balance
	if ledger != nil {
		nominalAcc = ledger.Status().TotalValue
	}
	deflator := inflFactor.Pow(decimal.NewFromInt(int64(params.YearsToRetirement)))
	realAcc := nominalAcc.Div(deflator)

	// Decumulation phase, real arithmetic. Without tax tracking the real
	// accumulation balance carries forward; with it, the ledger's nominal
	// value does, and sampled returns are converted to real terms.
	decReturns, err := gen.Sample(dec.means, dec.vols, dec.corr, params.YearsRetired)
	if err != nil {
		return domain.TrialResult{}, err
	}

	if ledger == nil {
		balance = realAcc
	}

	totalNet := decimal.Zero
	withdrawalYears := 0
	ruined := false
	for t := 0; t < params.YearsRetired; t++ {
		nominalRet := portfolioReturn(dec, decReturns[t])
		realRet := decimal.NewFromFloat((1+nominalRet)/(1+inflFloat) - 1)

		// Real policy escalates with inflation since today, not since the
		// start of retirement, preserving today's purchasing power.
		requested := params.AnnualWithdrawal
		if params.UseRealWithdrawal {
			exp := int64(params.YearsToRetirement + t)
			requested = params.AnnualWithdrawal.Mul(inflFactor.Pow(decimal.NewFromInt(exp)))
		}

		var value decimal.Decimal
		if ledger != nil {
			ledger.ApplyReturn(realRet, params.YearsToRetirement+t+1)
			res := ledger.Withdraw(requested)
			if res.Gross.GreaterThan(decimal.Zero) {
				totalNet = totalNet.Add(res.Net)
				withdrawalYears++
			}
			value = ledger.Status().TotalValue
		} else {
			balance = balance.Mul(one.Add(realRet))
			actual := requested
			if actual.GreaterThan(balance) {
				actual = balance
			}
			if actual.LessThan(decimal.Zero) {
				actual = decimal.Zero
			}
			balance = balance.Sub(actual)
			if actual.GreaterThan(decimal.Zero) {
				totalNet = totalNet.Add(actual)
				withdrawalYears++
			}
			value = balance
		}

		// Ruin is terminal: the balance is fixed at zero with no recovery.
		if value.LessThanOrEqual(decimal.Zero) {
			ruined = true
			break
		}
	}

	final := decimal.Zero
	if !ruined {
		if ledger != nil {
			final = ledger.Status().TotalValue
		} else {
			final = balance
		}
	}

	avgWithdrawal := decimal.Zero
	if withdrawalYears > 0 {
		avgWithdrawal = totalNet.Div(decimal.NewFromInt(int64(withdrawalYears)))
	}

	taxes := domain.TaxSummary{}
	if ledger != nil {
		taxes = ledger.Summary()
	}

	return domain.TrialResult{
		NominalAccumulation: nominalAcc,
		RealAccumulation:    realAcc,
		FinalBalance:        final,
		AverageWithdrawal:   avgWithdrawal,
		Success:             final.GreaterThan(decimal.Zero),
		Taxes:               taxes,
	}, nil
}

// portfolioReturn clamps each asset's raw draw into its bounds, subtracts
// its expense ratio and folds the allocation-weighted sum.
func portfolioReturn(ph *phase, raw []float64) float64 {
	total := 0.0
	for i, r := range raw {
		if r < ph.mins[i] {
			r = ph.mins[i]
		}
		if r > ph.maxs[i] {
			r = ph.maxs[i]
		}
		r -= ph.ters[i]
		total += ph.allocs[i] * r
	}
	return total
}

// aggregate folds trial records into the result bundle.
func aggregate(trials []domain.TrialResult) *domain.SimulationResult {
	result := &domain.SimulationResult{
		Trials:    trials,
		NumTrials: len(trials),
	}
	if len(trials) == 0 {
		return result
	}

	n := len(trials)
	nominal := make([]decimal.Decimal, n)
	deflated := make([]decimal.Decimal, n)
	final := make([]decimal.Decimal, n)
	successes := 0

	taxSum := domain.TaxSummary{}
	for i := range trials {
		nominal[i] = trials[i].NominalAccumulation
		deflated[i] = trials[i].RealAccumulation
		final[i] = trials[i].FinalBalance
		if trials[i].Success {
			successes++
		}
		taxSum.TotalContributions = taxSum.TotalContributions.Add(trials[i].Taxes.TotalContributions)
		taxSum.TotalWithdrawals = taxSum.TotalWithdrawals.Add(trials[i].Taxes.TotalWithdrawals)
		taxSum.TotalTaxesPaid = taxSum.TotalTaxesPaid.Add(trials[i].Taxes.TotalTaxesPaid)
		taxSum.TotalCapitalGains = taxSum.TotalCapitalGains.Add(trials[i].Taxes.TotalCapitalGains)
	}

	count := decimal.NewFromInt(int64(n))
	result.SuccessRate = decimal.NewFromInt(int64(successes)).Div(count)
	result.NominalAccumulationStats = seriesStats(nominal)
	result.RealAccumulationStats = seriesStats(deflated)
	result.FinalBalanceStats = seriesStats(final)

	avg := domain.TaxSummary{
		TotalContributions: taxSum.TotalContributions.Div(count),
		TotalWithdrawals:   taxSum.TotalWithdrawals.Div(count),
		TotalTaxesPaid:     taxSum.TotalTaxesPaid.Div(count),
		TotalCapitalGains:  taxSum.TotalCapitalGains.Div(count),
	}
	if taxSum.TotalWithdrawals.GreaterThan(decimal.Zero) {
		avg.EffectiveTaxRate = taxSum.TotalTaxesPaid.Div(taxSum.TotalWithdrawals)
	}
	result.AverageTaxes = avg

	return result
}

// seriesStats computes mean, median and percentile markers over one
// per-trial value series.
func seriesStats(values []decimal.Decimal) domain.SeriesStats {
	if len(values) == 0 {
		return domain.SeriesStats{}
	}
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	sum := decimal.Zero
	for _, v := range sorted {
		sum = sum.Add(v)
	}
	n := len(sorted)
	return domain.SeriesStats{
		Mean:   sum.Div(decimal.NewFromInt(int64(n))),
		Median: sorted[n/2],
		P10:    sorted[n/10],
		P25:    sorted[n/4],
		P75:    sorted[3*n/4],
		P90:    sorted[9*n/10],
	}
}
