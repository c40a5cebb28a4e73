package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SensitivityConfig sets the grid for the HELOC rate / income analysis
type SensitivityConfig struct {
	MinHELOCRate decimal.Decimal   `yaml:"min_heloc_rate" json:"min_heloc_rate"`
	MaxHELOCRate decimal.Decimal   `yaml:"max_heloc_rate" json:"max_heloc_rate"`
	StepRate     decimal.Decimal   `yaml:"step_rate" json:"step_rate"`
	Incomes      []decimal.Decimal `yaml:"incomes,omitempty" json:"incomes,omitempty"` // Household incomes to test
}

// SensitivityResult holds the result of a single HELOC rate / income combination
type SensitivityResult struct {
	HELOCRate          decimal.Decimal
	Income             decimal.Decimal
	MarginalRate       decimal.Decimal
	NetBenefit         decimal.Decimal
	InterestSaved      decimal.Decimal
	TaxBenefit         decimal.Decimal
	HELOCInterest      decimal.Decimal
	MonthsAccelerated  int
	Stopped            bool
	StopMonth          int // Month the Smith scenario stopped; 0 when it ran the full horizon
	PrimaryPayoffMonth int
}

// SensitivityAnalysis holds the complete grid
type SensitivityAnalysis struct {
	Results    [][]SensitivityResult // [rateIdx][incomeIdx]
	HELOCRates []decimal.Decimal
	Incomes    []decimal.Decimal
	Strategy   *StrategyConfig
	Start      time.Time
	Warnings   []string
}

// buildRates generates the rates from min to max inclusive
func buildRates(min, max, step decimal.Decimal) []decimal.Decimal {
	var rates []decimal.Decimal
	for r := min; r.LessThanOrEqual(max); r = r.Add(step) {
		rates = append(rates, r)
	}
	return rates
}

func (c *SensitivityConfig) grid(s *StrategyConfig) ([]decimal.Decimal, []decimal.Decimal) {
	min, max, step := c.MinHELOCRate, c.MaxHELOCRate, c.StepRate
	if min.IsZero() && max.IsZero() {
		min, max = decimal.RequireFromString("0.04"), decimal.RequireFromString("0.09")
	}
	if !step.IsPositive() {
		step = decimal.RequireFromString("0.01")
	}

	incomes := c.Incomes
	if len(incomes) == 0 {
		for _, factor := range []string{"0.5", "1", "1.5", "2"} {
			incomes = append(incomes, s.HouseholdIncome.Mul(decimal.RequireFromString(factor)).Round(0))
		}
	}
	return buildRates(min, max, step), incomes
}

// RunSensitivityAnalysis simulates a modified Smith strategy across HELOC rates
// and household incomes. Nothing is stored; the grid is computed in memory.
func RunSensitivityAnalysis(s *StrategyConfig, settings SensitivityConfig, registry *JurisdictionRegistry, start time.Time) (*SensitivityAnalysis, error) {
	if err := ValidateStrategy(s, registry); err != nil {
		return nil, err
	}
	if s.Kind != StrategyModifiedSmith {
		return nil, fmt.Errorf("sensitivity analysis needs a %s strategy, got %s", StrategyModifiedSmith, s.Kind)
	}
	j, err := registry.Lookup(s.Jurisdiction)
	if err != nil {
		return nil, err
	}

	rates, incomes := settings.grid(s)
	if len(rates) == 0 {
		return nil, fmt.Errorf("sensitivity: min_heloc_rate %s is above max_heloc_rate %s", settings.MinHELOCRate, settings.MaxHELOCRate)
	}
	analysis := &SensitivityAnalysis{
		Results:    make([][]SensitivityResult, len(rates)),
		HELOCRates: rates,
		Incomes:    incomes,
		Strategy:   s,
		Start:      firstOfMonth(start),
	}

	marginal := make([]decimal.Decimal, len(incomes))
	for i, income := range incomes {
		rate, warning, err := registry.MarginalRateFor(s.Jurisdiction, s.Province, income)
		if err != nil {
			return nil, err
		}
		if warning != "" && i == 0 {
			analysis.Warnings = append(analysis.Warnings, warning)
		}
		marginal[i] = rate
	}

	for ri, helocRate := range rates {
		analysis.Results[ri] = make([]SensitivityResult, len(incomes))
		for ii, income := range incomes {
			// Create a copy of the strategy with the tested HELOC rate
			test := s.Clone()
			test.HELOCRate = helocRate
			test.HouseholdIncome = income

			ledgers := RunScenarios(SimulationInput{
				Strategy:           test,
				Start:              analysis.Start,
				MarginalRate:       marginal[ii],
				InterestDeductible: j.InterestDeductible,
			})
			summary := Summarize(ledgers, test.SimulationMonths)

			result := SensitivityResult{
				HELOCRate:         helocRate,
				Income:            income,
				MarginalRate:      marginal[ii],
				NetBenefit:        summary.NetBenefit,
				InterestSaved:     summary.TotalInterestSaved,
				TaxBenefit:        summary.TotalTaxBenefit,
				MonthsAccelerated: summary.MonthsAccelerated,
			}
			if smith, ok := summary.Scenarios[ScenarioModifiedSmith]; ok {
				result.HELOCInterest = smith.TotalHELOCInterest
				result.Stopped = smith.Stopped
				result.PrimaryPayoffMonth = smith.PrimaryPayoffMonth
				if smith.Stopped {
					result.StopMonth = smith.Months
				}
			}
			analysis.Results[ri][ii] = result
		}
	}
	return analysis, nil
}

// BreakEven returns, for each income, the highest tested HELOC rate at which the
// net benefit is still positive, or a negative value when none is
func (a *SensitivityAnalysis) BreakEven() []decimal.Decimal {
	out := make([]decimal.Decimal, len(a.Incomes))
	for ii := range a.Incomes {
		out[ii] = decimal.NewFromInt(-1)
		for ri := range a.HELOCRates {
			if a.Results[ri][ii].NetBenefit.IsPositive() {
				out[ii] = a.HELOCRates[ri]
			}
		}
	}
	return out
}

// PrintSensitivityAnalysis prints the net benefit matrix and break-even rates
func PrintSensitivityAnalysis(a *SensitivityAnalysis) {
	fmt.Println("╔══════════════════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                SENSITIVITY: HELOC RATE vs HOUSEHOLD INCOME                   ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("Strategy: %s | start %s | %d months\n", a.Strategy.Name, a.Start.Format(monthLayout), a.Strategy.SimulationMonths)
	for _, w := range a.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}
	fmt.Println()

	fmt.Printf("%-12s", "HELOC rate")
	for ii, income := range a.Incomes {
		label := fmt.Sprintf("%s (%s)", FormatMoneyShort(income), FormatPercent(a.Results[0][ii].MarginalRate))
		fmt.Printf(" │ %20s", label)
	}
	fmt.Println()
	fmt.Println(strings.Repeat("─", 12+23*len(a.Incomes)))

	for ri, rate := range a.HELOCRates {
		fmt.Printf("%-12s", FormatPercent(rate))
		for ii := range a.Incomes {
			r := a.Results[ri][ii]
			cell := FormatMoneyShort(r.NetBenefit)
			if r.Stopped {
				cell += fmt.Sprintf(" *%d", r.StopMonth)
			}
			fmt.Printf(" │ %20s", cell)
		}
		fmt.Println()
	}
	fmt.Println()
	fmt.Println("Cells show net benefit; *N marks an auto-stop in month N.")

	fmt.Println()
	fmt.Println("Break-even HELOC rate (highest tested rate with a positive net benefit):")
	for ii, rate := range a.BreakEven() {
		value := "none"
		if !rate.IsNegative() {
			value = FormatPercent(rate)
		}
		fmt.Printf("  %-12s %s\n", FormatMoneyShort(a.Incomes[ii]), value)
	}
	fmt.Println()
}
