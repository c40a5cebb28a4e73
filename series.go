package main

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SeriesPoint is one chart point
type SeriesPoint struct {
	Date  string  `json:"date"` // YYYY-MM
	Value float64 `json:"value"`
}

// NetMonthlyCostField names the composed interest-minus-benefit series
const NetMonthlyCostField = "net_monthly_cost"

// DefaultSeriesFields are the series charted when a caller asks for none
var DefaultSeriesFields = []string{
	"primary_balance",
	"rental_balance",
	"heloc_balance",
	"total_debt",
	"tax_benefit",
	"cumulative_tax_benefit",
	"deductible_interest",
	"heloc_interest",
	"primary_prepayment",
}

// BuildSeries extracts one monetary field of a scenario ledger as a time series
func BuildSeries(entries []LedgerEntry, field string) ([]SeriesPoint, error) {
	if field == NetMonthlyCostField {
		return netMonthlyCost(entries), nil
	}
	f, ok := lookupLedgerField(field)
	if !ok {
		return nil, fmt.Errorf("unknown series field %q", field)
	}

	points := make([]SeriesPoint, len(entries))
	for i := range entries {
		points[i] = SeriesPoint{
			Date:  entries[i].MonthLabel(),
			Value: f.Ref(&entries[i]).InexactFloat64(),
		}
	}
	return points, nil
}

// BuildSeriesSet builds every requested field for every scenario, keyed "<scenario>.<field>"
func BuildSeriesSet(ledgers map[ScenarioKind][]LedgerEntry, fields ...string) (map[string][]SeriesPoint, error) {
	if len(fields) == 0 {
		fields = DefaultSeriesFields
	}
	set := make(map[string][]SeriesPoint)
	for _, scenario := range AllScenarios {
		entries, ok := ledgers[scenario]
		if !ok {
			continue
		}
		for _, field := range fields {
			points, err := BuildSeries(entries, field)
			if err != nil {
				return nil, err
			}
			set[scenario.String()+"."+field] = points
		}
	}
	return set, nil
}

// NetMonthlyCostSeries composes interest paid minus tax benefit for each scenario
func NetMonthlyCostSeries(ledgers map[ScenarioKind][]LedgerEntry) map[string][]SeriesPoint {
	set := make(map[string][]SeriesPoint)
	for _, scenario := range AllScenarios {
		if entries, ok := ledgers[scenario]; ok {
			set[scenario.String()+"."+NetMonthlyCostField] = netMonthlyCost(entries)
		}
	}
	return set
}

func netMonthlyCost(entries []LedgerEntry) []SeriesPoint {
	points := make([]SeriesPoint, len(entries))
	for i := range entries {
		e := &entries[i]
		points[i] = SeriesPoint{
			Date:  e.MonthLabel(),
			Value: e.TotalInterest().Sub(e.TaxBenefit).InexactFloat64(),
		}
	}
	return points
}

// ScenarioOutcome summarises one scenario ledger
type ScenarioOutcome struct {
	Scenario             ScenarioKind    `json:"scenario"`
	Months               int             `json:"months"`
	Final                *LedgerEntry    `json:"final,omitempty"`
	PrimaryPayoffMonth   int             `json:"primary_payoff_month"` // 0 when not paid off within the horizon
	DebtFreeMonth        int             `json:"debt_free_month"`      // Both mortgages cleared; 0 when never
	TotalPrimaryInterest decimal.Decimal `json:"total_primary_interest"`
	TotalRentalInterest  decimal.Decimal `json:"total_rental_interest"`
	TotalHELOCInterest   decimal.Decimal `json:"total_heloc_interest"`
	TotalPrepayment      decimal.Decimal `json:"total_prepayment"`
	TotalTaxBenefit      decimal.Decimal `json:"total_tax_benefit"`
	Stopped              bool            `json:"stopped"`
	StopReason           string          `json:"stop_reason,omitempty"`
}

// MortgageInterest returns primary plus rental interest over the ledger
func (o *ScenarioOutcome) MortgageInterest() decimal.Decimal {
	return o.TotalPrimaryInterest.Add(o.TotalRentalInterest)
}

// SummaryReport compares scenarios for a dashboard
type SummaryReport struct {
	Horizon            int                               `json:"horizon"`
	Scenarios          map[ScenarioKind]*ScenarioOutcome `json:"scenarios"`
	ComparedScenario   ScenarioKind                      `json:"compared_scenario"` // Scenario measured against baseline
	TotalInterestSaved decimal.Decimal                   `json:"total_interest_saved"`
	TotalTaxBenefit    decimal.Decimal                   `json:"total_tax_benefit"`
	NetBenefit         decimal.Decimal                   `json:"net_benefit"`
	MonthsAccelerated  int                               `json:"months_accelerated"`
	ComparisonMonths   int                               `json:"comparison_months"` // Months of baseline the totals are measured over
	ComparisonStopped  bool                              `json:"comparison_stopped"`
}

// Clone returns a deep copy so cached reports cannot be changed through a caller's copy
func (r *SummaryReport) Clone() *SummaryReport {
	c := *r
	c.Scenarios = make(map[ScenarioKind]*ScenarioOutcome, len(r.Scenarios))
	for scenario, o := range r.Scenarios {
		oc := *o
		if o.Final != nil {
			final := *o.Final
			oc.Final = &final
		}
		c.Scenarios[scenario] = &oc
	}
	return &c
}

// StrategySummary returns the scalars cached on the strategy configuration
func (r *SummaryReport) StrategySummary() StrategySummary {
	return StrategySummary{
		TotalInterestSaved: r.TotalInterestSaved,
		TotalTaxBenefit:    r.TotalTaxBenefit,
		NetBenefit:         r.NetBenefit,
		MonthsAccelerated:  r.MonthsAccelerated,
	}
}

// summarizeScenario totals one ledger
func summarizeScenario(scenario ScenarioKind, entries []LedgerEntry) *ScenarioOutcome {
	o := &ScenarioOutcome{Scenario: scenario, Months: len(entries)}
	for i := range entries {
		e := &entries[i]
		o.TotalPrimaryInterest = o.TotalPrimaryInterest.Add(e.PrimaryInterest)
		o.TotalRentalInterest = o.TotalRentalInterest.Add(e.RentalInterest)
		o.TotalHELOCInterest = o.TotalHELOCInterest.Add(e.HELOCInterest)
		o.TotalPrepayment = o.TotalPrepayment.Add(e.PrimaryPrepayment)
		if o.PrimaryPayoffMonth == 0 && e.PrimaryBalance.IsZero() {
			o.PrimaryPayoffMonth = e.Month
		}
		if o.DebtFreeMonth == 0 && e.PrimaryBalance.IsZero() && e.RentalBalance.IsZero() {
			o.DebtFreeMonth = e.Month
		}
	}
	if n := len(entries); n > 0 {
		final := entries[n-1]
		o.Final = &final
		o.TotalTaxBenefit = final.CumulativeTaxBenefit
		o.Stopped = final.StrategyStopped
		o.StopReason = final.StopReason
	}
	return o
}

// Summarize compares the Smith ledger (or prepay_only when Smith was not run)
// against the baseline. horizon is the configured simulation length; a scenario
// that never pays off counts as paying off in month horizon+1.
//
// When an auto-stop rule ended the compared ledger early, the baseline is only
// counted over the same months, and months accelerated is zero unless the
// compared primary mortgage was paid off before the stop.
func Summarize(ledgers map[ScenarioKind][]LedgerEntry, horizon int) *SummaryReport {
	r := &SummaryReport{
		Horizon:   horizon,
		Scenarios: make(map[ScenarioKind]*ScenarioOutcome),
	}
	for _, scenario := range AllScenarios {
		if entries, ok := ledgers[scenario]; ok {
			r.Scenarios[scenario] = summarizeScenario(scenario, entries)
		}
	}

	base, ok := r.Scenarios[ScenarioBaseline]
	if !ok {
		return r
	}
	r.ComparedScenario = ScenarioModifiedSmith
	compared, ok := r.Scenarios[ScenarioModifiedSmith]
	if !ok {
		r.ComparedScenario = ScenarioPrepayOnly
		compared, ok = r.Scenarios[ScenarioPrepayOnly]
		if !ok {
			return r
		}
	}

	r.ComparisonMonths = base.Months
	if compared.Stopped && compared.Months < base.Months {
		r.ComparisonMonths = compared.Months
		r.ComparisonStopped = true
		base = summarizeScenario(ScenarioBaseline, ledgers[ScenarioBaseline][:compared.Months])
	}

	r.TotalInterestSaved = base.MortgageInterest().Sub(compared.MortgageInterest())
	r.TotalTaxBenefit = compared.TotalTaxBenefit.Sub(base.TotalTaxBenefit)
	r.NetBenefit = r.TotalInterestSaved.Add(r.TotalTaxBenefit).Sub(compared.TotalHELOCInterest)
	if r.ComparisonStopped && compared.PrimaryPayoffMonth == 0 {
		return r
	}
	r.MonthsAccelerated = payoffOrBeyond(r.Scenarios[ScenarioBaseline].PrimaryPayoffMonth, horizon) -
		payoffOrBeyond(compared.PrimaryPayoffMonth, horizon)
	return r
}

func payoffOrBeyond(month, horizon int) int {
	if month == 0 {
		return horizon + 1
	}
	return month
}
