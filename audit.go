package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/shopspring/decimal"
)

// RentalIncomeSection aggregates rental cash flows for a period
type RentalIncomeSection struct {
	GrossIncome   decimal.Decimal `json:"gross_income"`
	Expenses      decimal.Decimal `json:"expenses"`
	NetCashFlow   decimal.Decimal `json:"net_cash_flow"`
	NegativeMonth int             `json:"negative_months"` // Months with negative net cash flow
}

// InterestDeductionSection splits interest into deductible and non-deductible parts
type InterestDeductionSection struct {
	RentalMortgageInterest  decimal.Decimal `json:"rental_mortgage_interest"`
	HELOCInterest           decimal.Decimal `json:"heloc_interest"`
	PrimaryMortgageInterest decimal.Decimal `json:"primary_mortgage_interest"`
	TotalDeductible         decimal.Decimal `json:"total_deductible"`
	TotalNonDeductible      decimal.Decimal `json:"total_non_deductible"`
}

// TaxBenefitSection reports the tax saved by deductible interest
type TaxBenefitSection struct {
	Benefit         decimal.Decimal `json:"benefit"`
	CumulativeAtEnd decimal.Decimal `json:"cumulative_at_end"`
	EffectiveRate   decimal.Decimal `json:"effective_rate"` // Benefit / deductible interest
	NetOfHELOCCost  decimal.Decimal `json:"net_of_heloc_cost"`
}

// HELOCUsageSection describes borrowing on the line of credit
type HELOCUsageSection struct {
	Draws          decimal.Decimal `json:"draws"`
	Interest       decimal.Decimal `json:"interest"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
	PeakBalance    decimal.Decimal `json:"peak_balance"`
	CreditLimit    decimal.Decimal `json:"credit_limit"` // At period end
	Narrative      string          `json:"narrative"`
}

// DebtReductionSection accounts for every dollar that lowered a mortgage balance
type DebtReductionSection struct {
	PrimaryPrincipal  decimal.Decimal `json:"primary_principal"`
	PrimaryPrepayment decimal.Decimal `json:"primary_prepayment"`
	RentalPrincipal   decimal.Decimal `json:"rental_principal"`
	RentalPrepayment  decimal.Decimal `json:"rental_prepayment"`
}

// AuditPeriod is one calendar year, or the whole run
type AuditPeriod struct {
	Label         string                   `json:"label"`
	FirstMonth    string                   `json:"first_month"`
	LastMonth     string                   `json:"last_month"`
	Months        int                      `json:"months"`
	RentalIncome  RentalIncomeSection      `json:"rental_income"`
	Interest      InterestDeductionSection `json:"interest_deductions"`
	TaxBenefit    TaxBenefitSection        `json:"tax_benefit"`
	HELOCUsage    HELOCUsageSection        `json:"heloc_usage"`
	DebtReduction DebtReductionSection     `json:"debt_reduction"`
}

// AuditReport is the documentation trail for one scenario ledger
type AuditReport struct {
	StrategyID   string        `json:"strategy_id"`
	StrategyName string        `json:"strategy_name"`
	Jurisdiction string        `json:"jurisdiction"`
	Province     string        `json:"province,omitempty"`
	Scenario     ScenarioKind  `json:"scenario"`
	Stopped      bool          `json:"stopped"`
	StopReason   string        `json:"stop_reason,omitempty"`
	Years        []AuditPeriod `json:"years"`
	Total        AuditPeriod   `json:"total"`
}

// BuildAuditReport aggregates a scenario ledger per calendar year and for the whole run
func BuildAuditReport(strategy *StrategyConfig, scenario ScenarioKind, entries []LedgerEntry) *AuditReport {
	r := &AuditReport{
		StrategyID:   strategy.ID,
		StrategyName: strategy.Name,
		Jurisdiction: strategy.Jurisdiction,
		Province:     strategy.Province,
		Scenario:     scenario,
	}
	if len(entries) == 0 {
		r.Total = AuditPeriod{Label: "All years"}
		r.Total.HELOCUsage.Narrative = helocNarrative(&r.Total)
		return r
	}

	openingHELOC := openingHELOCBalance(strategy, scenario)
	start := 0
	for i := 1; i <= len(entries); i++ {
		if i == len(entries) || entries[i].CalendarMonth.Year() != entries[start].CalendarMonth.Year() {
			label := strconv.Itoa(entries[start].CalendarMonth.Year())
			period := aggregatePeriod(label, entries[start:i], openingHELOC)
			openingHELOC = period.HELOCUsage.ClosingBalance
			r.Years = append(r.Years, period)
			start = i
		}
	}

	r.Total = aggregatePeriod("All years", entries, openingHELOCBalance(strategy, scenario))
	final := entries[len(entries)-1]
	r.Stopped = final.StrategyStopped
	r.StopReason = final.StopReason
	return r
}

func openingHELOCBalance(strategy *StrategyConfig, scenario ScenarioKind) decimal.Decimal {
	if !PolicyFor(scenario).UsesHELOC || strategy.HELOC == nil {
		return decimal.Zero
	}
	return roundMoney(clampZero(strategy.HELOC.Balance))
}

func aggregatePeriod(label string, entries []LedgerEntry, openingHELOC decimal.Decimal) AuditPeriod {
	p := AuditPeriod{
		Label:      label,
		FirstMonth: entries[0].MonthLabel(),
		LastMonth:  entries[len(entries)-1].MonthLabel(),
		Months:     len(entries),
	}
	p.HELOCUsage.OpeningBalance = openingHELOC
	p.HELOCUsage.PeakBalance = openingHELOC

	for i := range entries {
		e := &entries[i]
		p.RentalIncome.GrossIncome = p.RentalIncome.GrossIncome.Add(e.RentalIncome)
		p.RentalIncome.Expenses = p.RentalIncome.Expenses.Add(e.RentalExpenses)
		p.RentalIncome.NetCashFlow = p.RentalIncome.NetCashFlow.Add(e.NetRentalCashFlow)
		if e.NetRentalCashFlow.IsNegative() {
			p.RentalIncome.NegativeMonth++
		}

		p.Interest.RentalMortgageInterest = p.Interest.RentalMortgageInterest.Add(e.RentalInterest)
		p.Interest.HELOCInterest = p.Interest.HELOCInterest.Add(e.HELOCInterest)
		p.Interest.PrimaryMortgageInterest = p.Interest.PrimaryMortgageInterest.Add(e.PrimaryInterest)
		p.Interest.TotalDeductible = p.Interest.TotalDeductible.Add(e.DeductibleInterest)
		p.Interest.TotalNonDeductible = p.Interest.TotalNonDeductible.Add(e.NonDeductibleInterest)

		p.TaxBenefit.Benefit = p.TaxBenefit.Benefit.Add(e.TaxBenefit)

		p.DebtReduction.PrimaryPrincipal = p.DebtReduction.PrimaryPrincipal.Add(e.PrimaryPrincipal)
		p.DebtReduction.PrimaryPrepayment = p.DebtReduction.PrimaryPrepayment.Add(e.PrimaryPrepayment)
		p.DebtReduction.RentalPrincipal = p.DebtReduction.RentalPrincipal.Add(e.RentalPrincipal)
		p.DebtReduction.RentalPrepayment = p.DebtReduction.RentalPrepayment.Add(e.RentalPrepayment)

		p.HELOCUsage.Draws = p.HELOCUsage.Draws.Add(e.HELOCDraw)
		p.HELOCUsage.Interest = p.HELOCUsage.Interest.Add(e.HELOCInterest)
		if e.HELOCBalance.GreaterThan(p.HELOCUsage.PeakBalance) {
			p.HELOCUsage.PeakBalance = e.HELOCBalance
		}
	}

	last := entries[len(entries)-1]
	p.TaxBenefit.CumulativeAtEnd = last.CumulativeTaxBenefit
	if p.Interest.TotalDeductible.IsPositive() {
		p.TaxBenefit.EffectiveRate = p.TaxBenefit.Benefit.DivRound(p.Interest.TotalDeductible, 4)
	}
	p.TaxBenefit.NetOfHELOCCost = p.TaxBenefit.Benefit.Sub(p.HELOCUsage.Interest)
	p.HELOCUsage.ClosingBalance = last.HELOCBalance
	p.HELOCUsage.CreditLimit = last.HELOCCreditLimit
	p.HELOCUsage.Narrative = helocNarrative(&p)
	return p
}

func helocNarrative(p *AuditPeriod) string {
	u := p.HELOCUsage
	if !u.Draws.IsPositive() && !u.Interest.IsPositive() && !u.ClosingBalance.IsPositive() {
		return "No HELOC borrowing in this period."
	}
	return fmt.Sprintf(
		"HELOC draws of %s funded rental property expenses. Interest of %s was capitalised onto the line "+
			"and claimed as investment interest. The balance moved from %s to %s, peaking at %s against a %s limit.",
		FormatMoney(u.Draws), FormatMoney(u.Interest), FormatMoney(u.OpeningBalance),
		FormatMoney(u.ClosingBalance), FormatMoney(u.PeakBalance), FormatMoney(u.CreditLimit))
}

// ledgerCSVHeader is the fixed export column set
var ledgerCSVHeader = []string{
	"month",
	"calendar_month",
	"rental_income",
	"rental_expenses",
	"net_rental_cash_flow",
	"heloc_draw",
	"heloc_balance",
	"heloc_interest",
	"primary_balance",
	"primary_interest",
	"primary_prepayment",
	"rental_balance",
	"rental_interest",
	"rental_prepayment",
	"deductible_interest",
	"non_deductible_interest",
	"tax_benefit",
	"cumulative_tax_benefit",
	"total_debt",
}

// WriteLedgerCSV writes one row per ledger month under the fixed header
func WriteLedgerCSV(w io.Writer, entries []LedgerEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ledgerCSVHeader); err != nil {
		return err
	}

	row := make([]string, len(ledgerCSVHeader))
	for i := range entries {
		e := &entries[i]
		row[0] = strconv.Itoa(e.Month)
		row[1] = e.MonthLabel()
		for j, name := range ledgerCSVHeader[2:] {
			f, _ := lookupLedgerField(name)
			row[j+2] = f.Ref(e).StringFixed(moneyPlaces)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
