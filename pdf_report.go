package main

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
)

const (
	pageWidth    = 210.0
	marginLeft   = 15.0
	marginRight  = 15.0
	marginTop    = 15.0
	marginBottom = 20.0
	contentWidth = pageWidth - marginLeft - marginRight
)

// PDFAuditReport renders the interest deduction audit trail of a strategy
type PDFAuditReport struct {
	pdf      *fpdf.Fpdf
	strategy *StrategyConfig
	audit    *AuditReport
	summary  *SummaryReport
}

// GenerateAuditPDF creates the audit document for one scenario. summary may be
// nil, in which case the comparison page is omitted.
func GenerateAuditPDF(strategy *StrategyConfig, audit *AuditReport, summary *SummaryReport) ([]byte, error) {
	report := &PDFAuditReport{
		pdf:      fpdf.New("P", "mm", "A4", ""),
		strategy: strategy,
		audit:    audit,
		summary:  summary,
	}

	report.pdf.SetMargins(marginLeft, marginTop, marginRight)
	report.pdf.SetAutoPageBreak(true, marginBottom)
	report.pdf.SetTitle("Interest Deduction Audit - "+strategy.Name, true)

	report.addTitlePage()
	if summary != nil {
		report.addComparisonPage()
	}
	report.addAnnualSummary()
	report.addYearDetails()

	var buf bytes.Buffer
	if err := report.pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *PDFAuditReport) addTitlePage() {
	r.pdf.AddPage()

	r.pdf.SetFont("Arial", "B", 26)
	r.pdf.SetTextColor(0, 51, 102)
	r.pdf.Ln(45)
	r.pdf.CellFormat(contentWidth, 15, "Interest Deduction Audit", "", 1, "C", false, 0, "")

	r.pdf.SetFont("Arial", "", 14)
	r.pdf.SetTextColor(80, 80, 80)
	r.pdf.Ln(8)
	r.pdf.CellFormat(contentWidth, 10, r.strategy.Name, "", 1, "C", false, 0, "")
	r.pdf.CellFormat(contentWidth, 8, r.audit.Scenario.Label()+" scenario", "", 1, "C", false, 0, "")

	if r.strategy.LastSimulatedAt != nil {
		r.pdf.SetFont("Arial", "I", 11)
		r.pdf.Ln(10)
		r.pdf.CellFormat(contentWidth, 8,
			fmt.Sprintf("Simulated: %s", r.strategy.LastSimulatedAt.Format("2 January 2006")), "", 1, "C", false, 0, "")
	}

	// Strategy box
	r.pdf.Ln(15)
	r.pdf.SetFillColor(245, 247, 250)
	r.pdf.SetDrawColor(200, 200, 200)
	r.pdf.SetFont("Arial", "B", 12)
	r.pdf.SetTextColor(0, 51, 102)
	r.pdf.CellFormat(contentWidth, 8, "Strategy", "1", 1, "C", true, 0, "")

	r.pdf.SetFont("Arial", "", 11)
	r.pdf.SetTextColor(50, 50, 50)
	lines := []string{
		fmt.Sprintf("Jurisdiction %s %s, household income %s", r.strategy.Jurisdiction, r.strategy.Province,
			FormatMoney(r.strategy.HouseholdIncome)),
		fmt.Sprintf("Rental income %s, expenses %s per month",
			FormatMoney(r.strategy.MonthlyRentalIncome), FormatMoney(r.strategy.MonthlyRentalExpenses)),
	}
	if r.strategy.HELOC != nil {
		lines = append(lines, fmt.Sprintf("HELOC limit %s at %s", FormatMoney(r.strategy.HELOC.CreditLimit),
			FormatPercent(r.strategy.EffectiveHELOCRate())))
	}
	if n := len(r.audit.Years); n > 0 {
		lines = append(lines, fmt.Sprintf("Period %s to %s (%d months)",
			r.audit.Total.FirstMonth, r.audit.Total.LastMonth, r.audit.Total.Months))
	}
	for i, line := range lines {
		border := "LR"
		if i == len(lines)-1 {
			border = "LRB"
		}
		r.pdf.CellFormat(contentWidth, 7, line, border, 1, "C", true, 0, "")
	}

	if r.audit.Stopped {
		r.pdf.Ln(8)
		r.pdf.SetFont("Arial", "B", 11)
		r.pdf.SetTextColor(180, 0, 0)
		r.pdf.MultiCell(contentWidth, 6, "Strategy stopped: "+r.audit.StopReason, "", "C", false)
	}

	r.pdf.Ln(15)
	r.pdf.SetFont("Arial", "I", 9)
	r.pdf.SetTextColor(120, 120, 120)
	r.pdf.MultiCell(contentWidth, 4.5,
		"This document summarises simulated figures for record keeping. It is not tax advice. "+
			"Confirm deductibility of investment interest with a qualified tax professional.", "", "C", false)
}

func (r *PDFAuditReport) addComparisonPage() {
	r.pdf.AddPage()
	r.drawSectionHeader("Scenario Comparison")

	headers := []string{"", "Baseline", "Prepay Only", "Smith"}
	widths := []float64{60, 40, 40, 40}
	r.drawTableHeader(headers, widths)

	row := func(label string, value func(o *ScenarioOutcome) string) {
		cells := []string{label}
		for _, scenario := range AllScenarios {
			cell := "-"
			if o, ok := r.summary.Scenarios[scenario]; ok {
				cell = value(o)
			}
			cells = append(cells, cell)
		}
		r.drawTableRow(cells, widths, false)
	}
	row("Months simulated", func(o *ScenarioOutcome) string { return fmt.Sprintf("%d", o.Months) })
	row("Primary paid off", func(o *ScenarioOutcome) string {
		if o.PrimaryPayoffMonth == 0 {
			return "Never"
		}
		return fmt.Sprintf("Month %d", o.PrimaryPayoffMonth)
	})
	row("Mortgage interest", func(o *ScenarioOutcome) string { return FormatMoney(o.MortgageInterest()) })
	row("HELOC interest", func(o *ScenarioOutcome) string { return FormatMoney(o.TotalHELOCInterest) })
	row("Tax benefit", func(o *ScenarioOutcome) string { return FormatMoney(o.TotalTaxBenefit) })

	r.pdf.Ln(8)
	r.drawTableRow([]string{"Interest saved", FormatMoney(r.summary.TotalInterestSaved)}, []float64{60, 40}, true)
	r.drawTableRow([]string{"Additional tax benefit", FormatMoney(r.summary.TotalTaxBenefit)}, []float64{60, 40}, true)
	r.drawTableRow([]string{"Net benefit", FormatMoney(r.summary.NetBenefit)}, []float64{60, 40}, true)
	r.drawTableRow([]string{"Months accelerated", fmt.Sprintf("%d", r.summary.MonthsAccelerated)}, []float64{60, 40}, true)
	r.drawTableRow([]string{"Months compared", fmt.Sprintf("%d", r.summary.ComparisonMonths)}, []float64{60, 40}, false)
}

func (r *PDFAuditReport) addAnnualSummary() {
	r.pdf.AddPage()
	r.drawSectionHeader("Annual Summary")

	headers := []string{"Year", "Rental Income", "Deductible Int.", "HELOC Interest", "Tax Benefit", "HELOC Balance"}
	widths := []float64{20, 32, 32, 32, 32, 32}
	r.drawTableHeader(headers, widths)

	for _, p := range r.audit.Years {
		r.drawTableRow(periodRow(p), widths, false)
	}
	r.drawTableRow(periodRow(r.audit.Total), widths, true)
}

func periodRow(p AuditPeriod) []string {
	label := p.Label
	if label == "All years" {
		label = "Total"
	}
	return []string{
		label,
		FormatMoney(p.RentalIncome.GrossIncome),
		FormatMoney(p.Interest.TotalDeductible),
		FormatMoney(p.HELOCUsage.Interest),
		FormatMoney(p.TaxBenefit.Benefit),
		FormatMoney(p.HELOCUsage.ClosingBalance),
	}
}

func (r *PDFAuditReport) addYearDetails() {
	for i, p := range r.audit.Years {
		if i%2 == 0 {
			r.pdf.AddPage()
		} else {
			r.pdf.Ln(6)
		}
		r.drawSectionHeader(fmt.Sprintf("%s (%s to %s)", p.Label, p.FirstMonth, p.LastMonth))

		widths := []float64{90, 45}
		r.drawSubHeader("Rental income")
		r.drawTableRow([]string{"Gross rental income", FormatMoney(p.RentalIncome.GrossIncome)}, widths, false)
		r.drawTableRow([]string{"Rental expenses", FormatMoney(p.RentalIncome.Expenses)}, widths, false)
		r.drawTableRow([]string{"Net rental cash flow", FormatMoney(p.RentalIncome.NetCashFlow)}, widths, true)

		r.drawSubHeader("Interest deductions")
		r.drawTableRow([]string{"Rental mortgage interest", FormatMoney(p.Interest.RentalMortgageInterest)}, widths, false)
		r.drawTableRow([]string{"HELOC interest", FormatMoney(p.Interest.HELOCInterest)}, widths, false)
		r.drawTableRow([]string{"Total deductible", FormatMoney(p.Interest.TotalDeductible)}, widths, true)
		r.drawTableRow([]string{"Non-deductible (primary residence)", FormatMoney(p.Interest.TotalNonDeductible)}, widths, false)

		r.drawSubHeader("Tax benefit")
		r.drawTableRow([]string{"Benefit for the period", FormatMoney(p.TaxBenefit.Benefit)}, widths, true)
		r.drawTableRow([]string{"Cumulative at period end", FormatMoney(p.TaxBenefit.CumulativeAtEnd)}, widths, false)
		r.drawTableRow([]string{"Net of HELOC interest", FormatMoney(p.TaxBenefit.NetOfHELOCCost)}, widths, false)

		r.drawSubHeader("Debt reduction")
		r.drawTableRow([]string{"Primary scheduled principal", FormatMoney(p.DebtReduction.PrimaryPrincipal)}, widths, false)
		r.drawTableRow([]string{"Primary prepayments", FormatMoney(p.DebtReduction.PrimaryPrepayment)}, widths, false)
		r.drawTableRow([]string{"Rental scheduled principal", FormatMoney(p.DebtReduction.RentalPrincipal)}, widths, false)
		r.drawTableRow([]string{"Rental prepayments", FormatMoney(p.DebtReduction.RentalPrepayment)}, widths, false)

		r.drawSubHeader("HELOC usage")
		r.pdf.SetFont("Arial", "", 9)
		r.pdf.SetTextColor(50, 50, 50)
		r.pdf.MultiCell(contentWidth, 4.5, p.HELOCUsage.Narrative, "", "L", false)
	}
}

// Helper functions

func (r *PDFAuditReport) drawSectionHeader(title string) {
	r.pdf.SetFont("Arial", "B", 16)
	r.pdf.SetTextColor(0, 51, 102)
	r.pdf.CellFormat(contentWidth, 10, title, "", 1, "L", false, 0, "")
	r.pdf.SetDrawColor(0, 51, 102)
	r.pdf.Line(marginLeft, r.pdf.GetY(), marginLeft+contentWidth, r.pdf.GetY())
	r.pdf.Ln(5)
}

func (r *PDFAuditReport) drawSubHeader(title string) {
	r.pdf.Ln(2)
	r.pdf.SetFont("Arial", "B", 11)
	r.pdf.SetTextColor(0, 51, 102)
	r.pdf.CellFormat(contentWidth, 7, title, "", 1, "L", false, 0, "")
}

func (r *PDFAuditReport) drawTableHeader(headers []string, widths []float64) {
	r.pdf.SetFillColor(0, 51, 102)
	r.pdf.SetTextColor(255, 255, 255)
	r.pdf.SetFont("Arial", "B", 9)

	for i, header := range headers {
		align := "L"
		if i > 0 {
			align = "R"
		}
		r.pdf.CellFormat(widths[i], 6, header, "1", 0, align, true, 0, "")
	}
	r.pdf.Ln(-1)
}

func (r *PDFAuditReport) drawTableRow(cells []string, widths []float64, isBold bool) {
	r.pdf.SetFillColor(250, 250, 250)
	r.pdf.SetTextColor(50, 50, 50)

	if isBold {
		r.pdf.SetFont("Arial", "B", 9)
		r.pdf.SetFillColor(240, 240, 240)
	} else {
		r.pdf.SetFont("Arial", "", 9)
	}

	for i, cell := range cells {
		align := "L"
		if i > 0 {
			align = "R"
		}
		r.pdf.CellFormat(widths[i], 5, cell, "1", 0, align, true, 0, "")
	}
	r.pdf.Ln(-1)
}
