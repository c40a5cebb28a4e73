package main

import (
	"fmt"
	"html"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// GenerateHTMLReportFile writes the comparison report to filename
func GenerateHTMLReportFile(filename string, strategy *StrategyConfig, summary *SummaryReport, ledgers map[ScenarioKind][]LedgerEntry) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := GenerateHTMLReport(f, strategy, summary, ledgers); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// GenerateHTMLReport writes a self-contained HTML page comparing the scenario
// ledgers, with one expandable row per calendar year
func GenerateHTMLReport(w io.Writer, strategy *StrategyConfig, summary *SummaryReport, ledgers map[ScenarioKind][]LedgerEntry) error {
	ew := &errWriter{w: w}
	name := html.EscapeString(strategy.Name)

	ew.printf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Smith Manoeuvre: %s</title>
    <style>
        :root {
            --primary: #2563eb;
            --success: #16a34a;
            --warning: #ea580c;
            --danger: #dc2626;
            --bg: #f8fafc;
            --card-bg: #ffffff;
            --text: #1e293b;
            --text-muted: #64748b;
            --border: #e2e8f0;
        }
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: var(--bg);
            color: var(--text);
            line-height: 1.6;
            padding: 2rem;
        }
        .container { max-width: 1400px; margin: 0 auto; }
        h1 { font-size: 1.75rem; margin-bottom: 0.5rem; color: var(--primary); }
        h2 {
            font-size: 1.25rem;
            margin: 1.5rem 0 1rem;
            padding-bottom: 0.5rem;
            border-bottom: 2px solid var(--primary);
        }
        .subtitle { color: var(--text-muted); margin-bottom: 1.5rem; }
        .card {
            background: var(--card-bg);
            border-radius: 8px;
            box-shadow: 0 1px 3px rgba(0,0,0,0.1);
            padding: 1.5rem;
            margin-bottom: 1.5rem;
        }
        .grid { display: grid; gap: 1rem; }
        .grid-4 { grid-template-columns: repeat(4, 1fr); }
        @media (max-width: 768px) { .grid-4 { grid-template-columns: 1fr; } }
        .metric { text-align: center; padding: 1rem; border-radius: 8px; background: var(--bg); }
        .metric-value { font-size: 1.5rem; font-weight: 700; color: var(--primary); }
        .metric-label { font-size: 0.875rem; color: var(--text-muted); }
        .metric.success .metric-value { color: var(--success); }
        .metric.danger .metric-value { color: var(--danger); }
        table { width: 100%%; border-collapse: collapse; font-size: 0.875rem; }
        th, td { padding: 0.6rem 0.5rem; text-align: right; border-bottom: 1px solid var(--border); }
        th { background: var(--bg); font-weight: 600; position: sticky; top: 0; }
        th:first-child, td:first-child { text-align: left; }
        tr:hover { background: #f1f5f9; }
        .stopped { background: #fee2e2 !important; }
        .expandable-row { cursor: pointer; }
        .expandable-row td:first-child::before {
            content: '▶';
            display: inline-block;
            margin-right: 0.5rem;
            font-size: 0.75rem;
            transition: transform 0.2s;
        }
        .expandable-row.expanded td:first-child::before { transform: rotate(90deg); }
        .year-details { display: none; background: #f8fafc; }
        .year-details.show { display: table-row; }
        .year-details td { padding: 1rem; border-bottom: 2px solid var(--primary); }
        .detail-table th { background: #e0e7ff; }
        .footer {
            text-align: center;
            color: var(--text-muted);
            font-size: 0.75rem;
            margin-top: 2rem;
            padding-top: 1rem;
            border-top: 1px solid var(--border);
        }
    </style>
    <script>
        function toggleYear(id) {
            const row = document.getElementById('row-' + id);
            const details = document.getElementById('details-' + id);
            if (row && details) {
                row.classList.toggle('expanded');
                details.classList.toggle('show');
            }
        }
    </script>
</head>
<body>
    <div class="container">
        <h1>Smith Manoeuvre Debt Optimisation</h1>
        <p class="subtitle">%s | %s %s | income %s</p>
`, name, name, html.EscapeString(strategy.Jurisdiction), html.EscapeString(strategy.Province),
		FormatMoney(strategy.HouseholdIncome))

	if summary != nil {
		netClass := "success"
		if summary.NetBenefit.IsNegative() {
			netClass = "danger"
		}
		ew.printf(`
        <div class="card">
            <h2>Summary (%s vs baseline)</h2>
            <div class="grid grid-4">
                <div class="metric"><div class="metric-value">%s</div><div class="metric-label">Interest Saved</div></div>
                <div class="metric"><div class="metric-value">%s</div><div class="metric-label">Additional Tax Benefit</div></div>
                <div class="metric %s"><div class="metric-value">%s</div><div class="metric-label">Net Benefit</div></div>
                <div class="metric"><div class="metric-value">%d</div><div class="metric-label">Months Accelerated</div></div>
            </div>
        </div>
`, summary.ComparedScenario.Label(), FormatMoney(summary.TotalInterestSaved), FormatMoney(summary.TotalTaxBenefit),
			netClass, FormatMoney(summary.NetBenefit), summary.MonthsAccelerated)

		ew.printf(`
        <div class="card">
            <h2>Scenario Comparison</h2>
            <table>
                <tr><th></th><th>Baseline</th><th>Prepay Only</th><th>Smith</th></tr>
`)
		compareRow(ew, summary, "Primary paid off", func(o *ScenarioOutcome) string { return formatPayoff(o.PrimaryPayoffMonth) })
		compareRow(ew, summary, "Primary interest", func(o *ScenarioOutcome) string { return FormatMoney(o.TotalPrimaryInterest) })
		compareRow(ew, summary, "Rental interest", func(o *ScenarioOutcome) string { return FormatMoney(o.TotalRentalInterest) })
		compareRow(ew, summary, "HELOC interest", func(o *ScenarioOutcome) string { return FormatMoney(o.TotalHELOCInterest) })
		compareRow(ew, summary, "Tax benefit", func(o *ScenarioOutcome) string { return FormatMoney(o.TotalTaxBenefit) })
		compareRow(ew, summary, "Stopped", func(o *ScenarioOutcome) string {
			if !o.Stopped {
				return "-"
			}
			return html.EscapeString(o.StopReason)
		})
		ew.printf("            </table>\n        </div>\n")
	}

	for _, scenario := range AllScenarios {
		entries, ok := ledgers[scenario]
		if !ok {
			continue
		}
		writeScenarioYears(ew, scenario, entries)
	}

	ew.printf(`
        <div class="footer">
            Generated on %s | Smith Manoeuvre Debt Optimisation Simulation
        </div>
    </div>
</body>
</html>
`, time.Now().Format("2006-01-02 15:04:05"))

	return ew.err
}

func compareRow(ew *errWriter, summary *SummaryReport, label string, value func(o *ScenarioOutcome) string) {
	cells := []string{label}
	for _, scenario := range AllScenarios {
		cell := "-"
		if o, ok := summary.Scenarios[scenario]; ok {
			cell = value(o)
		}
		cells = append(cells, cell)
	}
	ew.printf("                <tr><td>%s</td></tr>\n", strings.Join(cells, "</td><td>"))
}

// writeScenarioYears writes one collapsible row per calendar year with the
// monthly entries underneath
func writeScenarioYears(ew *errWriter, scenario ScenarioKind, entries []LedgerEntry) {
	ew.printf(`
        <div class="card">
            <h2>%s Ledger</h2>
            <table>
                <tr><th>Year</th><th>Primary</th><th>Rental</th><th>HELOC</th><th>Interest</th><th>Prepaid</th><th>Tax Benefit</th><th>Total Debt</th></tr>
`, scenario.Label())

	start := 0
	for i := 1; i <= len(entries); i++ {
		if i < len(entries) && entries[i].CalendarMonth.Year() == entries[start].CalendarMonth.Year() {
			continue
		}
		year := entries[start:i]
		last := &year[len(year)-1]
		var interest, prepaid, benefit decimal.Decimal
		stopped := false
		for j := range year {
			interest = interest.Add(year[j].TotalInterest())
			prepaid = prepaid.Add(year[j].PrimaryPrepayment)
			benefit = benefit.Add(year[j].TaxBenefit)
			stopped = stopped || year[j].StrategyStopped
		}

		id := fmt.Sprintf("%s-%d", scenario, last.CalendarMonth.Year())
		class := "expandable-row"
		if stopped {
			class += " stopped"
		}
		ew.printf(`                <tr id="row-%s" class="%s" onclick="toggleYear('%s')"><td>%d</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>
`, id, class, id, last.CalendarMonth.Year(),
			FormatMoney(last.PrimaryBalance), FormatMoney(last.RentalBalance), FormatMoney(last.HELOCBalance),
			FormatMoney(interest), FormatMoney(prepaid), FormatMoney(benefit), FormatMoney(last.TotalDebt))

		ew.printf(`                <tr id="details-%s" class="year-details"><td colspan="8">
                    <table class="detail-table">
                        <tr><th>Month</th><th>Primary Int.</th><th>Rental Int.</th><th>HELOC Int.</th><th>HELOC Draw</th><th>Prepaid</th><th>Deductible</th><th>Tax Benefit</th></tr>
`, id)
		for j := range year {
			e := &year[j]
			ew.printf("                        <tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>\n",
				e.MonthLabel(), FormatMoney(e.PrimaryInterest), FormatMoney(e.RentalInterest), FormatMoney(e.HELOCInterest),
				FormatMoney(e.HELOCDraw), FormatMoney(e.PrimaryPrepayment), FormatMoney(e.DeductibleInterest), FormatMoney(e.TaxBenefit))
			if e.StrategyStopped {
				ew.printf("                        <tr class=\"stopped\"><td colspan=\"8\">Stopped: %s</td></tr>\n", html.EscapeString(e.StopReason))
			}
		}
		ew.printf("                    </table>\n                </td></tr>\n")
		start = i
	}
	ew.printf("            </table>\n        </div>\n")
}

// errWriter keeps the first write error so the page can be written without
// checking every call
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
