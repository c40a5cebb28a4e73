package main

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatMoney formats an amount as full currency with thousands separators
func FormatMoney(amount decimal.Decimal) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}
	s := amount.StringFixed(2)
	whole, cents := s[:len(s)-3], s[len(s)-3:]

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + "$" + b.String() + cents
}

// FormatMoneyShort abbreviates large amounts ($1.25M, $350k)
func FormatMoneyShort(amount decimal.Decimal) string {
	f := amount.InexactFloat64()
	abs := f
	if abs < 0 {
		abs = -abs
	}
	if abs >= 1000000 {
		return fmt.Sprintf("$%.2fM", f/1000000)
	}
	if abs >= 1000 {
		return fmt.Sprintf("$%.0fk", f/1000)
	}
	return fmt.Sprintf("$%.0f", f)
}

// FormatPercent formats a fractional rate (0.0505 -> 5.05%)
func FormatPercent(rate decimal.Decimal) string {
	return rate.Mul(hundred).StringFixed(2) + "%"
}

// formatPayoff renders a payoff month, or "beyond horizon" when it never happened
func formatPayoff(month int) string {
	if month == 0 {
		return "beyond horizon"
	}
	return fmt.Sprintf("month %d (%dy %dm)", month, month/12, month%12)
}

// PrintHeader prints the strategy being simulated
func PrintHeader(s *StrategyConfig, result *RunResult) {
	fmt.Println("╔══════════════════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                SMITH MANOEUVRE DEBT OPTIMISATION SIMULATION                  ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println("──────────────")
	fmt.Printf("  Strategy: %s (%s, %s)\n", s.Name, s.Kind, s.Status)
	province := s.Province
	if province == "" {
		province = "federal only"
	}
	fmt.Printf("  Jurisdiction: %s / %s | Household income: %s | Marginal rate: %s\n",
		s.Jurisdiction, province, FormatMoney(s.HouseholdIncome), FormatPercent(result.MarginalRate))

	printInstrument("Primary mortgage", s.PrimaryMortgage)
	printInstrument("Rental mortgage", s.RentalMortgage)
	if s.HELOC != nil {
		fmt.Printf("  HELOC: %s balance, %s limit @ %s",
			FormatMoneyShort(s.HELOC.Balance), FormatMoneyShort(s.HELOC.CreditLimit), FormatPercent(s.EffectiveHELOCRate()))
		if s.Readvanceable {
			fmt.Printf(" (readvanceable")
			if s.HELOCLimitCap.IsPositive() {
				fmt.Printf(", cap %s", FormatMoneyShort(s.HELOCLimitCap))
			}
			fmt.Printf(")")
		}
		fmt.Println()
	}
	fmt.Printf("  Rental: %s income, %s expenses per month\n",
		FormatMoney(s.MonthlyRentalIncome), FormatMoney(s.MonthlyRentalExpenses))
	fmt.Printf("  Horizon: %d months\n", s.SimulationMonths)

	for _, rule := range s.AutoStopRules {
		state := "off"
		if rule.Enabled {
			state = "on"
		}
		fmt.Printf("  Auto-stop [%s]: %s\n", state, rule.Describe())
	}
	for _, w := range result.Warnings {
		fmt.Printf("  Warning: %s\n", w)
	}
	fmt.Println()
}

func printInstrument(label string, d *DebtInstrument) {
	if d == nil {
		return
	}
	fmt.Printf("  %s: %s @ %s over %d months, payment %s/month\n",
		label, FormatMoneyShort(d.Balance), FormatPercent(d.InterestRate), d.TermMonths,
		FormatMoney(roundMoney(LevelPayment(d.Balance, d.InterestRate, d.TermMonths))))
	if d.RenewalDate != "" {
		fmt.Printf("          renews %s at %s\n", d.RenewalDate, FormatPercent(d.RenewalRate))
	}
	if d.AnnualLumpSum.IsPositive() {
		fmt.Printf("          lump sum %s each month %d\n", FormatMoney(d.AnnualLumpSum), d.LumpSumMonth)
	}
}

// PrintComparison prints the side-by-side scenario table and headline metrics
func PrintComparison(report *SummaryReport) {
	fmt.Println("╔══════════════════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                          SCENARIO COMPARISON                                 ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════════════════════╝")
	fmt.Println()

	fmt.Printf("%-26s │ %14s │ %14s │ %14s\n", "", "Baseline", "Prepay Only", "Smith")
	fmt.Println(strings.Repeat("─", 78))

	row := func(label string, value func(o *ScenarioOutcome) string) {
		fmt.Printf("%-26s", label)
		for _, scenario := range AllScenarios {
			cell := "-"
			if o, ok := report.Scenarios[scenario]; ok {
				cell = value(o)
			}
			fmt.Printf(" │ %14s", cell)
		}
		fmt.Println()
	}

	row("Months simulated", func(o *ScenarioOutcome) string { return fmt.Sprintf("%d", o.Months) })
	row("Primary paid off (month)", func(o *ScenarioOutcome) string {
		if o.PrimaryPayoffMonth == 0 {
			return "never"
		}
		return fmt.Sprintf("%d", o.PrimaryPayoffMonth)
	})
	row("Primary interest", func(o *ScenarioOutcome) string { return FormatMoneyShort(o.TotalPrimaryInterest) })
	row("Rental interest", func(o *ScenarioOutcome) string { return FormatMoneyShort(o.TotalRentalInterest) })
	row("HELOC interest", func(o *ScenarioOutcome) string { return FormatMoneyShort(o.TotalHELOCInterest) })
	row("Prepayments", func(o *ScenarioOutcome) string { return FormatMoneyShort(o.TotalPrepayment) })
	row("Cumulative tax benefit", func(o *ScenarioOutcome) string { return FormatMoneyShort(o.TotalTaxBenefit) })
	row("Final total debt", func(o *ScenarioOutcome) string {
		if o.Final == nil {
			return "-"
		}
		return FormatMoneyShort(o.Final.TotalDebt)
	})
	fmt.Println()

	if o, ok := report.Scenarios[report.ComparedScenario]; ok {
		fmt.Printf("Compared scenario: %s\n", report.ComparedScenario.Label())
		if report.ComparisonStopped {
			fmt.Printf("  Measured over the first %d months, before the strategy stopped\n", report.ComparisonMonths)
		}
		fmt.Printf("  Interest saved (mortgages): %s\n", FormatMoney(report.TotalInterestSaved))
		fmt.Printf("  Additional tax benefit:     %s\n", FormatMoney(report.TotalTaxBenefit))
		fmt.Printf("  HELOC interest cost:        %s\n", FormatMoney(o.TotalHELOCInterest))
		fmt.Printf("  Net benefit:                %s\n", FormatMoney(report.NetBenefit))
		fmt.Printf("  Primary payoff:             %s (%d months sooner than baseline)\n",
			formatPayoff(o.PrimaryPayoffMonth), report.MonthsAccelerated)
		if o.Stopped {
			fmt.Printf("  Stopped: %s\n", o.StopReason)
		}
	}
	fmt.Println()
}

// PrintLedgerDetails prints a scenario ledger, every month or every January plus the last month
func PrintLedgerDetails(scenario ScenarioKind, entries []LedgerEntry, everyMonth bool) {
	fmt.Printf("%s ledger\n", scenario.Label())
	fmt.Printf("%-7s │ %12s %10s %10s │ %12s %10s │ %12s %10s │ %10s %12s\n",
		"Month", "Primary", "Interest", "Prepaid", "Rental", "Interest", "HELOC", "Draw", "Tax ben.", "Total debt")
	fmt.Println(strings.Repeat("─", 124))

	for i := range entries {
		e := &entries[i]
		if !everyMonth && i != 0 && i != len(entries)-1 && e.CalendarMonth.Month() != 1 {
			continue
		}
		fmt.Printf("%-7s │ %12s %10s %10s │ %12s %10s │ %12s %10s │ %10s %12s\n",
			e.MonthLabel(),
			e.PrimaryBalance.StringFixed(2), e.PrimaryInterest.StringFixed(2), e.PrimaryPrepayment.StringFixed(2),
			e.RentalBalance.StringFixed(2), e.RentalInterest.StringFixed(2),
			e.HELOCBalance.StringFixed(2), e.HELOCDraw.StringFixed(2),
			e.TaxBenefit.StringFixed(2), e.TotalDebt.StringFixed(2))
		if e.StrategyStopped {
			fmt.Printf("        └─ stopped: %s\n", e.StopReason)
		}
	}
	fmt.Println()
}
