package main

import (
	"github.com/shopspring/decimal"
)

// BaselinePolicy makes scheduled payments only. Rental surplus is informational
// and the HELOC is never touched.
func BaselinePolicy() ScenarioPolicy {
	return ScenarioPolicy{
		Scenario: ScenarioBaseline,
	}
}

// PrepayOnlyPolicy diverts any positive rental surplus into primary mortgage
// prepayment, with no HELOC activity
func PrepayOnlyPolicy() ScenarioPolicy {
	return ScenarioPolicy{
		Scenario: ScenarioPrepayOnly,
		Prepay: func(m *MonthContext, _ decimal.Decimal) decimal.Decimal {
			return clampZero(m.RentalIncome.Sub(m.RentalExpenses))
		},
	}
}

// ModifiedSmithPolicy funds rental expenses from the HELOC up to available
// credit, so that the rental income they would have consumed prepays the
// primary mortgage. HELOC interest is deductible because the borrowed money
// finances an income-producing property.
func ModifiedSmithPolicy() ScenarioPolicy {
	return ScenarioPolicy{
		Scenario:        ScenarioModifiedSmith,
		UsesHELOC:       true,
		HELOCDeductible: true,
		ApplyRules:      true,
		Draw: func(m *MonthContext) decimal.Decimal {
			return minDecimal(m.RentalExpenses, m.AvailableCredit)
		},
		Prepay: func(m *MonthContext, draw decimal.Decimal) decimal.Decimal {
			// Expenses not covered by the draw come out of rental income first
			uncovered := clampZero(m.RentalExpenses.Sub(draw))
			return clampZero(m.RentalIncome.Sub(uncovered))
		},
	}
}

// PolicyFor returns the policy that produces the given scenario
func PolicyFor(scenario ScenarioKind) ScenarioPolicy {
	switch scenario {
	case ScenarioPrepayOnly:
		return PrepayOnlyPolicy()
	case ScenarioModifiedSmith:
		return ModifiedSmithPolicy()
	default:
		return BaselinePolicy()
	}
}

// RunBaseline simulates the do-nothing comparison point
func RunBaseline(in SimulationInput) []LedgerEntry {
	return simulate(in, BaselinePolicy())
}

// RunPrepayOnly simulates surplus prepayment without HELOC engineering
func RunPrepayOnly(in SimulationInput) []LedgerEntry {
	return simulate(in, PrepayOnlyPolicy())
}

// RunModifiedSmith runs the baseline first as its point of comparison, then
// the Smith manoeuvre itself. It returns the Smith ledger and the baseline.
func RunModifiedSmith(in SimulationInput) (smith, baseline []LedgerEntry) {
	baseline = RunBaseline(in)
	smith = simulate(in, ModifiedSmithPolicy())
	return smith, baseline
}

// RunScenarios simulates every scenario produced by the strategy's kind
func RunScenarios(in SimulationInput) map[ScenarioKind][]LedgerEntry {
	ledgers := make(map[ScenarioKind][]LedgerEntry, len(AllScenarios))
	if in.Strategy.Kind == StrategyModifiedSmith {
		ledgers[ScenarioModifiedSmith], ledgers[ScenarioBaseline] = RunModifiedSmith(in)
		ledgers[ScenarioPrepayOnly] = RunPrepayOnly(in)
		return ledgers
	}

	for _, scenario := range in.Strategy.Kind.Scenarios() {
		ledgers[scenario] = simulate(in, PolicyFor(scenario))
	}
	return ledgers
}
