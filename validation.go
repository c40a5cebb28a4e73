package main

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxSimulationMonths bounds the horizon (50 years)
const MaxSimulationMonths = 600

// FieldError is a configuration problem tied to one field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects every field problem found in a configuration
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, fe := range v {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "invalid strategy: " + strings.Join(parts, "; ")
}

func (v *ValidationErrors) add(field, format string, args ...any) {
	*v = append(*v, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// ValidateStrategy checks a configuration before it is saved or simulated.
// It returns ValidationErrors, or nil when the configuration is usable.
func ValidateStrategy(s *StrategyConfig, jurisdictions *JurisdictionRegistry) error {
	var errs ValidationErrors

	if strings.TrimSpace(s.Name) == "" {
		errs.add("name", "is required")
	}
	if s.HouseholdIncome.IsNegative() {
		errs.add("household_income", "must not be negative")
	}
	if s.SimulationMonths < 1 || s.SimulationMonths > MaxSimulationMonths {
		errs.add("simulation_months", "must be between 1 and %d", MaxSimulationMonths)
	}
	if s.MonthlyRentalIncome.IsNegative() {
		errs.add("monthly_rental_income", "must not be negative")
	}
	if s.MonthlyRentalExpenses.IsNegative() {
		errs.add("monthly_rental_expenses", "must not be negative")
	}
	if !isRate(s.HELOCRate) {
		errs.add("heloc_rate", "must be between 0 and 1")
	}
	if s.HELOCLimitCap.IsNegative() {
		errs.add("heloc_limit_cap", "must not be negative")
	}

	var jurisdiction *Jurisdiction
	if jurisdictions != nil {
		j, err := jurisdictions.Lookup(s.Jurisdiction)
		if err != nil {
			errs.add("jurisdiction", "unknown jurisdiction %q", s.Jurisdiction)
		} else {
			jurisdiction = j
		}
	}

	if s.PrimaryMortgage == nil {
		errs.add("primary_mortgage", "is required")
	}
	validateInstrument(&errs, "primary_mortgage", s.PrimaryMortgage, true)
	validateInstrument(&errs, "rental_mortgage", s.RentalMortgage, true)
	validateInstrument(&errs, "heloc", s.HELOC, false)

	if s.Kind == StrategyModifiedSmith {
		if s.HELOC == nil {
			errs.add("heloc", "is required for a modified_smith strategy")
		}
		if s.RentalMortgage == nil {
			errs.add("rental_mortgage", "is required for a modified_smith strategy")
		}
		if jurisdiction != nil && !jurisdiction.SupportsSmith {
			errs.add("kind", "modified_smith is not available in %s", jurisdiction.Code)
		}
	}

	for i, rule := range s.AutoStopRules {
		validateRule(&errs, fmt.Sprintf("auto_stop_rules[%d]", i), rule)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateInstrument(errs *ValidationErrors, field string, d *DebtInstrument, amortizing bool) {
	if d == nil {
		return
	}
	if d.Balance.IsNegative() {
		errs.add(field+".balance", "must not be negative")
	}
	if !isRate(d.InterestRate) {
		errs.add(field+".interest_rate", "must be between 0 and 1")
	}
	if amortizing && d.Balance.IsPositive() && d.TermMonths < 1 {
		errs.add(field+".term_months", "must be at least 1")
	}
	if d.TermMonths > MaxSimulationMonths {
		errs.add(field+".term_months", "must not exceed %d", MaxSimulationMonths)
	}
	if d.OriginalPrincipal.IsNegative() {
		errs.add(field+".original_principal", "must not be negative")
	}
	if d.RenewalDate != "" {
		if _, err := parseMonth(d.RenewalDate); err != nil {
			errs.add(field+".renewal_date", "must be YYYY-MM")
		}
	}
	if !isRate(d.RenewalRate) {
		errs.add(field+".renewal_rate", "must be between 0 and 1")
	}
	if d.AnnualLumpSum.IsNegative() {
		errs.add(field+".annual_lump_sum", "must not be negative")
	}
	if d.AnnualLumpSum.IsPositive() && (d.LumpSumMonth < 1 || d.LumpSumMonth > 12) {
		errs.add(field+".lump_sum_month", "must be between 1 and 12")
	}
	if !isRate(d.PrepaymentPrivilege) {
		errs.add(field+".prepayment_privilege", "must be between 0 and 1")
	}
	if d.CreditLimit.IsNegative() {
		errs.add(field+".credit_limit", "must not be negative")
	}
}

func validateRule(errs *ValidationErrors, field string, r AutoStopRule) {
	if r.Kind < RuleHELOCLimitPercentage || r.Kind > RuleManualStopDate {
		errs.add(field+".kind", "unknown rule kind")
		return
	}

	want := r.Kind.Unit()
	if r.Unit != UnitUnset && r.Unit != want {
		errs.add(field+".unit", "%s requires unit %s, got %s", r.Kind, want, r.Unit)
	}

	switch want {
	case UnitPercentage:
		if !r.Threshold.IsPositive() {
			errs.add(field+".threshold", "must be a positive percentage")
		} else if r.Kind == RuleHELOCLimitPercentage && r.Threshold.GreaterThan(hundred) {
			errs.add(field+".threshold", "must not exceed 100")
		}
	case UnitMonths:
		if !r.Threshold.IsInteger() || r.Threshold.LessThan(one) || r.Threshold.GreaterThan(decimal.NewFromInt(MaxSimulationMonths)) {
			errs.add(field+".threshold", "must be a whole number of months between 1 and %d", MaxSimulationMonths)
		}
	case UnitDate:
		if _, err := parseMonth(r.Params.StopDate); err != nil {
			errs.add(field+".params.stop_date", "must be YYYY-MM")
		}
	case UnitAmount:
		if r.Kind.NeedsThreshold() && !r.Threshold.IsPositive() {
			errs.add(field+".threshold", "must be a positive amount")
		}
		if r.Threshold.IsNegative() {
			errs.add(field+".threshold", "must not be negative")
		}
	}
}

func isRate(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThanOrEqual(one)
}
