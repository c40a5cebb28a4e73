package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RuleKind identifies an auto-stop condition evaluated against each Smith ledger month
type RuleKind int

const (
	RuleHELOCLimitPercentage         RuleKind = iota // HELOC balance / credit limit >= threshold%
	RuleHELOCBalanceThreshold                        // HELOC balance >= threshold
	RulePrimaryPaidOff                               // Primary mortgage balance reaches zero
	RuleAllDebtPaidOff                               // Every instrument balance reaches zero
	RuleMaxMonths                                    // Month index >= threshold
	RuleNegativeCashFlow                             // Net rental cash flow < 0
	RuleHELOCInterestExceedsBenefit                  // Monthly HELOC interest > monthly tax benefit
	RuleCumulativeCostExceedsBenefit                 // Cumulative tax benefit - cumulative HELOC interest < 0
	RuleHELOCInterestCeiling                         // Monthly HELOC interest > threshold
	RuleTaxRefundCoverageRatio                       // Tax benefit / HELOC interest < threshold%
	RuleManualStopDate                               // Calendar month >= params.stop_date
)

var ruleKindNames = []string{
	"heloc_limit_percentage",
	"heloc_balance_threshold",
	"primary_paid_off",
	"all_debt_paid_off",
	"max_months",
	"negative_cash_flow",
	"heloc_interest_exceeds_benefit",
	"cumulative_cost_exceeds_benefit",
	"heloc_interest_ceiling",
	"tax_refund_coverage_ratio",
	"manual_stop_date",
}

func (k RuleKind) String() string {
	if int(k) >= 0 && int(k) < len(ruleKindNames) {
		return ruleKindNames[k]
	}
	return "unknown"
}

func (k RuleKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *RuleKind) UnmarshalText(text []byte) error {
	i, ok := lookupName(ruleKindNames, string(text))
	if !ok {
		return fmt.Errorf("unknown auto-stop rule kind %q", string(text))
	}
	*k = RuleKind(i)
	return nil
}

// Unit returns the only threshold unit a rule of this kind accepts
func (k RuleKind) Unit() ThresholdUnit {
	switch k {
	case RuleHELOCLimitPercentage, RuleTaxRefundCoverageRatio:
		return UnitPercentage
	case RuleMaxMonths:
		return UnitMonths
	case RuleManualStopDate:
		return UnitDate
	default:
		return UnitAmount
	}
}

// NeedsThreshold reports whether the kind compares against a numeric threshold
func (k RuleKind) NeedsThreshold() bool {
	switch k {
	case RuleHELOCLimitPercentage, RuleHELOCBalanceThreshold, RuleMaxMonths,
		RuleHELOCInterestCeiling, RuleTaxRefundCoverageRatio:
		return true
	}
	return false
}

// ThresholdUnit qualifies an auto-stop threshold
type ThresholdUnit int

const (
	UnitUnset ThresholdUnit = iota
	UnitPercentage
	UnitAmount
	UnitMonths
	UnitDate
)

var thresholdUnitNames = []string{"", "percentage", "amount", "months", "date"}

func (u ThresholdUnit) String() string {
	if int(u) >= 0 && int(u) < len(thresholdUnitNames) {
		return thresholdUnitNames[u]
	}
	return "unknown"
}

func (u ThresholdUnit) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

func (u *ThresholdUnit) UnmarshalText(text []byte) error {
	i, ok := lookupName(thresholdUnitNames, string(text))
	if !ok {
		return fmt.Errorf("unknown threshold unit %q (want percentage, amount, months or date)", string(text))
	}
	*u = ThresholdUnit(i)
	return nil
}

// RuleParams carries kind-specific parameters
type RuleParams struct {
	StopDate string `yaml:"stop_date,omitempty" json:"stop_date,omitempty"` // YYYY-MM, manual_stop_date only
}

// AutoStopRule halts the Smith scenario when its condition first holds
type AutoStopRule struct {
	Kind      RuleKind        `yaml:"kind" json:"kind"`
	Threshold decimal.Decimal `yaml:"threshold,omitempty" json:"threshold"`
	Unit      ThresholdUnit   `yaml:"unit,omitempty" json:"unit,omitempty"`
	Enabled   bool            `yaml:"enabled" json:"enabled"`
	Params    RuleParams      `yaml:"params,omitempty" json:"params,omitempty"`
}

// EffectiveUnit returns the configured unit, or the kind's unit when unset
func (r AutoStopRule) EffectiveUnit() ThresholdUnit {
	if r.Unit == UnitUnset {
		return r.Kind.Unit()
	}
	return r.Unit
}

// Describe returns a short human-readable statement of the rule
func (r AutoStopRule) Describe() string {
	switch r.Kind {
	case RuleHELOCLimitPercentage:
		return fmt.Sprintf("Stop when HELOC reaches %s%% of its limit", r.Threshold)
	case RuleHELOCBalanceThreshold:
		return fmt.Sprintf("Stop when HELOC balance reaches %s", FormatMoney(r.Threshold))
	case RulePrimaryPaidOff:
		return "Stop when the primary mortgage is paid off"
	case RuleAllDebtPaidOff:
		return "Stop when all debt is paid off"
	case RuleMaxMonths:
		return fmt.Sprintf("Stop after %s months", r.Threshold)
	case RuleNegativeCashFlow:
		return "Stop when rental cash flow turns negative"
	case RuleHELOCInterestExceedsBenefit:
		return "Stop when monthly HELOC interest exceeds the monthly tax benefit"
	case RuleCumulativeCostExceedsBenefit:
		return "Stop when cumulative HELOC interest exceeds cumulative tax benefit"
	case RuleHELOCInterestCeiling:
		return fmt.Sprintf("Stop when monthly HELOC interest exceeds %s", FormatMoney(r.Threshold))
	case RuleTaxRefundCoverageRatio:
		return fmt.Sprintf("Stop when tax benefit covers less than %s%% of HELOC interest", r.Threshold)
	case RuleManualStopDate:
		return fmt.Sprintf("Stop in %s", r.Params.StopDate)
	}
	return "Unknown rule"
}

// Evaluate tests the rule against one ledger entry, returning whether it
// triggered and the reason to stamp on the entry
func (r AutoStopRule) Evaluate(e *LedgerEntry) (bool, string) {
	switch r.Kind {
	case RuleHELOCLimitPercentage:
		if !e.HELOCCreditLimit.IsPositive() {
			return false, ""
		}
		pct := e.HELOCBalance.Mul(hundred).DivRound(e.HELOCCreditLimit, divPrecision)
		if pct.GreaterThanOrEqual(r.Threshold) {
			return true, fmt.Sprintf("HELOC balance %s reached %s%% of the %s credit limit (threshold %s%%)",
				FormatMoney(e.HELOCBalance), pct.Round(1), FormatMoney(e.HELOCCreditLimit), r.Threshold)
		}

	case RuleHELOCBalanceThreshold:
		if e.HELOCBalance.GreaterThanOrEqual(r.Threshold) {
			return true, fmt.Sprintf("HELOC balance %s reached threshold %s",
				FormatMoney(e.HELOCBalance), FormatMoney(r.Threshold))
		}

	case RulePrimaryPaidOff:
		if !e.PrimaryBalance.IsPositive() {
			return true, fmt.Sprintf("Primary mortgage paid off in month %d", e.Month)
		}

	case RuleAllDebtPaidOff:
		if !e.TotalDebt.IsPositive() {
			return true, fmt.Sprintf("All debt paid off in month %d", e.Month)
		}

	case RuleMaxMonths:
		if decimal.NewFromInt(int64(e.Month)).GreaterThanOrEqual(r.Threshold) {
			return true, fmt.Sprintf("Reached maximum of %s months", r.Threshold)
		}

	case RuleNegativeCashFlow:
		if e.NetRentalCashFlow.IsNegative() {
			return true, fmt.Sprintf("Net rental cash flow negative (%s)", FormatMoney(e.NetRentalCashFlow))
		}

	case RuleHELOCInterestExceedsBenefit:
		if e.HELOCInterest.GreaterThan(e.TaxBenefit) {
			return true, fmt.Sprintf("HELOC interest %s exceeds monthly tax benefit %s",
				FormatMoney(e.HELOCInterest), FormatMoney(e.TaxBenefit))
		}

	case RuleCumulativeCostExceedsBenefit:
		net := e.RunningNetBenefit()
		if net.IsNegative() {
			return true, fmt.Sprintf("Cumulative HELOC interest %s exceeds cumulative tax benefit %s",
				FormatMoney(e.CumulativeHELOCInterest), FormatMoney(e.CumulativeTaxBenefit))
		}

	case RuleHELOCInterestCeiling:
		if e.HELOCInterest.GreaterThan(r.Threshold) {
			return true, fmt.Sprintf("HELOC interest %s exceeds ceiling %s",
				FormatMoney(e.HELOCInterest), FormatMoney(r.Threshold))
		}

	case RuleTaxRefundCoverageRatio:
		if !e.HELOCInterest.IsPositive() {
			return false, ""
		}
		coverage := e.TaxBenefit.Mul(hundred).DivRound(e.HELOCInterest, divPrecision)
		if coverage.LessThan(r.Threshold) {
			return true, fmt.Sprintf("Tax benefit covers %s%% of HELOC interest (minimum %s%%)",
				coverage.Round(1), r.Threshold)
		}

	case RuleManualStopDate:
		stop, err := parseMonth(r.Params.StopDate)
		if err != nil {
			return false, ""
		}
		if !e.CalendarMonth.Before(stop) {
			return true, fmt.Sprintf("Manual stop date %s reached", r.Params.StopDate)
		}
	}
	return false, ""
}

// RuleResult records which rule stopped a scenario
type RuleResult struct {
	Triggered bool
	Index     int // Position of the rule in the strategy's list
	Rule      AutoStopRule
	Reason    string
}

// EvaluateRules checks enabled rules in order and returns the first that triggers
func EvaluateRules(rules []AutoStopRule, e *LedgerEntry) RuleResult {
	for i, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if ok, reason := rule.Evaluate(e); ok {
			return RuleResult{Triggered: true, Index: i, Rule: rule, Reason: reason}
		}
	}
	return RuleResult{}
}

// parseMonth parses a YYYY-MM calendar month as the first day of that month in UTC
func parseMonth(s string) (time.Time, error) {
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q (want YYYY-MM): %w", s, err)
	}
	return t, nil
}

// firstOfMonth truncates t to the first day of its month in UTC
func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
