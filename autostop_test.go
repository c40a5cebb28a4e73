package main

import (
	"strings"
	"testing"
	"time"
)

// Auto-Stop Rule Tests
//
// Each rule is evaluated against a single ledger entry. Disabled rules are
// skipped and the first enabled rule that matches wins.

func sampleEntry() *LedgerEntry {
	return &LedgerEntry{
		Month:                   18,
		CalendarMonth:           time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC),
		NetRentalCashFlow:       d("1500"),
		HELOCBalance:            d("9000"),
		HELOCCreditLimit:        d("10000"),
		HELOCInterest:           d("52.50"),
		CumulativeHELOCInterest: d("400"),
		PrimaryBalance:          d("350000"),
		RentalBalance:           d("180000"),
		TaxBenefit:              d("350"),
		CumulativeTaxBenefit:    d("6000"),
		TotalDebt:               d("539000"),
	}
}

// =============================================================================
// Individual Rule Tests
// =============================================================================

func TestRule_Evaluate(t *testing.T) {
	tests := []struct {
		name    string
		rule    AutoStopRule
		modify  func(e *LedgerEntry)
		trigger bool
	}{
		{"limit percentage reached", AutoStopRule{Kind: RuleHELOCLimitPercentage, Threshold: d("90")}, nil, true},
		{"limit percentage below", AutoStopRule{Kind: RuleHELOCLimitPercentage, Threshold: d("95")}, nil, false},
		{"limit percentage zero limit", AutoStopRule{Kind: RuleHELOCLimitPercentage, Threshold: d("90")},
			func(e *LedgerEntry) { e.HELOCCreditLimit = d("0") }, false},

		{"balance threshold reached", AutoStopRule{Kind: RuleHELOCBalanceThreshold, Threshold: d("9000")}, nil, true},
		{"balance threshold below", AutoStopRule{Kind: RuleHELOCBalanceThreshold, Threshold: d("9000.01")}, nil, false},

		{"primary paid off", AutoStopRule{Kind: RulePrimaryPaidOff},
			func(e *LedgerEntry) { e.PrimaryBalance = d("0") }, true},
		{"primary outstanding", AutoStopRule{Kind: RulePrimaryPaidOff}, nil, false},

		{"all debt paid off", AutoStopRule{Kind: RuleAllDebtPaidOff},
			func(e *LedgerEntry) { e.TotalDebt = d("0") }, true},
		{"debt outstanding", AutoStopRule{Kind: RuleAllDebtPaidOff}, nil, false},

		{"max months reached", AutoStopRule{Kind: RuleMaxMonths, Threshold: d("18")}, nil, true},
		{"max months not reached", AutoStopRule{Kind: RuleMaxMonths, Threshold: d("19")}, nil, false},

		{"negative cash flow", AutoStopRule{Kind: RuleNegativeCashFlow},
			func(e *LedgerEntry) { e.NetRentalCashFlow = d("-0.01") }, true},
		{"zero cash flow", AutoStopRule{Kind: RuleNegativeCashFlow},
			func(e *LedgerEntry) { e.NetRentalCashFlow = d("0") }, false},

		{"interest exceeds benefit", AutoStopRule{Kind: RuleHELOCInterestExceedsBenefit},
			func(e *LedgerEntry) { e.TaxBenefit = d("52.49") }, true},
		{"interest equals benefit", AutoStopRule{Kind: RuleHELOCInterestExceedsBenefit},
			func(e *LedgerEntry) { e.TaxBenefit = d("52.50") }, false},

		{"cumulative cost exceeds", AutoStopRule{Kind: RuleCumulativeCostExceedsBenefit},
			func(e *LedgerEntry) { e.CumulativeHELOCInterest = d("6000.01") }, true},
		{"cumulative break-even", AutoStopRule{Kind: RuleCumulativeCostExceedsBenefit},
			func(e *LedgerEntry) { e.CumulativeHELOCInterest = d("6000") }, false},

		{"interest ceiling exceeded", AutoStopRule{Kind: RuleHELOCInterestCeiling, Threshold: d("50")}, nil, true},
		{"interest under ceiling", AutoStopRule{Kind: RuleHELOCInterestCeiling, Threshold: d("52.50")}, nil, false},

		// 350 / 52.50 = 666.7% coverage
		{"coverage below minimum", AutoStopRule{Kind: RuleTaxRefundCoverageRatio, Threshold: d("700")}, nil, true},
		{"coverage above minimum", AutoStopRule{Kind: RuleTaxRefundCoverageRatio, Threshold: d("600")}, nil, false},
		{"coverage with no interest", AutoStopRule{Kind: RuleTaxRefundCoverageRatio, Threshold: d("700")},
			func(e *LedgerEntry) { e.HELOCInterest = d("0") }, false},

		{"stop date reached", AutoStopRule{Kind: RuleManualStopDate, Params: RuleParams{StopDate: "2026-06"}}, nil, true},
		{"stop date passed", AutoStopRule{Kind: RuleManualStopDate, Params: RuleParams{StopDate: "2025-01"}}, nil, true},
		{"stop date ahead", AutoStopRule{Kind: RuleManualStopDate, Params: RuleParams{StopDate: "2026-07"}}, nil, false},
		{"stop date malformed", AutoStopRule{Kind: RuleManualStopDate, Params: RuleParams{StopDate: "June"}}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := sampleEntry()
			if tt.modify != nil {
				tt.modify(e)
			}
			got, reason := tt.rule.Evaluate(e)
			if got != tt.trigger {
				t.Fatalf("%s: expected trigger=%v, got %v (%q)", tt.rule.Kind, tt.trigger, got, reason)
			}
			if got && reason == "" {
				t.Errorf("%s triggered without a reason", tt.rule.Kind)
			}
			if !got && reason != "" {
				t.Errorf("%s did not trigger but returned reason %q", tt.rule.Kind, reason)
			}
		})
	}
}

func TestRule_LimitPercentageReason(t *testing.T) {
	_, reason := AutoStopRule{Kind: RuleHELOCLimitPercentage, Threshold: d("90")}.Evaluate(sampleEntry())
	for _, want := range []string{"$9,000.00", "90%", "$10,000.00"} {
		if !strings.Contains(reason, want) {
			t.Errorf("reason %q should mention %s", reason, want)
		}
	}
}

// =============================================================================
// Rule Ordering Tests
// =============================================================================

func TestEvaluateRules_DisabledRulesSkipped(t *testing.T) {
	rules := []AutoStopRule{
		{Kind: RuleMaxMonths, Threshold: d("1"), Enabled: false},
		{Kind: RuleHELOCBalanceThreshold, Threshold: d("1"), Enabled: false},
	}
	if res := EvaluateRules(rules, sampleEntry()); res.Triggered {
		t.Errorf("disabled rules should never trigger, got %+v", res)
	}
}

func TestEvaluateRules_FirstMatchWins(t *testing.T) {
	rules := []AutoStopRule{
		{Kind: RulePrimaryPaidOff, Enabled: true},                              // does not match
		{Kind: RuleMaxMonths, Threshold: d("12"), Enabled: false},              // matches but disabled
		{Kind: RuleHELOCBalanceThreshold, Threshold: d("5000"), Enabled: true}, // first enabled match
		{Kind: RuleHELOCLimitPercentage, Threshold: d("50"), Enabled: true},    // would also match
	}

	res := EvaluateRules(rules, sampleEntry())
	if !res.Triggered {
		t.Fatal("expected a rule to trigger")
	}
	if res.Index != 2 || res.Rule.Kind != RuleHELOCBalanceThreshold {
		t.Errorf("expected rule 2 (%s) to win, got %d (%s)", RuleHELOCBalanceThreshold, res.Index, res.Rule.Kind)
	}
	if !strings.Contains(res.Reason, "threshold") {
		t.Errorf("reason should come from the winning rule, got %q", res.Reason)
	}
}

func TestEvaluateRules_Empty(t *testing.T) {
	if res := EvaluateRules(nil, sampleEntry()); res.Triggered {
		t.Error("no rules should never trigger")
	}
}

// =============================================================================
// Rule Metadata Tests
// =============================================================================

func TestRuleKind_TextRoundTrip(t *testing.T) {
	for i, name := range ruleKindNames {
		var k RuleKind
		if err := k.UnmarshalText([]byte(name)); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if int(k) != i || k.String() != name {
			t.Errorf("%s parsed as %d (%s)", name, k, k)
		}
	}
	var k RuleKind
	if err := k.UnmarshalText([]byte("stop_whenever")); err == nil {
		t.Error("unknown rule kind should fail to parse")
	}
}

func TestRuleKind_Units(t *testing.T) {
	tests := []struct {
		kind RuleKind
		unit ThresholdUnit
	}{
		{RuleHELOCLimitPercentage, UnitPercentage},
		{RuleTaxRefundCoverageRatio, UnitPercentage},
		{RuleHELOCBalanceThreshold, UnitAmount},
		{RuleHELOCInterestCeiling, UnitAmount},
		{RuleMaxMonths, UnitMonths},
		{RuleManualStopDate, UnitDate},
	}
	for _, tt := range tests {
		if got := tt.kind.Unit(); got != tt.unit {
			t.Errorf("%s: expected unit %s, got %s", tt.kind, tt.unit, got)
		}
		if got := (AutoStopRule{Kind: tt.kind}).EffectiveUnit(); got != tt.unit {
			t.Errorf("%s: unset unit should default to %s, got %s", tt.kind, tt.unit, got)
		}
	}
}

func TestRule_Describe(t *testing.T) {
	for i := range ruleKindNames {
		rule := AutoStopRule{Kind: RuleKind(i), Threshold: d("10"), Params: RuleParams{StopDate: "2030-01"}}
		if desc := rule.Describe(); desc == "" || desc == "Unknown rule" {
			t.Errorf("%s has no description", rule.Kind)
		}
	}
}

func TestParseMonth(t *testing.T) {
	got, err := parseMonth("2025-03")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected 2025-03-01 UTC, got %s", got)
	}
	for _, bad := range []string{"", "2025", "2025-13", "03-2025"} {
		if _, err := parseMonth(bad); err == nil {
			t.Errorf("%q should not parse", bad)
		}
	}
}

func TestFirstOfMonth(t *testing.T) {
	in := time.Date(2025, time.July, 19, 15, 4, 5, 0, time.FixedZone("EST", -5*3600))
	got := firstOfMonth(in)
	if !got.Equal(time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected 2025-07-01 UTC, got %s", got)
	}
}
