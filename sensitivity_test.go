package main

import (
	"testing"

	"github.com/shopspring/decimal"
)

func sensitivityReference() *StrategyConfig {
	s := referenceStrategy()
	s.SimulationMonths = 60
	return s
}

func TestBuildRates(t *testing.T) {
	rates := buildRates(d("0.04"), d("0.09"), d("0.01"))
	if len(rates) != 6 {
		t.Fatalf("expected 6 rates, got %d", len(rates))
	}
	assertDecimal(t, "0.04", rates[0], "first rate")
	assertDecimal(t, "0.09", rates[5], "last rate is inclusive")

	if got := buildRates(d("0.05"), d("0.04"), d("0.01")); len(got) != 0 {
		t.Errorf("min above max should give no rates, got %v", got)
	}
}

func TestRunSensitivityAnalysis_Grid(t *testing.T) {
	settings := SensitivityConfig{
		MinHELOCRate: d("0.04"),
		MaxHELOCRate: d("0.06"),
		StepRate:     d("0.01"),
	}
	a, err := RunSensitivityAnalysis(sensitivityReference(), settings, testRegistry(t), referenceStart)
	if err != nil {
		t.Fatal(err)
	}

	if len(a.HELOCRates) != 3 || len(a.Results) != 3 {
		t.Fatalf("expected 3 rates, got %d", len(a.HELOCRates))
	}
	// Default incomes are 0.5x to 2x the household income
	wantIncomes := []string{"60000", "120000", "180000", "240000"}
	if len(a.Incomes) != len(wantIncomes) {
		t.Fatalf("expected %d incomes, got %d", len(wantIncomes), len(a.Incomes))
	}
	for i, want := range wantIncomes {
		assertDecimal(t, want, a.Incomes[i], "income")
	}
	assertDecimal(t, "0.3716", a.Results[0][1].MarginalRate, "marginal rate at the household income")

	for ii := range a.Incomes {
		for ri := 1; ri < len(a.HELOCRates); ri++ {
			prev, cur := a.Results[ri-1][ii], a.Results[ri][ii]
			if !cur.NetBenefit.LessThan(prev.NetBenefit) {
				t.Errorf("income %s: net benefit should fall as the HELOC rate rises (%s at %s, %s at %s)",
					a.Incomes[ii], prev.NetBenefit, prev.HELOCRate, cur.NetBenefit, cur.HELOCRate)
			}
			if !cur.InterestSaved.Equal(prev.InterestSaved) {
				t.Errorf("income %s: HELOC rate should not change mortgage interest saved", a.Incomes[ii])
			}
		}
	}
	for ri := range a.HELOCRates {
		for ii := 1; ii < len(a.Incomes); ii++ {
			if a.Results[ri][ii].MarginalRate.LessThan(a.Results[ri][ii-1].MarginalRate) {
				t.Errorf("marginal rate should not fall as income rises")
			}
		}
	}
}

func TestRunSensitivityAnalysis_DoesNotModifyStrategy(t *testing.T) {
	s := sensitivityReference()
	settings := SensitivityConfig{Incomes: []decimal.Decimal{d("90000")}}
	if _, err := RunSensitivityAnalysis(s, settings, testRegistry(t), referenceStart); err != nil {
		t.Fatal(err)
	}
	if !s.HELOCRate.IsZero() || !s.HouseholdIncome.Equal(d("120000")) {
		t.Error("analysis should work on copies of the strategy")
	}
}

func TestRunSensitivityAnalysis_Errors(t *testing.T) {
	registry := testRegistry(t)

	baseline := sensitivityReference()
	baseline.Kind = StrategyBaseline
	if _, err := RunSensitivityAnalysis(baseline, SensitivityConfig{}, registry, referenceStart); err == nil {
		t.Error("a baseline strategy has no HELOC rate to vary")
	}

	inverted := SensitivityConfig{MinHELOCRate: d("0.08"), MaxHELOCRate: d("0.05")}
	if _, err := RunSensitivityAnalysis(sensitivityReference(), inverted, registry, referenceStart); err == nil {
		t.Error("min above max should fail")
	}

	invalid := sensitivityReference()
	invalid.SimulationMonths = 0
	if _, err := RunSensitivityAnalysis(invalid, SensitivityConfig{}, registry, referenceStart); err == nil {
		t.Error("an invalid strategy should fail validation")
	}
}

func TestRunSensitivityAnalysis_StopMonth(t *testing.T) {
	s := sensitivityReference()
	s.AutoStopRules = []AutoStopRule{{Kind: RuleHELOCInterestCeiling, Threshold: d("50"), Enabled: true}}
	settings := SensitivityConfig{MinHELOCRate: d("0.05"), MaxHELOCRate: d("0.09"), StepRate: d("0.04"),
		Incomes: []decimal.Decimal{d("120000")}}

	a, err := RunSensitivityAnalysis(s, settings, testRegistry(t), referenceStart)
	if err != nil {
		t.Fatal(err)
	}
	low, high := a.Results[0][0], a.Results[1][0]
	if !low.Stopped || !high.Stopped {
		t.Fatal("the interest ceiling should stop both runs within 60 months")
	}
	if high.StopMonth >= low.StopMonth {
		t.Errorf("a dearer HELOC should reach the ceiling sooner: %d at 9%%, %d at 5%%", high.StopMonth, low.StopMonth)
	}
}

func TestBreakEven(t *testing.T) {
	a := &SensitivityAnalysis{
		HELOCRates: []decimal.Decimal{d("0.04"), d("0.05"), d("0.06")},
		Incomes:    []decimal.Decimal{d("60000"), d("120000")},
		Results: [][]SensitivityResult{
			{{NetBenefit: d("100")}, {NetBenefit: d("-5")}},
			{{NetBenefit: d("10")}, {NetBenefit: d("-10")}},
			{{NetBenefit: d("-1")}, {NetBenefit: d("-20")}},
		},
	}
	got := a.BreakEven()
	assertDecimal(t, "0.05", got[0], "break-even at the lower income")
	assertDecimal(t, "-1", got[1], "no positive rate at the higher income")
}
