package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// monthLayout is the YYYY-MM format used for calendar months in config, series and exports
const monthLayout = "2006-01"

// ScenarioKind identifies one of the simulated ledgers for a strategy
type ScenarioKind int

const (
	ScenarioBaseline      ScenarioKind = iota // Do nothing: scheduled payments only
	ScenarioPrepayOnly                        // Rental surplus prepays the primary mortgage
	ScenarioModifiedSmith                     // HELOC funds rental expenses, rental income prepays
)

var scenarioNames = []string{"baseline", "prepay_only", "modified_smith"}

// AllScenarios lists every scenario in reporting order
var AllScenarios = []ScenarioKind{ScenarioBaseline, ScenarioPrepayOnly, ScenarioModifiedSmith}

func (s ScenarioKind) String() string {
	if int(s) >= 0 && int(s) < len(scenarioNames) {
		return scenarioNames[s]
	}
	return "unknown"
}

// Label returns a human-readable scenario name
func (s ScenarioKind) Label() string {
	switch s {
	case ScenarioBaseline:
		return "Baseline"
	case ScenarioPrepayOnly:
		return "Prepay Only"
	case ScenarioModifiedSmith:
		return "Modified Smith Manoeuvre"
	default:
		return "Unknown"
	}
}

func (s ScenarioKind) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ScenarioKind) UnmarshalText(text []byte) error {
	v, err := ParseScenarioKind(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseScenarioKind converts a snake_case name to a ScenarioKind
func ParseScenarioKind(name string) (ScenarioKind, error) {
	i, ok := lookupName(scenarioNames, name)
	if !ok {
		return 0, fmt.Errorf("unknown scenario %q", name)
	}
	return ScenarioKind(i), nil
}

// StrategyKind is the kind of optimisation a strategy configuration asks for
type StrategyKind int

const (
	StrategyBaseline StrategyKind = iota
	StrategyModifiedSmith
)

var strategyKindNames = []string{"baseline", "modified_smith"}

func (k StrategyKind) String() string {
	if int(k) >= 0 && int(k) < len(strategyKindNames) {
		return strategyKindNames[k]
	}
	return "unknown"
}

// Scenarios returns the ledgers produced when a strategy of this kind is run
func (k StrategyKind) Scenarios() []ScenarioKind {
	if k == StrategyModifiedSmith {
		return AllScenarios
	}
	return []ScenarioKind{ScenarioBaseline, ScenarioPrepayOnly}
}

func (k StrategyKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *StrategyKind) UnmarshalText(text []byte) error {
	i, ok := lookupName(strategyKindNames, string(text))
	if !ok {
		return fmt.Errorf("unknown strategy kind %q", string(text))
	}
	*k = StrategyKind(i)
	return nil
}

// StrategyStatus tracks the lifecycle of a strategy configuration
type StrategyStatus int

const (
	StatusDraft StrategyStatus = iota
	StatusSimulated
	StatusActive
	StatusCompleted
)

var strategyStatusNames = []string{"draft", "simulated", "active", "completed"}

func (s StrategyStatus) String() string {
	if int(s) >= 0 && int(s) < len(strategyStatusNames) {
		return strategyStatusNames[s]
	}
	return "unknown"
}

func (s StrategyStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *StrategyStatus) UnmarshalText(text []byte) error {
	i, ok := lookupName(strategyStatusNames, string(text))
	if !ok {
		return fmt.Errorf("unknown strategy status %q", string(text))
	}
	*s = StrategyStatus(i)
	return nil
}

// InstrumentKind is the role a debt instrument plays in a strategy
type InstrumentKind int

const (
	InstrumentPrimaryMortgage InstrumentKind = iota
	InstrumentHELOC
	InstrumentRentalMortgage
)

var instrumentKindNames = []string{"primary_mortgage", "heloc", "rental_mortgage"}

func (k InstrumentKind) String() string {
	if int(k) >= 0 && int(k) < len(instrumentKindNames) {
		return instrumentKindNames[k]
	}
	return "unknown"
}

func (k InstrumentKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *InstrumentKind) UnmarshalText(text []byte) error {
	i, ok := lookupName(instrumentKindNames, string(text))
	if !ok {
		return fmt.Errorf("unknown instrument kind %q", string(text))
	}
	*k = InstrumentKind(i)
	return nil
}

// RateType distinguishes fixed from variable rate products
type RateType int

const (
	RateFixed RateType = iota
	RateVariable
)

var rateTypeNames = []string{"fixed", "variable"}

func (r RateType) String() string {
	if int(r) >= 0 && int(r) < len(rateTypeNames) {
		return rateTypeNames[r]
	}
	return "unknown"
}

func (r RateType) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *RateType) UnmarshalText(text []byte) error {
	i, ok := lookupName(rateTypeNames, string(text))
	if !ok {
		return fmt.Errorf("unknown rate type %q", string(text))
	}
	*r = RateType(i)
	return nil
}

func lookupName(names []string, name string) (int, bool) {
	for i, n := range names {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

// DebtInstrument is a snapshot of one account supplied by the account subsystem
type DebtInstrument struct {
	Name                string          `yaml:"name" json:"name"`
	Kind                InstrumentKind  `yaml:"kind" json:"kind"`
	Balance             decimal.Decimal `yaml:"balance" json:"balance"`                                               // Current outstanding balance
	InterestRate        decimal.Decimal `yaml:"interest_rate" json:"interest_rate"`                                   // Nominal annual rate (0.05 = 5%)
	RateType            RateType        `yaml:"rate_type" json:"rate_type"`                                           // fixed or variable
	TermMonths          int             `yaml:"term_months" json:"term_months"`                                       // Remaining amortization in months
	OriginalPrincipal   decimal.Decimal `yaml:"original_principal,omitempty" json:"original_principal"`               // Base for the prepayment privilege (defaults to balance)
	RenewalDate         string          `yaml:"renewal_date,omitempty" json:"renewal_date,omitempty"`                 // YYYY-MM
	RenewalRate         decimal.Decimal `yaml:"renewal_rate,omitempty" json:"renewal_rate"`                           // Rate applied from the renewal month
	AnnualLumpSum       decimal.Decimal `yaml:"annual_lump_sum,omitempty" json:"annual_lump_sum"`                     // Extra payment made once a year
	LumpSumMonth        int             `yaml:"lump_sum_month,omitempty" json:"lump_sum_month,omitempty"`             // 1-12
	PrepaymentPrivilege decimal.Decimal `yaml:"prepayment_privilege,omitempty" json:"prepayment_privilege"`           // Annual cap as a fraction of original principal (0 = uncapped)
	CreditLimit         decimal.Decimal `yaml:"credit_limit,omitempty" json:"credit_limit"`                           // HELOC only
}

// PrivilegeBase returns the principal the annual prepayment privilege is measured against
func (d *DebtInstrument) PrivilegeBase() decimal.Decimal {
	if d.OriginalPrincipal.IsPositive() {
		return d.OriginalPrincipal
	}
	return d.Balance
}

// AnnualPrivilege returns the maximum prepayment allowed per calendar year,
// or a negative value when prepayments are uncapped
func (d *DebtInstrument) AnnualPrivilege() decimal.Decimal {
	if !d.PrepaymentPrivilege.IsPositive() {
		return decimal.NewFromInt(-1)
	}
	return d.PrivilegeBase().Mul(d.PrepaymentPrivilege)
}

// StrategySummary holds the cached cross-scenario outputs of the last run
type StrategySummary struct {
	TotalInterestSaved decimal.Decimal `yaml:"total_interest_saved" json:"total_interest_saved"`
	TotalTaxBenefit    decimal.Decimal `yaml:"total_tax_benefit" json:"total_tax_benefit"`
	NetBenefit         decimal.Decimal `yaml:"net_benefit" json:"net_benefit"`
	MonthsAccelerated  int             `yaml:"months_accelerated" json:"months_accelerated"`
}

// StrategyConfig is one optimisation attempt for a household
type StrategyConfig struct {
	ID                    string          `yaml:"id" json:"id"`
	HouseholdID           string          `yaml:"household_id" json:"household_id"`
	Name                  string          `yaml:"name" json:"name"`
	Jurisdiction          string          `yaml:"jurisdiction" json:"jurisdiction"`
	Province              string          `yaml:"province" json:"province"`
	HouseholdIncome       decimal.Decimal `yaml:"household_income" json:"household_income"`
	PrimaryMortgage       *DebtInstrument `yaml:"primary_mortgage,omitempty" json:"primary_mortgage,omitempty"`
	HELOC                 *DebtInstrument `yaml:"heloc,omitempty" json:"heloc,omitempty"`
	RentalMortgage        *DebtInstrument `yaml:"rental_mortgage,omitempty" json:"rental_mortgage,omitempty"`
	MonthlyRentalIncome   decimal.Decimal `yaml:"monthly_rental_income" json:"monthly_rental_income"`
	MonthlyRentalExpenses decimal.Decimal `yaml:"monthly_rental_expenses" json:"monthly_rental_expenses"`
	HELOCRate             decimal.Decimal `yaml:"heloc_rate" json:"heloc_rate"`                 // Overrides the HELOC instrument rate when non-zero
	HELOCLimitCap         decimal.Decimal `yaml:"heloc_limit_cap" json:"heloc_limit_cap"`       // Maximum readvanced limit (0 = uncapped)
	Readvanceable         bool            `yaml:"readvanceable" json:"readvanceable"`           // Limit grows as primary principal is repaid
	SimulationMonths      int             `yaml:"simulation_months" json:"simulation_months"`   // Horizon, 1-600
	Kind                  StrategyKind    `yaml:"kind" json:"kind"`
	Status                StrategyStatus  `yaml:"status" json:"status"`
	AutoStopRules         []AutoStopRule  `yaml:"auto_stop_rules,omitempty" json:"auto_stop_rules,omitempty"`
	Summary               StrategySummary `yaml:"summary" json:"summary"`
	LastSimulatedAt       *time.Time      `yaml:"last_simulated_at,omitempty" json:"last_simulated_at,omitempty"`
	CreatedAt             time.Time       `yaml:"created_at" json:"created_at"`
	UpdatedAt             time.Time       `yaml:"updated_at" json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate without touching stored state
func (s *StrategyConfig) Clone() *StrategyConfig {
	c := *s
	c.PrimaryMortgage = cloneInstrument(s.PrimaryMortgage)
	c.HELOC = cloneInstrument(s.HELOC)
	c.RentalMortgage = cloneInstrument(s.RentalMortgage)
	if s.AutoStopRules != nil {
		c.AutoStopRules = make([]AutoStopRule, len(s.AutoStopRules))
		copy(c.AutoStopRules, s.AutoStopRules)
	}
	if s.LastSimulatedAt != nil {
		t := *s.LastSimulatedAt
		c.LastSimulatedAt = &t
	}
	return &c
}

func cloneInstrument(d *DebtInstrument) *DebtInstrument {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// EffectiveHELOCRate returns the rate applied to HELOC balances
func (s *StrategyConfig) EffectiveHELOCRate() decimal.Decimal {
	if !s.HELOCRate.IsZero() {
		return s.HELOCRate
	}
	if s.HELOC != nil {
		return s.HELOC.InterestRate
	}
	return decimal.Zero
}

// MonthlyRentalSurplus returns rental income minus expenses (may be negative)
func (s *StrategyConfig) MonthlyRentalSurplus() decimal.Decimal {
	return s.MonthlyRentalIncome.Sub(s.MonthlyRentalExpenses)
}

// LedgerEntry is one simulated month of one scenario
type LedgerEntry struct {
	StrategyID    string       `json:"strategy_id"`
	Scenario      ScenarioKind `json:"scenario"`
	Month         int          `json:"month"`          // 1-based month index
	CalendarMonth time.Time    `json:"calendar_month"` // First day of the month, UTC

	RentalIncome      decimal.Decimal `json:"rental_income"`
	RentalExpenses    decimal.Decimal `json:"rental_expenses"`
	NetRentalCashFlow decimal.Decimal `json:"net_rental_cash_flow"`

	HELOCDraw               decimal.Decimal `json:"heloc_draw"`
	HELOCBalance            decimal.Decimal `json:"heloc_balance"`
	HELOCInterest           decimal.Decimal `json:"heloc_interest"`
	HELOCPayment            decimal.Decimal `json:"heloc_payment"`
	HELOCCreditLimit        decimal.Decimal `json:"heloc_credit_limit"`
	CumulativeHELOCInterest decimal.Decimal `json:"cumulative_heloc_interest"`

	PrimaryBalance    decimal.Decimal `json:"primary_balance"`
	PrimaryPayment    decimal.Decimal `json:"primary_payment"`
	PrimaryPrincipal  decimal.Decimal `json:"primary_principal"`
	PrimaryInterest   decimal.Decimal `json:"primary_interest"`
	PrimaryPrepayment decimal.Decimal `json:"primary_prepayment"`

	RentalBalance    decimal.Decimal `json:"rental_balance"`
	RentalPayment    decimal.Decimal `json:"rental_payment"`
	RentalPrincipal  decimal.Decimal `json:"rental_principal"`
	RentalInterest   decimal.Decimal `json:"rental_interest"`
	RentalPrepayment decimal.Decimal `json:"rental_prepayment"`

	DeductibleInterest    decimal.Decimal `json:"deductible_interest"`
	NonDeductibleInterest decimal.Decimal `json:"non_deductible_interest"`
	TaxBenefit            decimal.Decimal `json:"tax_benefit"`
	CumulativeTaxBenefit  decimal.Decimal `json:"cumulative_tax_benefit"`
	TotalDebt             decimal.Decimal `json:"total_debt"`

	// Optional telemetry: which cash source notionally carried the HELOC interest.
	HELOCInterestFromRental decimal.Decimal `json:"heloc_interest_from_rental"`
	HELOCInterestFromPocket decimal.Decimal `json:"heloc_interest_from_pocket"`

	StrategyStopped bool   `json:"strategy_stopped"`
	StopReason      string `json:"stop_reason,omitempty"`
}

// MortgageInterest returns primary plus rental mortgage interest (HELOC excluded)
func (e *LedgerEntry) MortgageInterest() decimal.Decimal {
	return e.PrimaryInterest.Add(e.RentalInterest)
}

// TotalInterest returns interest across all three instruments
func (e *LedgerEntry) TotalInterest() decimal.Decimal {
	return e.PrimaryInterest.Add(e.RentalInterest).Add(e.HELOCInterest)
}

// RunningNetBenefit is cumulative tax benefit less cumulative HELOC interest
func (e *LedgerEntry) RunningNetBenefit() decimal.Decimal {
	return e.CumulativeTaxBenefit.Sub(e.CumulativeHELOCInterest)
}

// MonthLabel formats the calendar month as YYYY-MM
func (e *LedgerEntry) MonthLabel() string {
	return e.CalendarMonth.Format(monthLayout)
}

// ledgerField names one monetary column of a ledger entry
type ledgerField struct {
	Name string
	Ref  func(e *LedgerEntry) *decimal.Decimal
}

// ledgerMoneyFields lists every monetary ledger column in storage order
var ledgerMoneyFields = []ledgerField{
	{"rental_income", func(e *LedgerEntry) *decimal.Decimal { return &e.RentalIncome }},
	{"rental_expenses", func(e *LedgerEntry) *decimal.Decimal { return &e.RentalExpenses }},
	{"net_rental_cash_flow", func(e *LedgerEntry) *decimal.Decimal { return &e.NetRentalCashFlow }},
	{"heloc_draw", func(e *LedgerEntry) *decimal.Decimal { return &e.HELOCDraw }},
	{"heloc_balance", func(e *LedgerEntry) *decimal.Decimal { return &e.HELOCBalance }},
	{"heloc_interest", func(e *LedgerEntry) *decimal.Decimal { return &e.HELOCInterest }},
	{"heloc_payment", func(e *LedgerEntry) *decimal.Decimal { return &e.HELOCPayment }},
	{"heloc_credit_limit", func(e *LedgerEntry) *decimal.Decimal { return &e.HELOCCreditLimit }},
	{"cumulative_heloc_interest", func(e *LedgerEntry) *decimal.Decimal { return &e.CumulativeHELOCInterest }},
	{"primary_balance", func(e *LedgerEntry) *decimal.Decimal { return &e.PrimaryBalance }},
	{"primary_payment", func(e *LedgerEntry) *decimal.Decimal { return &e.PrimaryPayment }},
	{"primary_principal", func(e *LedgerEntry) *decimal.Decimal { return &e.PrimaryPrincipal }},
	{"primary_interest", func(e *LedgerEntry) *decimal.Decimal { return &e.PrimaryInterest }},
	{"primary_prepayment", func(e *LedgerEntry) *decimal.Decimal { return &e.PrimaryPrepayment }},
	{"rental_balance", func(e *LedgerEntry) *decimal.Decimal { return &e.RentalBalance }},
	{"rental_payment", func(e *LedgerEntry) *decimal.Decimal { return &e.RentalPayment }},
	{"rental_principal", func(e *LedgerEntry) *decimal.Decimal { return &e.RentalPrincipal }},
	{"rental_interest", func(e *LedgerEntry) *decimal.Decimal { return &e.RentalInterest }},
	{"rental_prepayment", func(e *LedgerEntry) *decimal.Decimal { return &e.RentalPrepayment }},
	{"deductible_interest", func(e *LedgerEntry) *decimal.Decimal { return &e.DeductibleInterest }},
	{"non_deductible_interest", func(e *LedgerEntry) *decimal.Decimal { return &e.NonDeductibleInterest }},
	{"tax_benefit", func(e *LedgerEntry) *decimal.Decimal { return &e.TaxBenefit }},
	{"cumulative_tax_benefit", func(e *LedgerEntry) *decimal.Decimal { return &e.CumulativeTaxBenefit }},
	{"total_debt", func(e *LedgerEntry) *decimal.Decimal { return &e.TotalDebt }},
	{"heloc_interest_from_rental", func(e *LedgerEntry) *decimal.Decimal { return &e.HELOCInterestFromRental }},
	{"heloc_interest_from_pocket", func(e *LedgerEntry) *decimal.Decimal { return &e.HELOCInterestFromPocket }},
}

// lookupLedgerField finds a monetary column by its snake_case name
func lookupLedgerField(name string) (ledgerField, bool) {
	for _, f := range ledgerMoneyFields {
		if f.Name == name {
			return f, true
		}
	}
	return ledgerField{}, false
}
