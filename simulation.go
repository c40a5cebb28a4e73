package main

import (
	"time"

	"github.com/shopspring/decimal"
)

// SimulationInput is everything one scenario run reads. It is never mutated.
type SimulationInput struct {
	Strategy           *StrategyConfig
	Start              time.Time       // First simulated calendar month
	MarginalRate       decimal.Decimal // Combined federal + provincial rate at household income
	InterestDeductible bool            // Jurisdiction allows deducting investment interest
}

// MonthContext is the state a scenario policy sees when deciding a month's cash flows
type MonthContext struct {
	Month           int
	CalendarMonth   time.Time
	RentalIncome    decimal.Decimal
	RentalExpenses  decimal.Decimal
	PrimaryBalance  decimal.Decimal // After the scheduled payment and lump sum
	HELOCBalance    decimal.Decimal // Opening balance
	HELOCLimit      decimal.Decimal
	AvailableCredit decimal.Decimal // Limit less opening balance, never negative
}

// ScenarioPolicy is the only thing that differs between scenarios: how much is
// drawn on the HELOC and how much is diverted to prepay the primary mortgage
type ScenarioPolicy struct {
	Scenario        ScenarioKind
	UsesHELOC       bool // HELOC carries its balance and accrues interest
	HELOCDeductible bool // HELOC interest is classified as deductible
	ApplyRules      bool // Auto-stop rules are evaluated each month
	Draw            func(m *MonthContext) decimal.Decimal
	Prepay          func(m *MonthContext, draw decimal.Decimal) decimal.Decimal
}

// loanState tracks one amortizing mortgage through the simulation
type loanState struct {
	balance     decimal.Decimal
	annualRate  decimal.Decimal
	monthlyRate decimal.Decimal
	payment     decimal.Decimal
	termMonths  int

	renewal     time.Time
	renewalRate decimal.Decimal
	renewed     bool

	lumpSum   decimal.Decimal
	lumpMonth time.Month

	privilege     decimal.Decimal // Annual prepayment cap; negative when uncapped
	privilegeUsed decimal.Decimal

	principalRepaid decimal.Decimal // Scheduled principal plus prepayments since the start
}

func newLoanState(d *DebtInstrument) *loanState {
	l := &loanState{privilege: decimal.NewFromInt(-1)}
	if d == nil {
		return l
	}

	l.balance = settle(d.Balance)
	l.annualRate = d.InterestRate
	l.monthlyRate = MonthlyRateSemiAnnual(d.InterestRate)
	l.termMonths = d.TermMonths
	l.payment = levelPaymentAt(l.balance, l.monthlyRate, d.TermMonths)
	l.renewalRate = d.RenewalRate
	if d.RenewalDate != "" {
		if t, err := parseMonth(d.RenewalDate); err == nil {
			l.renewal = t
		}
	}
	l.lumpSum = clampZero(d.AnnualLumpSum)
	if d.LumpSumMonth >= 1 && d.LumpSumMonth <= 12 {
		l.lumpMonth = time.Month(d.LumpSumMonth)
	}
	l.privilege = d.AnnualPrivilege()
	return l
}

// renewIfDue switches to the renewal rate once the calendar reaches the renewal
// month and re-amortizes the balance over the remaining term
func (l *loanState) renewIfDue(calendar time.Time, month int) {
	if l.renewed || l.renewal.IsZero() || calendar.Before(l.renewal) {
		return
	}
	l.renewed = true

	if l.renewalRate.IsPositive() {
		l.annualRate = l.renewalRate
		l.monthlyRate = MonthlyRateSemiAnnual(l.renewalRate)
	}

	remaining := l.termMonths - (month - 1)
	if remaining <= 0 {
		l.payment = l.balance
		return
	}
	l.payment = levelPaymentAt(l.balance, l.monthlyRate, remaining)
}

// amortize charges a month's interest on the opening balance and applies the
// scheduled payment. It returns interest, principal and the amount paid.
func (l *loanState) amortize() (interest, principal, paid decimal.Decimal) {
	if !l.balance.IsPositive() {
		return decimal.Zero, decimal.Zero, decimal.Zero
	}

	interest = interestAt(l.balance, l.monthlyRate)
	principal = clampZero(minDecimal(l.payment.Sub(interest), l.balance))

	paid = l.payment
	if interest.Add(principal).LessThan(paid) {
		// Final payment only needs to clear what is left
		paid = interest.Add(principal)
	}

	l.balance = settle(l.balance.Sub(principal))
	l.principalRepaid = l.principalRepaid.Add(principal)
	return interest, principal, paid
}

// resetPrivilege restores the annual prepayment allowance
func (l *loanState) resetPrivilege() {
	l.privilegeUsed = decimal.Zero
}

// prepay applies an extra payment capped by the balance and the remaining
// annual privilege, returning the amount actually applied
func (l *loanState) prepay(amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() || !l.balance.IsPositive() {
		return decimal.Zero
	}

	applied := minDecimal(amount, l.balance)
	if !l.privilege.IsNegative() {
		room := clampZero(l.privilege.Sub(l.privilegeUsed))
		applied = minDecimal(applied, room)
	}
	if !applied.IsPositive() {
		return decimal.Zero
	}

	l.privilegeUsed = l.privilegeUsed.Add(applied)
	l.balance = settle(l.balance.Sub(applied))
	l.principalRepaid = l.principalRepaid.Add(applied)
	return applied
}

// applyLumpSum makes the annual lump-sum prepayment in its configured month
func (l *loanState) applyLumpSum(calendar time.Time) decimal.Decimal {
	if l.lumpMonth == 0 || calendar.Month() != l.lumpMonth {
		return decimal.Zero
	}
	return l.prepay(l.lumpSum)
}

// helocState tracks the line of credit in scenarios that use it
type helocState struct {
	balance     decimal.Decimal
	monthlyRate decimal.Decimal
	baseLimit   decimal.Decimal
	limitCap    decimal.Decimal
	readvance   bool
	limit       decimal.Decimal
}

func newHELOCState(s *StrategyConfig, used bool) *helocState {
	h := &helocState{}
	if !used || s.HELOC == nil {
		return h
	}
	h.balance = settle(s.HELOC.Balance)
	h.monthlyRate = MonthlyRateSimple(s.EffectiveHELOCRate())
	h.baseLimit = clampZero(s.HELOC.CreditLimit)
	h.limitCap = clampZero(s.HELOCLimitCap)
	h.readvance = s.Readvanceable
	h.limit = h.baseLimit
	return h
}

// updateLimit grows a readvanceable limit by the primary principal repaid so far, up to the cap
func (h *helocState) updateLimit(primaryRepaid decimal.Decimal) {
	if !h.readvance {
		return
	}
	limit := h.baseLimit.Add(primaryRepaid)
	if h.limitCap.IsPositive() && limit.GreaterThan(h.limitCap) {
		limit = decimal.Max(h.limitCap, h.baseLimit)
	}
	h.limit = limit
}

func (h *helocState) available() decimal.Decimal {
	return clampZero(h.limit.Sub(h.balance))
}

// simulate runs the shared monthly skeleton under one scenario policy
func simulate(in SimulationInput, policy ScenarioPolicy) []LedgerEntry {
	s := in.Strategy
	start := firstOfMonth(in.Start)

	primary := newLoanState(s.PrimaryMortgage)
	rental := newLoanState(s.RentalMortgage)
	heloc := newHELOCState(s, policy.UsesHELOC)

	income := clampZero(s.MonthlyRentalIncome)
	expenses := clampZero(s.MonthlyRentalExpenses)

	marginal := decimal.Zero
	if in.InterestDeductible {
		marginal = in.MarginalRate
	}

	cumulativeBenefit := decimal.Zero
	cumulativeHELOCInterest := decimal.Zero

	entries := make([]LedgerEntry, 0, s.SimulationMonths)
	for month := 1; month <= s.SimulationMonths; month++ {
		calendar := start.AddDate(0, month-1, 0)

		// Renewal
		primary.renewIfDue(calendar, month)
		rental.renewIfDue(calendar, month)

		// Prepayment privileges reset each January and at the start
		if month == 1 || calendar.Month() == time.January {
			primary.resetPrivilege()
			rental.resetPrivilege()
		}

		// Readvanceable limit reflects principal repaid before this month
		heloc.updateLimit(primary.principalRepaid)

		// Scheduled payments on opening balances
		primaryInterest, primaryPrincipal, primaryPayment := primary.amortize()
		rentalInterest, rentalPrincipal, rentalPayment := rental.amortize()

		// Lump sums, then the policy's draw and prepayment
		primaryPrepayment := primary.applyLumpSum(calendar)
		rentalPrepayment := rental.applyLumpSum(calendar)

		mc := &MonthContext{
			Month:           month,
			CalendarMonth:   calendar,
			RentalIncome:    income,
			RentalExpenses:  expenses,
			PrimaryBalance:  primary.balance,
			HELOCBalance:    heloc.balance,
			HELOCLimit:      heloc.limit,
			AvailableCredit: heloc.available(),
		}

		draw := decimal.Zero
		if policy.UsesHELOC && policy.Draw != nil {
			draw = clampZero(minDecimal(policy.Draw(mc), mc.AvailableCredit))
		}
		if policy.Prepay != nil {
			primaryPrepayment = primaryPrepayment.Add(primary.prepay(policy.Prepay(mc, draw)))
		}

		// HELOC interest on the opening balance is capitalised
		helocInterest := interestAt(heloc.balance, heloc.monthlyRate)
		heloc.balance = settle(heloc.balance.Add(draw).Add(helocInterest))
		cumulativeHELOCInterest = cumulativeHELOCInterest.Add(helocInterest)

		// Tax classification
		deductible := rentalInterest
		nonDeductible := primaryInterest
		if policy.HELOCDeductible {
			deductible = deductible.Add(helocInterest)
		} else {
			nonDeductible = nonDeductible.Add(helocInterest)
		}
		benefit := deductible.Mul(marginal)
		cumulativeBenefit = cumulativeBenefit.Add(benefit)

		netCashFlow := income.Sub(expenses)
		fromRental := decimal.Zero
		if helocInterest.IsPositive() && netCashFlow.IsPositive() {
			fromRental = minDecimal(helocInterest, netCashFlow)
		}

		entry := LedgerEntry{
			StrategyID:    s.ID,
			Scenario:      policy.Scenario,
			Month:         month,
			CalendarMonth: calendar,

			RentalIncome:      roundMoney(income),
			RentalExpenses:    roundMoney(expenses),
			NetRentalCashFlow: roundMoney(netCashFlow),

			HELOCDraw:               roundMoney(draw),
			HELOCBalance:            roundMoney(heloc.balance),
			HELOCInterest:           roundMoney(helocInterest),
			HELOCPayment:            decimal.Zero,
			HELOCCreditLimit:        roundMoney(heloc.limit),
			CumulativeHELOCInterest: roundMoney(cumulativeHELOCInterest),

			PrimaryBalance:    roundMoney(primary.balance),
			PrimaryPayment:    roundMoney(primaryPayment),
			PrimaryPrincipal:  roundMoney(primaryPrincipal),
			PrimaryInterest:   roundMoney(primaryInterest),
			PrimaryPrepayment: roundMoney(primaryPrepayment),

			RentalBalance:    roundMoney(rental.balance),
			RentalPayment:    roundMoney(rentalPayment),
			RentalPrincipal:  roundMoney(rentalPrincipal),
			RentalInterest:   roundMoney(rentalInterest),
			RentalPrepayment: roundMoney(rentalPrepayment),

			DeductibleInterest:    roundMoney(deductible),
			NonDeductibleInterest: roundMoney(nonDeductible),
			TaxBenefit:            roundMoney(benefit),
			CumulativeTaxBenefit:  roundMoney(cumulativeBenefit),

			HELOCInterestFromRental: roundMoney(fromRental),
			HELOCInterestFromPocket: roundMoney(helocInterest.Sub(fromRental)),
		}
		entry.TotalDebt = entry.PrimaryBalance.Add(entry.RentalBalance).Add(entry.HELOCBalance)

		if policy.ApplyRules {
			if res := EvaluateRules(s.AutoStopRules, &entry); res.Triggered {
				entry.StrategyStopped = true
				entry.StopReason = res.Reason
				entries = append(entries, entry)
				break
			}
		}

		entries = append(entries, entry)
		if primary.balance.IsZero() && rental.balance.IsZero() {
			break
		}
	}

	return entries
}
