package main

import (
	"math"

	"github.com/shopspring/decimal"
)

const (
	divPrecision   = 24 // Places kept when dividing during compounding
	powerPrecision = 28 // Places kept by integer powers
	moneyPlaces    = 2  // Ledger fields are rounded to cents
)

var (
	one      = decimal.NewFromInt(1)
	two      = decimal.NewFromInt(2)
	six      = decimal.NewFromInt(6)
	twelve   = decimal.NewFromInt(12)
	hundred  = decimal.NewFromInt(100)
	halfCent = decimal.New(5, -3)
)

// MonthlyRateSemiAnnual converts a nominal annual rate compounded semi-annually
// (the Canadian Interest Act convention for fixed-rate mortgages) into the
// equivalent monthly rate: (1 + r/2)^(1/6) - 1
func MonthlyRateSemiAnnual(annualRate decimal.Decimal) decimal.Decimal {
	if !annualRate.IsPositive() {
		return decimal.Zero
	}
	base := one.Add(annualRate.DivRound(two, divPrecision))
	return sixthRoot(base).Sub(one)
}

// MonthlyRateSimple converts a nominal annual rate into a monthly rate by r/12,
// as used by revolving products such as a HELOC
func MonthlyRateSimple(annualRate decimal.Decimal) decimal.Decimal {
	if !annualRate.IsPositive() {
		return decimal.Zero
	}
	return annualRate.DivRound(twelve, divPrecision)
}

// LevelPayment returns the monthly annuity payment that repays principal over
// termMonths at the semi-annual-derived monthly rate.
// Using formula: M = P * [i(1+i)^n] / [(1+i)^n - 1]
func LevelPayment(principal, annualRate decimal.Decimal, termMonths int) decimal.Decimal {
	if !principal.IsPositive() || termMonths <= 0 {
		return decimal.Zero
	}

	i := MonthlyRateSemiAnnual(annualRate)
	return levelPaymentAt(principal, i, termMonths)
}

// levelPaymentAt is LevelPayment for an already converted monthly rate
func levelPaymentAt(principal, monthlyRate decimal.Decimal, termMonths int) decimal.Decimal {
	if !principal.IsPositive() || termMonths <= 0 {
		return decimal.Zero
	}
	if monthlyRate.IsZero() {
		return principal.DivRound(decimal.NewFromInt(int64(termMonths)), divPrecision)
	}

	factor := powInt(one.Add(monthlyRate), termMonths)
	return principal.Mul(monthlyRate).Mul(factor).DivRound(factor.Sub(one), divPrecision)
}

// MonthlyInterest returns one month's interest on balance at a semi-annually
// compounded nominal rate
func MonthlyInterest(balance, annualRate decimal.Decimal) decimal.Decimal {
	return interestAt(balance, MonthlyRateSemiAnnual(annualRate))
}

// MonthlyInterestSimple returns one month's interest on balance at r/12
func MonthlyInterestSimple(balance, annualRate decimal.Decimal) decimal.Decimal {
	return interestAt(balance, MonthlyRateSimple(annualRate))
}

func interestAt(balance, monthlyRate decimal.Decimal) decimal.Decimal {
	if !balance.IsPositive() || !monthlyRate.IsPositive() {
		return decimal.Zero
	}
	return balance.Mul(monthlyRate)
}

// RemainingBalance calculates the outstanding principal after paymentsMade level
// payments on a loan of principal over termMonths.
// Remaining balance formula: B = P * [(1+i)^n - (1+i)^p] / [(1+i)^n - 1]
func RemainingBalance(principal, annualRate decimal.Decimal, termMonths, paymentsMade int) decimal.Decimal {
	if !principal.IsPositive() || termMonths <= 0 {
		return decimal.Zero
	}
	if paymentsMade <= 0 {
		return principal
	}
	if paymentsMade >= termMonths {
		return decimal.Zero // Fully paid off
	}

	i := MonthlyRateSemiAnnual(annualRate)
	if i.IsZero() {
		// No interest: simple linear payoff
		left := decimal.NewFromInt(int64(termMonths - paymentsMade))
		return principal.Mul(left).DivRound(decimal.NewFromInt(int64(termMonths)), divPrecision)
	}

	factorN := powInt(one.Add(i), termMonths)
	factorP := powInt(one.Add(i), paymentsMade)
	return principal.Mul(factorN.Sub(factorP)).DivRound(factorN.Sub(one), divPrecision)
}

// sixthRoot solves x^6 = a by Newton iteration, seeded from the float estimate
func sixthRoot(a decimal.Decimal) decimal.Decimal {
	if !a.IsPositive() {
		return decimal.Zero
	}

	x := decimal.NewFromFloat(math.Pow(a.InexactFloat64(), 1.0/6.0))
	if !x.IsPositive() {
		x = one
	}
	tolerance := decimal.New(1, -(divPrecision - 2))

	for iter := 0; iter < 64; iter++ {
		// x' = (5x + a/x^5) / 6
		x5 := powInt(x, 5)
		next := x.Mul(decimal.NewFromInt(5)).Add(a.DivRound(x5, divPrecision)).DivRound(six, divPrecision)
		if next.Sub(x).Abs().LessThan(tolerance) {
			return next
		}
		x = next
	}
	return x
}

// powInt raises x to a non-negative integer power by repeated squaring
func powInt(x decimal.Decimal, n int) decimal.Decimal {
	result := one
	base := x
	for n > 0 {
		if n&1 == 1 {
			result = result.Mul(base).Round(powerPrecision)
		}
		n >>= 1
		if n > 0 {
			base = base.Mul(base).Round(powerPrecision)
		}
	}
	return result
}

// roundMoney rounds a value to cents for storage on a ledger entry
func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}

// settle clamps negative balances to zero and drops sub-half-cent residue left by compounding
func settle(balance decimal.Decimal) decimal.Decimal {
	if balance.LessThan(halfCent) {
		return decimal.Zero
	}
	return balance
}

// minDecimal returns the smaller of a and b
func minDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// clampZero returns d, or zero when d is negative
func clampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
