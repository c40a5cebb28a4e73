package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// InteractiveConfigBuilder handles interactive configuration creation
type InteractiveConfigBuilder struct {
	reader   *bufio.Reader
	out      io.Writer
	defaults *Config
}

// NewInteractiveConfigBuilder creates a builder reading answers from in.
// Defaults offered at each prompt come from default-config.yaml.
func NewInteractiveConfigBuilder(in io.Reader, out io.Writer) *InteractiveConfigBuilder {
	builder := &InteractiveConfigBuilder{
		reader: bufio.NewReader(in),
		out:    out,
	}
	defaults, err := LoadDefaultConfig()
	if err != nil {
		defaults = &Config{}
	}
	builder.defaults = defaults
	return builder
}

// parseMoney parses money strings like "100k", "1.5m", "$250,000"
func parseMoney(input string) (decimal.Decimal, error) {
	input = strings.TrimSpace(strings.ToLower(input))
	input = strings.TrimPrefix(input, "$")
	input = strings.ReplaceAll(input, ",", "")
	multiplier := one
	if strings.HasSuffix(input, "k") {
		multiplier = decimal.NewFromInt(1000)
		input = strings.TrimSuffix(input, "k")
	} else if strings.HasSuffix(input, "m") {
		multiplier = decimal.NewFromInt(1000000)
		input = strings.TrimSuffix(input, "m")
	}
	val, err := decimal.NewFromString(input)
	if err != nil {
		return decimal.Zero, err
	}
	return val.Mul(multiplier), nil
}

// parsePercentOrDecimal converts "5%" or "0.05" to 0.05
func parsePercentOrDecimal(input string) (decimal.Decimal, error) {
	input = strings.TrimSpace(input)
	if strings.HasSuffix(input, "%") {
		num, err := decimal.NewFromString(strings.TrimSuffix(input, "%"))
		if err != nil {
			return decimal.Zero, err
		}
		return num.Div(hundred), nil
	}
	return decimal.NewFromString(input)
}

func (b *InteractiveConfigBuilder) readLine() (string, bool) {
	input, err := b.reader.ReadString('\n')
	input = strings.TrimSpace(input)
	return input, err == nil || input != ""
}

// promptString asks for a string with a default value
func (b *InteractiveConfigBuilder) promptString(prompt, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(b.out, "%s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Fprintf(b.out, "%s: ", prompt)
	}
	input, _ := b.readLine()
	if input == "" {
		return defaultVal
	}
	return input
}

// promptInt asks for a whole number within [min, max]
func (b *InteractiveConfigBuilder) promptInt(prompt string, defaultVal, min, max int) int {
	for {
		fmt.Fprintf(b.out, "%s [%d]: ", prompt, defaultVal)
		input, ok := b.readLine()
		if input == "" || !ok {
			return defaultVal
		}
		val, err := strconv.Atoi(input)
		if err != nil || val < min || val > max {
			fmt.Fprintf(b.out, "  ✗ Enter a whole number between %d and %d\n", min, max)
			continue
		}
		return val
	}
}

// promptPercent asks for a rate (accepts "5%" or "0.05")
func (b *InteractiveConfigBuilder) promptPercent(prompt string, defaultVal decimal.Decimal) decimal.Decimal {
	for {
		fmt.Fprintf(b.out, "%s [%s]: ", prompt, FormatPercent(defaultVal))
		input, ok := b.readLine()
		if input == "" || !ok {
			return defaultVal
		}
		val, err := parsePercentOrDecimal(input)
		if err != nil {
			fmt.Fprintf(b.out, "  ✗ Invalid percentage. Enter as '5%%' or '0.05'\n")
			continue
		}
		if !isRate(val) {
			fmt.Fprintf(b.out, "  ✗ Rate must be between 0%% and 100%%\n")
			continue
		}
		return val
	}
}

// promptMoney asks for an amount (accepts "100k", "1.5m" or "100000")
func (b *InteractiveConfigBuilder) promptMoney(prompt string, defaultVal decimal.Decimal) decimal.Decimal {
	for {
		fmt.Fprintf(b.out, "%s [%s]: ", prompt, FormatMoneyShort(defaultVal))
		input, ok := b.readLine()
		if input == "" || !ok {
			return defaultVal
		}
		val, err := parseMoney(input)
		if err != nil {
			fmt.Fprintf(b.out, "  ✗ Invalid amount. Enter as '100k', '1.5m', or '100000'\n")
			continue
		}
		if val.IsNegative() {
			fmt.Fprintf(b.out, "  ✗ Amount cannot be negative\n")
			continue
		}
		return val
	}
}

// promptYesNo asks a yes/no question
func (b *InteractiveConfigBuilder) promptYesNo(prompt string, defaultVal bool) bool {
	def := "n"
	if defaultVal {
		def = "y"
	}
	answer := strings.ToLower(b.promptString(prompt+" (y/n)", def))
	return strings.HasPrefix(answer, "y")
}

func (b *InteractiveConfigBuilder) promptMortgage(title string, def *DebtInstrument) *DebtInstrument {
	if def == nil {
		def = &DebtInstrument{TermMonths: 300}
	}
	fmt.Fprintf(b.out, "\n%s\n%s\n", title, strings.Repeat("─", len([]rune(title))))
	d := &DebtInstrument{
		Name:                b.promptString("  Name", def.Name),
		RateType:            def.RateType,
		Balance:             b.promptMoney("  Current balance", def.Balance),
		InterestRate:        b.promptPercent("  Annual interest rate", def.InterestRate),
		TermMonths:          b.promptInt("  Remaining amortization (months)", def.TermMonths, 1, 1200),
		PrepaymentPrivilege: b.promptPercent("  Annual prepayment privilege (0 = uncapped)", def.PrepaymentPrivilege),
	}
	d.OriginalPrincipal = d.Balance
	return d
}

// Build prompts for every section and returns the resulting configuration
func (b *InteractiveConfigBuilder) Build() *Config {
	def := b.defaults
	fmt.Fprintln(b.out)
	fmt.Fprintln(b.out, "╔══════════════════════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(b.out, "║              SMITH MANOEUVRE CONFIGURATION                                   ║")
	fmt.Fprintln(b.out, "╚══════════════════════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(b.out, "Press Enter to accept the value in brackets.")

	config := &Config{
		Storage: def.Storage,
		Cache:   def.Cache,
		Logging: def.Logging,
		Server:  def.Server,
	}

	fmt.Fprintf(b.out, "\nHousehold\n─────────\n")
	config.Household.ID = def.Household.ID
	config.Household.Income = b.promptMoney("  Annual household income", def.Household.Income)
	config.Jurisdiction.Code = strings.ToUpper(b.promptString("  Jurisdiction code", def.Jurisdiction.Code))
	config.Jurisdiction.Province = strings.ToUpper(b.promptString("  Province (blank for federal only)", def.Jurisdiction.Province))

	config.Accounts.PrimaryMortgage = b.promptMortgage("Primary mortgage", def.Accounts.PrimaryMortgage)
	config.Accounts.RentalMortgage = b.promptMortgage("Rental property mortgage", def.Accounts.RentalMortgage)

	fmt.Fprintf(b.out, "\nRental property\n───────────────\n")
	config.Rental.MonthlyIncome = b.promptMoney("  Monthly rental income", def.Rental.MonthlyIncome)
	config.Rental.MonthlyExpenses = b.promptMoney("  Monthly rental expenses", def.Rental.MonthlyExpenses)

	config.Strategy = StrategySettings{
		Name:          def.Strategy.Name,
		Kind:          StrategyBaseline,
		AutoStopRules: def.Strategy.AutoStopRules,
	}
	fmt.Fprintf(b.out, "\nHELOC\n─────\n")
	if b.promptYesNo("  Simulate the modified Smith manoeuvre with a HELOC?", true) {
		defHELOC := def.Accounts.HELOC
		if defHELOC == nil {
			defHELOC = &DebtInstrument{}
		}
		config.Accounts.HELOC = &DebtInstrument{
			Name:         defHELOC.Name,
			RateType:     RateVariable,
			Balance:      b.promptMoney("  Current HELOC balance", defHELOC.Balance),
			InterestRate: b.promptPercent("  HELOC interest rate", defHELOC.InterestRate),
			CreditLimit:  b.promptMoney("  Credit limit", defHELOC.CreditLimit),
		}
		config.Strategy.Kind = StrategyModifiedSmith
		config.Strategy.Readvanceable = b.promptYesNo("  Is the HELOC readvanceable?", def.Strategy.Readvanceable)
		if config.Strategy.Readvanceable {
			config.Strategy.HELOCLimitCap = b.promptMoney("  Maximum readvanced limit (0 = uncapped)", def.Strategy.HELOCLimitCap)
		}
	}

	fmt.Fprintf(b.out, "\nSimulation\n──────────\n")
	config.Strategy.SimulationMonths = b.promptInt("  Months to simulate", def.Strategy.GetSimulationMonths(), 1, MaxSimulationMonths)
	config.Strategy.StartDate = b.promptString("  Start month, YYYY-MM (blank for current month)", def.Strategy.StartDate)
	return config
}
