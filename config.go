package main

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed default-config.yaml
var defaultConfigYAML string

// HouseholdConfig identifies the household and its taxable income
type HouseholdConfig struct {
	ID     string          `yaml:"id" json:"id"`
	Income decimal.Decimal `yaml:"income" json:"income"` // Annual household income used for the marginal rate
}

// JurisdictionConfig selects the tax tables
type JurisdictionConfig struct {
	Code     string `yaml:"code" json:"code"`         // e.g. CA
	Province string `yaml:"province" json:"province"` // e.g. ON; empty for federal only
}

// AccountsConfig is the snapshot of the three debt instruments
type AccountsConfig struct {
	PrimaryMortgage *DebtInstrument `yaml:"primary_mortgage,omitempty" json:"primary_mortgage,omitempty"`
	HELOC           *DebtInstrument `yaml:"heloc,omitempty" json:"heloc,omitempty"`
	RentalMortgage  *DebtInstrument `yaml:"rental_mortgage,omitempty" json:"rental_mortgage,omitempty"`
}

// RentalConfig holds the rental property's monthly cash flows
type RentalConfig struct {
	MonthlyIncome   decimal.Decimal `yaml:"monthly_income" json:"monthly_income"`
	MonthlyExpenses decimal.Decimal `yaml:"monthly_expenses" json:"monthly_expenses"`
}

// StrategySettings holds the optimisation parameters
type StrategySettings struct {
	Name             string          `yaml:"name" json:"name"`
	Kind             StrategyKind    `yaml:"kind" json:"kind"`
	StartDate        string          `yaml:"start_date,omitempty" json:"start_date,omitempty"` // YYYY-MM; defaults to the current month
	SimulationMonths int             `yaml:"simulation_months" json:"simulation_months"`
	HELOCRate        decimal.Decimal `yaml:"heloc_rate,omitempty" json:"heloc_rate"`           // Overrides the HELOC account rate
	HELOCLimitCap    decimal.Decimal `yaml:"heloc_limit_cap,omitempty" json:"heloc_limit_cap"` // 0 = uncapped
	Readvanceable    bool            `yaml:"readvanceable" json:"readvanceable"`
	AutoStopRules    []AutoStopRule  `yaml:"auto_stop_rules,omitempty" json:"auto_stop_rules,omitempty"`
}

// GetSimulationMonths returns the horizon, using default if not set
func (s *StrategySettings) GetSimulationMonths() int {
	if s.SimulationMonths <= 0 {
		return 300 // 25 years
	}
	return s.SimulationMonths
}

// GetStartDate returns the first simulated month, defaulting to the month containing now
func (s *StrategySettings) GetStartDate(now time.Time) (time.Time, error) {
	if s.StartDate == "" {
		return firstOfMonth(now), nil
	}
	return parseMonth(s.StartDate)
}

// StorageConfig selects where strategies and ledgers are kept
type StorageConfig struct {
	Driver string `yaml:"driver" json:"driver"` // memory or sqlite
	Path   string `yaml:"path" json:"path"`     // SQLite database file
}

// GetDriver returns the storage driver, using default if not set
func (s *StorageConfig) GetDriver() string {
	if s.Driver == "" {
		return "memory"
	}
	return strings.ToLower(s.Driver)
}

// GetPath returns the SQLite path, using default if not set
func (s *StorageConfig) GetPath() string {
	if s.Path == "" {
		return "smith.db"
	}
	return s.Path
}

// CacheConfig configures the summary cache
type CacheConfig struct {
	RedisAddr  string `yaml:"redis_addr" json:"redis_addr"` // Empty for the in-process cache
	TTLMinutes int    `yaml:"ttl_minutes" json:"ttl_minutes"`
}

// GetTTL returns the cache lifetime, using default if not set
func (c *CacheConfig) GetTTL() time.Duration {
	if c.TTLMinutes <= 0 {
		return DefaultSummaryTTL
	}
	return time.Duration(c.TTLMinutes) * time.Minute
}

// LoggingConfig configures the structured logger
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"` // trace, debug, info, warn, error
}

// GetLevel returns the log level, using default if not set
func (l *LoggingConfig) GetLevel() string {
	if l.Level == "" {
		return "info"
	}
	return l.Level
}

// ServerConfig configures the JSON API
type ServerConfig struct {
	Addr              string `yaml:"addr" json:"addr"`
	RequestsPerMinute int    `yaml:"requests_per_minute" json:"requests_per_minute"`
	Burst             int    `yaml:"burst" json:"burst"`
}

// GetAddr returns the listen address, using default if not set
func (s *ServerConfig) GetAddr() string {
	if s.Addr == "" {
		return "localhost:8080"
	}
	return s.Addr
}

// GetRequestsPerMinute returns the rate limit, using default if not set
func (s *ServerConfig) GetRequestsPerMinute() int {
	if s.RequestsPerMinute <= 0 {
		return 120
	}
	return s.RequestsPerMinute
}

// GetBurst returns the rate limiter burst, using default if not set
func (s *ServerConfig) GetBurst() int {
	if s.Burst <= 0 {
		return 20
	}
	return s.Burst
}

// Config holds the complete configuration
type Config struct {
	Household         HouseholdConfig    `yaml:"household" json:"household"`
	Jurisdiction      JurisdictionConfig `yaml:"jurisdiction" json:"jurisdiction"`
	Accounts          AccountsConfig     `yaml:"accounts" json:"accounts"`
	Rental            RentalConfig       `yaml:"rental" json:"rental"`
	Strategy          StrategySettings   `yaml:"strategy" json:"strategy"`
	Storage           StorageConfig      `yaml:"storage" json:"storage"`
	Cache             CacheConfig        `yaml:"cache" json:"cache"`
	Logging           LoggingConfig      `yaml:"logging" json:"logging"`
	Server            ServerConfig       `yaml:"server" json:"server"`
	Sensitivity       SensitivityConfig  `yaml:"sensitivity,omitempty" json:"sensitivity"`
	JurisdictionFiles []string           `yaml:"jurisdiction_files,omitempty" json:"jurisdiction_files,omitempty"`
}

// ToStrategy converts the configuration into a strategy ready to be created
func (c *Config) ToStrategy() *StrategyConfig {
	s := &StrategyConfig{
		HouseholdID:           c.Household.ID,
		Name:                  c.Strategy.Name,
		Jurisdiction:          strings.ToUpper(c.Jurisdiction.Code),
		Province:              strings.ToUpper(c.Jurisdiction.Province),
		HouseholdIncome:       c.Household.Income,
		PrimaryMortgage:       cloneInstrument(c.Accounts.PrimaryMortgage),
		HELOC:                 cloneInstrument(c.Accounts.HELOC),
		RentalMortgage:        cloneInstrument(c.Accounts.RentalMortgage),
		MonthlyRentalIncome:   c.Rental.MonthlyIncome,
		MonthlyRentalExpenses: c.Rental.MonthlyExpenses,
		HELOCRate:             c.Strategy.HELOCRate,
		HELOCLimitCap:         c.Strategy.HELOCLimitCap,
		Readvanceable:         c.Strategy.Readvanceable,
		SimulationMonths:      c.Strategy.GetSimulationMonths(),
		Kind:                  c.Strategy.Kind,
		AutoStopRules:         append([]AutoStopRule(nil), c.Strategy.AutoStopRules...),
	}
	if s.PrimaryMortgage != nil {
		s.PrimaryMortgage.Kind = InstrumentPrimaryMortgage
	}
	if s.HELOC != nil {
		s.HELOC.Kind = InstrumentHELOC
	}
	if s.RentalMortgage != nil {
		s.RentalMortgage.Kind = InstrumentRentalMortgage
	}
	return s
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return parseConfig(string(data))
}

// LoadDefaultConfig loads the default configuration from embedded default-config.yaml
func LoadDefaultConfig() (*Config, error) {
	return parseConfig(defaultConfigYAML)
}

func parseConfig(content string) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal([]byte(preprocessPercentages(content)), &config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &config, nil
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, filename string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return err
	}

	// Add a header comment with instructions
	header := []byte(`# Smith Manoeuvre Simulator Configuration
# Feel free to edit manually
#
# ═══════════════════════════════════════════════════════════════════════════════
# STRATEGY KINDS
# ═══════════════════════════════════════════════════════════════════════════════
#
# baseline:        compares scheduled payments with prepaying from rental surplus
# modified_smith:  also simulates funding rental expenses from the HELOC so that
#                  rental income prepays the primary mortgage (needs all three accounts)
#
# ═══════════════════════════════════════════════════════════════════════════════
# VALUE FORMATS
# ═══════════════════════════════════════════════════════════════════════════════
#   Rates: 0.05 or 5% (both mean five percent)
#   Rule thresholds: whole percents (80 = 80%), amounts, months, or a stop_date
#   Months: YYYY-MM (e.g., 2029-06)
#
# ═══════════════════════════════════════════════════════════════════════════════
# RUN COMMANDS
# ═══════════════════════════════════════════════════════════════════════════════
#   ./goSmithManoeuvre                      Compare scenarios (console)
#   ./goSmithManoeuvre -details             Also print the ledgers
#   ./goSmithManoeuvre -csv ledger.csv      Export the Smith ledger as CSV
#   ./goSmithManoeuvre -pdf audit.pdf       Export the interest deduction audit
#   ./goSmithManoeuvre -web                 Serve the JSON API
#   ./goSmithManoeuvre -help                Show all options

`)
	content := append(header, data...)
	return os.WriteFile(filename, content, 0644)
}

var (
	ratePercentPattern      = regexp.MustCompile(`(\w*(?:rate|privilege):\s*)(\d+\.?\d*)%`)
	thresholdPercentPattern = regexp.MustCompile(`(threshold:\s*)(\d+\.?\d*)%`)
)

// preprocessPercentages converts rate values like "5%" to decimal "0.05".
// Rule thresholds are whole percents already, so "80%" becomes "80".
func preprocessPercentages(content string) string {
	content = ratePercentPattern.ReplaceAllStringFunc(content, func(match string) string {
		parts := ratePercentPattern.FindStringSubmatch(match)
		if len(parts) >= 3 {
			num, err := decimal.NewFromString(parts[2])
			if err == nil {
				return parts[1] + num.Div(hundred).String()
			}
		}
		return match
	})
	return thresholdPercentPattern.ReplaceAllString(content, "${1}${2}")
}

// ApplyEnvOverrides loads a .env file if present and applies SMITH_* variables
func ApplyEnvOverrides(config *Config) {
	_ = godotenv.Load()

	if v := os.Getenv("SMITH_DB_PATH"); v != "" {
		config.Storage.Driver = "sqlite"
		config.Storage.Path = v
	}
	if v := os.Getenv("SMITH_REDIS_ADDR"); v != "" {
		config.Cache.RedisAddr = v
	}
	if v := os.Getenv("SMITH_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("SMITH_ADDR"); v != "" {
		config.Server.Addr = v
	}
	if v := os.Getenv("SMITH_REQUESTS_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Server.RequestsPerMinute = n
		}
	}
}
