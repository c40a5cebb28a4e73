package main

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/phuslu/log"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed jurisdictions.yaml
var jurisdictionsYAML []byte

// ErrUnknownJurisdiction is returned when a strategy names a jurisdiction with no bracket data
var ErrUnknownJurisdiction = errors.New("unknown jurisdiction")

// TaxBracket is one progressive bracket. Max of zero means unbounded.
type TaxBracket struct {
	Min  decimal.Decimal `yaml:"min" json:"min"`
	Max  decimal.Decimal `yaml:"max,omitempty" json:"max"`
	Rate decimal.Decimal `yaml:"rate" json:"rate"`
}

// Jurisdiction is static tax reference data for one country
type Jurisdiction struct {
	Code               string                  `yaml:"code" json:"code"`
	Name               string                  `yaml:"name" json:"name"`
	InterestDeductible bool                    `yaml:"interest_deductible" json:"interest_deductible"` // Investment loan interest reduces taxable income
	SupportsSmith      bool                    `yaml:"supports_smith" json:"supports_smith"`           // The Smith-style strategy is legally available
	DefaultProvince    string                  `yaml:"default_province,omitempty" json:"default_province,omitempty"`
	Federal            []TaxBracket            `yaml:"federal" json:"federal"`
	Provinces          map[string][]TaxBracket `yaml:"provinces,omitempty" json:"provinces,omitempty"`
}

type jurisdictionFile struct {
	Jurisdictions []Jurisdiction `yaml:"jurisdictions"`
}

// MarginalRate returns the rate of the last bracket whose Min the income exceeds.
// Brackets must be sorted by Min; an empty table yields zero.
func MarginalRate(brackets []TaxBracket, income decimal.Decimal) decimal.Decimal {
	rate := decimal.Zero
	for _, b := range brackets {
		if income.GreaterThan(b.Min) {
			rate = b.Rate
		}
	}
	return rate
}

// TaxOnIncome calculates the tax owed on income by walking the brackets
func TaxOnIncome(brackets []TaxBracket, income decimal.Decimal) decimal.Decimal {
	if !income.IsPositive() {
		return decimal.Zero
	}

	total := decimal.Zero
	for _, b := range brackets {
		if income.LessThanOrEqual(b.Min) {
			break
		}

		// Taxable amount in this bracket
		upper := income
		if b.Max.IsPositive() && b.Max.LessThan(income) {
			upper = b.Max
		}
		inBracket := upper.Sub(b.Min)
		if inBracket.IsPositive() {
			total = total.Add(inBracket.Mul(b.Rate))
		}
	}
	return total
}

// ProvinceBrackets returns the provincial table to apply for province, and the
// province actually used. An empty province means federal only. A province with
// no data falls back to DefaultProvince.
func (j *Jurisdiction) ProvinceBrackets(province string) ([]TaxBracket, string) {
	province = strings.ToUpper(strings.TrimSpace(province))
	if province == "" {
		return nil, ""
	}
	if brackets, ok := j.Provinces[province]; ok && len(brackets) > 0 {
		return brackets, province
	}
	if brackets, ok := j.Provinces[j.DefaultProvince]; ok && len(brackets) > 0 {
		return brackets, j.DefaultProvince
	}
	return nil, ""
}

// CombinedMarginalRate sums the federal and provincial marginal rates at income.
// The second return value is the province whose table was used.
func (j *Jurisdiction) CombinedMarginalRate(income decimal.Decimal, province string) (decimal.Decimal, string) {
	rate := MarginalRate(j.Federal, income)
	provincial, used := j.ProvinceBrackets(province)
	return rate.Add(MarginalRate(provincial, income)), used
}

// CombinedTax returns federal plus provincial tax on income
func (j *Jurisdiction) CombinedTax(income decimal.Decimal, province string) decimal.Decimal {
	provincial, _ := j.ProvinceBrackets(province)
	return TaxOnIncome(j.Federal, income).Add(TaxOnIncome(provincial, income))
}

func (j *Jurisdiction) validate() error {
	if j.Code == "" {
		return errors.New("jurisdiction without code")
	}
	if err := validateBrackets(j.Federal); err != nil {
		return fmt.Errorf("%s federal: %w", j.Code, err)
	}
	for p, brackets := range j.Provinces {
		if err := validateBrackets(brackets); err != nil {
			return fmt.Errorf("%s/%s: %w", j.Code, p, err)
		}
	}
	if j.DefaultProvince != "" {
		if _, ok := j.Provinces[j.DefaultProvince]; !ok {
			return fmt.Errorf("%s: default province %s has no brackets", j.Code, j.DefaultProvince)
		}
	}
	return nil
}

func validateBrackets(brackets []TaxBracket) error {
	for i, b := range brackets {
		if b.Rate.IsNegative() || b.Rate.GreaterThan(one) {
			return fmt.Errorf("bracket %d rate %s out of range", i, b.Rate)
		}
		if i > 0 && !b.Min.GreaterThan(brackets[i-1].Min) {
			return fmt.Errorf("bracket %d not sorted by min", i)
		}
	}
	return nil
}

// JurisdictionRegistry holds the tax tables available to strategies
type JurisdictionRegistry struct {
	byCode map[string]*Jurisdiction
	log    *log.Logger
}

// LoadJurisdictions parses the embedded tables plus any extra YAML files.
// Later files replace earlier jurisdictions with the same code.
func LoadJurisdictions(logger *log.Logger, extraFiles ...string) (*JurisdictionRegistry, error) {
	r := &JurisdictionRegistry{byCode: make(map[string]*Jurisdiction), log: logger}
	if err := r.add(jurisdictionsYAML); err != nil {
		return nil, fmt.Errorf("embedded jurisdictions: %w", err)
	}
	for _, path := range extraFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading jurisdictions %s: %w", path, err)
		}
		if err := r.add(data); err != nil {
			return nil, fmt.Errorf("jurisdictions %s: %w", path, err)
		}
	}
	return r, nil
}

func (r *JurisdictionRegistry) add(data []byte) error {
	var f jurisdictionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}
	for i := range f.Jurisdictions {
		j := f.Jurisdictions[i]
		j.Code = strings.ToUpper(j.Code)
		j.DefaultProvince = strings.ToUpper(j.DefaultProvince)
		if err := j.validate(); err != nil {
			return err
		}
		r.byCode[j.Code] = &j
	}
	return nil
}

// Lookup returns the jurisdiction for code
func (r *JurisdictionRegistry) Lookup(code string) (*Jurisdiction, error) {
	j, ok := r.byCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJurisdiction, code)
	}
	return j, nil
}

// Codes lists the loaded jurisdiction codes in sorted order
func (r *JurisdictionRegistry) Codes() []string {
	codes := make([]string, 0, len(r.byCode))
	for c := range r.byCode {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// MarginalRateFor resolves the combined marginal rate for a household. When the
// requested province has no brackets the substitution is logged and returned as a warning.
func (r *JurisdictionRegistry) MarginalRateFor(code, province string, income decimal.Decimal) (decimal.Decimal, string, error) {
	j, err := r.Lookup(code)
	if err != nil {
		return decimal.Zero, "", err
	}

	rate, used := j.CombinedMarginalRate(income, province)
	requested := strings.ToUpper(strings.TrimSpace(province))
	if requested == "" || requested == used {
		return rate, "", nil
	}

	warning := fmt.Sprintf("no tax brackets for province %s in %s, using %s", requested, j.Code, used)
	if used == "" {
		warning = fmt.Sprintf("no tax brackets for province %s in %s, using federal rates only", requested, j.Code)
	}
	if r.log != nil {
		r.log.Warn().Str("jurisdiction", j.Code).Str("province", requested).Str("fallback", used).Msg("province fallback")
	}
	return rate, warning, nil
}
