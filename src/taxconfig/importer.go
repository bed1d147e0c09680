package taxconfig

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/taxcore/src/logger"
	"github.com/username/taxcore/src/models"
	"github.com/username/taxcore/src/processors"
	"github.com/username/taxcore/src/repository"
	"github.com/username/taxcore/src/utils"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid tax configuration")

var defaultCapitalLossLimit = decimal.NewFromInt(3000)

// amount decodes a YAML scalar straight into a decimal so table values are
// never routed through float64.
type amount struct {
	decimal.Decimal
}

func (a *amount) UnmarshalYAML(n *yaml.Node) error {
	v, err := decimal.NewFromString(strings.TrimSpace(n.Value))
	if err != nil {
		return fmt.Errorf("line %d: invalid amount %q", n.Line, n.Value)
	}
	a.Decimal = v
	return nil
}

type configFile struct {
	TaxYears []yearDoc `yaml:"tax_years"`
}

type yearDoc struct {
	Year             int                        `yaml:"year"`
	Active           bool                       `yaml:"active"`
	FederalDeadline  string                     `yaml:"federal_deadline"`
	CapitalLossLimit *amount                    `yaml:"capital_loss_limit"`
	StateDeadlines   map[string]string          `yaml:"state_deadlines"`
	Jurisdictions    map[string]jurisdictionDoc `yaml:"jurisdictions"`
}

type jurisdictionDoc struct {
	Brackets           map[string][]bracketDoc `yaml:"brackets"`
	StandardDeductions map[string]deductionDoc `yaml:"standard_deductions"`
}

type bracketDoc struct {
	Min  amount  `yaml:"min"`
	Max  *amount `yaml:"max"`
	Rate amount  `yaml:"rate"`
}

type deductionDoc struct {
	Amount   amount `yaml:"amount"`
	Blind    amount `yaml:"blind"`
	Disabled amount `yaml:"disabled"`
}

// ImportSummary reports what an Import wrote.
type ImportSummary struct {
	Years      []int `json:"years"`
	Brackets   int   `json:"brackets"`
	Deductions int   `json:"deductions"`
}

// Import parses a YAML document of tax years, validates every bracket table
// and replaces the stored tables for each year it names. At most one year
// may be marked active. The cache is flushed afterwards.
func (s *Store) Import(ctx context.Context, r io.Reader) (ImportSummary, error) {
	var summary ImportSummary
	configs, err := Parse(r)
	if err != nil {
		return summary, err
	}

	for i := range configs {
		if err := s.repo.ReplaceTaxYear(ctx, &configs[i]); err != nil {
			return summary, fmt.Errorf("failed to store tax year %d: %w", configs[i].Year.Year, err)
		}
		summary.Years = append(summary.Years, configs[i].Year.Year)
		summary.Brackets += len(configs[i].Brackets)
		summary.Deductions += len(configs[i].Deductions)
	}
	s.Flush()
	logger.L.Info("Tax configuration imported", "years", summary.Years, "brackets", summary.Brackets, "deductions", summary.Deductions)
	return summary, nil
}

// Parse decodes and validates a configuration document without storing it.
func Parse(r io.Reader) ([]repository.TaxYearConfig, error) {
	var doc configFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if len(doc.TaxYears) == 0 {
		return nil, fmt.Errorf("%w: no tax_years defined", ErrInvalidConfig)
	}

	seen := make(map[int]bool)
	active := 0
	configs := make([]repository.TaxYearConfig, 0, len(doc.TaxYears))
	for _, y := range doc.TaxYears {
		if seen[y.Year] {
			return nil, fmt.Errorf("%w: tax year %d defined twice", ErrInvalidConfig, y.Year)
		}
		seen[y.Year] = true
		if y.Active {
			active++
		}
		cfg, err := buildYear(y)
		if err != nil {
			return nil, fmt.Errorf("%w: tax year %d: %v", ErrInvalidConfig, y.Year, err)
		}
		configs = append(configs, cfg)
	}
	if active > 1 {
		return nil, fmt.Errorf("%w: %d tax years marked active, at most one allowed", ErrInvalidConfig, active)
	}
	return configs, nil
}

func buildYear(y yearDoc) (repository.TaxYearConfig, error) {
	cfg := repository.TaxYearConfig{
		Year: models.TaxYear{
			Year:             y.Year,
			IsActive:         y.Active,
			StateDeadlines:   make(map[models.Jurisdiction]time.Time),
			CapitalLossLimit: defaultCapitalLossLimit,
		},
	}
	if y.Year < 1900 || y.Year > 2200 {
		return cfg, fmt.Errorf("year out of range")
	}
	if y.CapitalLossLimit != nil {
		if y.CapitalLossLimit.IsNegative() {
			return cfg, fmt.Errorf("capital_loss_limit must not be negative")
		}
		cfg.Year.CapitalLossLimit = y.CapitalLossLimit.Decimal
	}
	if y.FederalDeadline != "" {
		d, err := time.Parse(utils.DefaultDateFormat, y.FederalDeadline)
		if err != nil {
			return cfg, fmt.Errorf("federal_deadline: %v", err)
		}
		cfg.Year.FederalDeadline = d
	}
	for state, raw := range y.StateDeadlines {
		j, err := parseJurisdiction(state)
		if err != nil {
			return cfg, err
		}
		d, err := time.Parse(utils.DefaultDateFormat, raw)
		if err != nil {
			return cfg, fmt.Errorf("%s deadline: %v", state, err)
		}
		cfg.Year.StateDeadlines[j] = d
	}

	for _, name := range sortedKeys(y.Jurisdictions) {
		j, err := parseJurisdiction(name)
		if err != nil {
			return cfg, err
		}
		jd := y.Jurisdictions[name]
		for _, fsName := range sortedKeys(jd.Brackets) {
			fs, err := models.ParseFilingStatus(fsName)
			if err != nil {
				return cfg, fmt.Errorf("%s brackets: %v", j, err)
			}
			table := make([]models.TaxBracket, 0, len(jd.Brackets[fsName]))
			for _, b := range jd.Brackets[fsName] {
				tb := models.TaxBracket{Jurisdiction: j, FilingStatus: fs, MinIncome: b.Min.Decimal, Rate: b.Rate.Decimal}
				if b.Max != nil {
					tb.MaxIncome = decimal.NewNullDecimal(b.Max.Decimal)
				}
				table = append(table, tb)
			}
			if err := processors.ValidateBrackets(table); err != nil {
				return cfg, fmt.Errorf("%s/%s brackets: %v", j, fs, err)
			}
			cfg.Brackets = append(cfg.Brackets, table...)
		}
		for _, fsName := range sortedKeys(jd.StandardDeductions) {
			fs, err := models.ParseFilingStatus(fsName)
			if err != nil {
				return cfg, fmt.Errorf("%s standard deduction: %v", j, err)
			}
			d := jd.StandardDeductions[fsName]
			if d.Amount.IsNegative() || d.Blind.IsNegative() || d.Disabled.IsNegative() {
				return cfg, fmt.Errorf("%s/%s standard deduction must not be negative", j, fs)
			}
			cfg.Deductions = append(cfg.Deductions, models.StandardDeduction{
				Jurisdiction:             j,
				FilingStatus:             fs,
				Amount:                   d.Amount.Decimal,
				AdditionalBlindAmount:    d.Blind.Decimal,
				AdditionalDisabledAmount: d.Disabled.Decimal,
			})
		}
	}
	return cfg, nil
}

func parseJurisdiction(s string) (models.Jurisdiction, error) {
	j := models.NormalizeJurisdiction(s)
	if j.IsFederal() || utils.IsValidStateCode(string(j)) {
		return j, nil
	}
	return "", fmt.Errorf("unknown jurisdiction %q", s)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
