package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FilingStatus selects the bracket and deduction tables that apply to a return.
type FilingStatus string

const (
	FilingSingle            FilingStatus = "single"
	FilingMarriedJointly    FilingStatus = "married_filing_jointly"
	FilingMarriedSeparately FilingStatus = "married_filing_separately"
	FilingHeadOfHousehold   FilingStatus = "head_of_household"
	FilingQualifyingWidow   FilingStatus = "qualifying_widow"
)

var AllFilingStatuses = []FilingStatus{
	FilingSingle,
	FilingMarriedJointly,
	FilingMarriedSeparately,
	FilingHeadOfHousehold,
	FilingQualifyingWidow,
}

var filingStatusAliases = map[string]FilingStatus{
	"mfj":                         FilingMarriedJointly,
	"mfs":                         FilingMarriedSeparately,
	"hoh":                         FilingHeadOfHousehold,
	"qw":                          FilingQualifyingWidow,
	"qualifying_widower":          FilingQualifyingWidow,
	"qualifying_surviving_spouse": FilingQualifyingWidow,
}

// ParseFilingStatus accepts the canonical names and the usual short forms.
func ParseFilingStatus(s string) (FilingStatus, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if fs := FilingStatus(key); fs.Valid() {
		return fs, nil
	}
	if fs, ok := filingStatusAliases[key]; ok {
		return fs, nil
	}
	return "", fmt.Errorf("unknown filing status %q", s)
}

func (fs FilingStatus) Valid() bool {
	switch fs {
	case FilingSingle, FilingMarriedJointly, FilingMarriedSeparately, FilingHeadOfHousehold, FilingQualifyingWidow:
		return true
	}
	return false
}

// CoversSpouse reports whether spouse conditions add to the standard deduction.
func (fs FilingStatus) CoversSpouse() bool {
	return fs == FilingMarriedJointly || fs == FilingQualifyingWidow
}

// Jurisdiction is "US" for federal tables or a two-letter state code.
type Jurisdiction string

const Federal Jurisdiction = "US"

func (j Jurisdiction) IsFederal() bool { return j == Federal }

func NormalizeJurisdiction(s string) Jurisdiction {
	return Jurisdiction(strings.ToUpper(strings.TrimSpace(s)))
}

type TaxYear struct {
	ID               string                     `json:"id"`
	Year             int                        `json:"year"`
	IsActive         bool                       `json:"is_active"`
	FederalDeadline  time.Time                  `json:"federal_deadline"`
	StateDeadlines   map[Jurisdiction]time.Time `json:"state_deadlines"`
	CapitalLossLimit decimal.Decimal            `json:"capital_loss_limit"`
}

// TaxBracket is one row of a progressive table. MaxIncome is null for the top bracket.
type TaxBracket struct {
	ID           string              `json:"id"`
	TaxYearID    string              `json:"tax_year_id"`
	Jurisdiction Jurisdiction        `json:"jurisdiction"`
	FilingStatus FilingStatus        `json:"filing_status"`
	MinIncome    decimal.Decimal     `json:"min_income"`
	MaxIncome    decimal.NullDecimal `json:"max_income"`
	Rate         decimal.Decimal     `json:"rate"`
}

type StandardDeduction struct {
	ID                       string          `json:"id"`
	TaxYearID                string          `json:"tax_year_id"`
	Jurisdiction             Jurisdiction    `json:"jurisdiction"`
	FilingStatus             FilingStatus    `json:"filing_status"`
	Amount                   decimal.Decimal `json:"amount"`
	AdditionalBlindAmount    decimal.Decimal `json:"additional_blind_amount"`
	AdditionalDisabledAmount decimal.Decimal `json:"additional_disabled_amount"`
}
