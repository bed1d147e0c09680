package models

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	zipRe     = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	ssnLastRe = regexp.MustCompile(`^\d{4}$`)
	routingRe = regexp.MustCompile(`^\d{9}$`)
	accountRe = regexp.MustCompile(`^\d{4,17}$`)
	stateRe   = regexp.MustCompile(`^[A-Z]{2}$`)
)

// ErrInvalidProfile is returned when a profile fails validation at the repository boundary.
var ErrInvalidProfile = errors.New("invalid taxpayer profile")

type Address struct {
	Line1 string `json:"line1"`
	Line2 string `json:"line2,omitempty"`
	City  string `json:"city"`
	State string `json:"state"`
	Zip   string `json:"zip"`
}

func (a Address) IsZero() bool { return a == Address{} }

func (a Address) Validate() error {
	if a.IsZero() {
		return nil
	}
	if strings.TrimSpace(a.Line1) == "" || strings.TrimSpace(a.City) == "" {
		return fmt.Errorf("address requires line1 and city")
	}
	if !stateRe.MatchString(a.State) {
		return fmt.Errorf("address state %q must be a two-letter code", a.State)
	}
	if !zipRe.MatchString(a.Zip) {
		return fmt.Errorf("address zip %q is not a valid ZIP code", a.Zip)
	}
	return nil
}

type Dependent struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	BirthDate    string `json:"birth_date,omitempty"` // YYYY-MM-DD
	SSNLast4     string `json:"ssn_last4,omitempty"`
}

func (d Dependent) Validate() error {
	if strings.TrimSpace(d.Name) == "" || strings.TrimSpace(d.Relationship) == "" {
		return fmt.Errorf("dependent requires name and relationship")
	}
	if d.BirthDate != "" {
		if _, err := time.Parse("2006-01-02", d.BirthDate); err != nil {
			return fmt.Errorf("dependent %s: birth date %q must be YYYY-MM-DD", d.Name, d.BirthDate)
		}
	}
	if d.SSNLast4 != "" && !ssnLastRe.MatchString(d.SSNLast4) {
		return fmt.Errorf("dependent %s: ssn_last4 must be four digits", d.Name)
	}
	return nil
}

type AccountType string

const (
	AccountChecking AccountType = "checking"
	AccountSavings  AccountType = "savings"
)

// BankInfo is where a refund is deposited.
type BankInfo struct {
	RoutingNumber string      `json:"routing_number"`
	AccountNumber string      `json:"account_number"`
	AccountType   AccountType `json:"account_type"`
}

func (b BankInfo) IsZero() bool { return b == BankInfo{} }

func (b BankInfo) Validate() error {
	if b.IsZero() {
		return nil
	}
	if !routingRe.MatchString(b.RoutingNumber) || !abaChecksum(b.RoutingNumber) {
		return fmt.Errorf("routing number is not a valid ABA number")
	}
	if !accountRe.MatchString(b.AccountNumber) {
		return fmt.Errorf("account number must be 4 to 17 digits")
	}
	if b.AccountType != AccountChecking && b.AccountType != AccountSavings {
		return fmt.Errorf("account type %q must be checking or savings", b.AccountType)
	}
	return nil
}

func abaChecksum(r string) bool {
	weights := [9]int{3, 7, 1, 3, 7, 1, 3, 7, 1}
	sum := 0
	for i, c := range r {
		sum += int(c-'0') * weights[i]
	}
	return sum%10 == 0
}

// TaxpayerProfile is the user-entered part of a return.
type TaxpayerProfile struct {
	FirstName        string      `json:"first_name"`
	LastName         string      `json:"last_name"`
	ContactEmail     string      `json:"contact_email,omitempty"`
	Address          Address     `json:"address"`
	Dependents       []Dependent `json:"dependents,omitempty"`
	BankInfo         BankInfo    `json:"bank_info"`
	TaxpayerBlind    bool        `json:"taxpayer_blind"`
	TaxpayerDisabled bool        `json:"taxpayer_disabled"`
	SpouseBlind      bool        `json:"spouse_blind"`
	SpouseDisabled   bool        `json:"spouse_disabled"`
}

func (p TaxpayerProfile) Validate() error {
	if p.ContactEmail != "" {
		if _, err := mail.ParseAddress(p.ContactEmail); err != nil {
			return fmt.Errorf("%w: contact email: %v", ErrInvalidProfile, err)
		}
	}
	if err := p.Address.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	for _, d := range p.Dependents {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
		}
	}
	if err := p.BankInfo.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	return nil
}

// ResidenceState is the jurisdiction of the mailing address, if any.
func (p TaxpayerProfile) ResidenceState() Jurisdiction {
	return NormalizeJurisdiction(p.Address.State)
}

type ReturnStatus string

const (
	ReturnDraft      ReturnStatus = "draft"
	ReturnCalculated ReturnStatus = "calculated"
)

// TaxReturn holds the summary fields owned by the return calculation.
type TaxReturn struct {
	ID                  string          `json:"id"`
	UserID              string          `json:"user_id"`
	TaxYear             int             `json:"tax_year"`
	FilingStatus        FilingStatus    `json:"filing_status"`
	Profile             TaxpayerProfile `json:"profile"`
	Status              ReturnStatus    `json:"status"`
	TotalIncome         decimal.Decimal `json:"total_income"`
	Adjustments         decimal.Decimal `json:"adjustments"`
	AdjustedGrossIncome decimal.Decimal `json:"adjusted_gross_income"`
	Deduction           decimal.Decimal `json:"deduction"`
	TaxableIncome       decimal.Decimal `json:"taxable_income"`
	TotalTax            decimal.Decimal `json:"total_tax"`
	TotalWithheld       decimal.Decimal `json:"total_withheld"`
	RefundOrOwed        decimal.Decimal `json:"refund_or_owed"`
	CalculatedAt        *time.Time      `json:"calculated_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Form1040 is the line-level snapshot of the last calculation. One per return.
type Form1040 struct {
	TaxReturnID         string          `json:"tax_return_id"`
	TaxYear             int             `json:"tax_year"`
	FilingStatus        FilingStatus    `json:"filing_status"`
	Wages               decimal.Decimal `json:"line_1a_wages"`
	TaxExemptInterest   decimal.Decimal `json:"line_2a_tax_exempt_interest"`
	TaxableInterest     decimal.Decimal `json:"line_2b_taxable_interest"`
	QualifiedDividends  decimal.Decimal `json:"line_3a_qualified_dividends"`
	OrdinaryDividends   decimal.Decimal `json:"line_3b_ordinary_dividends"`
	CapitalGainLoss     decimal.Decimal `json:"line_7_capital_gain_loss"`
	OtherIncome         decimal.Decimal `json:"line_8_other_income"`
	TotalIncome         decimal.Decimal `json:"line_9_total_income"`
	Adjustments         decimal.Decimal `json:"line_10_adjustments"`
	AGI                 decimal.Decimal `json:"line_11_agi"`
	StandardDeduction   decimal.Decimal `json:"line_12_standard_deduction"`
	TotalDeductions     decimal.Decimal `json:"line_14_total_deductions"`
	TaxableIncome       decimal.Decimal `json:"line_15_taxable_income"`
	Tax                 decimal.Decimal `json:"line_16_tax"`
	TotalTax            decimal.Decimal `json:"line_24_total_tax"`
	W2Withholding       decimal.Decimal `json:"line_25a_w2_withholding"`
	Form1099Withholding decimal.Decimal `json:"line_25b_1099_withholding"`
	TotalWithholding    decimal.Decimal `json:"line_25d_total_withholding"`
	TotalPayments       decimal.Decimal `json:"line_33_total_payments"`
	Refund              decimal.Decimal `json:"line_34_refund"`
	AmountOwed          decimal.Decimal `json:"line_37_amount_owed"`
	MarginalRate        decimal.Decimal `json:"marginal_rate"`
	CalculatedAt        time.Time       `json:"calculated_at"`
}

// StateTaxReturn is the per-jurisdiction counterpart of the federal summary.
type StateTaxReturn struct {
	TaxReturnID   string          `json:"tax_return_id"`
	State         Jurisdiction    `json:"state"`
	Income        decimal.Decimal `json:"income"`
	Deduction     decimal.Decimal `json:"deduction"`
	TaxableIncome decimal.Decimal `json:"taxable_income"`
	Tax           decimal.Decimal `json:"tax"`
	Withheld      decimal.Decimal `json:"withheld"`
	RefundOrOwed  decimal.Decimal `json:"refund_or_owed"`
	CalculatedAt  time.Time       `json:"calculated_at"`
}

// ReviewItem is an actionable needs-review state surfaced with a calculation.
type ReviewItem struct {
	Kind       string `json:"kind"`
	DocumentID string `json:"document_id,omitempty"`
	RowID      string `json:"row_id,omitempty"`
	Message    string `json:"message"`
}

const (
	ReviewLowConfidence    = "low_confidence"
	ReviewExtractionFailed = "extraction_failed"
	ReviewUnclassified     = "unclassified_document"
	ReviewForm8949Row      = "form_8949_row"
	ReviewQuickPathDiff    = "capital_gains_cross_check"
)

// CalculationSnapshot is written as one unit so readers never see a half-updated return.
type CalculationSnapshot struct {
	TaxReturn    TaxReturn        `json:"tax_return"`
	Form1040     Form1040         `json:"form_1040"`
	ScheduleD    ScheduleD        `json:"schedule_d"`
	Form8949     []Form8949       `json:"form_8949"`
	StateReturns []StateTaxReturn `json:"state_returns"`
}
