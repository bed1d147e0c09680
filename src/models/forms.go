package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// W2Fields carries the boxes read from a Form W-2.
type W2Fields struct {
	EmployerName           string          `json:"employer_name"`
	EmployerEIN            string          `json:"employer_ein"`
	EmployeeName           string          `json:"employee_name"`
	Wages                  decimal.Decimal `json:"wages"`                    // box 1
	FederalWithheld        decimal.Decimal `json:"federal_withheld"`         // box 2
	SocialSecurityWages    decimal.Decimal `json:"social_security_wages"`    // box 3
	SocialSecurityWithheld decimal.Decimal `json:"social_security_withheld"` // box 4
	MedicareWages          decimal.Decimal `json:"medicare_wages"`           // box 5
	MedicareWithheld       decimal.Decimal `json:"medicare_withheld"`        // box 6
	StateCode              string          `json:"state_code"`               // box 15
	StateWages             decimal.Decimal `json:"state_wages"`              // box 16
	StateWithheld          decimal.Decimal `json:"state_withheld"`           // box 17
}

type Form1099DivFields struct {
	PayerName                string          `json:"payer_name"`
	PayerTIN                 string          `json:"payer_tin"`
	OrdinaryDividends        decimal.Decimal `json:"ordinary_dividends"`         // 1a
	QualifiedDividends       decimal.Decimal `json:"qualified_dividends"`        // 1b
	CapitalGainDistributions decimal.Decimal `json:"capital_gain_distributions"` // 2a
	FederalWithheld          decimal.Decimal `json:"federal_withheld"`           // 4
	ForeignTaxPaid           decimal.Decimal `json:"foreign_tax_paid"`           // 7
}

type Form1099IntFields struct {
	PayerName              string          `json:"payer_name"`
	PayerTIN               string          `json:"payer_tin"`
	InterestIncome         decimal.Decimal `json:"interest_income"`          // 1
	EarlyWithdrawalPenalty decimal.Decimal `json:"early_withdrawal_penalty"` // 2
	TreasuryInterest       decimal.Decimal `json:"treasury_interest"`        // 3
	FederalWithheld        decimal.Decimal `json:"federal_withheld"`         // 4
	TaxExemptInterest      decimal.Decimal `json:"tax_exempt_interest"`      // 8
}

type Form1099BFields struct {
	PayerName         string                 `json:"payer_name"`
	PayerTIN          string                 `json:"payer_tin"`
	FederalWithheld   decimal.Decimal        `json:"federal_withheld"`
	ShortTermSubtotal decimal.NullDecimal    `json:"short_term_subtotal"`
	LongTermSubtotal  decimal.NullDecimal    `json:"long_term_subtotal"`
	Entries           []Form1099BEntryFields `json:"entries"`
}

// Form1099BEntryFields is one lot as read from the broker statement.
// Proceeds and CostBasis stay null when the statement leaves them blank.
type Form1099BEntryFields struct {
	Description    string              `json:"description"`
	DateAcquired   string              `json:"date_acquired"`
	DateSold       string              `json:"date_sold"`
	Proceeds       decimal.NullDecimal `json:"proceeds"`
	CostBasis      decimal.NullDecimal `json:"cost_basis"`
	GainLoss       decimal.Decimal     `json:"gain_loss"`
	IsShortTerm    bool                `json:"is_short_term"`
	WashSale       bool                `json:"wash_sale"`
	WashSaleAmount decimal.Decimal     `json:"wash_sale_amount"`
	ReportedToIRS  bool                `json:"reported_to_irs"`
}

type W2Data struct {
	W2Fields

	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	TaxReturnID string    `json:"tax_return_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type Form1099Div struct {
	Form1099DivFields

	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	TaxReturnID string    `json:"tax_return_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type Form1099Int struct {
	Form1099IntFields

	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	TaxReturnID string    `json:"tax_return_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type Form1099B struct {
	ID                string              `json:"id"`
	DocumentID        string              `json:"document_id"`
	TaxReturnID       string              `json:"tax_return_id"`
	PayerName         string              `json:"payer_name"`
	PayerTIN          string              `json:"payer_tin"`
	FederalWithheld   decimal.Decimal     `json:"federal_withheld"`
	ShortTermSubtotal decimal.NullDecimal `json:"short_term_subtotal"`
	LongTermSubtotal  decimal.NullDecimal `json:"long_term_subtotal"`
	Entries           []Form1099BEntry    `json:"entries"`
	CreatedAt         time.Time           `json:"created_at"`
}

type Form1099BEntry struct {
	Form1099BEntryFields

	ID          string `json:"id"`
	Form1099BID string `json:"form_1099b_id"`
}

// IncomeRecords is every per-form record attached to one return.
type IncomeRecords struct {
	W2s  []W2Data      `json:"w2s"`
	Divs []Form1099Div `json:"divs"`
	Ints []Form1099Int `json:"ints"`
	Bs   []Form1099B   `json:"bs"`
}

// AllEntries flattens the 1099-B lots of every broker form.
func (r IncomeRecords) AllEntries() []Form1099BEntry {
	var out []Form1099BEntry
	for _, b := range r.Bs {
		out = append(out, b.Entries...)
	}
	return out
}
