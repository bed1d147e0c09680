package models

import "github.com/shopspring/decimal"

const (
	AdjustmentCodeWashSale = "W"
	AdjustmentCodeBasis    = "B"
)

const (
	Form8949SourceBroker = "1099b"
	Form8949SourceManual = "manual"
)

// ManualAdjustment corrects a 1099-B lot (EntryID set) or adds a disposition
// the broker never reported (EntryID empty).
type ManualAdjustment struct {
	ID               string              `json:"id"`
	TaxReturnID      string              `json:"tax_return_id"`
	EntryID          string              `json:"entry_id,omitempty"`
	Description      string              `json:"description"`
	DateAcquired     string              `json:"date_acquired"`
	DateSold         string              `json:"date_sold"`
	Proceeds         decimal.NullDecimal `json:"proceeds"`
	CostBasis        decimal.NullDecimal `json:"cost_basis"`
	AdjustmentCode   string              `json:"adjustment_code"`
	AdjustmentAmount decimal.Decimal     `json:"adjustment_amount"`
	IsShortTerm      bool                `json:"is_short_term"`
}

// Form8949 is one reportable disposition.
type Form8949 struct {
	ID               string          `json:"id"`
	TaxReturnID      string          `json:"tax_return_id"`
	EntryID          string          `json:"entry_id,omitempty"`
	Source           string          `json:"source"`
	Box              string          `json:"box"`
	Description      string          `json:"description"`
	DateAcquired     string          `json:"date_acquired"`
	DateSold         string          `json:"date_sold"`
	Proceeds         decimal.Decimal `json:"proceeds"`
	CostBasis        decimal.Decimal `json:"cost_basis"`
	AdjustmentCode   string          `json:"adjustment_code,omitempty"`
	AdjustmentAmount decimal.Decimal `json:"adjustment_amount"`
	GainOrLoss       decimal.Decimal `json:"gain_or_loss"`
	IsShortTerm      bool            `json:"is_short_term"`
	NeedsReview      bool            `json:"needs_review"`
	ReviewReason     string          `json:"review_reason,omitempty"`

	// ExcludedFromTotals marks rows with neither proceeds nor basis.
	ExcludedFromTotals bool `json:"excluded_from_totals"`
}

// ScheduleD is derived from Form8949 rows and never edited directly.
type ScheduleD struct {
	TaxReturnID          string          `json:"tax_return_id"`
	ShortTermProceeds    decimal.Decimal `json:"short_term_proceeds"`
	ShortTermCostBasis   decimal.Decimal `json:"short_term_cost_basis"`
	ShortTermAdjustments decimal.Decimal `json:"short_term_adjustments"`
	NetShortTermGainLoss decimal.Decimal `json:"net_short_term_gain_loss"`
	LongTermProceeds     decimal.Decimal `json:"long_term_proceeds"`
	LongTermCostBasis    decimal.Decimal `json:"long_term_cost_basis"`
	LongTermAdjustments  decimal.Decimal `json:"long_term_adjustments"`
	NetLongTermGainLoss  decimal.Decimal `json:"net_long_term_gain_loss"`
	NetCapitalGainLoss   decimal.Decimal `json:"net_capital_gain_loss"`
}
