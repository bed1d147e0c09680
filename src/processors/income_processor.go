package processors

import (
	"github.com/shopspring/decimal"
	"github.com/username/taxcore/src/models"
)

// IncomeSummary is the per-return roll-up of every income form.
type IncomeSummary struct {
	Wages                    decimal.Decimal
	W2Withheld               decimal.Decimal
	TaxableInterest          decimal.Decimal // 1099-INT box 1 + box 3
	TaxExemptInterest        decimal.Decimal
	EarlyWithdrawalPenalty   decimal.Decimal
	OrdinaryDividends        decimal.Decimal
	QualifiedDividends       decimal.Decimal
	CapitalGainDistributions decimal.Decimal
	ForeignTaxPaid           decimal.Decimal
	Form1099Withheld         decimal.Decimal
	StateWages               map[models.Jurisdiction]decimal.Decimal
	StateWithheld            map[models.Jurisdiction]decimal.Decimal
}

type incomeProcessorImpl struct{}

func NewIncomeProcessor() IncomeProcessor {
	return &incomeProcessorImpl{}
}

func (p *incomeProcessorImpl) Summarize(records models.IncomeRecords) IncomeSummary {
	s := IncomeSummary{
		StateWages:    make(map[models.Jurisdiction]decimal.Decimal),
		StateWithheld: make(map[models.Jurisdiction]decimal.Decimal),
	}

	for _, w := range records.W2s {
		s.Wages = s.Wages.Add(w.Wages)
		s.W2Withheld = s.W2Withheld.Add(w.FederalWithheld)
		if w.StateCode == "" {
			continue
		}
		state := models.NormalizeJurisdiction(w.StateCode)
		s.StateWages[state] = s.StateWages[state].Add(w.StateWages)
		s.StateWithheld[state] = s.StateWithheld[state].Add(w.StateWithheld)
	}

	for _, i := range records.Ints {
		s.TaxableInterest = s.TaxableInterest.Add(i.InterestIncome).Add(i.TreasuryInterest)
		s.TaxExemptInterest = s.TaxExemptInterest.Add(i.TaxExemptInterest)
		s.EarlyWithdrawalPenalty = s.EarlyWithdrawalPenalty.Add(i.EarlyWithdrawalPenalty)
		s.Form1099Withheld = s.Form1099Withheld.Add(i.FederalWithheld)
	}

	for _, d := range records.Divs {
		s.OrdinaryDividends = s.OrdinaryDividends.Add(d.OrdinaryDividends)
		s.QualifiedDividends = s.QualifiedDividends.Add(d.QualifiedDividends)
		s.CapitalGainDistributions = s.CapitalGainDistributions.Add(d.CapitalGainDistributions)
		s.ForeignTaxPaid = s.ForeignTaxPaid.Add(d.ForeignTaxPaid)
		s.Form1099Withheld = s.Form1099Withheld.Add(d.FederalWithheld)
	}

	for _, b := range records.Bs {
		s.Form1099Withheld = s.Form1099Withheld.Add(b.FederalWithheld)
	}
	return s
}

// TotalWithheld is W-2 box 2 plus box 4 of every 1099.
func (s IncomeSummary) TotalWithheld() decimal.Decimal {
	return s.W2Withheld.Add(s.Form1099Withheld)
}

// StateCodes lists every state that appears on a W-2.
func (s IncomeSummary) StateCodes() []models.Jurisdiction {
	out := make([]models.Jurisdiction, 0, len(s.StateWages))
	for st := range s.StateWages {
		out = append(out, st)
	}
	return out
}

// LimitCapitalLoss caps a net capital loss at the year's limit, halved for
// married filing separately. Gains pass through unchanged.
func LimitCapitalLoss(net, limit decimal.Decimal, fs models.FilingStatus) decimal.Decimal {
	if !net.IsNegative() {
		return net
	}
	if fs == models.FilingMarriedSeparately {
		limit = limit.Div(decimal.NewFromInt(2))
	}
	if net.Abs().GreaterThan(limit) {
		return limit.Neg()
	}
	return net
}
