package pattern

import (
	"github.com/username/taxcore/src/models"
)

var (
	payerLabels    = []string{`payer'?s\s+name:`, `payer'?s\s+name[^\n]*`}
	payerTINLabels = []string{`payer'?s\s+(?:federal\s+)?(?:identification\s+number|tin)`}

	divOrdinary   = newAmountRule(2, `(?:total\s+)?ordinary\s+dividends`).asRequired()
	divQualified  = newAmountRule(1, `qualified\s+dividends`)
	divCapGain    = newAmountRule(1, `(?:total\s+)?capital\s+gain\s+distr(?:ibutions|\.)?`)
	divFederalWH  = newAmountRule(1, `federal\s+income\s+tax\s+withheld`)
	divForeignTax = newAmountRule(0.5, `foreign\s+tax\s+paid`)
	intInterest   = newAmountRule(2, `interest\s+income`).asRequired()
	intPenalty    = newAmountRule(1, `early\s+withdrawal\s+penalty`)
	intTreasury   = newAmountRule(1, `interest\s+on\s+u\.?\s?s\.?\s+savings\s+bonds\s+and\s+treas(?:ury|\.)?\s+obligations`)
	intFederalWH  = newAmountRule(1, `federal\s+income\s+tax\s+withheld`)
	intTaxExempt  = newAmountRule(1, `tax-exempt\s+interest`)

	divRules = []amountRule{divOrdinary, divQualified, divCapGain, divFederalWH, divForeignTax}
	intRules = []amountRule{intInterest, intPenalty, intTreasury, intFederalWH, intTaxExempt}
)

func extract1099Div(text string) models.ExtractionResult {
	text = unfoldLabelRows(text, divRules)
	var w weighted
	f := &models.Form1099DivFields{}

	divOrdinary.apply(text, &w, &f.OrdinaryDividends)
	divQualified.apply(text, &w, &f.QualifiedDividends)
	divCapGain.apply(text, &w, &f.CapitalGainDistributions)
	divFederalWH.apply(text, &w, &f.FederalWithheld)
	divForeignTax.apply(text, &w, &f.ForeignTaxPaid)
	f.PayerName, f.PayerTIN = payer(text, &w)

	return models.ExtractionResult{
		Fields:     models.ExtractedFields{DocumentType: models.DocType1099Div, Div: f},
		Confidence: w.confidence(),
	}
}

func extract1099Int(text string) models.ExtractionResult {
	text = unfoldLabelRows(text, intRules)
	var w weighted
	f := &models.Form1099IntFields{}

	intInterest.apply(text, &w, &f.InterestIncome)
	intPenalty.apply(text, &w, &f.EarlyWithdrawalPenalty)
	intTreasury.apply(text, &w, &f.TreasuryInterest)
	intFederalWH.apply(text, &w, &f.FederalWithheld)
	intTaxExempt.apply(text, &w, &f.TaxExemptInterest)
	f.PayerName, f.PayerTIN = payer(text, &w)

	return models.ExtractionResult{
		Fields:     models.ExtractedFields{DocumentType: models.DocType1099Int, Int: f},
		Confidence: w.confidence(),
	}
}

func payer(text string, w *weighted) (name, tin string) {
	name = textAfter(text, payerLabels...)
	w.add(1, name != "")
	tin = findTIN(text, payerTINLabels...)
	w.add(1, tin != "")
	return name, tin
}
