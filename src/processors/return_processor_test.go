package processors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/username/taxcore/src/models"
)

func fixedNow() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

func singleDeduction() models.StandardDeduction {
	return models.StandardDeduction{
		Jurisdiction:             models.Federal,
		FilingStatus:             models.FilingSingle,
		Amount:                   d("14600"),
		AdditionalBlindAmount:    d("1950"),
		AdditionalDisabledAmount: d("1950"),
	}
}

func TestFederalW2Only(t *testing.T) {
	p := &returnProcessorImpl{now: fixedNow}
	income := NewIncomeProcessor().Summarize(models.IncomeRecords{
		W2s: []models.W2Data{{W2Fields: models.W2Fields{Wages: d("60000"), FederalWithheld: d("8000")}}},
	})
	f := p.Federal(FederalInput{
		TaxReturnID:  "r1",
		TaxYear:      models.TaxYear{Year: 2024, CapitalLossLimit: d("3000")},
		FilingStatus: models.FilingSingle,
		Income:       income,
		Brackets:     single2024(t),
		Deduction:    singleDeduction(),
	})

	assert.Equal(t, "60000.00", f.AGI.StringFixed(2))
	assert.Equal(t, "45400.00", f.TaxableIncome.StringFixed(2))
	assert.Equal(t, "5216.00", f.Tax.StringFixed(2))
	assert.Equal(t, "2784.00", f.Refund.StringFixed(2))
	assert.True(t, f.AmountOwed.IsZero())
	assert.Equal(t, "0.12", f.MarginalRate.String())
	assert.Equal(t, fixedNow(), f.CalculatedAt)
}

func TestFederalMixedIncome(t *testing.T) {
	p := &returnProcessorImpl{now: fixedNow}
	records := models.IncomeRecords{
		W2s: []models.W2Data{{W2Fields: models.W2Fields{Wages: d("20000"), FederalWithheld: d("100")}}},
		Ints: []models.Form1099Int{{Form1099IntFields: models.Form1099IntFields{
			InterestIncome: d("300"), TreasuryInterest: d("50"), EarlyWithdrawalPenalty: d("20"),
			TaxExemptInterest: d("75"), FederalWithheld: d("10"),
		}}},
		Divs: []models.Form1099Div{{Form1099DivFields: models.Form1099DivFields{
			OrdinaryDividends: d("1000"), QualifiedDividends: d("800"), CapitalGainDistributions: d("200"),
		}}},
	}
	f := p.Federal(FederalInput{
		TaxYear:      models.TaxYear{Year: 2024, CapitalLossLimit: d("3000")},
		FilingStatus: models.FilingSingle,
		Profile:      models.TaxpayerProfile{TaxpayerBlind: true, SpouseBlind: true},
		Income:       NewIncomeProcessor().Summarize(records),
		ScheduleD:    models.ScheduleD{NetCapitalGainLoss: d("-10000")},
		Brackets:     single2024(t),
		Deduction:    singleDeduction(),
	})

	assert.Equal(t, "350.00", f.TaxableInterest.StringFixed(2))
	assert.Equal(t, "75.00", f.TaxExemptInterest.StringFixed(2))
	assert.Equal(t, "800.00", f.QualifiedDividends.StringFixed(2))
	// -10000 + 200 distributions, limited to -3000.
	assert.Equal(t, "-3000.00", f.CapitalGainLoss.StringFixed(2))
	assert.Equal(t, "18350.00", f.TotalIncome.StringFixed(2))
	assert.Equal(t, "18330.00", f.AGI.StringFixed(2))
	// Spouse blindness does not count on a single return.
	assert.Equal(t, "16550.00", f.StandardDeduction.StringFixed(2))
	assert.Equal(t, "1780.00", f.TaxableIncome.StringFixed(2))
	assert.Equal(t, "178.00", f.Tax.StringFixed(2))
	assert.Equal(t, "110.00", f.TotalWithholding.StringFixed(2))
	assert.Equal(t, "68.00", f.AmountOwed.StringFixed(2))
	assert.True(t, f.Refund.IsZero())
}

func TestLimitCapitalLoss(t *testing.T) {
	limit := d("3000")
	assert.Equal(t, "5000", LimitCapitalLoss(d("5000"), limit, models.FilingSingle).String())
	assert.Equal(t, "-2000", LimitCapitalLoss(d("-2000"), limit, models.FilingSingle).String())
	assert.Equal(t, "-3000", LimitCapitalLoss(d("-9000"), limit, models.FilingMarriedJointly).String())
	assert.Equal(t, "-1500", LimitCapitalLoss(d("-9000"), limit, models.FilingMarriedSeparately).String())
}

func TestDeductionAmountSpouseConditions(t *testing.T) {
	ded := models.StandardDeduction{Amount: d("29200"), AdditionalBlindAmount: d("1550"), AdditionalDisabledAmount: d("1550")}
	profile := models.TaxpayerProfile{TaxpayerDisabled: true, SpouseBlind: true, SpouseDisabled: true}
	assert.Equal(t, "33850", DeductionAmount(ded, models.FilingMarriedJointly, profile).String())
	assert.Equal(t, "30750", DeductionAmount(ded, models.FilingMarriedSeparately, profile).String())
}

func TestStateReturn(t *testing.T) {
	p := &returnProcessorImpl{now: fixedNow}
	flat := []models.TaxBracket{{Jurisdiction: "IL", FilingStatus: models.FilingSingle, MinIncome: d("0"), Rate: d("0.0495")}}
	st := p.State(StateInput{
		TaxReturnID:  "r1",
		State:        "IL",
		FilingStatus: models.FilingSingle,
		FederalAGI:   d("60000"),
		Withheld:     d("2500"),
		Brackets:     flat,
		Deduction:    models.StandardDeduction{Amount: d("2775")},
	})
	assert.Equal(t, "57225.00", st.TaxableIncome.StringFixed(2))
	assert.Equal(t, "2832.64", st.Tax.StringFixed(2))
	assert.Equal(t, "-332.64", st.RefundOrOwed.StringFixed(2))
}

func TestIncomeSummaryStates(t *testing.T) {
	s := NewIncomeProcessor().Summarize(models.IncomeRecords{
		W2s: []models.W2Data{
			{W2Fields: models.W2Fields{StateCode: "il", StateWages: d("100"), StateWithheld: d("5")}},
			{W2Fields: models.W2Fields{StateCode: "IL", StateWages: d("50"), StateWithheld: d("2")}},
			{W2Fields: models.W2Fields{}},
		},
		Bs: []models.Form1099B{{FederalWithheld: d("12")}},
	})
	assert.Equal(t, []models.Jurisdiction{"IL"}, s.StateCodes())
	assert.Equal(t, "7", s.StateWithheld["IL"].String())
	assert.Equal(t, "12", s.TotalWithheld().String())
}
