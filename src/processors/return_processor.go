package processors

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/taxcore/src/models"
	"github.com/username/taxcore/src/utils"
)

// FederalInput is everything needed to fill a Form 1040 snapshot.
type FederalInput struct {
	TaxReturnID  string
	TaxYear      models.TaxYear
	FilingStatus models.FilingStatus
	Profile      models.TaxpayerProfile
	Income       IncomeSummary
	ScheduleD    models.ScheduleD
	Brackets     []models.TaxBracket
	Deduction    models.StandardDeduction
}

// StateInput fills one state return from the federal AGI.
type StateInput struct {
	TaxReturnID  string
	State        models.Jurisdiction
	FilingStatus models.FilingStatus
	Profile      models.TaxpayerProfile
	FederalAGI   decimal.Decimal
	Withheld     decimal.Decimal
	Brackets     []models.TaxBracket
	Deduction    models.StandardDeduction
}

type returnProcessorImpl struct {
	now func() time.Time
}

func NewReturnProcessor() ReturnProcessor {
	return &returnProcessorImpl{now: time.Now}
}

func (p *returnProcessorImpl) Federal(in FederalInput) models.Form1040 {
	inc := in.Income
	f := models.Form1040{
		TaxReturnID:         in.TaxReturnID,
		TaxYear:             in.TaxYear.Year,
		FilingStatus:        in.FilingStatus,
		Wages:               utils.RoundMoney(inc.Wages),
		TaxExemptInterest:   utils.RoundMoney(inc.TaxExemptInterest),
		TaxableInterest:     utils.RoundMoney(inc.TaxableInterest),
		QualifiedDividends:  utils.RoundMoney(inc.QualifiedDividends),
		OrdinaryDividends:   utils.RoundMoney(inc.OrdinaryDividends),
		OtherIncome:         decimal.Zero,
		Adjustments:         utils.RoundMoney(inc.EarlyWithdrawalPenalty),
		W2Withholding:       utils.RoundMoney(inc.W2Withheld),
		Form1099Withholding: utils.RoundMoney(inc.Form1099Withheld),
		CalculatedAt:        p.now().UTC(),
	}

	gains := in.ScheduleD.NetCapitalGainLoss.Add(inc.CapitalGainDistributions)
	f.CapitalGainLoss = utils.RoundMoney(LimitCapitalLoss(gains, in.TaxYear.CapitalLossLimit, in.FilingStatus))

	f.TotalIncome = utils.SumDecimals(f.Wages, f.TaxableInterest, f.OrdinaryDividends, f.CapitalGainLoss, f.OtherIncome)
	f.AGI = f.TotalIncome.Sub(f.Adjustments)

	f.StandardDeduction = utils.RoundMoney(DeductionAmount(in.Deduction, in.FilingStatus, in.Profile))
	f.TotalDeductions = f.StandardDeduction
	f.TaxableIncome = utils.MaxZero(f.AGI.Sub(f.TotalDeductions))

	f.Tax = ComputeTax(f.TaxableIncome, in.Brackets)
	f.TotalTax = f.Tax
	f.MarginalRate = MarginalRate(f.TaxableIncome, in.Brackets)

	f.TotalWithholding = f.W2Withholding.Add(f.Form1099Withholding)
	f.TotalPayments = f.TotalWithholding
	balance := f.TotalPayments.Sub(f.TotalTax)
	if balance.IsNegative() {
		f.AmountOwed = balance.Neg()
	} else {
		f.Refund = balance
	}
	return f
}

func (p *returnProcessorImpl) State(in StateInput) models.StateTaxReturn {
	income := utils.RoundMoney(in.FederalAGI)
	deduction := utils.RoundMoney(DeductionAmount(in.Deduction, in.FilingStatus, in.Profile))
	taxable := utils.MaxZero(income.Sub(deduction))
	tax := ComputeTax(taxable, in.Brackets)
	withheld := utils.RoundMoney(in.Withheld)
	return models.StateTaxReturn{
		TaxReturnID:   in.TaxReturnID,
		State:         in.State,
		Income:        income,
		Deduction:     deduction,
		TaxableIncome: taxable,
		Tax:           tax,
		Withheld:      withheld,
		RefundOrOwed:  withheld.Sub(tax),
		CalculatedAt:  p.now().UTC(),
	}
}

// DeductionAmount adds the per-condition amounts to the base deduction.
// Spouse conditions only count on joint-style returns.
func DeductionAmount(d models.StandardDeduction, fs models.FilingStatus, profile models.TaxpayerProfile) decimal.Decimal {
	total := d.Amount
	conditions := []struct {
		applies bool
		amount  decimal.Decimal
	}{
		{profile.TaxpayerBlind, d.AdditionalBlindAmount},
		{profile.TaxpayerDisabled, d.AdditionalDisabledAmount},
		{profile.SpouseBlind && fs.CoversSpouse(), d.AdditionalBlindAmount},
		{profile.SpouseDisabled && fs.CoversSpouse(), d.AdditionalDisabledAmount},
	}
	for _, c := range conditions {
		if c.applies {
			total = total.Add(c.amount)
		}
	}
	return total
}
