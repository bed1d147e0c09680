package pattern

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/taxcore/src/models"
)

const w2Text = `Form W-2 Wage and Tax Statement 2024
b Employer identification number (EIN) 12-3456789
c Employer's name, address, and ZIP code
ACME CORP
e Employee's first name and initial Last name
JANE Q DOE
1 Wages, tips, other compensation   60,000.00
2 Federal income tax withheld       8,000.00
3 Social security wages             60,000.00
4 Social security tax withheld      3,720.00
5 Medicare wages and tips           60,000.00
6 Medicare tax withheld             870.00
15 State IL
16 State wages, tips, etc. 60,000.00
17 State income tax 2,970.00`

const divText = `Form 1099-DIV Dividends and Distributions 2024
PAYER'S name, street address, city or town
VANGUARD BROKERAGE SERVICES
PAYER'S TIN 23-1945930
1a Total ordinary dividends $1,000.00
1b Qualified dividends 800.00
2a Total capital gain distr. 200.00
4 Federal income tax withheld
7 Foreign tax paid 12.34`

const intText = `Form 1099-INT Interest Income
PAYER’S name: FIRST NATIONAL BANK
PAYER’S federal identification number 98-7654321
1 Interest income 300.00
2 Early withdrawal penalty 20.00
3 Interest on U.S. Savings Bonds and Treas. obligations 50.00
4 Federal income tax withheld 10.00
8 Tax‑exempt interest 75.00`

func extract(t *testing.T, docType models.DocumentType, text string) models.ExtractionResult {
	t.Helper()
	res, err := NewProvider().TryExtract(context.Background(), docType, text)
	require.NoError(t, err)
	assert.Equal(t, docType, res.Fields.DocumentType)
	return res
}

func TestExtractW2(t *testing.T) {
	res := extract(t, models.DocTypeW2, w2Text)
	w2 := res.Fields.W2
	require.NotNil(t, w2)

	assert.Equal(t, 1.0, res.Confidence)
	assert.Equal(t, "ACME CORP", w2.EmployerName)
	assert.Equal(t, "12-3456789", w2.EmployerEIN)
	assert.Equal(t, "JANE Q DOE", w2.EmployeeName)
	assert.Equal(t, "60000.00", w2.Wages.StringFixed(2))
	assert.Equal(t, "8000.00", w2.FederalWithheld.StringFixed(2))
	assert.Equal(t, "3720.00", w2.SocialSecurityWithheld.StringFixed(2))
	assert.Equal(t, "870.00", w2.MedicareWithheld.StringFixed(2))
	assert.Equal(t, "IL", w2.StateCode)
	assert.Equal(t, "2970.00", w2.StateWithheld.StringFixed(2))
}

func TestExtractW2PartialLowersConfidence(t *testing.T) {
	res := extract(t, models.DocTypeW2, "Form W-2\n1 Wages, tips, other compensation 60,000.00")
	assert.Less(t, res.Confidence, 0.8)
	assert.Equal(t, "60000.00", res.Fields.W2.Wages.StringFixed(2))
}

const w2TwoColumnText = `Form W-2 Wage and Tax Statement 2024
a Employee's social security number XXX-XX-1234
b Employer identification number (EIN) 12-3456789
c Employer's name, address, and ZIP code
ACME CORP
e Employee's first name and initial Last name
JANE Q DOE
1 Wages, tips, other compensation    2 Federal income tax withheld
60000.00                             8000.00
3 Social security wages              4 Social security tax withheld
60000.00                             3720.00
5 Medicare wages and tips            6 Medicare tax withheld
60000.00                             870.00
15 State Employer's state ID number  16 State wages, tips, etc.  17 State income tax
IL 12-3456789                        60000.00                    2970.00`

func TestExtractW2TwoColumnLayout(t *testing.T) {
	res := extract(t, models.DocTypeW2, w2TwoColumnText)
	w2 := res.Fields.W2
	require.NotNil(t, w2)

	assert.Equal(t, 1.0, res.Confidence)
	assert.Equal(t, "ACME CORP", w2.EmployerName)
	assert.Equal(t, "12-3456789", w2.EmployerEIN)
	assert.Equal(t, "60000.00", w2.Wages.StringFixed(2))
	assert.Equal(t, "8000.00", w2.FederalWithheld.StringFixed(2))
	assert.Equal(t, "60000.00", w2.SocialSecurityWages.StringFixed(2))
	assert.Equal(t, "3720.00", w2.SocialSecurityWithheld.StringFixed(2))
	assert.Equal(t, "60000.00", w2.MedicareWages.StringFixed(2))
	assert.Equal(t, "870.00", w2.MedicareWithheld.StringFixed(2))
	assert.Equal(t, "IL", w2.StateCode)
	assert.Equal(t, "60000.00", w2.StateWages.StringFixed(2))
	assert.Equal(t, "2970.00", w2.StateWithheld.StringFixed(2))
}

func TestExtractW2TwoColumnInlineAmounts(t *testing.T) {
	text := "Form W-2\n" +
		"1 Wages, tips, other compensation 60,000.00 2 Federal income tax withheld 8,000.00\n" +
		"3 Social security wages 60,000.00 4 Social security tax withheld 3,720.00"
	res := extract(t, models.DocTypeW2, text)
	assert.Equal(t, "60000.00", res.Fields.W2.Wages.StringFixed(2))
	assert.Equal(t, "8000.00", res.Fields.W2.FederalWithheld.StringFixed(2))
	assert.Equal(t, "60000.00", res.Fields.W2.SocialSecurityWages.StringFixed(2))
	assert.Equal(t, "3720.00", res.Fields.W2.SocialSecurityWithheld.StringFixed(2))
}

func TestExtractW2LabelRowWithMissingValues(t *testing.T) {
	text := "Form W-2\n" +
		"b Employer identification number (EIN) 12-3456789\n" +
		"c Employer's name, address, and ZIP code\nACME CORP\n" +
		"1 Wages, tips, other compensation  2 Federal income tax withheld\n" +
		"60000.00\n" +
		"3 Social security wages 60,000.00\n" +
		"4 Social security tax withheld 3,720.00\n" +
		"5 Medicare wages and tips 60,000.00\n" +
		"6 Medicare tax withheld 870.00"
	res := extract(t, models.DocTypeW2, text)
	w2 := res.Fields.W2

	assert.True(t, w2.Wages.IsZero(), "column order is ambiguous")
	assert.True(t, w2.FederalWithheld.IsZero(), "never borrows the next line across a label")
	assert.Less(t, res.Confidence, 0.8)
}

func TestExtractW2MissingWagesStaysBelowThreshold(t *testing.T) {
	text := "Form W-2\n" +
		"b Employer identification number (EIN) 12-3456789\n" +
		"c Employer's name, address, and ZIP code\nACME CORP\n" +
		"1 Wages, tips, other compensation\n\n" +
		"2 Federal income tax withheld 8,000.00\n" +
		"3 Social security wages 60,000.00\n" +
		"4 Social security tax withheld 3,720.00\n" +
		"5 Medicare wages and tips 60,000.00\n" +
		"6 Medicare tax withheld 870.00"
	res := extract(t, models.DocTypeW2, text)
	assert.True(t, res.Fields.W2.Wages.IsZero())
	assert.Less(t, res.Confidence, 0.8)
}

func TestExtract1099Div(t *testing.T) {
	res := extract(t, models.DocType1099Div, divText)
	div := res.Fields.Div
	require.NotNil(t, div)

	assert.Equal(t, "VANGUARD BROKERAGE SERVICES", div.PayerName)
	assert.Equal(t, "23-1945930", div.PayerTIN)
	assert.Equal(t, "1000.00", div.OrdinaryDividends.StringFixed(2))
	assert.Equal(t, "800.00", div.QualifiedDividends.StringFixed(2))
	assert.Equal(t, "200.00", div.CapitalGainDistributions.StringFixed(2))
	assert.True(t, div.FederalWithheld.IsZero())
	assert.Equal(t, "12.34", div.ForeignTaxPaid.StringFixed(2))
	// Blank box 4 earns nothing: (7.5 - 1) / 7.5
	assert.InDelta(t, 0.867, res.Confidence, 0.001)
}

func TestExtract1099Int(t *testing.T) {
	res := extract(t, models.DocType1099Int, intText)
	in := res.Fields.Int
	require.NotNil(t, in)

	assert.Equal(t, 1.0, res.Confidence)
	assert.Equal(t, "FIRST NATIONAL BANK", in.PayerName)
	assert.Equal(t, "98-7654321", in.PayerTIN)
	assert.Equal(t, "300.00", in.InterestIncome.StringFixed(2))
	assert.Equal(t, "20.00", in.EarlyWithdrawalPenalty.StringFixed(2))
	assert.Equal(t, "50.00", in.TreasuryInterest.StringFixed(2))
	assert.Equal(t, "10.00", in.FederalWithheld.StringFixed(2))
	assert.Equal(t, "75.00", in.TaxExemptInterest.StringFixed(2))
}

func TestTryExtractHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewProvider().TryExtract(ctx, models.DocTypeW2, w2Text)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTryExtractUnknownType(t *testing.T) {
	_, err := NewProvider().TryExtract(context.Background(), models.DocTypeUnknown, w2Text)
	assert.Error(t, err)
}
