package processors

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/username/taxcore/src/models"
)

// InvariantViolation is the panic value raised when ComputeTax receives input
// that a correct caller can never produce.
type InvariantViolation struct {
	Msg string
}

func (v InvariantViolation) Error() string {
	return "invariant violation: " + v.Msg
}

var one = decimal.NewFromInt(1)

// ValidateBrackets checks that a table is contiguous, ascending, starts at
// zero, ends unbounded and only holds rates in [0, 1]. All rows must belong
// to the same year, jurisdiction and filing status.
func ValidateBrackets(brackets []models.TaxBracket) error {
	if len(brackets) == 0 {
		return fmt.Errorf("bracket table is empty")
	}
	sorted := sortedBrackets(brackets)
	first := sorted[0]
	if !first.MinIncome.IsZero() {
		return fmt.Errorf("first bracket starts at %s, want 0", first.MinIncome)
	}
	for i, b := range sorted {
		if b.TaxYearID != first.TaxYearID || b.Jurisdiction != first.Jurisdiction || b.FilingStatus != first.FilingStatus {
			return fmt.Errorf("bracket %d mixes tables: %s/%s/%s vs %s/%s/%s", i,
				b.TaxYearID, b.Jurisdiction, b.FilingStatus, first.TaxYearID, first.Jurisdiction, first.FilingStatus)
		}
		if b.Rate.IsNegative() || b.Rate.GreaterThan(one) {
			return fmt.Errorf("bracket %d rate %s outside [0, 1]", i, b.Rate)
		}
		last := i == len(sorted)-1
		if !b.MaxIncome.Valid {
			if !last {
				return fmt.Errorf("bracket %d starting at %s is unbounded but not last", i, b.MinIncome)
			}
			continue
		}
		if last {
			return fmt.Errorf("top bracket is bounded at %s", b.MaxIncome.Decimal)
		}
		if !b.MaxIncome.Decimal.GreaterThan(b.MinIncome) {
			return fmt.Errorf("bracket %d max %s not above min %s", i, b.MaxIncome.Decimal, b.MinIncome)
		}
		next := sorted[i+1].MinIncome
		switch next.Cmp(b.MaxIncome.Decimal) {
		case 1:
			return fmt.Errorf("gap between %s and %s", b.MaxIncome.Decimal, next)
		case -1:
			return fmt.Errorf("overlap: bracket %d ends at %s but next starts at %s", i, b.MaxIncome.Decimal, next)
		}
	}
	return nil
}

func sortedBrackets(brackets []models.TaxBracket) []models.TaxBracket {
	sorted := make([]models.TaxBracket, len(brackets))
	copy(sorted, brackets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinIncome.LessThan(sorted[j].MinIncome)
	})
	return sorted
}

func mustValidBrackets(brackets []models.TaxBracket) []models.TaxBracket {
	if err := ValidateBrackets(brackets); err != nil {
		panic(InvariantViolation{Msg: err.Error()})
	}
	return sortedBrackets(brackets)
}

// ComputeTax applies a progressive table to taxableIncome. The sum is rounded
// to cents once, after every bracket has been accumulated.
// It panics with InvariantViolation on negative income or an invalid table.
func ComputeTax(taxableIncome decimal.Decimal, brackets []models.TaxBracket) decimal.Decimal {
	if taxableIncome.IsNegative() {
		panic(InvariantViolation{Msg: fmt.Sprintf("negative taxable income %s", taxableIncome)})
	}
	total := decimal.Zero
	for _, b := range mustValidBrackets(brackets) {
		upper := taxableIncome
		if b.MaxIncome.Valid && b.MaxIncome.Decimal.LessThan(upper) {
			upper = b.MaxIncome.Decimal
		}
		if upper.GreaterThan(b.MinIncome) {
			total = total.Add(upper.Sub(b.MinIncome).Mul(b.Rate))
		}
		if !b.MaxIncome.Valid || taxableIncome.LessThanOrEqual(b.MaxIncome.Decimal) {
			break
		}
	}
	return total.Round(2)
}

// MarginalRate is the rate applied to the last dollar of taxableIncome.
func MarginalRate(taxableIncome decimal.Decimal, brackets []models.TaxBracket) decimal.Decimal {
	sorted := mustValidBrackets(brackets)
	for _, b := range sorted {
		if !b.MaxIncome.Valid || taxableIncome.LessThanOrEqual(b.MaxIncome.Decimal) {
			return b.Rate
		}
	}
	return sorted[len(sorted)-1].Rate
}
