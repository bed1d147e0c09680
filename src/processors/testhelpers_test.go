package processors

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/username/taxcore/src/models"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(d(s))
}

// table builds contiguous brackets from upper bounds and rates; the final
// rate applies above the last bound.
func table(t *testing.T, bounds []string, rates []string) []models.TaxBracket {
	t.Helper()
	if len(rates) != len(bounds)+1 {
		t.Fatalf("need one more rate than bounds")
	}
	out := make([]models.TaxBracket, 0, len(rates))
	lower := decimal.Zero
	for i, r := range rates {
		b := models.TaxBracket{
			TaxYearID:    "2024",
			Jurisdiction: models.Federal,
			FilingStatus: models.FilingSingle,
			MinIncome:    lower,
			Rate:         d(r),
		}
		if i < len(bounds) {
			b.MaxIncome = nd(bounds[i])
			lower = d(bounds[i])
		}
		out = append(out, b)
	}
	return out
}

func single2024(t *testing.T) []models.TaxBracket {
	return table(t,
		[]string{"11600", "47150", "100525", "191950", "243725", "609350"},
		[]string{"0.10", "0.12", "0.22", "0.24", "0.32", "0.35", "0.37"})
}
