package processors

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/taxcore/src/models"
)

func entry(id, sold string, proceeds, basis decimal.NullDecimal, short, reported bool) models.Form1099BEntry {
	return models.Form1099BEntry{
		ID:          id,
		Form1099BID: "b1",
		Form1099BEntryFields: models.Form1099BEntryFields{
			Description:   "100 sh " + id,
			DateAcquired:  "2023-01-10",
			DateSold:      sold,
			Proceeds:      proceeds,
			CostBasis:     basis,
			IsShortTerm:   short,
			ReportedToIRS: reported,
		},
	}
}

func sampleEntries() []models.Form1099BEntry {
	washed := entry("e3", "2024-02-01", nd("800"), nd("1000"), true, true)
	washed.WashSale = true
	washed.WashSaleAmount = d("150")
	return []models.Form1099BEntry{
		entry("e1", "2024-05-01", nd("1500.25"), nd("1000.10"), false, true),
		entry("e2", "2024-03-15", nd("2000"), nd("2500"), true, false),
		washed,
		entry("e4", "2024-07-01", nd("300"), nd("100"), false, false),
	}
}

func TestAggregateRowsAndBoxes(t *testing.T) {
	res := NewCapitalGainsProcessor().Aggregate("r1", sampleEntries(), nil)
	require.Len(t, res.Rows, 4)

	var order []string
	for _, r := range res.Rows {
		order = append(order, r.ID)
	}
	assert.Equal(t, []string{"e3", "e2", "e1", "e4"}, order)

	byID := map[string]models.Form8949{}
	for _, r := range res.Rows {
		byID[r.ID] = r
	}
	assert.Equal(t, "A", byID["e3"].Box)
	assert.Equal(t, "B", byID["e2"].Box)
	assert.Equal(t, "D", byID["e1"].Box)
	assert.Equal(t, "E", byID["e4"].Box)

	assert.Equal(t, models.AdjustmentCodeWashSale, byID["e3"].AdjustmentCode)
	assert.Equal(t, "-50.00", byID["e3"].GainOrLoss.StringFixed(2))
	assert.Equal(t, "500.15", byID["e1"].GainOrLoss.StringFixed(2))
}

func TestScheduleDMatchesRowSums(t *testing.T) {
	res := NewCapitalGainsProcessor().Aggregate("r1", sampleEntries(), nil)
	sd := res.ScheduleD

	short, long := decimal.Zero, decimal.Zero
	for _, r := range res.Rows {
		if r.IsShortTerm {
			short = short.Add(r.GainOrLoss)
		} else {
			long = long.Add(r.GainOrLoss)
		}
	}
	assert.True(t, short.Equal(sd.NetShortTermGainLoss))
	assert.True(t, long.Equal(sd.NetLongTermGainLoss))
	assert.True(t, short.Add(long).Equal(sd.NetCapitalGainLoss))

	assert.Equal(t, "2800.00", sd.ShortTermProceeds.StringFixed(2))
	assert.Equal(t, "3500.00", sd.ShortTermCostBasis.StringFixed(2))
	assert.Equal(t, "150.00", sd.ShortTermAdjustments.StringFixed(2))
	assert.Equal(t, "-550.00", sd.NetShortTermGainLoss.StringFixed(2))
	assert.Equal(t, "700.15", sd.NetLongTermGainLoss.StringFixed(2))
	assert.Equal(t, "150.15", sd.NetCapitalGainLoss.StringFixed(2))
}

func TestAggregateIsIdempotent(t *testing.T) {
	p := NewCapitalGainsProcessor()
	adjustments := []models.ManualAdjustment{
		{ID: "m1", TaxReturnID: "r1", Description: "private sale", DateSold: "2024-09-01",
			Proceeds: nd("50"), CostBasis: nd("20"), IsShortTerm: true},
	}
	first := p.Aggregate("r1", sampleEntries(), adjustments)
	second := p.Aggregate("r1", sampleEntries(), adjustments)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("aggregation not idempotent (-first +second):\n%s", diff)
	}

	again := p.SummarizeRows("r1", first.Rows)
	if diff := cmp.Diff(first.ScheduleD, again); diff != "" {
		t.Fatalf("SummarizeRows disagrees with Aggregate:\n%s", diff)
	}
}

func TestAggregateMissingAmounts(t *testing.T) {
	entries := []models.Form1099BEntry{
		entry("both", "2024-01-01", decimal.NullDecimal{}, decimal.NullDecimal{}, true, true),
		entry("nobasis", "2024-01-02", nd("400"), decimal.NullDecimal{}, true, false),
	}
	res := NewCapitalGainsProcessor().Aggregate("r1", entries, nil)
	require.Len(t, res.Rows, 2)

	both, noBasis := res.Rows[0], res.Rows[1]
	assert.True(t, both.NeedsReview)
	assert.True(t, both.ExcludedFromTotals)
	assert.True(t, noBasis.NeedsReview)
	assert.False(t, noBasis.ExcludedFromTotals)
	assert.Equal(t, "missing cost basis", noBasis.ReviewReason)

	assert.Equal(t, "400.00", res.ScheduleD.ShortTermProceeds.StringFixed(2))
	assert.Equal(t, "400.00", res.ScheduleD.NetShortTermGainLoss.StringFixed(2))
}

func TestAggregateManualCorrectionAndDisposition(t *testing.T) {
	entries := []models.Form1099BEntry{
		entry("e1", "2024-04-01", nd("1000"), decimal.NullDecimal{}, false, false),
	}
	adjustments := []models.ManualAdjustment{
		{ID: "c1", EntryID: "e1", CostBasis: nd("600"), AdjustmentCode: "b", AdjustmentAmount: d("-25")},
		{ID: "m1", Description: "crypto", DateSold: "2024-08-08", Proceeds: nd("300"), CostBasis: nd("350"), IsShortTerm: true},
		{ID: "orphan", EntryID: "gone", Description: "old lot", Proceeds: nd("10"), CostBasis: nd("5")},
	}
	res := NewCapitalGainsProcessor().Aggregate("r1", entries, adjustments)
	require.Len(t, res.Rows, 3)

	manual, corrected, orphan := res.Rows[0], res.Rows[2], res.Rows[1]
	assert.Equal(t, "m1", manual.ID)
	assert.Equal(t, "C", manual.Box)
	assert.Equal(t, models.Form8949SourceManual, manual.Source)
	assert.Equal(t, "-50.00", manual.GainOrLoss.StringFixed(2))

	assert.Equal(t, "e1", corrected.ID)
	assert.False(t, corrected.NeedsReview, "correction supplied the missing basis")
	assert.Equal(t, "B", corrected.AdjustmentCode)
	assert.Equal(t, "375.00", corrected.GainOrLoss.StringFixed(2))

	assert.Equal(t, "orphan", orphan.ID)
	assert.Equal(t, "F", orphan.Box)
	assert.True(t, orphan.NeedsReview)
}

func TestMergeAdjustmentCodes(t *testing.T) {
	assert.Equal(t, "BW", mergeAdjustmentCodes("W", "b"))
	assert.Equal(t, "W", mergeAdjustmentCodes("W", "W"))
	assert.Equal(t, "", mergeAdjustmentCodes("", ""))
}

func TestCrossCheck(t *testing.T) {
	p := NewCapitalGainsProcessor()
	res := p.Aggregate("r1", sampleEntries(), nil)

	forms := []models.Form1099B{{ShortTermSubtotal: nd("-550.00"), LongTermSubtotal: nd("650")}}
	items := p.CrossCheck(forms, res.Rows)
	require.Len(t, items, 1)
	assert.Equal(t, models.ReviewQuickPathDiff, items[0].Kind)
	assert.Contains(t, items[0].Message, "long-term")

	assert.Empty(t, p.CrossCheck([]models.Form1099B{{}}, res.Rows))
}
