package processors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/username/taxcore/src/models"
	"github.com/username/taxcore/src/utils"
)

// crossCheckTolerance absorbs per-lot rounding on broker statements.
var crossCheckTolerance = decimal.NewFromInt(1)

type capitalGainsProcessorImpl struct{}

func NewCapitalGainsProcessor() CapitalGainsProcessor {
	return &capitalGainsProcessorImpl{}
}

// Aggregate builds one Form 8949 row per 1099-B entry, applies manual
// corrections, appends manual dispositions and derives Schedule D.
// Row IDs reuse the entry or adjustment ID so repeated runs produce the
// same rows.
func (p *capitalGainsProcessorImpl) Aggregate(taxReturnID string, entries []models.Form1099BEntry, adjustments []models.ManualAdjustment) CapitalGainsResult {
	corrections := make(map[string][]models.ManualAdjustment)
	var manual []models.ManualAdjustment
	for _, adj := range adjustments {
		if adj.EntryID == "" {
			manual = append(manual, adj)
			continue
		}
		corrections[adj.EntryID] = append(corrections[adj.EntryID], adj)
	}

	rows := make([]models.Form8949, 0, len(entries)+len(manual))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		seen[e.ID] = true
		rows = append(rows, rowFromEntry(taxReturnID, e, corrections[e.ID]))
	}
	for _, adj := range manual {
		rows = append(rows, rowFromManual(taxReturnID, adj, ""))
	}
	// Corrections whose entry disappeared (document deleted) stay visible.
	for entryID, adjs := range corrections {
		if seen[entryID] {
			continue
		}
		for _, adj := range adjs {
			rows = append(rows, rowFromManual(taxReturnID, adj, "corrected 1099-B entry no longer exists"))
		}
	}

	SortForm8949(rows)
	return CapitalGainsResult{
		Rows:      rows,
		ScheduleD: p.SummarizeRows(taxReturnID, rows),
	}
}

// SummarizeRows recomputes Schedule D from stored rows alone.
func (p *capitalGainsProcessorImpl) SummarizeRows(taxReturnID string, rows []models.Form8949) models.ScheduleD {
	sd := models.ScheduleD{TaxReturnID: taxReturnID}
	for _, r := range rows {
		if r.ExcludedFromTotals {
			continue
		}
		if r.IsShortTerm {
			sd.ShortTermProceeds = sd.ShortTermProceeds.Add(r.Proceeds)
			sd.ShortTermCostBasis = sd.ShortTermCostBasis.Add(r.CostBasis)
			sd.ShortTermAdjustments = sd.ShortTermAdjustments.Add(r.AdjustmentAmount)
			sd.NetShortTermGainLoss = sd.NetShortTermGainLoss.Add(r.GainOrLoss)
		} else {
			sd.LongTermProceeds = sd.LongTermProceeds.Add(r.Proceeds)
			sd.LongTermCostBasis = sd.LongTermCostBasis.Add(r.CostBasis)
			sd.LongTermAdjustments = sd.LongTermAdjustments.Add(r.AdjustmentAmount)
			sd.NetLongTermGainLoss = sd.NetLongTermGainLoss.Add(r.GainOrLoss)
		}
	}
	sd.NetCapitalGainLoss = sd.NetShortTermGainLoss.Add(sd.NetLongTermGainLoss)
	return sd
}

// CrossCheck compares broker-reported subtotals with the broker rows of the
// computed schedule. Schedule D stays authoritative; differences only
// become review items.
func (p *capitalGainsProcessorImpl) CrossCheck(forms []models.Form1099B, rows []models.Form8949) []models.ReviewItem {
	var shortReported, longReported decimal.Decimal
	var haveShort, haveLong bool
	for _, f := range forms {
		if f.ShortTermSubtotal.Valid {
			shortReported = shortReported.Add(f.ShortTermSubtotal.Decimal)
			haveShort = true
		}
		if f.LongTermSubtotal.Valid {
			longReported = longReported.Add(f.LongTermSubtotal.Decimal)
			haveLong = true
		}
	}
	if !haveShort && !haveLong {
		return nil
	}

	var shortComputed, longComputed decimal.Decimal
	for _, r := range rows {
		if r.Source != models.Form8949SourceBroker || r.ExcludedFromTotals {
			continue
		}
		if r.IsShortTerm {
			shortComputed = shortComputed.Add(r.GainOrLoss)
		} else {
			longComputed = longComputed.Add(r.GainOrLoss)
		}
	}

	var items []models.ReviewItem
	check := func(term string, reported, computed decimal.Decimal) {
		if reported.Sub(computed).Abs().GreaterThan(crossCheckTolerance) {
			items = append(items, models.ReviewItem{
				Kind: models.ReviewQuickPathDiff,
				Message: fmt.Sprintf("broker %s-term subtotal %s differs from Form 8949 total %s",
					term, reported.StringFixed(2), computed.StringFixed(2)),
			})
		}
	}
	if haveShort {
		check("short", shortReported, shortComputed)
	}
	if haveLong {
		check("long", longReported, longComputed)
	}
	return items
}

// SortForm8949 orders rows short-term first, then by sale date, then by ID.
func SortForm8949(rows []models.Form8949) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.IsShortTerm != b.IsShortTerm {
			return a.IsShortTerm
		}
		if a.DateSold != b.DateSold {
			return a.DateSold < b.DateSold
		}
		return a.ID < b.ID
	})
}

func rowFromEntry(taxReturnID string, e models.Form1099BEntry, corrections []models.ManualAdjustment) models.Form8949 {
	row := models.Form8949{
		ID:           e.ID,
		TaxReturnID:  taxReturnID,
		EntryID:      e.ID,
		Source:       models.Form8949SourceBroker,
		Box:          brokerBox(e.IsShortTerm, e.ReportedToIRS),
		Description:  e.Description,
		DateAcquired: e.DateAcquired,
		DateSold:     e.DateSold,
		IsShortTerm:  e.IsShortTerm,
	}
	proceeds, basis := e.Proceeds, e.CostBasis
	if e.WashSale {
		row.AdjustmentCode = models.AdjustmentCodeWashSale
		row.AdjustmentAmount = e.WashSaleAmount
	}

	for _, c := range corrections {
		if c.Proceeds.Valid {
			proceeds = c.Proceeds
		}
		if c.CostBasis.Valid {
			basis = c.CostBasis
		}
		if c.Description != "" {
			row.Description = c.Description
		}
		if c.DateAcquired != "" {
			row.DateAcquired = c.DateAcquired
		}
		if c.DateSold != "" {
			row.DateSold = c.DateSold
		}
		row.AdjustmentCode = mergeAdjustmentCodes(row.AdjustmentCode, c.AdjustmentCode)
		row.AdjustmentAmount = row.AdjustmentAmount.Add(c.AdjustmentAmount)
	}

	applyAmounts(&row, proceeds, basis)
	return row
}

func rowFromManual(taxReturnID string, adj models.ManualAdjustment, reviewReason string) models.Form8949 {
	row := models.Form8949{
		ID:               adj.ID,
		TaxReturnID:      taxReturnID,
		Source:           models.Form8949SourceManual,
		Box:              manualBox(adj.IsShortTerm),
		Description:      adj.Description,
		DateAcquired:     adj.DateAcquired,
		DateSold:         adj.DateSold,
		AdjustmentCode:   mergeAdjustmentCodes("", adj.AdjustmentCode),
		AdjustmentAmount: adj.AdjustmentAmount,
		IsShortTerm:      adj.IsShortTerm,
	}
	applyAmounts(&row, adj.Proceeds, adj.CostBasis)
	if reviewReason != "" {
		row.NeedsReview = true
		row.ReviewReason = joinReasons(row.ReviewReason, reviewReason)
	}
	return row
}

// applyAmounts fills proceeds, basis and gain. A missing side counts as zero
// and flags the row; when both are missing the row is left out of totals.
func applyAmounts(row *models.Form8949, proceeds, basis decimal.NullDecimal) {
	row.Proceeds = utils.NullOrZero(proceeds)
	row.CostBasis = utils.NullOrZero(basis)
	switch {
	case !proceeds.Valid && !basis.Valid:
		row.NeedsReview = true
		row.ExcludedFromTotals = true
		row.ReviewReason = "missing proceeds and cost basis"
	case !proceeds.Valid:
		row.NeedsReview = true
		row.ReviewReason = "missing proceeds"
	case !basis.Valid:
		row.NeedsReview = true
		row.ReviewReason = "missing cost basis"
	}
	row.GainOrLoss = row.Proceeds.Sub(row.CostBasis).Add(row.AdjustmentAmount)
}

func brokerBox(shortTerm, reportedToIRS bool) string {
	switch {
	case shortTerm && reportedToIRS:
		return "A"
	case shortTerm:
		return "B"
	case reportedToIRS:
		return "D"
	default:
		return "E"
	}
}

func manualBox(shortTerm bool) string {
	if shortTerm {
		return "C"
	}
	return "F"
}

// mergeAdjustmentCodes combines Form 8949 column (f) codes, which are
// single letters listed alphabetically without duplicates.
func mergeAdjustmentCodes(existing, added string) string {
	set := make(map[rune]bool)
	for _, r := range strings.ToUpper(existing + added) {
		if r >= 'A' && r <= 'Z' {
			set[r] = true
		}
	}
	codes := make([]string, 0, len(set))
	for r := range set {
		codes = append(codes, string(r))
	}
	sort.Strings(codes)
	return strings.Join(codes, "")
}

func joinReasons(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}
