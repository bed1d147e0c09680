package processors

import (
	"github.com/username/taxcore/src/models"
)

// CapitalGainsResult is the Form 8949 detail and its Schedule D summary.
type CapitalGainsResult struct {
	Rows      []models.Form8949
	ScheduleD models.ScheduleD
}

// CapitalGainsProcessor turns 1099-B entries and manual adjustments into
// Form 8949 rows and Schedule D.
type CapitalGainsProcessor interface {
	Aggregate(taxReturnID string, entries []models.Form1099BEntry, adjustments []models.ManualAdjustment) CapitalGainsResult
	SummarizeRows(taxReturnID string, rows []models.Form8949) models.ScheduleD
	CrossCheck(forms []models.Form1099B, rows []models.Form8949) []models.ReviewItem
}

// IncomeProcessor rolls up the per-form income records of a return.
type IncomeProcessor interface {
	Summarize(records models.IncomeRecords) IncomeSummary
}

// ReturnProcessor fills the federal and state snapshots from rolled-up inputs.
type ReturnProcessor interface {
	Federal(in FederalInput) models.Form1040
	State(in StateInput) models.StateTaxReturn
}
