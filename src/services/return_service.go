package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/taxcore/src/logger"
	"github.com/username/taxcore/src/models"
	"github.com/username/taxcore/src/processors"
	"github.com/username/taxcore/src/repository"
	"github.com/username/taxcore/src/taxconfig"
	"github.com/username/taxcore/src/utils"
)

const (
	ckCalculation = "res_calculation_return_%s"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

// NewReportCache is the shared cache for calculation results.
func NewReportCache(expiration time.Duration) *cache.Cache {
	if expiration <= 0 {
		expiration = DefaultCacheExpiration
	}
	return cache.New(expiration, CacheCleanupInterval)
}

func invalidateCalculation(c *cache.Cache, taxReturnID string) {
	if c == nil {
		return
	}
	c.Delete(fmt.Sprintf(ckCalculation, taxReturnID))
}

type returnServiceImpl struct {
	store            repository.Store
	config           *taxconfig.Store
	capitalGains     processors.CapitalGainsProcessor
	income           processors.IncomeProcessor
	returns          processors.ReturnProcessor
	reportCache      *cache.Cache
	reviewThreshold  float64
	calculationLocks *keyedMutex
}

func NewReturnService(
	store repository.Store,
	config *taxconfig.Store,
	reportCache *cache.Cache,
	reviewThreshold float64,
) ReturnService {
	return &returnServiceImpl{
		store:            store,
		config:           config,
		capitalGains:     processors.NewCapitalGainsProcessor(),
		income:           processors.NewIncomeProcessor(),
		returns:          processors.NewReturnProcessor(),
		reportCache:      reportCache,
		reviewThreshold:  reviewThreshold,
		calculationLocks: newKeyedMutex(),
	}
}

func (s *returnServiceImpl) CreateReturn(ctx context.Context, in CreateReturnInput) (*models.TaxReturn, error) {
	if in.UserID == "" {
		return nil, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	status, err := models.ParseFilingStatus(string(in.FilingStatus))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	var taxYear models.TaxYear
	if in.TaxYear == 0 {
		taxYear, err = s.config.GetActiveYear(ctx)
	} else {
		taxYear, err = s.config.GetTaxYear(ctx, in.TaxYear)
	}
	if err != nil {
		return nil, err
	}

	r := models.TaxReturn{
		UserID:       in.UserID,
		TaxYear:      taxYear.Year,
		FilingStatus: status,
		Profile:      in.Profile,
		Status:       models.ReturnDraft,
	}
	if err := s.store.CreateReturn(ctx, &r); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("Tax return created", "taxReturnID", r.ID, "userID", r.UserID, "taxYear", r.TaxYear)
	return &r, nil
}

func (s *returnServiceImpl) GetReturn(ctx context.Context, taxReturnID string) (*models.TaxReturn, error) {
	r, err := s.store.GetReturn(ctx, taxReturnID)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *returnServiceImpl) ListReturns(ctx context.Context, userID string) ([]models.TaxReturn, error) {
	return s.store.ListReturns(ctx, userID)
}

func (s *returnServiceImpl) UpdateProfile(ctx context.Context, taxReturnID string, status models.FilingStatus, profile models.TaxpayerProfile) (*models.TaxReturn, error) {
	fs, err := models.ParseFilingStatus(string(status))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.store.UpdateProfile(ctx, taxReturnID, fs, profile); err != nil {
		return nil, err
	}
	invalidateCalculation(s.reportCache, taxReturnID)
	return s.GetReturn(ctx, taxReturnID)
}

// Calculate recomputes the whole return and saves it as one snapshot.
// Calculations of the same return are serialized; an empty status keeps the
// return's filing status.
func (s *returnServiceImpl) Calculate(ctx context.Context, taxReturnID string, status models.FilingStatus) (*CalculationResult, error) {
	unlock := s.calculationLocks.Lock(taxReturnID)
	defer unlock()

	startTime := time.Now()
	log := logger.FromContext(ctx).With("taxReturnID", taxReturnID)
	log.Info("Calculate START")

	ret, err := s.store.GetReturn(ctx, taxReturnID)
	if err != nil {
		return nil, err
	}
	fs := ret.FilingStatus
	if status != "" {
		if fs, err = models.ParseFilingStatus(string(status)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}

	taxYear, err := s.config.GetTaxYear(ctx, ret.TaxYear)
	if err != nil {
		return nil, err
	}
	brackets, err := s.config.GetBrackets(ctx, taxYear.Year, fs, models.Federal)
	if err != nil {
		return nil, err
	}
	deduction, err := s.config.GetStandardDeduction(ctx, taxYear.Year, fs, models.Federal)
	if err != nil {
		return nil, err
	}

	records, err := s.store.LoadIncomeRecords(ctx, taxReturnID)
	if err != nil {
		return nil, err
	}
	adjustments, err := s.store.ListAdjustments(ctx, taxReturnID)
	if err != nil {
		return nil, err
	}

	gains := s.capitalGains.Aggregate(taxReturnID, records.AllEntries(), adjustments)
	income := s.income.Summarize(records)
	form := s.returns.Federal(processors.FederalInput{
		TaxReturnID:  taxReturnID,
		TaxYear:      taxYear,
		FilingStatus: fs,
		Profile:      ret.Profile,
		Income:       income,
		ScheduleD:    gains.ScheduleD,
		Brackets:     brackets,
		Deduction:    deduction,
	})

	states, err := s.stateReturns(ctx, ret, fs, taxYear.Year, form.AGI, income)
	if err != nil {
		return nil, err
	}

	ret.FilingStatus = fs
	ret.Status = models.ReturnCalculated
	ret.TotalIncome = form.TotalIncome
	ret.Adjustments = form.Adjustments
	ret.AdjustedGrossIncome = form.AGI
	ret.Deduction = form.TotalDeductions
	ret.TaxableIncome = form.TaxableIncome
	ret.TotalTax = form.TotalTax
	ret.TotalWithheld = form.TotalWithholding
	ret.RefundOrOwed = form.TotalPayments.Sub(form.TotalTax)
	calculatedAt := form.CalculatedAt
	ret.CalculatedAt = &calculatedAt

	snap := models.CalculationSnapshot{
		TaxReturn:    ret,
		Form1040:     form,
		ScheduleD:    gains.ScheduleD,
		Form8949:     gains.Rows,
		StateReturns: states,
	}
	if err := s.store.SaveCalculation(ctx, snap); err != nil {
		return nil, err
	}

	review, err := s.reviewItems(ctx, taxReturnID, records.Bs, gains.Rows)
	if err != nil {
		return nil, err
	}
	result := &CalculationResult{CalculationSnapshot: snap, ReviewItems: review}
	s.reportCache.SetDefault(fmt.Sprintf(ckCalculation, taxReturnID), result)

	log.Info("Calculate END", "agi", form.AGI.StringFixed(2), "taxableIncome", form.TaxableIncome.StringFixed(2),
		"tax", form.TotalTax.StringFixed(2), "states", len(states), "reviewItems", len(review), "duration", time.Since(startTime))
	return result, nil
}

// stateReturns computes one return per jurisdiction the taxpayer lives in or
// earned W-2 wages in. A state without an income tax and without tables
// gets a zero-tax return; any other missing table blocks the calculation.
func (s *returnServiceImpl) stateReturns(ctx context.Context, ret models.TaxReturn, fs models.FilingStatus, year int, agi decimal.Decimal, income processors.IncomeSummary) ([]models.StateTaxReturn, error) {
	seen := make(map[models.Jurisdiction]bool)
	var jurisdictions []models.Jurisdiction
	if home := ret.Profile.ResidenceState(); home != "" {
		seen[home] = true
		jurisdictions = append(jurisdictions, home)
	}
	for _, code := range income.StateCodes() {
		if !seen[code] {
			seen[code] = true
			jurisdictions = append(jurisdictions, code)
		}
	}
	sort.Slice(jurisdictions, func(i, j int) bool { return jurisdictions[i] < jurisdictions[j] })

	out := make([]models.StateTaxReturn, 0, len(jurisdictions))
	for _, state := range jurisdictions {
		withheld := income.StateWithheld[state]
		brackets, err := s.config.GetBrackets(ctx, year, fs, state)
		if errors.Is(err, taxconfig.ErrConfigNotFound) && !stateHasIncomeTax(state) {
			out = append(out, noIncomeTaxReturn(ret.ID, state, agi, withheld, time.Now().UTC()))
			continue
		}
		if err != nil {
			return nil, err
		}
		deduction, err := s.config.GetStandardDeduction(ctx, year, fs, state)
		if err != nil {
			return nil, err
		}
		out = append(out, s.returns.State(processors.StateInput{
			TaxReturnID:  ret.ID,
			State:        state,
			FilingStatus: fs,
			Profile:      ret.Profile,
			FederalAGI:   agi,
			Withheld:     withheld,
			Brackets:     brackets,
			Deduction:    deduction,
		}))
	}
	return out, nil
}

func stateHasIncomeTax(state models.Jurisdiction) bool {
	info, ok := utils.LookupState(string(state))
	return !ok || info.HasIncomeTax
}

func noIncomeTaxReturn(returnID string, state models.Jurisdiction, agi, withheld decimal.Decimal, at time.Time) models.StateTaxReturn {
	withheld = utils.RoundMoney(withheld)
	return models.StateTaxReturn{
		TaxReturnID:   returnID,
		State:         state,
		Income:        utils.RoundMoney(agi),
		Deduction:     decimal.Zero,
		TaxableIncome: utils.MaxZero(utils.RoundMoney(agi)),
		Tax:           decimal.Zero,
		Withheld:      withheld,
		RefundOrOwed:  withheld,
		CalculatedAt:  at,
	}
}

// reviewItems lists what still needs a human: unread or uncertain documents,
// flagged Form 8949 rows and broker subtotals that disagree with Schedule D.
func (s *returnServiceImpl) reviewItems(ctx context.Context, taxReturnID string, brokerForms []models.Form1099B, rows []models.Form8949) ([]models.ReviewItem, error) {
	docs, err := s.store.ListDocuments(ctx, taxReturnID)
	if err != nil {
		return nil, err
	}

	items := []models.ReviewItem{}
	for _, d := range docs {
		switch {
		case d.Status == models.StatusError:
			items = append(items, models.ReviewItem{Kind: models.ReviewExtractionFailed, DocumentID: d.ID,
				Message: fmt.Sprintf("%s could not be read: %s", d.FileName, d.ErrorMessage)})
		case !d.DocumentType.Known():
			items = append(items, models.ReviewItem{Kind: models.ReviewUnclassified, DocumentID: d.ID,
				Message: fmt.Sprintf("%s was not recognized; assign its document type", d.FileName)})
		case needsReview(d, s.reviewThreshold):
			items = append(items, models.ReviewItem{Kind: models.ReviewLowConfidence, DocumentID: d.ID,
				Message: fmt.Sprintf("%s was read with confidence %.2f; check the extracted values", d.FileName, d.ConfidenceScore)})
		}
	}
	for _, r := range rows {
		if r.NeedsReview {
			items = append(items, models.ReviewItem{Kind: models.ReviewForm8949Row, RowID: r.ID, Message: r.ReviewReason})
		}
	}
	items = append(items, s.capitalGains.CrossCheck(brokerForms, rows)...)
	return items, nil
}

// GetCalculation returns the last saved calculation, from cache when possible.
func (s *returnServiceImpl) GetCalculation(ctx context.Context, taxReturnID string) (*CalculationResult, error) {
	key := fmt.Sprintf(ckCalculation, taxReturnID)
	if cached, found := s.reportCache.Get(key); found {
		logger.FromContext(ctx).Debug("Cache hit for calculation", "taxReturnID", taxReturnID)
		return cached.(*CalculationResult), nil
	}

	snap, err := s.store.GetCalculation(ctx, taxReturnID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.LoadIncomeRecords(ctx, taxReturnID)
	if err != nil {
		return nil, err
	}
	review, err := s.reviewItems(ctx, taxReturnID, records.Bs, snap.Form8949)
	if err != nil {
		return nil, err
	}
	result := &CalculationResult{CalculationSnapshot: snap, ReviewItems: review}
	s.reportCache.SetDefault(key, result)
	return result, nil
}

func (s *returnServiceImpl) AddManualAdjustment(ctx context.Context, adj models.ManualAdjustment) (*models.ManualAdjustment, error) {
	if _, err := s.store.GetReturn(ctx, adj.TaxReturnID); err != nil {
		return nil, err
	}
	if adj.EntryID == "" && !adj.Proceeds.Valid && !adj.CostBasis.Valid {
		return nil, fmt.Errorf("%w: a manual disposition needs proceeds or cost basis", ErrInvalidInput)
	}
	adj.DateAcquired = utils.NormalizeDate(adj.DateAcquired)
	adj.DateSold = utils.NormalizeDate(adj.DateSold)
	if err := s.store.AddAdjustment(ctx, &adj); err != nil {
		return nil, err
	}
	invalidateCalculation(s.reportCache, adj.TaxReturnID)
	logger.FromContext(ctx).Info("Manual adjustment added", "taxReturnID", adj.TaxReturnID, "adjustmentID", adj.ID, "entryID", adj.EntryID)
	return &adj, nil
}

func (s *returnServiceImpl) ListManualAdjustments(ctx context.Context, taxReturnID string) ([]models.ManualAdjustment, error) {
	if _, err := s.store.GetReturn(ctx, taxReturnID); err != nil {
		return nil, err
	}
	return s.store.ListAdjustments(ctx, taxReturnID)
}

func (s *returnServiceImpl) DeleteManualAdjustment(ctx context.Context, taxReturnID, adjustmentID string) error {
	if err := s.store.DeleteAdjustment(ctx, taxReturnID, adjustmentID); err != nil {
		return err
	}
	invalidateCalculation(s.reportCache, taxReturnID)
	return nil
}

// ListForm8949 returns the rows of the last calculation.
func (s *returnServiceImpl) ListForm8949(ctx context.Context, taxReturnID string) ([]models.Form8949, error) {
	if _, err := s.store.GetReturn(ctx, taxReturnID); err != nil {
		return nil, err
	}
	return s.store.ListForm8949(ctx, taxReturnID)
}
