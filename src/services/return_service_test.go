package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/taxcore/src/models"
	"github.com/username/taxcore/src/repository"
	"github.com/username/taxcore/src/taxconfig"
)

func TestCalculateSingleW2Return(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ret := env.newReturn(t, "IL")
	assert.Equal(t, 2024, ret.TaxYear, "the active year is used when none is given")

	res, err := env.docs.ProcessDocument(ctx, upload(ret.ID, "w2.txt", w2Text))
	require.NoError(t, err)
	require.Equal(t, models.StatusParsed, res.Document.Status)
	require.Equal(t, models.DocTypeW2, res.Document.DocumentType)
	assert.False(t, res.NeedsReview)

	calc, err := env.returns.Calculate(ctx, ret.ID, "")
	require.NoError(t, err)

	f := calc.Form1040
	assert.Equal(t, "60000.00", f.AGI.StringFixed(2))
	assert.Equal(t, "14600.00", f.StandardDeduction.StringFixed(2))
	assert.Equal(t, "45400.00", f.TaxableIncome.StringFixed(2))
	assert.Equal(t, "5216.00", f.TotalTax.StringFixed(2))
	assert.Equal(t, "2784.00", f.Refund.StringFixed(2))
	assert.True(t, f.AmountOwed.IsZero())
	assert.Equal(t, "0.1200", f.MarginalRate.StringFixed(4))

	assert.Equal(t, models.ReturnCalculated, calc.TaxReturn.Status)
	assert.Equal(t, "2784.00", calc.TaxReturn.RefundOrOwed.StringFixed(2))
	require.NotNil(t, calc.TaxReturn.CalculatedAt)

	require.Len(t, calc.StateReturns, 1)
	il := calc.StateReturns[0]
	assert.Equal(t, models.Jurisdiction("IL"), il.State)
	assert.Equal(t, "57225.00", il.TaxableIncome.StringFixed(2))
	assert.Equal(t, "2832.64", il.Tax.StringFixed(2))
	assert.Equal(t, "137.36", il.RefundOrOwed.StringFixed(2))
	assert.Empty(t, calc.ReviewItems)

	stored, err := env.returns.GetReturn(ctx, ret.ID)
	require.NoError(t, err)
	assert.Equal(t, "45400.00", stored.TaxableIncome.StringFixed(2))
	assert.Equal(t, models.ReturnCalculated, stored.Status)
}

func TestCalculateFilingStatusOverride(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ret := env.newReturn(t, "IL")
	_, err := env.docs.ProcessDocument(ctx, upload(ret.ID, "w2.txt", w2Text))
	require.NoError(t, err)

	calc, err := env.returns.Calculate(ctx, ret.ID, "mfj")
	require.NoError(t, err)
	assert.Equal(t, models.FilingMarriedJointly, calc.TaxReturn.FilingStatus)
	assert.Equal(t, "30800.00", calc.Form1040.TaxableIncome.StringFixed(2))
	// 10% of 23200 plus 12% of 7600
	assert.Equal(t, "3232.00", calc.Form1040.TotalTax.StringFixed(2))

	_, err = env.returns.Calculate(ctx, ret.ID, "divorced")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCalculateMissingStateConfig(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ret := env.newReturn(t, "CA")

	_, err := env.returns.Calculate(ctx, ret.ID, "")
	require.ErrorIs(t, err, taxconfig.ErrConfigNotFound)
	assert.Contains(t, err.Error(), "CA")

	_, err = env.returns.GetCalculation(ctx, ret.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound, "a failed calculation saves nothing")
}

func TestCalculateStateWithoutIncomeTax(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ret := env.newReturn(t, "WA")

	calc, err := env.returns.Calculate(ctx, ret.ID, "")
	require.NoError(t, err)
	require.Len(t, calc.StateReturns, 1)
	wa := calc.StateReturns[0]
	assert.Equal(t, models.Jurisdiction("WA"), wa.State)
	assert.True(t, wa.Tax.IsZero())
	assert.True(t, wa.RefundOrOwed.IsZero())
}

func TestCalculateWithManualDisposition(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ret := env.newReturn(t, "TX")

	_, err := env.returns.AddManualAdjustment(ctx, models.ManualAdjustment{TaxReturnID: ret.ID, Description: "10 XYZ"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	adj, err := env.returns.AddManualAdjustment(ctx, models.ManualAdjustment{
		TaxReturnID:  ret.ID,
		Description:  "10 XYZ",
		DateAcquired: "03/01/2024",
		DateSold:     "06/01/2024",
		Proceeds:     decimal.NewNullDecimal(dec("1000")),
		CostBasis:    decimal.NewNullDecimal(dec("400")),
		IsShortTerm:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", adj.DateAcquired)

	calc, err := env.returns.Calculate(ctx, ret.ID, "")
	require.NoError(t, err)
	require.Len(t, calc.Form8949, 1)
	assert.Equal(t, adj.ID, calc.Form8949[0].ID)
	assert.Equal(t, "600.00", calc.ScheduleD.NetShortTermGainLoss.StringFixed(2))
	assert.Equal(t, "600.00", calc.Form1040.CapitalGainLoss.StringFixed(2))
	assert.Equal(t, "600.00", calc.Form1040.AGI.StringFixed(2))
	assert.True(t, calc.Form1040.TaxableIncome.IsZero(), "the standard deduction absorbs the gain")
	require.Len(t, calc.StateReturns, 1)
	assert.Equal(t, models.Jurisdiction("TX"), calc.StateReturns[0].State)

	rows, err := env.returns.ListForm8949(ctx, ret.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	require.NoError(t, env.returns.DeleteManualAdjustment(ctx, ret.ID, adj.ID))
	adjs, err := env.returns.ListManualAdjustments(ctx, ret.ID)
	require.NoError(t, err)
	assert.Empty(t, adjs)

	// the cached result was dropped; the stored one is still the last calculation
	stale, err := env.returns.GetCalculation(ctx, ret.ID)
	require.NoError(t, err)
	assert.Len(t, stale.Form8949, 1)

	calc, err = env.returns.Calculate(ctx, ret.ID, "")
	require.NoError(t, err)
	assert.Empty(t, calc.Form8949)
	assert.True(t, calc.Form1040.AGI.IsZero())
}

func TestGetCalculationReportsReviewItems(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ret := env.newReturn(t, "IL")

	_, err := env.docs.ProcessDocument(ctx, upload(ret.ID, "notes.txt", "grocery list: eggs, milk"))
	require.NoError(t, err)
	_, err = env.returns.Calculate(ctx, ret.ID, "")
	require.NoError(t, err)

	calc, err := env.returns.GetCalculation(ctx, ret.ID)
	require.NoError(t, err)
	require.Len(t, calc.ReviewItems, 1)
	assert.Equal(t, models.ReviewUnclassified, calc.ReviewItems[0].Kind)
}

func TestReturnLifecycleErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.returns.CreateReturn(ctx, CreateReturnInput{FilingStatus: models.FilingSingle})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.returns.CreateReturn(ctx, CreateReturnInput{UserID: "u", TaxYear: 2019, FilingStatus: models.FilingSingle})
	assert.ErrorIs(t, err, taxconfig.ErrConfigNotFound)

	_, err = env.returns.Calculate(ctx, "missing", "")
	assert.True(t, IsNotFound(err))

	ret := env.newReturn(t, "IL")
	profile := ret.Profile
	profile.BankInfo = models.BankInfo{RoutingNumber: "123456789", AccountNumber: "1234", AccountType: models.AccountChecking}
	_, err = env.returns.UpdateProfile(ctx, ret.ID, models.FilingSingle, profile)
	assert.ErrorIs(t, err, models.ErrInvalidProfile)

	profile.BankInfo.RoutingNumber = "011000015"
	updated, err := env.returns.UpdateProfile(ctx, ret.ID, "hoh", profile)
	require.NoError(t, err)
	assert.Equal(t, models.FilingHeadOfHousehold, updated.FilingStatus)
	assert.Equal(t, "011000015", updated.Profile.BankInfo.RoutingNumber)

	list, err := env.returns.ListReturns(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCalculationsOfOneReturnAreSerialized(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ret := env.newReturn(t, "IL")
	_, err := env.docs.ProcessDocument(ctx, upload(ret.ID, "w2.txt", w2Text))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var failures atomic.Int32
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			calc, err := env.returns.Calculate(ctx, ret.ID, "")
			if err != nil || !calc.Form1040.TotalTax.Equal(dec("5216")) {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, failures.Load())
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	var active, maxActive atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("a")
			defer unlock()
			n := active.Add(1)
			if n > maxActive.Load() {
				maxActive.Store(n)
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxActive.Load())

	unlockA := k.Lock("a")
	done := make(chan struct{})
	go func() {
		k.Lock("b")()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("different keys must not block each other")
	}
	unlockA()

	k.mu.Lock()
	defer k.mu.Unlock()
	assert.Empty(t, k.locks)
}
