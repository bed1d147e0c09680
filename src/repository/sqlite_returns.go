package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/username/taxcore/src/models"
)

const returnColumns = `id, user_id, tax_year, filing_status,
	first_name, last_name, contact_email,
	address_line1, address_line2, address_city, address_state, address_zip,
	bank_routing_number, bank_account_number, bank_account_type,
	taxpayer_blind, taxpayer_disabled, spouse_blind, spouse_disabled,
	status, total_income, adjustments, adjusted_gross_income, deduction, taxable_income,
	total_tax, total_withheld, refund_or_owed, calculated_at, created_at, updated_at`

func scanReturn(row rowScanner) (models.TaxReturn, error) {
	var r models.TaxReturn
	var fs, accountType, status, created, updated string
	var calculated sql.NullString
	p := &r.Profile
	err := row.Scan(&r.ID, &r.UserID, &r.TaxYear, &fs,
		&p.FirstName, &p.LastName, &p.ContactEmail,
		&p.Address.Line1, &p.Address.Line2, &p.Address.City, &p.Address.State, &p.Address.Zip,
		&p.BankInfo.RoutingNumber, &p.BankInfo.AccountNumber, &accountType,
		&p.TaxpayerBlind, &p.TaxpayerDisabled, &p.SpouseBlind, &p.SpouseDisabled,
		&status, &r.TotalIncome, &r.Adjustments, &r.AdjustedGrossIncome, &r.Deduction, &r.TaxableIncome,
		&r.TotalTax, &r.TotalWithheld, &r.RefundOrOwed, &calculated, &created, &updated)
	if err != nil {
		return r, err
	}
	r.FilingStatus = models.FilingStatus(fs)
	p.BankInfo.AccountType = models.AccountType(accountType)
	r.Status = models.ReturnStatus(status)
	r.CalculatedAt = parseNullTimestamp(calculated)
	r.CreatedAt = parseTimestamp(created)
	r.UpdatedAt = parseTimestamp(updated)
	return r, nil
}

func validateReturn(status models.FilingStatus, profile models.TaxpayerProfile) error {
	if !status.Valid() {
		return fmt.Errorf("%w: filing status %q", models.ErrInvalidProfile, status)
	}
	return profile.Validate()
}

func writeDependents(ctx context.Context, tx *sql.Tx, returnID string, deps []models.Dependent) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM dependents WHERE tax_return_id = ?`, returnID); err != nil {
		return fmt.Errorf("error clearing dependents for return %s: %w", returnID, err)
	}
	for i, d := range deps {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO dependents (tax_return_id, position, name, relationship, birth_date, ssn_last4)
			VALUES (?, ?, ?, ?, ?, ?)`, returnID, i, d.Name, d.Relationship, d.BirthDate, d.SSNLast4); err != nil {
			return fmt.Errorf("error inserting dependent %s: %w", d.Name, err)
		}
	}
	return nil
}

func (s *SQLiteStore) loadDependents(ctx context.Context, r *models.TaxReturn) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, relationship, birth_date, ssn_last4 FROM dependents
		WHERE tax_return_id = ? ORDER BY position`, r.ID)
	if err != nil {
		return fmt.Errorf("error querying dependents: %w", err)
	}
	defer rows.Close()

	r.Profile.Dependents = nil
	for rows.Next() {
		var d models.Dependent
		if err := rows.Scan(&d.Name, &d.Relationship, &d.BirthDate, &d.SSNLast4); err != nil {
			return fmt.Errorf("error scanning dependent: %w", err)
		}
		r.Profile.Dependents = append(r.Profile.Dependents, d)
	}
	return rows.Err()
}

// CreateReturn inserts a draft return. The profile is validated first.
func (s *SQLiteStore) CreateReturn(ctx context.Context, r *models.TaxReturn) error {
	if err := validateReturn(r.FilingStatus, r.Profile); err != nil {
		return err
	}
	r.ID = newID(r.ID)
	now := s.now()
	r.CreatedAt, r.UpdatedAt = now, now
	if r.Status == "" {
		r.Status = models.ReturnDraft
	}
	p := r.Profile
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO tax_returns (`+returnColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.UserID, r.TaxYear, string(r.FilingStatus),
			p.FirstName, p.LastName, p.ContactEmail,
			p.Address.Line1, p.Address.Line2, p.Address.City, p.Address.State, p.Address.Zip,
			p.BankInfo.RoutingNumber, p.BankInfo.AccountNumber, string(p.BankInfo.AccountType),
			p.TaxpayerBlind, p.TaxpayerDisabled, p.SpouseBlind, p.SpouseDisabled,
			string(r.Status), money(r.TotalIncome), money(r.Adjustments), money(r.AdjustedGrossIncome), money(r.Deduction), money(r.TaxableIncome),
			money(r.TotalTax), money(r.TotalWithheld), money(r.RefundOrOwed), nullTimestamp(r.CalculatedAt), timestamp(r.CreatedAt), timestamp(r.UpdatedAt))
		if err != nil {
			return fmt.Errorf("error inserting tax return: %w", err)
		}
		return writeDependents(ctx, tx, r.ID, p.Dependents)
	})
}

func (s *SQLiteStore) GetReturn(ctx context.Context, id string) (models.TaxReturn, error) {
	r, err := scanReturn(s.db.QueryRowContext(ctx, `SELECT `+returnColumns+` FROM tax_returns WHERE id = ?`, id))
	if err != nil {
		return r, notFound(err, "tax return", id)
	}
	return r, s.loadDependents(ctx, &r)
}

func (s *SQLiteStore) ListReturns(ctx context.Context, userID string) ([]models.TaxReturn, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+returnColumns+` FROM tax_returns WHERE user_id = ? ORDER BY tax_year DESC, created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying tax returns: %w", err)
	}
	var out []models.TaxReturn
	for rows.Next() {
		r, err := scanReturn(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("error scanning tax return: %w", err)
		}
		out = append(out, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tax returns: %w", err)
	}
	for i := range out {
		if err := s.loadDependents(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// UpdateProfile replaces the user-entered part of a return. The profile is
// validated first.
func (s *SQLiteStore) UpdateProfile(ctx context.Context, id string, status models.FilingStatus, p models.TaxpayerProfile) error {
	if err := validateReturn(status, p); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE tax_returns SET filing_status = ?,
				first_name = ?, last_name = ?, contact_email = ?,
				address_line1 = ?, address_line2 = ?, address_city = ?, address_state = ?, address_zip = ?,
				bank_routing_number = ?, bank_account_number = ?, bank_account_type = ?,
				taxpayer_blind = ?, taxpayer_disabled = ?, spouse_blind = ?, spouse_disabled = ?,
				updated_at = ?
			WHERE id = ?`,
			string(status),
			p.FirstName, p.LastName, p.ContactEmail,
			p.Address.Line1, p.Address.Line2, p.Address.City, p.Address.State, p.Address.Zip,
			p.BankInfo.RoutingNumber, p.BankInfo.AccountNumber, string(p.BankInfo.AccountType),
			p.TaxpayerBlind, p.TaxpayerDisabled, p.SpouseBlind, p.SpouseDisabled,
			timestamp(s.now()), id)
		if err != nil {
			return fmt.Errorf("error updating profile for return %s: %w", id, err)
		}
		if err := checkAffected(res, "tax return", id); err != nil {
			return err
		}
		return writeDependents(ctx, tx, id, p.Dependents)
	})
}

const adjustmentColumns = `id, tax_return_id, entry_id, description, date_acquired, date_sold, proceeds, cost_basis,
	adjustment_code, adjustment_amount, is_short_term`

func (s *SQLiteStore) AddAdjustment(ctx context.Context, adj *models.ManualAdjustment) error {
	adj.ID = newID(adj.ID)
	_, err := s.db.ExecContext(ctx, `INSERT INTO manual_adjustments (`+adjustmentColumns+`, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		adj.ID, adj.TaxReturnID, adj.EntryID, adj.Description, adj.DateAcquired, adj.DateSold, nullMoney(adj.Proceeds), nullMoney(adj.CostBasis),
		adj.AdjustmentCode, money(adj.AdjustmentAmount), adj.IsShortTerm, timestamp(s.now()))
	if err != nil {
		return fmt.Errorf("error inserting manual adjustment: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAdjustments(ctx context.Context, taxReturnID string) ([]models.ManualAdjustment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+adjustmentColumns+` FROM manual_adjustments WHERE tax_return_id = ? ORDER BY created_at, id`, taxReturnID)
	if err != nil {
		return nil, fmt.Errorf("error querying manual adjustments: %w", err)
	}
	defer rows.Close()

	var out []models.ManualAdjustment
	for rows.Next() {
		var a models.ManualAdjustment
		if err := rows.Scan(&a.ID, &a.TaxReturnID, &a.EntryID, &a.Description, &a.DateAcquired, &a.DateSold, &a.Proceeds, &a.CostBasis,
			&a.AdjustmentCode, &a.AdjustmentAmount, &a.IsShortTerm); err != nil {
			return nil, fmt.Errorf("error scanning manual adjustment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteAdjustment(ctx context.Context, taxReturnID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM manual_adjustments WHERE tax_return_id = ? AND id = ?`, taxReturnID, id)
	if err != nil {
		return fmt.Errorf("error deleting manual adjustment %s: %w", id, err)
	}
	return checkAffected(res, "manual adjustment", id)
}

func (s *SQLiteStore) SaveCalculation(ctx context.Context, snap models.CalculationSnapshot) error {
	r := snap.TaxReturn
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE tax_returns SET filing_status = ?, status = ?,
				total_income = ?, adjustments = ?, adjusted_gross_income = ?, deduction = ?, taxable_income = ?,
				total_tax = ?, total_withheld = ?, refund_or_owed = ?, calculated_at = ?, updated_at = ?
			WHERE id = ?`,
			string(r.FilingStatus), string(r.Status),
			money(r.TotalIncome), money(r.Adjustments), money(r.AdjustedGrossIncome), money(r.Deduction), money(r.TaxableIncome),
			money(r.TotalTax), money(r.TotalWithheld), money(r.RefundOrOwed), nullTimestamp(r.CalculatedAt), timestamp(s.now()), r.ID)
		if err != nil {
			return fmt.Errorf("error updating return summary %s: %w", r.ID, err)
		}
		if err := checkAffected(res, "tax return", r.ID); err != nil {
			return err
		}

		f := snap.Form1040
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO form_1040 (tax_return_id, tax_year, filing_status, wages, tax_exempt_interest, taxable_interest,
				qualified_dividends, ordinary_dividends, capital_gain_loss, other_income, total_income, adjustments, agi,
				standard_deduction, total_deductions, taxable_income, tax, total_tax, w2_withholding, form_1099_withholding,
				total_withholding, total_payments, refund, amount_owed, marginal_rate, calculated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, f.TaxYear, string(f.FilingStatus), money(f.Wages), money(f.TaxExemptInterest), money(f.TaxableInterest),
			money(f.QualifiedDividends), money(f.OrdinaryDividends), money(f.CapitalGainLoss), money(f.OtherIncome), money(f.TotalIncome),
			money(f.Adjustments), money(f.AGI), money(f.StandardDeduction), money(f.TotalDeductions), money(f.TaxableIncome),
			money(f.Tax), money(f.TotalTax), money(f.W2Withholding), money(f.Form1099Withholding), money(f.TotalWithholding),
			money(f.TotalPayments), money(f.Refund), money(f.AmountOwed), rate(f.MarginalRate), timestamp(f.CalculatedAt)); err != nil {
			return fmt.Errorf("error writing Form 1040 for %s: %w", r.ID, err)
		}

		d := snap.ScheduleD
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO schedule_d (tax_return_id, short_term_proceeds, short_term_cost_basis, short_term_adjustments,
				net_short_term_gain_loss, long_term_proceeds, long_term_cost_basis, long_term_adjustments, net_long_term_gain_loss, net_capital_gain_loss)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, money(d.ShortTermProceeds), money(d.ShortTermCostBasis), money(d.ShortTermAdjustments), money(d.NetShortTermGainLoss),
			money(d.LongTermProceeds), money(d.LongTermCostBasis), money(d.LongTermAdjustments), money(d.NetLongTermGainLoss), money(d.NetCapitalGainLoss)); err != nil {
			return fmt.Errorf("error writing Schedule D for %s: %w", r.ID, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM form_8949 WHERE tax_return_id = ?`, r.ID); err != nil {
			return fmt.Errorf("error clearing Form 8949 rows for %s: %w", r.ID, err)
		}
		for pos, row := range snap.Form8949 {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO form_8949 (tax_return_id, id, position, entry_id, source, box, description, date_acquired, date_sold,
					proceeds, cost_basis, adjustment_code, adjustment_amount, gain_or_loss, is_short_term, needs_review, review_reason, excluded_from_totals)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				r.ID, row.ID, pos, row.EntryID, row.Source, row.Box, row.Description, row.DateAcquired, row.DateSold,
				money(row.Proceeds), money(row.CostBasis), row.AdjustmentCode, money(row.AdjustmentAmount), money(row.GainOrLoss),
				row.IsShortTerm, row.NeedsReview, row.ReviewReason, row.ExcludedFromTotals); err != nil {
				return fmt.Errorf("error inserting Form 8949 row %s: %w", row.ID, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM state_tax_returns WHERE tax_return_id = ?`, r.ID); err != nil {
			return fmt.Errorf("error clearing state returns for %s: %w", r.ID, err)
		}
		for _, st := range snap.StateReturns {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO state_tax_returns (tax_return_id, state, income, deduction, taxable_income, tax, withheld, refund_or_owed, calculated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				r.ID, string(st.State), money(st.Income), money(st.Deduction), money(st.TaxableIncome), money(st.Tax),
				money(st.Withheld), money(st.RefundOrOwed), timestamp(st.CalculatedAt)); err != nil {
				return fmt.Errorf("error inserting %s return for %s: %w", st.State, r.ID, err)
			}
		}
		return nil
	})
}

// GetCalculation loads the last saved snapshot. A return that was never
// calculated yields ErrNotFound.
func (s *SQLiteStore) GetCalculation(ctx context.Context, taxReturnID string) (models.CalculationSnapshot, error) {
	var snap models.CalculationSnapshot
	r, err := s.GetReturn(ctx, taxReturnID)
	if err != nil {
		return snap, err
	}
	snap.TaxReturn = r

	f := &snap.Form1040
	var fs, calculated string
	err = s.db.QueryRowContext(ctx, `
		SELECT tax_return_id, tax_year, filing_status, wages, tax_exempt_interest, taxable_interest,
			qualified_dividends, ordinary_dividends, capital_gain_loss, other_income, total_income, adjustments, agi,
			standard_deduction, total_deductions, taxable_income, tax, total_tax, w2_withholding, form_1099_withholding,
			total_withholding, total_payments, refund, amount_owed, marginal_rate, calculated_at
		FROM form_1040 WHERE tax_return_id = ?`, taxReturnID).
		Scan(&f.TaxReturnID, &f.TaxYear, &fs, &f.Wages, &f.TaxExemptInterest, &f.TaxableInterest,
			&f.QualifiedDividends, &f.OrdinaryDividends, &f.CapitalGainLoss, &f.OtherIncome, &f.TotalIncome, &f.Adjustments, &f.AGI,
			&f.StandardDeduction, &f.TotalDeductions, &f.TaxableIncome, &f.Tax, &f.TotalTax, &f.W2Withholding, &f.Form1099Withholding,
			&f.TotalWithholding, &f.TotalPayments, &f.Refund, &f.AmountOwed, &f.MarginalRate, &calculated)
	if err != nil {
		return snap, notFound(err, "calculation for return", taxReturnID)
	}
	f.FilingStatus = models.FilingStatus(fs)
	f.CalculatedAt = parseTimestamp(calculated)

	d := &snap.ScheduleD
	d.TaxReturnID = taxReturnID
	err = s.db.QueryRowContext(ctx, `
		SELECT short_term_proceeds, short_term_cost_basis, short_term_adjustments, net_short_term_gain_loss,
			long_term_proceeds, long_term_cost_basis, long_term_adjustments, net_long_term_gain_loss, net_capital_gain_loss
		FROM schedule_d WHERE tax_return_id = ?`, taxReturnID).
		Scan(&d.ShortTermProceeds, &d.ShortTermCostBasis, &d.ShortTermAdjustments, &d.NetShortTermGainLoss,
			&d.LongTermProceeds, &d.LongTermCostBasis, &d.LongTermAdjustments, &d.NetLongTermGainLoss, &d.NetCapitalGainLoss)
	if err != nil {
		return snap, notFound(err, "Schedule D for return", taxReturnID)
	}

	if snap.Form8949, err = s.ListForm8949(ctx, taxReturnID); err != nil {
		return snap, err
	}
	if snap.StateReturns, err = s.listStateReturns(ctx, taxReturnID); err != nil {
		return snap, err
	}
	return snap, nil
}

func (s *SQLiteStore) ListForm8949(ctx context.Context, taxReturnID string) ([]models.Form8949, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tax_return_id, entry_id, source, box, description, date_acquired, date_sold, proceeds, cost_basis,
			adjustment_code, adjustment_amount, gain_or_loss, is_short_term, needs_review, review_reason, excluded_from_totals
		FROM form_8949 WHERE tax_return_id = ? ORDER BY position`, taxReturnID)
	if err != nil {
		return nil, fmt.Errorf("error querying Form 8949 rows: %w", err)
	}
	defer rows.Close()

	var out []models.Form8949
	for rows.Next() {
		var f models.Form8949
		if err := rows.Scan(&f.ID, &f.TaxReturnID, &f.EntryID, &f.Source, &f.Box, &f.Description, &f.DateAcquired, &f.DateSold,
			&f.Proceeds, &f.CostBasis, &f.AdjustmentCode, &f.AdjustmentAmount, &f.GainOrLoss, &f.IsShortTerm,
			&f.NeedsReview, &f.ReviewReason, &f.ExcludedFromTotals); err != nil {
			return nil, fmt.Errorf("error scanning Form 8949 row: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) listStateReturns(ctx context.Context, taxReturnID string) ([]models.StateTaxReturn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tax_return_id, state, income, deduction, taxable_income, tax, withheld, refund_or_owed, calculated_at
		FROM state_tax_returns WHERE tax_return_id = ? ORDER BY state`, taxReturnID)
	if err != nil {
		return nil, fmt.Errorf("error querying state returns: %w", err)
	}
	defer rows.Close()

	var out []models.StateTaxReturn
	for rows.Next() {
		var st models.StateTaxReturn
		var state, calculated string
		if err := rows.Scan(&st.TaxReturnID, &state, &st.Income, &st.Deduction, &st.TaxableIncome, &st.Tax,
			&st.Withheld, &st.RefundOrOwed, &calculated); err != nil {
			return nil, fmt.Errorf("error scanning state return: %w", err)
		}
		st.State = models.Jurisdiction(state)
		st.CalculatedAt = parseTimestamp(calculated)
		out = append(out, st)
	}
	return out, rows.Err()
}
