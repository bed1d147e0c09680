package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/username/taxcore/src/models"
	"github.com/username/taxcore/src/utils"
)

const taxYearColumns = `id, year, is_active, federal_deadline, capital_loss_limit`

func scanTaxYear(row rowScanner) (models.TaxYear, error) {
	var ty models.TaxYear
	var deadline string
	if err := row.Scan(&ty.ID, &ty.Year, &ty.IsActive, &deadline, &ty.CapitalLossLimit); err != nil {
		return ty, err
	}
	if deadline != "" {
		ty.FederalDeadline, _ = time.Parse(utils.DefaultDateFormat, deadline)
	}
	return ty, nil
}

func (s *SQLiteStore) loadStateDeadlines(ctx context.Context, q queryer, ty *models.TaxYear) error {
	rows, err := q.QueryContext(ctx, `SELECT state, deadline FROM state_deadlines WHERE tax_year_id = ? ORDER BY state`, ty.ID)
	if err != nil {
		return fmt.Errorf("error querying state deadlines for year %d: %w", ty.Year, err)
	}
	defer rows.Close()

	ty.StateDeadlines = make(map[models.Jurisdiction]time.Time)
	for rows.Next() {
		var state, deadline string
		if err := rows.Scan(&state, &deadline); err != nil {
			return fmt.Errorf("error scanning state deadline: %w", err)
		}
		d, err := time.Parse(utils.DefaultDateFormat, deadline)
		if err != nil {
			return fmt.Errorf("invalid deadline %q for %s: %w", deadline, state, err)
		}
		ty.StateDeadlines[models.Jurisdiction(state)] = d
	}
	return rows.Err()
}

func (s *SQLiteStore) GetActiveYear(ctx context.Context) (models.TaxYear, error) {
	ty, err := scanTaxYear(s.db.QueryRowContext(ctx, `SELECT `+taxYearColumns+` FROM tax_years WHERE is_active = 1 ORDER BY year DESC LIMIT 1`))
	if err != nil {
		return ty, notFound(err, "active tax year", "")
	}
	return ty, s.loadStateDeadlines(ctx, s.db, &ty)
}

func (s *SQLiteStore) GetTaxYear(ctx context.Context, year int) (models.TaxYear, error) {
	ty, err := scanTaxYear(s.db.QueryRowContext(ctx, `SELECT `+taxYearColumns+` FROM tax_years WHERE year = ?`, year))
	if err != nil {
		return ty, notFound(err, "tax year", year)
	}
	return ty, s.loadStateDeadlines(ctx, s.db, &ty)
}

func (s *SQLiteStore) ListTaxYears(ctx context.Context) ([]models.TaxYear, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taxYearColumns+` FROM tax_years ORDER BY year`)
	if err != nil {
		return nil, fmt.Errorf("error querying tax years: %w", err)
	}
	var years []models.TaxYear
	for rows.Next() {
		ty, err := scanTaxYear(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("error scanning tax year: %w", err)
		}
		years = append(years, ty)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tax years: %w", err)
	}

	for i := range years {
		if err := s.loadStateDeadlines(ctx, s.db, &years[i]); err != nil {
			return nil, err
		}
	}
	return years, nil
}

// GetBrackets returns the table ordered by min income; an empty slice when
// no table exists for the key.
func (s *SQLiteStore) GetBrackets(ctx context.Context, taxYearID string, jurisdiction models.Jurisdiction, status models.FilingStatus) ([]models.TaxBracket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tax_year_id, jurisdiction, filing_status, min_income, max_income, rate
		FROM tax_brackets
		WHERE tax_year_id = ? AND jurisdiction = ? AND filing_status = ?`,
		taxYearID, string(jurisdiction), string(status))
	if err != nil {
		return nil, fmt.Errorf("error querying brackets: %w", err)
	}
	defer rows.Close()

	var brackets []models.TaxBracket
	for rows.Next() {
		var b models.TaxBracket
		var j, fs string
		if err := rows.Scan(&b.ID, &b.TaxYearID, &j, &fs, &b.MinIncome, &b.MaxIncome, &b.Rate); err != nil {
			return nil, fmt.Errorf("error scanning bracket: %w", err)
		}
		b.Jurisdiction = models.Jurisdiction(j)
		b.FilingStatus = models.FilingStatus(fs)
		brackets = append(brackets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating brackets: %w", err)
	}
	// TEXT amounts do not sort numerically in SQL.
	sortBrackets(brackets)
	return brackets, nil
}

func sortBrackets(brackets []models.TaxBracket) {
	sort.SliceStable(brackets, func(i, j int) bool {
		return brackets[i].MinIncome.LessThan(brackets[j].MinIncome)
	})
}

func (s *SQLiteStore) GetStandardDeduction(ctx context.Context, taxYearID string, jurisdiction models.Jurisdiction, status models.FilingStatus) (models.StandardDeduction, error) {
	var d models.StandardDeduction
	var j, fs string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tax_year_id, jurisdiction, filing_status, amount, additional_blind_amount, additional_disabled_amount
		FROM standard_deductions
		WHERE tax_year_id = ? AND jurisdiction = ? AND filing_status = ?`,
		taxYearID, string(jurisdiction), string(status)).
		Scan(&d.ID, &d.TaxYearID, &j, &fs, &d.Amount, &d.AdditionalBlindAmount, &d.AdditionalDisabledAmount)
	if err != nil {
		return d, notFound(err, "standard deduction", fmt.Sprintf("%s/%s", jurisdiction, status))
	}
	d.Jurisdiction = models.Jurisdiction(j)
	d.FilingStatus = models.FilingStatus(fs)
	return d, nil
}

// ReplaceTaxYear drops any existing tables for cfg.Year.Year and writes cfg.
// When the year is active every other year is deactivated. IDs left empty
// are assigned.
func (s *SQLiteStore) ReplaceTaxYear(ctx context.Context, cfg *TaxYearConfig) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tax_years WHERE year = ?`, cfg.Year.Year); err != nil {
			return fmt.Errorf("error clearing tax year %d: %w", cfg.Year.Year, err)
		}
		if cfg.Year.IsActive {
			if _, err := tx.ExecContext(ctx, `UPDATE tax_years SET is_active = 0`); err != nil {
				return fmt.Errorf("error deactivating tax years: %w", err)
			}
		}

		cfg.Year.ID = newID(cfg.Year.ID)
		deadline := ""
		if !cfg.Year.FederalDeadline.IsZero() {
			deadline = cfg.Year.FederalDeadline.Format(utils.DefaultDateFormat)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO tax_years (`+taxYearColumns+`) VALUES (?, ?, ?, ?, ?)`,
			cfg.Year.ID, cfg.Year.Year, cfg.Year.IsActive, deadline, money(cfg.Year.CapitalLossLimit)); err != nil {
			return fmt.Errorf("error inserting tax year %d: %w", cfg.Year.Year, err)
		}

		for state, d := range cfg.Year.StateDeadlines {
			if _, err := tx.ExecContext(ctx, `INSERT INTO state_deadlines (tax_year_id, state, deadline) VALUES (?, ?, ?)`,
				cfg.Year.ID, string(state), d.Format(utils.DefaultDateFormat)); err != nil {
				return fmt.Errorf("error inserting %s deadline: %w", state, err)
			}
		}

		for i := range cfg.Brackets {
			b := &cfg.Brackets[i]
			b.ID = newID(b.ID)
			b.TaxYearID = cfg.Year.ID
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO tax_brackets (id, tax_year_id, jurisdiction, filing_status, min_income, max_income, rate)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				b.ID, b.TaxYearID, string(b.Jurisdiction), string(b.FilingStatus), money(b.MinIncome), nullMoney(b.MaxIncome), rate(b.Rate)); err != nil {
				return fmt.Errorf("error inserting %s/%s bracket: %w", b.Jurisdiction, b.FilingStatus, err)
			}
		}

		for i := range cfg.Deductions {
			d := &cfg.Deductions[i]
			d.ID = newID(d.ID)
			d.TaxYearID = cfg.Year.ID
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO standard_deductions (id, tax_year_id, jurisdiction, filing_status, amount, additional_blind_amount, additional_disabled_amount)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				d.ID, d.TaxYearID, string(d.Jurisdiction), string(d.FilingStatus), money(d.Amount), money(d.AdditionalBlindAmount), money(d.AdditionalDisabledAmount)); err != nil {
				return fmt.Errorf("error inserting %s/%s standard deduction: %w", d.Jurisdiction, d.FilingStatus, err)
			}
		}
		return nil
	})
}
