package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/username/taxcore/src/models"
)

func deleteFields(ctx context.Context, tx *sql.Tx, documentID string) error {
	for _, table := range []string{"w2_data", "form_1099_div", "form_1099_int", "form_1099_b"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE document_id = ?`, documentID); err != nil {
			return fmt.Errorf("error clearing %s for document %s: %w", table, documentID, err)
		}
	}
	return nil
}

func insertFields(ctx context.Context, tx *sql.Tx, doc models.Document, f models.ExtractedFields, at time.Time) error {
	created := timestamp(at)
	if w := f.W2; w != nil {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO w2_data (id, document_id, tax_return_id, employer_name, employer_ein, employee_name, wages, federal_withheld,
				social_security_wages, social_security_withheld, medicare_wages, medicare_withheld, state_code, state_wages, state_withheld, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			newID(""), doc.ID, doc.TaxReturnID, w.EmployerName, w.EmployerEIN, w.EmployeeName, money(w.Wages), money(w.FederalWithheld),
			money(w.SocialSecurityWages), money(w.SocialSecurityWithheld), money(w.MedicareWages), money(w.MedicareWithheld),
			w.StateCode, money(w.StateWages), money(w.StateWithheld), created)
		if err != nil {
			return fmt.Errorf("error inserting W-2 for document %s: %w", doc.ID, err)
		}
	}
	if d := f.Div; d != nil {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO form_1099_div (id, document_id, tax_return_id, payer_name, payer_tin, ordinary_dividends, qualified_dividends,
				capital_gain_distributions, federal_withheld, foreign_tax_paid, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			newID(""), doc.ID, doc.TaxReturnID, d.PayerName, d.PayerTIN, money(d.OrdinaryDividends), money(d.QualifiedDividends),
			money(d.CapitalGainDistributions), money(d.FederalWithheld), money(d.ForeignTaxPaid), created)
		if err != nil {
			return fmt.Errorf("error inserting 1099-DIV for document %s: %w", doc.ID, err)
		}
	}
	if i := f.Int; i != nil {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO form_1099_int (id, document_id, tax_return_id, payer_name, payer_tin, interest_income, early_withdrawal_penalty,
				treasury_interest, federal_withheld, tax_exempt_interest, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			newID(""), doc.ID, doc.TaxReturnID, i.PayerName, i.PayerTIN, money(i.InterestIncome), money(i.EarlyWithdrawalPenalty),
			money(i.TreasuryInterest), money(i.FederalWithheld), money(i.TaxExemptInterest), created)
		if err != nil {
			return fmt.Errorf("error inserting 1099-INT for document %s: %w", doc.ID, err)
		}
	}
	if b := f.B; b != nil {
		formID := newID("")
		_, err := tx.ExecContext(ctx, `
			INSERT INTO form_1099_b (id, document_id, tax_return_id, payer_name, payer_tin, federal_withheld, short_term_subtotal, long_term_subtotal, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			formID, doc.ID, doc.TaxReturnID, b.PayerName, b.PayerTIN, money(b.FederalWithheld),
			nullMoney(b.ShortTermSubtotal), nullMoney(b.LongTermSubtotal), created)
		if err != nil {
			return fmt.Errorf("error inserting 1099-B for document %s: %w", doc.ID, err)
		}
		for pos, e := range b.Entries {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO form_1099_b_entries (id, form_1099b_id, position, description, date_acquired, date_sold, proceeds, cost_basis,
					gain_loss, is_short_term, wash_sale, wash_sale_amount, reported_to_irs)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				newID(""), formID, pos, e.Description, e.DateAcquired, e.DateSold, nullMoney(e.Proceeds), nullMoney(e.CostBasis),
				money(e.GainLoss), e.IsShortTerm, e.WashSale, money(e.WashSaleAmount), e.ReportedToIRS)
			if err != nil {
				return fmt.Errorf("error inserting 1099-B entry %d for document %s: %w", pos, doc.ID, err)
			}
		}
	}
	return nil
}

func (s *SQLiteStore) loadW2s(ctx context.Context, column, key string) ([]models.W2Data, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, tax_return_id, employer_name, employer_ein, employee_name, wages, federal_withheld,
			social_security_wages, social_security_withheld, medicare_wages, medicare_withheld, state_code, state_wages, state_withheld, created_at
		FROM w2_data WHERE `+column+` = ? ORDER BY created_at, id`, key)
	if err != nil {
		return nil, fmt.Errorf("error querying W-2 data: %w", err)
	}
	defer rows.Close()

	var out []models.W2Data
	for rows.Next() {
		var w models.W2Data
		var created string
		if err := rows.Scan(&w.ID, &w.DocumentID, &w.TaxReturnID, &w.EmployerName, &w.EmployerEIN, &w.EmployeeName, &w.Wages, &w.FederalWithheld,
			&w.SocialSecurityWages, &w.SocialSecurityWithheld, &w.MedicareWages, &w.MedicareWithheld, &w.StateCode, &w.StateWages, &w.StateWithheld, &created); err != nil {
			return nil, fmt.Errorf("error scanning W-2 data: %w", err)
		}
		w.CreatedAt = parseTimestamp(created)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) loadDivs(ctx context.Context, column, key string) ([]models.Form1099Div, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, tax_return_id, payer_name, payer_tin, ordinary_dividends, qualified_dividends,
			capital_gain_distributions, federal_withheld, foreign_tax_paid, created_at
		FROM form_1099_div WHERE `+column+` = ? ORDER BY created_at, id`, key)
	if err != nil {
		return nil, fmt.Errorf("error querying 1099-DIV data: %w", err)
	}
	defer rows.Close()

	var out []models.Form1099Div
	for rows.Next() {
		var d models.Form1099Div
		var created string
		if err := rows.Scan(&d.ID, &d.DocumentID, &d.TaxReturnID, &d.PayerName, &d.PayerTIN, &d.OrdinaryDividends, &d.QualifiedDividends,
			&d.CapitalGainDistributions, &d.FederalWithheld, &d.ForeignTaxPaid, &created); err != nil {
			return nil, fmt.Errorf("error scanning 1099-DIV data: %w", err)
		}
		d.CreatedAt = parseTimestamp(created)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) loadInts(ctx context.Context, column, key string) ([]models.Form1099Int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, tax_return_id, payer_name, payer_tin, interest_income, early_withdrawal_penalty,
			treasury_interest, federal_withheld, tax_exempt_interest, created_at
		FROM form_1099_int WHERE `+column+` = ? ORDER BY created_at, id`, key)
	if err != nil {
		return nil, fmt.Errorf("error querying 1099-INT data: %w", err)
	}
	defer rows.Close()

	var out []models.Form1099Int
	for rows.Next() {
		var i models.Form1099Int
		var created string
		if err := rows.Scan(&i.ID, &i.DocumentID, &i.TaxReturnID, &i.PayerName, &i.PayerTIN, &i.InterestIncome, &i.EarlyWithdrawalPenalty,
			&i.TreasuryInterest, &i.FederalWithheld, &i.TaxExemptInterest, &created); err != nil {
			return nil, fmt.Errorf("error scanning 1099-INT data: %w", err)
		}
		i.CreatedAt = parseTimestamp(created)
		out = append(out, i)
	}
	return out, rows.Err()
}

// loadBs reads the broker forms and then their entries; the two queries
// never overlap so a single-connection pool is enough.
func (s *SQLiteStore) loadBs(ctx context.Context, column, key string) ([]models.Form1099B, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, tax_return_id, payer_name, payer_tin, federal_withheld, short_term_subtotal, long_term_subtotal, created_at
		FROM form_1099_b WHERE `+column+` = ? ORDER BY created_at, id`, key)
	if err != nil {
		return nil, fmt.Errorf("error querying 1099-B data: %w", err)
	}
	var forms []models.Form1099B
	index := make(map[string]int)
	for rows.Next() {
		var b models.Form1099B
		var created string
		if err := rows.Scan(&b.ID, &b.DocumentID, &b.TaxReturnID, &b.PayerName, &b.PayerTIN, &b.FederalWithheld,
			&b.ShortTermSubtotal, &b.LongTermSubtotal, &created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("error scanning 1099-B data: %w", err)
		}
		b.CreatedAt = parseTimestamp(created)
		index[b.ID] = len(forms)
		forms = append(forms, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating 1099-B data: %w", err)
	}
	if len(forms) == 0 {
		return nil, nil
	}

	entries, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.form_1099b_id, e.description, e.date_acquired, e.date_sold, e.proceeds, e.cost_basis,
			e.gain_loss, e.is_short_term, e.wash_sale, e.wash_sale_amount, e.reported_to_irs
		FROM form_1099_b_entries e JOIN form_1099_b b ON b.id = e.form_1099b_id
		WHERE b.`+column+` = ? ORDER BY e.form_1099b_id, e.position`, key)
	if err != nil {
		return nil, fmt.Errorf("error querying 1099-B entries: %w", err)
	}
	defer entries.Close()

	for entries.Next() {
		var e models.Form1099BEntry
		if err := entries.Scan(&e.ID, &e.Form1099BID, &e.Description, &e.DateAcquired, &e.DateSold, &e.Proceeds, &e.CostBasis,
			&e.GainLoss, &e.IsShortTerm, &e.WashSale, &e.WashSaleAmount, &e.ReportedToIRS); err != nil {
			return nil, fmt.Errorf("error scanning 1099-B entry: %w", err)
		}
		if i, ok := index[e.Form1099BID]; ok {
			forms[i].Entries = append(forms[i].Entries, e)
		}
	}
	return forms, entries.Err()
}

// GetFields returns the extracted record of a document, or ErrNotFound when
// it has none.
func (s *SQLiteStore) GetFields(ctx context.Context, documentID string) (models.ExtractedFields, error) {
	var f models.ExtractedFields

	w2s, err := s.loadW2s(ctx, "document_id", documentID)
	if err != nil {
		return f, err
	}
	if len(w2s) > 0 {
		f.DocumentType, f.W2 = models.DocTypeW2, &w2s[0].W2Fields
		return f, nil
	}
	divs, err := s.loadDivs(ctx, "document_id", documentID)
	if err != nil {
		return f, err
	}
	if len(divs) > 0 {
		f.DocumentType, f.Div = models.DocType1099Div, &divs[0].Form1099DivFields
		return f, nil
	}
	ints, err := s.loadInts(ctx, "document_id", documentID)
	if err != nil {
		return f, err
	}
	if len(ints) > 0 {
		f.DocumentType, f.Int = models.DocType1099Int, &ints[0].Form1099IntFields
		return f, nil
	}
	bs, err := s.loadBs(ctx, "document_id", documentID)
	if err != nil {
		return f, err
	}
	if len(bs) > 0 {
		b := bs[0]
		fields := models.Form1099BFields{
			PayerName:         b.PayerName,
			PayerTIN:          b.PayerTIN,
			FederalWithheld:   b.FederalWithheld,
			ShortTermSubtotal: b.ShortTermSubtotal,
			LongTermSubtotal:  b.LongTermSubtotal,
		}
		for _, e := range b.Entries {
			fields.Entries = append(fields.Entries, e.Form1099BEntryFields)
		}
		f.DocumentType, f.B = models.DocType1099B, &fields
		return f, nil
	}
	return f, fmt.Errorf("%w: extracted fields for document %s", ErrNotFound, documentID)
}

func (s *SQLiteStore) LoadIncomeRecords(ctx context.Context, taxReturnID string) (models.IncomeRecords, error) {
	var r models.IncomeRecords
	var err error
	if r.W2s, err = s.loadW2s(ctx, "tax_return_id", taxReturnID); err != nil {
		return r, err
	}
	if r.Divs, err = s.loadDivs(ctx, "tax_return_id", taxReturnID); err != nil {
		return r, err
	}
	if r.Ints, err = s.loadInts(ctx, "tax_return_id", taxReturnID); err != nil {
		return r, err
	}
	if r.Bs, err = s.loadBs(ctx, "tax_return_id", taxReturnID); err != nil {
		return r, err
	}
	return r, nil
}
