package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/username/taxcore/src/models"
)

const documentColumns = `id, tax_return_id, file_name, file_type, document_type, status, parsing_method,
	confidence_score, raw_text_content, error_message, created_at, updated_at`

func scanDocument(row rowScanner) (models.Document, error) {
	var d models.Document
	var docType, status, method, created, updated string
	err := row.Scan(&d.ID, &d.TaxReturnID, &d.FileName, &d.FileType, &docType, &status, &method,
		&d.ConfidenceScore, &d.RawTextContent, &d.ErrorMessage, &created, &updated)
	if err != nil {
		return d, err
	}
	d.DocumentType = models.DocumentType(docType)
	d.Status = models.DocumentStatus(status)
	d.ParsingMethod = models.ParsingMethod(method)
	d.CreatedAt = parseTimestamp(created)
	d.UpdatedAt = parseTimestamp(updated)
	return d, nil
}

func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	doc.ID = newID(doc.ID)
	now := s.now()
	doc.CreatedAt, doc.UpdatedAt = now, now
	if doc.Status == "" {
		doc.Status = models.StatusUploaded
	}
	if doc.DocumentType == "" {
		doc.DocumentType = models.DocTypeUnknown
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.TaxReturnID, doc.FileName, doc.FileType, string(doc.DocumentType), string(doc.Status), string(doc.ParsingMethod),
		doc.ConfidenceScore, doc.RawTextContent, doc.ErrorMessage, timestamp(doc.CreatedAt), timestamp(doc.UpdatedAt))
	if err != nil {
		return fmt.Errorf("error inserting document %s: %w", doc.FileName, err)
	}
	return nil
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (models.Document, error) {
	d, err := scanDocument(s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	if err != nil {
		return d, notFound(err, "document", id)
	}
	return d, nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, taxReturnID string) ([]models.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE tax_return_id = ? ORDER BY created_at, id`, taxReturnID)
	if err != nil {
		return nil, fmt.Errorf("error querying documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func updateDocument(ctx context.Context, q queryer, doc *models.Document) error {
	res, err := q.ExecContext(ctx, `
		UPDATE documents
		SET document_type = ?, status = ?, parsing_method = ?, confidence_score = ?, raw_text_content = ?, error_message = ?, updated_at = ?
		WHERE id = ?`,
		string(doc.DocumentType), string(doc.Status), string(doc.ParsingMethod), doc.ConfidenceScore,
		doc.RawTextContent, doc.ErrorMessage, timestamp(doc.UpdatedAt), doc.ID)
	if err != nil {
		return fmt.Errorf("error updating document %s: %w", doc.ID, err)
	}
	return checkAffected(res, "document", doc.ID)
}

func (s *SQLiteStore) UpdateDocument(ctx context.Context, doc *models.Document) error {
	doc.UpdatedAt = s.now()
	return updateDocument(ctx, s.db, doc)
}

// DeleteDocument removes the document; form rows and attempts cascade.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("error deleting document %s: %w", id, err)
	}
	return checkAffected(res, "document", id)
}

func (s *SQLiteStore) ListAttempts(ctx context.Context, documentID string) ([]models.ParsingAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, parsing_method, provider, confidence_score, extracted_data, processing_time_ms, error_message, created_at
		FROM parsing_attempts WHERE document_id = ? ORDER BY created_at, rowid`, documentID)
	if err != nil {
		return nil, fmt.Errorf("error querying parsing attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.ParsingAttempt
	for rows.Next() {
		var a models.ParsingAttempt
		var method, created string
		var data sql.NullString
		if err := rows.Scan(&a.ID, &a.DocumentID, &method, &a.Provider, &a.ConfidenceScore, &data, &a.ProcessingTimeMs, &a.ErrorMessage, &created); err != nil {
			return nil, fmt.Errorf("error scanning parsing attempt: %w", err)
		}
		a.ParsingMethod = models.ParsingMethod(method)
		if data.Valid && data.String != "" {
			a.ExtractedData = []byte(data.String)
		}
		a.CreatedAt = parseTimestamp(created)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func (s *SQLiteStore) SaveExtraction(ctx context.Context, doc *models.Document, fields *models.ExtractedFields, attempts []models.ParsingAttempt) error {
	doc.UpdatedAt = s.now()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := updateDocument(ctx, tx, doc); err != nil {
			return err
		}
		if err := deleteFields(ctx, tx, doc.ID); err != nil {
			return err
		}
		if fields != nil {
			if err := insertFields(ctx, tx, *doc, *fields, doc.UpdatedAt); err != nil {
				return err
			}
		}
		for i := range attempts {
			a := &attempts[i]
			a.ID = newID(a.ID)
			a.DocumentID = doc.ID
			if a.CreatedAt.IsZero() {
				a.CreatedAt = doc.UpdatedAt
			}
			var data any
			if len(a.ExtractedData) > 0 {
				data = string(a.ExtractedData)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO parsing_attempts (id, document_id, parsing_method, provider, confidence_score, extracted_data, processing_time_ms, error_message, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				a.ID, a.DocumentID, string(a.ParsingMethod), a.Provider, a.ConfidenceScore, data, a.ProcessingTimeMs, a.ErrorMessage, timestamp(a.CreatedAt)); err != nil {
				return fmt.Errorf("error inserting parsing attempt for %s: %w", doc.ID, err)
			}
		}
		return nil
	})
}
