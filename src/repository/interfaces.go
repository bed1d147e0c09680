package repository

import (
	"context"
	"errors"

	"github.com/username/taxcore/src/models"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("record not found")

// TaxYearConfig is everything imported for one tax year.
type TaxYearConfig struct {
	Year       models.TaxYear
	Brackets   []models.TaxBracket
	Deductions []models.StandardDeduction
}

// TaxConfigRepository reads and (for the importer only) replaces the
// versioned tax tables.
type TaxConfigRepository interface {
	GetActiveYear(ctx context.Context) (models.TaxYear, error)
	GetTaxYear(ctx context.Context, year int) (models.TaxYear, error)
	ListTaxYears(ctx context.Context) ([]models.TaxYear, error)
	GetBrackets(ctx context.Context, taxYearID string, jurisdiction models.Jurisdiction, status models.FilingStatus) ([]models.TaxBracket, error)
	GetStandardDeduction(ctx context.Context, taxYearID string, jurisdiction models.Jurisdiction, status models.FilingStatus) (models.StandardDeduction, error)
	ReplaceTaxYear(ctx context.Context, cfg *TaxYearConfig) error
}

type DocumentRepository interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (models.Document, error)
	ListDocuments(ctx context.Context, taxReturnID string) ([]models.Document, error)
	UpdateDocument(ctx context.Context, doc *models.Document) error
	DeleteDocument(ctx context.Context, id string) error
	ListAttempts(ctx context.Context, documentID string) ([]models.ParsingAttempt, error)

	// SaveExtraction writes the document state, replaces its form rows with
	// fields (nil clears them) and appends attempts in one transaction.
	SaveExtraction(ctx context.Context, doc *models.Document, fields *models.ExtractedFields, attempts []models.ParsingAttempt) error
}

type FormRepository interface {
	GetFields(ctx context.Context, documentID string) (models.ExtractedFields, error)
	LoadIncomeRecords(ctx context.Context, taxReturnID string) (models.IncomeRecords, error)
}

type ReturnRepository interface {
	CreateReturn(ctx context.Context, r *models.TaxReturn) error
	GetReturn(ctx context.Context, id string) (models.TaxReturn, error)
	ListReturns(ctx context.Context, userID string) ([]models.TaxReturn, error)
	UpdateProfile(ctx context.Context, id string, status models.FilingStatus, profile models.TaxpayerProfile) error

	AddAdjustment(ctx context.Context, adj *models.ManualAdjustment) error
	ListAdjustments(ctx context.Context, taxReturnID string) ([]models.ManualAdjustment, error)
	DeleteAdjustment(ctx context.Context, taxReturnID, id string) error

	// SaveCalculation replaces the return summary, Form 1040, Schedule D,
	// Form 8949 rows and state returns atomically.
	SaveCalculation(ctx context.Context, snap models.CalculationSnapshot) error
	GetCalculation(ctx context.Context, taxReturnID string) (models.CalculationSnapshot, error)
	ListForm8949(ctx context.Context, taxReturnID string) ([]models.Form8949, error)
}

// Store bundles every repository the services need.
type Store interface {
	TaxConfigRepository
	DocumentRepository
	FormRepository
	ReturnRepository
}
