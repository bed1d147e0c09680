package services

import (
	"context"
	"errors"
	"io"

	"github.com/username/taxcore/src/models"
	"github.com/username/taxcore/src/repository"
	"github.com/username/taxcore/src/taxconfig"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnsupportedFile = errors.New("unsupported file")
)

// UploadInput is one uploaded file before text extraction.
type UploadInput struct {
	TaxReturnID string
	FileName    string
	ContentType string
	Content     io.ReadSeeker
}

// DocumentResult is the state of a document after a pipeline step.
type DocumentResult struct {
	Document    models.Document         `json:"document"`
	Fields      *models.ExtractedFields `json:"fields,omitempty"`
	Attempts    []models.ParsingAttempt `json:"attempts,omitempty"`
	NeedsReview bool                    `json:"needs_review"`
	Error       string                  `json:"error,omitempty"`
}

// DocumentService runs uploads through classification and extraction.
// Extraction failures are recorded on the document, not returned as errors.
type DocumentService interface {
	ProcessDocument(ctx context.Context, in UploadInput) (*DocumentResult, error)
	ProcessBatch(ctx context.Context, inputs []UploadInput) []DocumentResult
	AssignDocumentType(ctx context.Context, documentID string, docType models.DocumentType) (*DocumentResult, error)
	UpdateFields(ctx context.Context, documentID string, fields models.ExtractedFields) (*DocumentResult, error)
	GetDocument(ctx context.Context, documentID string) (*DocumentResult, error)
	ListDocuments(ctx context.Context, taxReturnID string) ([]models.Document, error)
	GetAttempts(ctx context.Context, documentID string) ([]models.ParsingAttempt, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

type CreateReturnInput struct {
	UserID       string                 `json:"-"`
	TaxYear      int                    `json:"tax_year"`
	FilingStatus models.FilingStatus    `json:"filing_status"`
	Profile      models.TaxpayerProfile `json:"profile"`
}

// CalculationResult is a saved snapshot plus what still needs the user's attention.
type CalculationResult struct {
	models.CalculationSnapshot
	ReviewItems []models.ReviewItem `json:"review_items"`
}

type ReturnService interface {
	CreateReturn(ctx context.Context, in CreateReturnInput) (*models.TaxReturn, error)
	GetReturn(ctx context.Context, taxReturnID string) (*models.TaxReturn, error)
	ListReturns(ctx context.Context, userID string) ([]models.TaxReturn, error)
	UpdateProfile(ctx context.Context, taxReturnID string, status models.FilingStatus, profile models.TaxpayerProfile) (*models.TaxReturn, error)
	Calculate(ctx context.Context, taxReturnID string, status models.FilingStatus) (*CalculationResult, error)
	GetCalculation(ctx context.Context, taxReturnID string) (*CalculationResult, error)
	AddManualAdjustment(ctx context.Context, adj models.ManualAdjustment) (*models.ManualAdjustment, error)
	ListManualAdjustments(ctx context.Context, taxReturnID string) ([]models.ManualAdjustment, error)
	DeleteManualAdjustment(ctx context.Context, taxReturnID, adjustmentID string) error
	ListForm8949(ctx context.Context, taxReturnID string) ([]models.Form8949, error)
}

// ConfigService is the read-only view of the tax tables.
type ConfigService interface {
	GetActiveYear(ctx context.Context) (models.TaxYear, error)
	ListTaxYears(ctx context.Context) ([]models.TaxYear, error)
	GetBrackets(ctx context.Context, year int, status models.FilingStatus, jurisdiction models.Jurisdiction) ([]models.TaxBracket, error)
	GetStandardDeduction(ctx context.Context, year int, status models.FilingStatus, jurisdiction models.Jurisdiction) (models.StandardDeduction, error)
}

var _ ConfigService = (*taxconfig.Store)(nil)

// TextProducer turns an upload into the raw text the classifier reads.
type TextProducer interface {
	Produce(ctx context.Context, in UploadInput) (string, error)
}

// Notifier tells the taxpayer that a document could not be read.
type Notifier interface {
	NotifyExtractionFailed(ctx context.Context, toEmail string, doc models.Document) error
}

// IsNotFound reports whether err means the requested entity does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
