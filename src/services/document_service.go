package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/username/taxcore/src/logger"
	"github.com/username/taxcore/src/models"
	"github.com/username/taxcore/src/parsers"
	"github.com/username/taxcore/src/repository"
	"github.com/username/taxcore/src/security/validation"
	"github.com/username/taxcore/src/utils"
	"golang.org/x/sync/errgroup"
)

const manualProvider = "manual"

type documentServiceImpl struct {
	store       repository.Store
	extractor   *parsers.Extractor
	producer    TextProducer
	notifier    Notifier
	reportCache *cache.Cache
	concurrency int
}

func NewDocumentService(
	store repository.Store,
	extractor *parsers.Extractor,
	producer TextProducer,
	notifier Notifier,
	reportCache *cache.Cache,
	concurrency int,
) DocumentService {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &documentServiceImpl{
		store:       store,
		extractor:   extractor,
		producer:    producer,
		notifier:    notifier,
		reportCache: reportCache,
		concurrency: concurrency,
	}
}

func (s *documentServiceImpl) ProcessDocument(ctx context.Context, in UploadInput) (*DocumentResult, error) {
	startTime := time.Now()
	log := logger.FromContext(ctx)
	log.Info("ProcessDocument START", "taxReturnID", in.TaxReturnID, "fileName", in.FileName)

	ret, err := s.store.GetReturn(ctx, in.TaxReturnID)
	if err != nil {
		return nil, err
	}
	text, err := s.producer.Produce(ctx, in)
	if err != nil {
		return nil, err
	}

	doc := models.Document{
		TaxReturnID:    ret.ID,
		FileName:       validation.SafeFileName(in.FileName),
		FileType:       fileType(in.ContentType),
		RawTextContent: text,
	}
	if err := s.store.CreateDocument(ctx, &doc); err != nil {
		return nil, err
	}

	res, err := s.runPipeline(ctx, &doc, ret.Profile.ContactEmail)
	if err != nil {
		return nil, err
	}
	log.Info("ProcessDocument END", "documentID", doc.ID, "documentType", doc.DocumentType, "status", doc.Status,
		"confidence", doc.ConfidenceScore, "duration", time.Since(startTime))
	return res, nil
}

// ProcessBatch runs uploads in parallel, bounded by the configured
// concurrency. A failing document never cancels its siblings; results keep
// the input order.
func (s *documentServiceImpl) ProcessBatch(ctx context.Context, inputs []UploadInput) []DocumentResult {
	results := make([]DocumentResult, len(inputs))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, in := range inputs {
		g.Go(func() error {
			res, err := s.ProcessDocument(ctx, in)
			if err != nil {
				logger.FromContext(ctx).Warn("Batch document rejected", "fileName", in.FileName, "error", err)
				results[i] = DocumentResult{
					Document: models.Document{
						TaxReturnID:  in.TaxReturnID,
						FileName:     validation.SafeFileName(in.FileName),
						Status:       models.StatusError,
						ErrorMessage: err.Error(),
					},
					Error: err.Error(),
				}
				return nil
			}
			results[i] = *res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// runPipeline classifies (unless the type is already known), extracts and
// persists the outcome of one document.
func (s *documentServiceImpl) runPipeline(ctx context.Context, doc *models.Document, contactEmail string) (*DocumentResult, error) {
	log := logger.FromContext(ctx).With("documentID", doc.ID)

	doc.Status = models.StatusProcessing
	doc.ErrorMessage = ""
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return nil, err
	}
	defer s.invalidateCalculation(doc.TaxReturnID)

	if !doc.DocumentType.Known() {
		doc.DocumentType = parsers.Classify(doc.RawTextContent)
	}
	if !doc.DocumentType.Known() {
		log.Info("Document could not be classified, awaiting manual type assignment")
		doc.Status = models.StatusUploaded
		doc.ParsingMethod = ""
		doc.ConfidenceScore = 0
		if err := s.store.SaveExtraction(ctx, doc, nil, nil); err != nil {
			return nil, err
		}
		return &DocumentResult{Document: *doc, NeedsReview: true}, nil
	}

	outcome, err := s.extractor.Extract(ctx, doc.DocumentType, doc.RawTextContent)
	// the outcome is recorded even when the caller has gone away
	persistCtx := context.WithoutCancel(ctx)
	if err != nil {
		doc.Status = models.StatusError
		doc.ParsingMethod = ""
		doc.ConfidenceScore = 0
		doc.ErrorMessage = err.Error()
		if saveErr := s.store.SaveExtraction(persistCtx, doc, nil, outcome.Attempts); saveErr != nil {
			return nil, saveErr
		}
		log.Warn("Document extraction failed", "documentType", doc.DocumentType, "error", err)
		if outcome.Failed && contactEmail != "" {
			if nErr := s.notifier.NotifyExtractionFailed(persistCtx, contactEmail, *doc); nErr != nil {
				log.Warn("Failed to notify taxpayer about extraction failure", "error", nErr)
			}
		}
		return &DocumentResult{Document: *doc, Attempts: outcome.Attempts, NeedsReview: true, Error: doc.ErrorMessage}, nil
	}

	fields := outcome.Result.Fields
	doc.Status = models.StatusParsed
	doc.ParsingMethod = outcome.Method
	doc.ConfidenceScore = outcome.Result.Confidence
	if err := s.store.SaveExtraction(persistCtx, doc, &fields, outcome.Attempts); err != nil {
		return nil, err
	}
	return &DocumentResult{Document: *doc, Fields: &fields, Attempts: outcome.Attempts, NeedsReview: outcome.NeedsReview}, nil
}

// AssignDocumentType sets the type of a document and runs extraction again.
func (s *documentServiceImpl) AssignDocumentType(ctx context.Context, documentID string, docType models.DocumentType) (*DocumentResult, error) {
	if !docType.Known() {
		return nil, fmt.Errorf("%w: document type %q", ErrInvalidInput, docType)
	}
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	ret, err := s.store.GetReturn(ctx, doc.TaxReturnID)
	if err != nil {
		return nil, err
	}
	doc.DocumentType = docType
	logger.FromContext(ctx).Info("Document type assigned manually", "documentID", doc.ID, "documentType", docType)
	return s.runPipeline(ctx, &doc, ret.Profile.ContactEmail)
}

// UpdateFields stores user-entered values. They are trusted with confidence 1.
func (s *documentServiceImpl) UpdateFields(ctx context.Context, documentID string, fields models.ExtractedFields) (*DocumentResult, error) {
	if err := validateFields(&fields); err != nil {
		return nil, err
	}
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	doc.DocumentType = fields.DocumentType
	doc.Status = models.StatusParsed
	doc.ParsingMethod = models.MethodManual
	doc.ConfidenceScore = 1
	doc.ErrorMessage = ""

	attempt := models.ParsingAttempt{
		ID:              uuid.NewString(),
		DocumentID:      doc.ID,
		ParsingMethod:   models.MethodManual,
		Provider:        manualProvider,
		ConfidenceScore: 1,
		CreatedAt:       time.Now().UTC(),
	}
	if data, err := json.Marshal(fields); err == nil {
		attempt.ExtractedData = data
	}
	if err := s.store.SaveExtraction(ctx, &doc, &fields, []models.ParsingAttempt{attempt}); err != nil {
		return nil, err
	}
	s.invalidateCalculation(doc.TaxReturnID)
	logger.FromContext(ctx).Info("Document fields entered manually", "documentID", doc.ID, "documentType", doc.DocumentType)
	return &DocumentResult{Document: doc, Fields: &fields, Attempts: []models.ParsingAttempt{attempt}}, nil
}

func (s *documentServiceImpl) GetDocument(ctx context.Context, documentID string) (*DocumentResult, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	res := &DocumentResult{Document: doc, Error: doc.ErrorMessage}
	fields, err := s.store.GetFields(ctx, documentID)
	switch {
	case err == nil:
		res.Fields = &fields
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}
	res.NeedsReview = needsReview(doc, s.extractor.Threshold())
	return res, nil
}

func (s *documentServiceImpl) ListDocuments(ctx context.Context, taxReturnID string) ([]models.Document, error) {
	if _, err := s.store.GetReturn(ctx, taxReturnID); err != nil {
		return nil, err
	}
	return s.store.ListDocuments(ctx, taxReturnID)
}

func (s *documentServiceImpl) GetAttempts(ctx context.Context, documentID string) ([]models.ParsingAttempt, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	return s.store.ListAttempts(ctx, documentID)
}

// DeleteDocument removes the document with its form rows and attempts.
func (s *documentServiceImpl) DeleteDocument(ctx context.Context, documentID string) error {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	s.invalidateCalculation(doc.TaxReturnID)
	logger.FromContext(ctx).Info("Document deleted", "documentID", documentID, "taxReturnID", doc.TaxReturnID)
	return nil
}

func (s *documentServiceImpl) invalidateCalculation(taxReturnID string) {
	invalidateCalculation(s.reportCache, taxReturnID)
}

// needsReview is true for documents a human still has to look at.
func needsReview(doc models.Document, threshold float64) bool {
	switch {
	case doc.Status == models.StatusError:
		return true
	case !doc.DocumentType.Known():
		return true
	case doc.Status == models.StatusParsed && doc.ParsingMethod != models.MethodManual:
		return doc.ConfidenceScore < threshold
	}
	return false
}

func fileType(contentType string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}
	return "text/plain"
}

// validateFields checks that exactly the field set matching the declared
// type is present and normalizes state codes.
func validateFields(f *models.ExtractedFields) error {
	if !f.DocumentType.Known() {
		return fmt.Errorf("%w: document type %q", ErrInvalidInput, f.DocumentType)
	}
	set := 0
	for _, present := range []bool{f.W2 != nil, f.Div != nil, f.Int != nil, f.B != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: exactly one field set is required, got %d", ErrInvalidInput, set)
	}

	switch f.DocumentType {
	case models.DocTypeW2:
		if f.W2 == nil {
			return fmt.Errorf("%w: w2 fields required for a %s document", ErrInvalidInput, f.DocumentType)
		}
		if code := strings.TrimSpace(f.W2.StateCode); code != "" {
			normalized := utils.NormalizeStateCode(code)
			if normalized == "" {
				return fmt.Errorf("%w: unknown state %q", ErrInvalidInput, code)
			}
			f.W2.StateCode = normalized
		}
	case models.DocType1099Div:
		if f.Div == nil {
			return fmt.Errorf("%w: div fields required for a %s document", ErrInvalidInput, f.DocumentType)
		}
	case models.DocType1099Int:
		if f.Int == nil {
			return fmt.Errorf("%w: int fields required for a %s document", ErrInvalidInput, f.DocumentType)
		}
	case models.DocType1099B:
		if f.B == nil {
			return fmt.Errorf("%w: b fields required for a %s document", ErrInvalidInput, f.DocumentType)
		}
		for i := range f.B.Entries {
			e := &f.B.Entries[i]
			e.DateAcquired = utils.NormalizeDate(e.DateAcquired)
			e.DateSold = utils.NormalizeDate(e.DateSold)
		}
	}
	return nil
}
