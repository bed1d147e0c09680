package services

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/taxcore/src/models"
	"github.com/username/taxcore/src/parsers/pattern"
)

func TestProcessBatchKeepsInputOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ret := env.newReturn(t, "IL")

	inputs := []UploadInput{
		upload(ret.ID, "w2.txt", w2Text),
		upload(ret.ID, "notes.txt", "grocery list: eggs, milk"),
		upload(ret.ID, "scan.pdf", "%PDF-1.7 binary"),
		upload(ret.ID, "../../etc/w2-copy.txt", w2Text),
	}
	inputs[2].ContentType = "application/pdf"

	results := env.docs.ProcessBatch(ctx, inputs)
	require.Len(t, results, 4)

	assert.Equal(t, models.StatusParsed, results[0].Document.Status)
	assert.Equal(t, "60000.00", results[0].Fields.W2.Wages.StringFixed(2))

	assert.Equal(t, models.StatusUploaded, results[1].Document.Status)
	assert.Equal(t, models.DocTypeUnknown, results[1].Document.DocumentType)
	assert.True(t, results[1].NeedsReview)

	assert.Equal(t, models.StatusError, results[2].Document.Status)
	assert.Contains(t, results[2].Error, "unsupported file")
	assert.Empty(t, results[2].Document.ID, "rejected uploads are never stored")

	assert.Equal(t, "w2-copy.txt", results[3].Document.FileName)
	assert.Equal(t, models.StatusParsed, results[3].Document.Status)

	docs, err := env.docs.ListDocuments(ctx, ret.ID)
	require.NoError(t, err)
	assert.Len(t, docs, 3)
}

func TestExtractionFailureNotifiesTaxpayer(t *testing.T) {
	env := newTestEnv(t, failingProvider{})
	ctx := context.Background()
	ret := env.newReturn(t, "IL")

	res, err := env.docs.ProcessDocument(ctx, upload(ret.ID, "w2.txt", w2Text))
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, res.Document.Status)
	assert.Contains(t, res.Error, "all extraction strategies failed")
	assert.True(t, res.NeedsReview)
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, "broken", res.Attempts[0].Provider)

	sent := env.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "jane@example.com", sent[0].To)
	assert.Equal(t, res.Document.ID, sent[0].DocumentID)

	attempts, err := env.docs.GetAttempts(ctx, res.Document.ID)
	require.NoError(t, err)
	assert.Len(t, attempts, 1)

	calc, err := env.returns.Calculate(ctx, ret.ID, "")
	require.NoError(t, err)
	require.Len(t, calc.ReviewItems, 1)
	assert.Equal(t, models.ReviewExtractionFailed, calc.ReviewItems[0].Kind)
	assert.True(t, calc.Form1040.Wages.IsZero(), "failed documents contribute nothing")
}

func TestFallbackToLaterStrategy(t *testing.T) {
	env := newTestEnv(t, failingProvider{}, pattern.NewProvider())
	ctx := context.Background()
	ret := env.newReturn(t, "IL")

	res, err := env.docs.ProcessDocument(ctx, upload(ret.ID, "w2.txt", w2Text))
	require.NoError(t, err)
	assert.Equal(t, models.StatusParsed, res.Document.Status)
	assert.Equal(t, models.MethodPattern, res.Document.ParsingMethod)
	assert.Len(t, res.Attempts, 2)
	assert.Empty(t, env.notifier.Sent())
}

func TestAssignDocumentTypeAndManualFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ret := env.newReturn(t, "IL")

	res, err := env.docs.ProcessDocument(ctx, upload(ret.ID, "scan.txt", "EMPLOYER ACME\nwages 60,000.00"))
	require.NoError(t, err)
	require.Equal(t, models.DocTypeUnknown, res.Document.DocumentType)
	docID := res.Document.ID

	_, err = env.docs.AssignDocumentType(ctx, docID, models.DocTypeUnknown)
	assert.ErrorIs(t, err, ErrInvalidInput)

	assigned, err := env.docs.AssignDocumentType(ctx, docID, models.DocTypeW2)
	require.NoError(t, err)
	assert.Equal(t, models.DocTypeW2, assigned.Document.DocumentType)
	assert.True(t, assigned.NeedsReview)

	_, err = env.docs.UpdateFields(ctx, docID, models.ExtractedFields{
		DocumentType: models.DocTypeW2,
		Div:          &models.Form1099DivFields{},
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.docs.UpdateFields(ctx, docID, models.ExtractedFields{
		DocumentType: models.DocTypeW2,
		W2:           &models.W2Fields{StateCode: "Atlantis"},
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	updated, err := env.docs.UpdateFields(ctx, docID, models.ExtractedFields{
		DocumentType: models.DocTypeW2,
		W2: &models.W2Fields{
			EmployerName:    "ACME",
			Wages:           decimal.NewFromInt(60000),
			FederalWithheld: decimal.NewFromInt(8000),
			StateCode:       "illinois",
			StateWithheld:   decimal.NewFromInt(2970),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.MethodManual, updated.Document.ParsingMethod)
	assert.Equal(t, 1.0, updated.Document.ConfidenceScore)

	got, err := env.docs.GetDocument(ctx, docID)
	require.NoError(t, err)
	require.NotNil(t, got.Fields)
	require.NotNil(t, got.Fields.W2)
	assert.Equal(t, "IL", got.Fields.W2.StateCode)
	assert.False(t, got.NeedsReview)

	calc, err := env.returns.Calculate(ctx, ret.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "5216.00", calc.Form1040.TotalTax.StringFixed(2))

	require.NoError(t, env.docs.DeleteDocument(ctx, docID))
	_, err = env.docs.GetDocument(ctx, docID)
	assert.True(t, IsNotFound(err))
}

func TestProcessDocumentRejectsUnknownReturn(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.docs.ProcessDocument(context.Background(), upload("missing", "w2.txt", w2Text))
	assert.True(t, IsNotFound(err))
}

func TestTextProducer(t *testing.T) {
	p := NewTextProducer(64)
	ctx := context.Background()

	text, err := p.Produce(ctx, upload("r", "a.csv", "a,b\u200b,c\n"))
	require.NoError(t, err)
	assert.Equal(t, "a,b,c\n", text)

	tests := []struct {
		name string
		in   UploadInput
	}{
		{"too large", upload("r", "big.txt", strings.Repeat("x", 65))},
		{"binary type", UploadInput{FileName: "a.pdf", ContentType: "application/pdf", Content: strings.NewReader("x")}},
		{"empty", upload("r", "empty.txt", "")},
		{"whitespace", upload("r", "blank.txt", "  \n\t ")},
		{"no content", UploadInput{FileName: "none.txt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Produce(ctx, tt.in)
			assert.ErrorIs(t, err, ErrUnsupportedFile)
		})
	}
}
