// Package pattern extracts tax form fields with label/amount regular
// expressions and, for broker statements, delimited table parsing.
package pattern

import (
	"context"
	"fmt"

	"github.com/username/taxcore/src/models"
)

const ProviderName = "regex"

type Provider struct{}

func NewProvider() *Provider {
	return &Provider{}
}

func (p *Provider) Name() string { return ProviderName }

func (p *Provider) Method() models.ParsingMethod { return models.MethodPattern }

func (p *Provider) TryExtract(ctx context.Context, docType models.DocumentType, rawText string) (models.ExtractionResult, error) {
	if err := ctx.Err(); err != nil {
		return models.ExtractionResult{}, err
	}
	if docType == models.DocType1099B {
		return extract1099B(rawText)
	}
	text := normalizeLines(rawText)
	switch docType {
	case models.DocTypeW2:
		return extractW2(text), nil
	case models.DocType1099Div:
		return extract1099Div(text), nil
	case models.DocType1099Int:
		return extract1099Int(text), nil
	default:
		return models.ExtractionResult{}, fmt.Errorf("no pattern rules for document type %q", docType)
	}
}
