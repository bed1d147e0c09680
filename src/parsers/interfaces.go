package parsers

import (
	"context"

	"github.com/username/taxcore/src/models"
)

// Provider is one extraction strategy. Implementations must be safe for
// concurrent use; a batch runs several documents through the same providers.
type Provider interface {
	Name() string
	Method() models.ParsingMethod
	TryExtract(ctx context.Context, docType models.DocumentType, rawText string) (models.ExtractionResult, error)
}
