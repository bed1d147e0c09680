package llm

import (
	"context"
	"fmt"

	"github.com/username/taxcore/src/models"
	"google.golang.org/genai"
)

const DefaultGenAIModel = "gemini-2.5-flash"

// GenAIProvider extracts fields with Google's Gemini models.
type GenAIProvider struct {
	client *genai.Client
	model  string
}

func NewGenAIProvider(ctx context.Context, apiKey, model string) (*GenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = DefaultGenAIModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIProvider{client: client, model: model}, nil
}

func (p *GenAIProvider) Name() string { return "genai:" + p.model }

func (p *GenAIProvider) Method() models.ParsingMethod { return models.MethodLLM }

func (p *GenAIProvider) TryExtract(ctx context.Context, docType models.DocumentType, rawText string) (models.ExtractionResult, error) {
	prompt, err := BuildPrompt(docType, rawText)
	if err != nil {
		return models.ExtractionResult{}, err
	}
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0),
	})
	if err != nil {
		return models.ExtractionResult{}, fmt.Errorf("generate content: %w", err)
	}
	return ParseResponse(docType, resp.Text())
}
