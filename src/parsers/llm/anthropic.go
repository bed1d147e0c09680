package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/username/taxcore/src/models"
)

const (
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	anthropicMaxTokens    = 4096
)

// AnthropicProvider extracts fields through the Anthropic Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider builds the client. Extra options (base URL, HTTP
// client, retries) are appended after the API key.
func NewAnthropicProvider(apiKey, model string, opts ...option.RequestOption) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}
	if model == "" {
		model = DefaultAnthropicModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  model,
	}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic:" + p.model }

func (p *AnthropicProvider) Method() models.ParsingMethod { return models.MethodLLM }

func (p *AnthropicProvider) TryExtract(ctx context.Context, docType models.DocumentType, rawText string) (models.ExtractionResult, error) {
	prompt, err := BuildPrompt(docType, rawText)
	if err != nil {
		return models.ExtractionResult{}, err
	}
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: anthropicMaxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
	})
	if err != nil {
		return models.ExtractionResult{}, fmt.Errorf("api call: %w", err)
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			return ParseResponse(docType, block.Text)
		}
	}
	return models.ExtractionResult{}, fmt.Errorf("api call: empty response")
}
