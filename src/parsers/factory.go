package parsers

import (
	"context"
	"fmt"

	"github.com/username/taxcore/src/config"
	"github.com/username/taxcore/src/parsers/llm"
	"github.com/username/taxcore/src/parsers/pattern"
)

// GetProvider returns the named extraction strategy.
func GetProvider(ctx context.Context, name string, cfg *config.AppConfig) (Provider, error) {
	switch name {
	case "pattern", pattern.ProviderName:
		return pattern.NewProvider(), nil
	case "genai":
		p, err := llm.NewGenAIProvider(ctx, cfg.GenAIAPIKey, cfg.GenAIModel)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "anthropic":
		p, err := llm.NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("no extraction provider available for: %s", name)
	}
}

// NewProviders builds the ordered strategy list: pattern matching first,
// then the configured language model, if any.
func NewProviders(ctx context.Context, cfg *config.AppConfig) ([]Provider, error) {
	providers := []Provider{pattern.NewProvider()}
	if cfg.LLMProvider == "" || cfg.LLMProvider == "none" {
		return providers, nil
	}
	p, err := GetProvider(ctx, cfg.LLMProvider, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure LLM provider: %w", err)
	}
	return append(providers, p), nil
}

// NewExtractorFromConfig wires the configured strategies, threshold and timeout.
func NewExtractorFromConfig(ctx context.Context, cfg *config.AppConfig) (*Extractor, error) {
	providers, err := NewProviders(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewExtractor(cfg.ExtractionConfidenceThreshold, cfg.ExtractionProviderTimeout, providers...), nil
}
