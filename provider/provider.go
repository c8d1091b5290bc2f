package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/deepresearch/config"
	openai_provider "github.com/mohammad-safakhou/deepresearch/provider/openai"
)

// Provider is the narrow capability surface the pipeline depends on: text
// completion and embedding. Concrete providers are injected at construction,
// never looked up at runtime.
type Provider interface {
	// Generate produces a completion for the prompt.
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)

	// Embed produces one fixed-dimension vector per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Name string

const (
	OpenAIProvider Name = "openai"
)

// NewProvider builds a Provider from config.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch Name(cfg.Provider) {
	case OpenAIProvider:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai api key not configured")
		}
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client := openai_provider.NewClient(openai_provider.Options{
			APIKey:          cfg.APIKey,
			BaseURL:         cfg.BaseURL,
			CompletionModel: cfg.CompletionModel,
			EmbeddingModel:  cfg.EmbeddingModel,
			Timeout:         timeout,
		})
		return &typedErrors{inner: client}, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

// typedErrors maps raw client failures onto the CompletionError/EmbeddingError
// taxonomy so callers can classify without knowing the concrete provider.
type typedErrors struct {
	inner Provider
}

func (t *typedErrors) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	out, err := t.inner.Generate(ctx, prompt, maxTokens, temperature)
	if err != nil {
		return "", &CompletionError{Err: err}
	}
	return out, nil
}

func (t *typedErrors) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := t.inner.Embed(ctx, texts)
	if err != nil {
		return nil, &EmbeddingError{Err: err}
	}
	return vecs, nil
}
