package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"askdoc/internal/config"
	"askdoc/internal/model"
)

var ErrProviderConfig = errors.New("llm provider config is invalid")

// Provider is a handle to one model backend: chat completion for the pipeline
// stages plus embeddings for the vector index. Implementations are safe for
// concurrent use.
type Provider interface {
	Complete(ctx context.Context, messages []model.Turn) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// NewProvider builds the configured model provider. Each call returns a fresh
// client, so callers can open one session per pipeline run and discard it.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai":
		if cfg.BaseURL == "" || cfg.Model == "" {
			return nil, fmt.Errorf("%w: openai provider requires base_url and model", ErrProviderConfig)
		}
		return newOpenAIClient(cfg), nil
	case "ollama":
		return newOllamaClient(cfg), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrProviderConfig, cfg.Provider)
	}
}
