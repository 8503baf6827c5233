package embedding

import (
	"fmt"
	"os"

	"codeflow/config"
	"codeflow/internal/port"
)

// New builds the embedder selected by cfg.Provider.
func New(cfg config.EmbeddingConfig) (port.Embedder, error) {
	opts := Options{
		Model:     cfg.Model,
		BaseURL:   cfg.BaseURL,
		Dimension: cfg.Dimension,
		BatchSize: cfg.BatchSize,
		Timeout:   cfg.Timeout.Std(),
	}
	if opts.Dimension == 0 {
		opts.Dimension = knownDimension(cfg.Model)
	}

	switch cfg.Provider {
	case "hash":
		return NewHashEmbedder(cfg.Dimension), nil
	case "ollama":
		if opts.BaseURL == "" {
			opts.BaseURL = OllamaBaseURL
		}
		opts.APIKey = "ollama"
	case "openai":
		if opts.BaseURL == "" {
			opts.BaseURL = OpenAIBaseURL
		}
		if cfg.APIKeyEnv != "" {
			opts.APIKey = os.Getenv(cfg.APIKeyEnv)
			if opts.APIKey == "" {
				return nil, fmt.Errorf("API key not found in environment variable: %s", cfg.APIKeyEnv)
			}
		}
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}

	return NewOpenAICompatibleEmbedder(opts), nil
}
