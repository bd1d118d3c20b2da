// Package embed resolves and wraps embedding providers. The store works
// without one, it just loses the vector and hybrid search tiers.
package embed

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"github.com/evlog-dev/evlog/internal/config"
)

// Provider generates vector embeddings for text. Implementations must return
// vectors of a stable dimension for the lifetime of the process.
type Provider interface {
	// ID names the provider for logs and the degradation report.
	ID() string
	// Model names the underlying embedding model.
	Model() string
	// EmbedDocuments embeds a batch of stored texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a single search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Resolve walks the configured provider chain and returns the first usable
// provider, or nil if embeddings are disabled or nothing in the chain is
// reachable. A nil return is not an error.
func Resolve(ctx context.Context, cfg config.EmbeddingConfig, logger zerolog.Logger) Provider {
	if !cfg.Enabled || cfg.Provider == "none" {
		return nil
	}
	chain := append([]string{cfg.Provider}, cfg.Fallback...)
	for _, name := range chain {
		p := tryProvider(ctx, name, cfg, logger)
		if p != nil {
			logger.Debug().Str("provider", p.ID()).Str("model", p.Model()).Msg("embedding provider resolved")
			return p
		}
	}
	logger.Warn().Strs("chain", chain).Msg("no embedding provider available, vector search disabled")
	return nil
}

func tryProvider(ctx context.Context, name string, cfg config.EmbeddingConfig, logger zerolog.Logger) Provider {
	switch name {
	case "ollama":
		if ProbeOllama(cfg.OllamaURL, cfg.OllamaModel) {
			return NewOllama(cfg.OllamaURL, cfg.OllamaModel, cfg.TimeoutSeconds)
		}
	case "openai":
		if key := os.Getenv(cfg.OpenAIKeyEnv); key != "" {
			return NewOpenAI(key, cfg.OpenAIModel, cfg.Dimensions)
		}
	case "gemini":
		if key := os.Getenv(cfg.GeminiKeyEnv); key != "" {
			p, err := NewGemini(ctx, key, cfg.GeminiModel)
			if err != nil {
				logger.Warn().Err(err).Msg("gemini client init failed")
				return nil
			}
			return p
		}
	}
	return nil
}
