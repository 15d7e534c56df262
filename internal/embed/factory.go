package embed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/filesense/filesense/internal/config"
)

// New builds the embedder chain from configuration: the selected
// provider, wrapped with an LRU cache, wrapped with the serializing
// gateway. Falls back to the static provider when Ollama is configured
// but unreachable, so indexing keeps working offline.
func New(ctx context.Context, cfg config.EmbeddingsConfig, logger *slog.Logger) (Embedder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var provider Embedder
	switch cfg.Provider {
	case "static", "":
		provider = NewStaticEmbedder()
	case "ollama":
		ollama, err := NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
		if err != nil {
			logger.Warn("ollama unavailable, falling back to static embedder", "error", err)
			provider = NewStaticEmbedder()
		} else {
			provider = ollama
		}
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	logger.Info("embedder ready",
		"model", provider.ModelName(),
		"dimensions", provider.Dimensions())

	cached := NewCachedEmbedder(provider, cfg.CacheSize)
	return NewGateway(cached, cfg.Timeout, logger), nil
}
