// Package preflight validates the environment before the daemon starts.
// Failures here are advisory: the daemon degrades (static embeddings,
// smaller caches) rather than refusing to run, so results are logged
// and surfaced, not fatal.
package preflight

import (
	"context"

	"github.com/filesense/filesense/internal/config"
	"github.com/filesense/filesense/internal/embed"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name    string      `json:"name"`
	Status  CheckStatus `json:"status"`
	Message string      `json:"message"`
}

// RunAll runs every preflight check for the given configuration.
func RunAll(ctx context.Context, cfg *config.Config) []CheckResult {
	return []CheckResult{
		CheckDiskSpace(cfg.Paths.DataDir),
		CheckDataDirWritable(cfg.Paths.DataDir),
		CheckEmbedder(ctx, cfg.Embeddings),
	}
}

// CheckEmbedder probes the configured embedding provider. An
// unreachable Ollama is a warning: the daemon falls back to static
// embeddings.
func CheckEmbedder(ctx context.Context, cfg config.EmbeddingsConfig) CheckResult {
	result := CheckResult{Name: "embedder"}

	if cfg.Provider != "ollama" {
		result.Status = StatusPass
		result.Message = "static embedder, always available"
		return result
	}

	probe, err := embed.NewOllamaEmbedder(ctx, embed.OllamaConfig{
		Host:       cfg.OllamaHost,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
	})
	if err != nil {
		result.Status = StatusWarn
		result.Message = "ollama unreachable, static embeddings will be used: " + err.Error()
		return result
	}
	defer func() { _ = probe.Close() }()

	result.Status = StatusPass
	result.Message = "ollama model " + probe.ModelName()
	return result
}
