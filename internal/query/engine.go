// Package query answers search requests against the indexes.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/filesense/filesense/internal/catalog"
	"github.com/filesense/filesense/internal/embed"
	"github.com/filesense/filesense/internal/protocol"
	"github.com/filesense/filesense/internal/store"
)

// Config bounds result counts.
type Config struct {
	// DefaultLimit applies when a query omits or zeroes the limit.
	DefaultLimit int

	// MaxLimit caps the result count regardless of the request.
	MaxLimit int
}

// Engine resolves semantic and exact-text queries. It reads the catalog
// under its shared lock only for record lookups; embedding and index
// round-trips happen outside any lock.
type Engine struct {
	embedder embed.Embedder
	vectors  *store.VectorIndex
	texts    *store.TextIndex
	catalog  *catalog.Catalog
	cfg      Config
	logger   *slog.Logger
}

// NewEngine creates a query engine.
func NewEngine(embedder embed.Embedder, vectors *store.VectorIndex, texts *store.TextIndex,
	cat *catalog.Catalog, cfg Config, logger *slog.Logger) *Engine {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		embedder: embedder,
		vectors:  vectors,
		texts:    texts,
		catalog:  cat,
		cfg:      cfg,
		logger:   logger,
	}
}

// clampLimit applies the default and the cap.
func (e *Engine) clampLimit(limit int) int {
	if limit <= 0 {
		return e.cfg.DefaultLimit
	}
	if limit > e.cfg.MaxLimit {
		return e.cfg.MaxLimit
	}
	return limit
}

// Search runs a semantic query: embed the text, rank by cosine
// similarity, and resolve hits against the catalog. Hits whose record
// vanished between ranking and resolution are dropped.
func (e *Engine) Search(ctx context.Context, text string, limit int) (protocol.SearchResultMessage, error) {
	start := time.Now()

	text = strings.TrimSpace(text)
	if text == "" {
		return protocol.NewSearchResult(nil, time.Since(start)), nil
	}
	limit = e.clampLimit(limit)

	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return protocol.SearchResultMessage{}, fmt.Errorf("embed query: %w", err)
	}

	hits, err := e.vectors.Query(ctx, vec, limit)
	if err != nil {
		return protocol.SearchResultMessage{}, fmt.Errorf("vector query: %w", err)
	}

	files := make([]protocol.FileResult, 0, len(hits))
	for _, hit := range hits {
		rec := e.catalog.GetByID(hit.ID)
		if rec == nil {
			continue
		}
		files = append(files, fileResult(rec, hit.Score))
	}

	elapsed := time.Since(start)
	e.logger.Debug("semantic search",
		"query", text, "hits", len(files), "elapsed_ms", elapsed.Milliseconds())
	return protocol.NewSearchResult(files, elapsed), nil
}

// SearchText runs an exact-text query over extracted content. Files
// without embeddings are still reachable here.
func (e *Engine) SearchText(ctx context.Context, text string, limit int) (protocol.SearchResultMessage, error) {
	start := time.Now()

	text = strings.TrimSpace(text)
	if text == "" {
		return protocol.NewSearchResult(nil, time.Since(start)), nil
	}
	limit = e.clampLimit(limit)

	hits, err := e.texts.Search(ctx, text, limit)
	if err != nil {
		return protocol.SearchResultMessage{}, fmt.Errorf("text query: %w", err)
	}

	files := make([]protocol.FileResult, 0, len(hits))
	for _, hit := range hits {
		rec := e.catalog.GetByID(hit.ID)
		if rec == nil {
			continue
		}
		files = append(files, fileResult(rec, float32(hit.Score)))
	}

	elapsed := time.Since(start)
	e.logger.Debug("text search",
		"query", text, "hits", len(files), "elapsed_ms", elapsed.Milliseconds())
	return protocol.NewSearchResult(files, elapsed), nil
}

// fileResult maps a catalog record and a score onto the wire shape.
func fileResult(rec *catalog.FileRecord, score float32) protocol.FileResult {
	return protocol.FileResult{
		ID:       rec.ID,
		Name:     rec.Name,
		Path:     rec.Path,
		FileType: rec.FileType,
		Summary:  rec.Summary,
		Modified: rec.ModifiedAt,
		Score:    score,
	}
}
