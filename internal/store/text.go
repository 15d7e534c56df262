package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	ferrors "github.com/filesense/filesense/internal/errors"
)

// TextIndex wraps Bleve for exact-text search over file names and
// extracted content. Results are scored by BM25.
type TextIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// textDocument is the indexed document shape.
type textDocument struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

// NewTextIndex opens or creates a text index at path. An empty path
// creates an in-memory index. A corrupt on-disk index is cleared and
// recreated; the catalog re-populates it on the next full index.
func NewTextIndex(path string) (*TextIndex, error) {
	indexMapping := createTextMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("create index directory: %w", mkErr)
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isCorruptionError(err) {
			slog.Warn("text index corrupt, clearing", "path", path, "error", err)
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("clear corrupt text index: %w", removeErr)
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open text index: %w", err)
	}

	return &TextIndex{index: idx, path: path}, nil
}

// createTextMapping builds the index mapping over name, path and
// content with the standard analyzer.
func createTextMapping() *mapping.IndexMappingImpl {
	indexMapping := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()

	nameField := bleve.NewTextFieldMapping()
	docMapping.AddFieldMappingsAt("name", nameField)

	pathField := bleve.NewTextFieldMapping()
	docMapping.AddFieldMappingsAt("path", pathField)

	contentField := bleve.NewTextFieldMapping()
	docMapping.AddFieldMappingsAt("content", contentField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// isCorruptionError checks if an error indicates Bleve index corruption.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// Upsert indexes or reindexes one record.
func (t *TextIndex) Upsert(ctx context.Context, id, name, path, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("text index is closed")
	}

	doc := textDocument{Name: name, Path: path, Content: content}
	if err := t.index.Index(id, doc); err != nil {
		return ferrors.New(ferrors.ErrCodeSearchFailed,
			fmt.Sprintf("failed to index document %s", id), err)
	}
	return nil
}

// Contains reports whether id is indexed.
func (t *TextIndex) Contains(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return false
	}
	doc, err := t.index.Document(id)
	return err == nil && doc != nil
}

// Delete removes one record. Unknown IDs are a no-op.
func (t *TextIndex) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("text index is closed")
	}
	return t.index.Delete(id)
}

// DeleteBatch removes many records in one Bleve batch.
func (t *TextIndex) DeleteBatch(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("text index is closed")
	}

	batch := t.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return t.index.Batch(batch)
}

// Search returns up to limit records matching query, best first.
// A blank query matches nothing.
func (t *TextIndex) Search(ctx context.Context, query string, limit int) ([]TextHit, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return nil, fmt.Errorf("text index is closed")
	}
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []TextHit{}, nil
	}

	matchQuery := bleve.NewMatchQuery(query)

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = limit

	result, err := t.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, ferrors.New(ferrors.ErrCodeSearchFailed, "text search failed", err)
	}

	hits := make([]TextHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		hits = append(hits, TextHit{ID: hit.ID, Score: hit.Score})
	}
	return hits, nil
}

// Count returns the number of indexed records.
func (t *TextIndex) Count() (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return 0, fmt.Errorf("text index is closed")
	}

	n, err := t.index.DocCount()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Close releases the underlying index.
func (t *TextIndex) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	return t.index.Close()
}
