// Package integration exercises the assembled pipeline: extraction,
// embedding, catalog, vector and text indexes, and the query engine
// working against real files on disk.
package integration

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filesense/filesense/internal/broadcast"
	"github.com/filesense/filesense/internal/catalog"
	"github.com/filesense/filesense/internal/embed"
	"github.com/filesense/filesense/internal/extract"
	"github.com/filesense/filesense/internal/index"
	"github.com/filesense/filesense/internal/query"
	"github.com/filesense/filesense/internal/store"
	"github.com/filesense/filesense/internal/watcher"
)

// pipeline is the full component graph rooted in a data dir, the same
// wiring the daemon builds at startup.
type pipeline struct {
	embedder    embed.Embedder
	catalog     *catalog.Catalog
	db          *catalog.Store
	vectors     *store.VectorIndex
	texts       *store.TextIndex
	pump        *watcher.Pump
	bus         *broadcast.Broadcaster
	coordinator *index.Coordinator
	engine      *query.Engine

	vectorPath string
	closed     bool
}

func newPipeline(t *testing.T, dataDir string) *pipeline {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	embedder := embed.NewStaticEmbedder()

	vectors, err := store.NewVectorIndex(store.VectorConfig{Dimensions: embedder.Dimensions()})
	require.NoError(t, err)
	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	if _, statErr := os.Stat(vectorPath); statErr == nil {
		require.NoError(t, vectors.Load(vectorPath))
	}

	texts, err := store.NewTextIndex("")
	require.NoError(t, err)

	db, err := catalog.OpenStore(dataDir)
	require.NoError(t, err)

	cat := catalog.New()
	_, err = db.LoadAll(context.Background(), cat)
	require.NoError(t, err)
	for _, rec := range cat.List() {
		if vectors.Contains(rec.ID) {
			rec.HasEmbedding = true
			cat.Put(*rec)
		}
	}

	pump, err := watcher.NewPump(watcher.Options{DebounceWindow: 50 * time.Millisecond}, logger)
	require.NoError(t, err)

	bus := broadcast.New(16, logger)

	coordinator := index.NewCoordinator(index.CoordinatorConfig{
		Extractor: extract.New(10 * 1024 * 1024),
		Embedder:  embedder,
		Catalog:   cat,
		DB:        db,
		Vectors:   vectors,
		Texts:     texts,
		Pump:      pump,
		Bus:       bus,
		Logger:    logger,
	})

	engine := query.NewEngine(embedder, vectors, texts, cat, query.Config{}, logger)

	p := &pipeline{
		embedder:    embedder,
		catalog:     cat,
		db:          db,
		vectors:     vectors,
		texts:       texts,
		pump:        pump,
		bus:         bus,
		coordinator: coordinator,
		engine:      engine,
		vectorPath:  vectorPath,
	}
	t.Cleanup(p.close)
	return p
}

func (p *pipeline) close() {
	if p.closed {
		return
	}
	p.closed = true
	_ = p.pump.Stop()
	_ = p.vectors.Save(p.vectorPath)
	_ = p.texts.Close()
	_ = p.db.Close()
	p.bus.Close()
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func resolvedTempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

func TestIndexThenSearch_FindsSemanticMatch(t *testing.T) {
	// Given a folder with files about different topics
	folder := resolvedTempDir(t)
	recipePath := writeFile(t, folder, "recipes.md",
		"Chocolate cake recipe with flour sugar cocoa and butter")
	writeFile(t, folder, "taxes.txt",
		"Quarterly tax filing deadlines and deduction worksheets")

	p := newPipeline(t, t.TempDir())
	ctx := context.Background()

	// When indexing the folder and searching for a related term
	stats, err := p.coordinator.AddFolder(ctx, folder)
	require.NoError(t, err)
	require.Equal(t, 2, stats.IndexedFiles)

	result, err := p.engine.Search(ctx, "chocolate cake recipe", 10)
	require.NoError(t, err)

	// Then the recipe file ranks first
	require.NotEmpty(t, result.Files)
	assert.Equal(t, recipePath, result.Files[0].Path)
	assert.Greater(t, result.Files[0].Score, float32(0))
}

func TestIndexThenSearchText_MatchesExactWords(t *testing.T) {
	// Given an indexed folder
	folder := resolvedTempDir(t)
	notesPath := writeFile(t, folder, "notes.txt",
		"meeting with the zoning committee about the greenhouse permit")

	p := newPipeline(t, t.TempDir())
	ctx := context.Background()

	_, err := p.coordinator.AddFolder(ctx, folder)
	require.NoError(t, err)

	// When running an exact-text search for a word in the file
	result, err := p.engine.SearchText(ctx, "greenhouse", 10)
	require.NoError(t, err)

	// Then the file is found with its catalog metadata attached
	require.Len(t, result.Files, 1)
	assert.Equal(t, notesPath, result.Files[0].Path)
	assert.Equal(t, "notes.txt", result.Files[0].Name)
}

func TestRestart_SearchWorksWithoutReindexing(t *testing.T) {
	// Given a populated index persisted to a data dir
	folder := resolvedTempDir(t)
	writeFile(t, folder, "journal.md", "hiking trip through the mountain pass last summer")
	dataDir := t.TempDir()

	first := newPipeline(t, dataDir)
	ctx := context.Background()
	_, err := first.coordinator.AddFolder(ctx, folder)
	require.NoError(t, err)
	rec := first.catalog.Get(filepath.Join(folder, "journal.md"))
	require.NotNil(t, rec)
	indexedAt := rec.IndexedAt.UnixNano()
	first.close()

	// When a fresh pipeline starts from the same data dir
	second := newPipeline(t, dataDir)

	// Then semantic search works from the saved graph alone
	result, err := second.engine.Search(ctx, "mountain hiking", 10)
	require.NoError(t, err)
	require.NotEmpty(t, result.Files)
	assert.Equal(t, "journal.md", result.Files[0].Name)

	// And re-adding the folder short-circuits on content hashes
	stats, err := second.coordinator.AddFolder(ctx, folder)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.IndexedFiles)
	assert.Equal(t, 0, stats.FailedFiles)
	rec = second.catalog.Get(filepath.Join(folder, "journal.md"))
	require.NotNil(t, rec)
	assert.Equal(t, indexedAt, rec.IndexedAt.UnixNano())

	// And the memory-only text index was refilled during that pass
	textResult, err := second.engine.SearchText(ctx, "hiking", 10)
	require.NoError(t, err)
	assert.Len(t, textResult.Files, 1)
}

func TestRemoveFolder_PurgesSearchResults(t *testing.T) {
	// Given two indexed folders
	keep := resolvedTempDir(t)
	drop := resolvedTempDir(t)
	writeFile(t, keep, "keep.txt", "orchestra rehearsal schedule for the spring concert")
	writeFile(t, drop, "drop.txt", "orchestra ticket refund policy and seating chart")

	p := newPipeline(t, t.TempDir())
	ctx := context.Background()
	_, err := p.coordinator.AddFolder(ctx, keep)
	require.NoError(t, err)
	_, err = p.coordinator.AddFolder(ctx, drop)
	require.NoError(t, err)

	// When removing one folder
	require.NoError(t, p.coordinator.RemoveFolder(ctx, drop))

	// Then only the surviving folder's files are searchable
	result, err := p.engine.Search(ctx, "orchestra", 10)
	require.NoError(t, err)
	require.Len(t, result.Files, 1)
	assert.Equal(t, "keep.txt", result.Files[0].Name)

	stats := p.coordinator.Stats()
	assert.Equal(t, 1, stats.TotalFiles)
}
