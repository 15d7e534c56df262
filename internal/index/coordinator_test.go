package index

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filesense/filesense/internal/broadcast"
	"github.com/filesense/filesense/internal/catalog"
	"github.com/filesense/filesense/internal/embed"
	"github.com/filesense/filesense/internal/extract"
	"github.com/filesense/filesense/internal/protocol"
	"github.com/filesense/filesense/internal/store"
	"github.com/filesense/filesense/internal/watcher"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// resolvedTempDir follows symlinks so paths match what the pump stores
// (macOS /tmp is a symlink).
func resolvedTempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

type fixture struct {
	c       *Coordinator
	pump    *watcher.Pump
	catalog *catalog.Catalog
	vectors *store.VectorIndex
	texts   *store.TextIndex
	bus     *broadcast.Broadcaster
}

func newFixture(t *testing.T, embedder embed.Embedder, maxFileSize int64) *fixture {
	t.Helper()

	vectors, err := store.NewVectorIndex(store.VectorConfig{Dimensions: embedder.Dimensions()})
	require.NoError(t, err)

	texts, err := store.NewTextIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = texts.Close() })

	pump, err := watcher.NewPump(watcher.Options{DebounceWindow: 20 * time.Millisecond}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pump.Stop() })

	bus := broadcast.New(16, testLogger())
	t.Cleanup(bus.Close)

	cat := catalog.New()
	c := NewCoordinator(CoordinatorConfig{
		Extractor: extract.New(maxFileSize),
		Embedder:  embedder,
		Catalog:   cat,
		Vectors:   vectors,
		Texts:     texts,
		Pump:      pump,
		Bus:       bus,
		Logger:    testLogger(),
	})

	return &fixture{c: c, pump: pump, catalog: cat, vectors: vectors, texts: texts, bus: bus}
}

// nextEvent reads one broadcast frame as a generic JSON object.
func nextEvent(t *testing.T, sess *broadcast.Session) map[string]any {
	t.Helper()
	select {
	case data := <-sess.Outbound():
		var event map[string]any
		require.NoError(t, json.Unmarshal(data, &event))
		return event
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for broadcast event")
		return nil
	}
}

func TestCoordinator_AddFolderIndexesSupportedFiles(t *testing.T) {
	// Given a folder with one supported and one unsupported file
	fx := newFixture(t, embed.NewStaticEmbedder(), 1<<20)
	dir := resolvedTempDir(t)
	writeFile(t, filepath.Join(dir, "notes.md"), "quarterly planning notes about search quality")
	writeFile(t, filepath.Join(dir, "data.bin"), "\x00\x01\x02")

	// When the folder is added
	stats, err := fx.c.AddFolder(context.Background(), dir)

	// Then only the supported file is indexed; the other counts in the
	// total but is neither indexed nor failed
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalFiles)
	assert.Equal(t, 1, stats.IndexedFiles)
	assert.Equal(t, 0, stats.FailedFiles)

	assert.Equal(t, 1, fx.catalog.Len())
	assert.Equal(t, 1, fx.vectors.Count())

	rec := fx.catalog.Get(filepath.Join(dir, "notes.md"))
	require.NotNil(t, rec)
	assert.True(t, rec.HasEmbedding)
	assert.Equal(t, "md", rec.FileType)

	hits, err := fx.texts.Search(context.Background(), "quarterly", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, rec.ID, hits[0].ID)
}

func TestCoordinator_ExtractionFailureCountsAndPublishesError(t *testing.T) {
	// Given an extractor with a tiny size cap and a file that exceeds it
	fx := newFixture(t, embed.NewStaticEmbedder(), 10)
	dir := resolvedTempDir(t)
	writeFile(t, filepath.Join(dir, "big.txt"), "this file is longer than ten bytes")

	sess := fx.bus.Register()
	defer fx.bus.Unregister(sess.ID())

	// When the folder is indexed
	stats, err := fx.c.AddFolder(context.Background(), dir)

	// Then the file counts as failed, no record is committed, and an
	// error event reaches the session before the aggregate progress
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalFiles)
	assert.Equal(t, 0, stats.IndexedFiles)
	assert.Equal(t, 1, stats.FailedFiles)
	assert.Equal(t, 0, fx.catalog.Len())

	event := nextEvent(t, sess)
	assert.Equal(t, protocol.TypeError, event["type"])
	event = nextEvent(t, sess)
	assert.Equal(t, protocol.TypeIndexingProgress, event["type"])
}

func TestCoordinator_UnchangedContentSkipsCommit(t *testing.T) {
	// Given an indexed file
	fx := newFixture(t, embed.NewStaticEmbedder(), 1<<20)
	dir := resolvedTempDir(t)
	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, "stable content")

	_, err := fx.c.AddFolder(context.Background(), dir)
	require.NoError(t, err)
	first := fx.catalog.Get(path)
	require.NotNil(t, first)

	// When the folder is indexed again without any change
	stats, err := fx.c.IndexFolder(context.Background(), dir)

	// Then the file still reports as indexed but nothing is recommitted
	require.NoError(t, err)
	assert.Equal(t, 1, stats.IndexedFiles)

	second := fx.catalog.Get(path)
	require.NotNil(t, second)
	assert.True(t, second.IndexedAt.Equal(first.IndexedAt))
	assert.Equal(t, first.ContentHash, second.ContentHash)
}

// gatedEmbedder blocks every Embed call until the gate opens, so tests
// can hold a task in flight deterministically.
type gatedEmbedder struct {
	inner *embed.StaticEmbedder
	gate  chan struct{}
	calls atomic.Int32
}

func newGatedEmbedder() *gatedEmbedder {
	return &gatedEmbedder{inner: embed.NewStaticEmbedder(), gate: make(chan struct{})}
}

func (g *gatedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	g.calls.Add(1)
	<-g.gate
	return g.inner.Embed(ctx, text)
}

func (g *gatedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	g.calls.Add(1)
	<-g.gate
	return g.inner.EmbedBatch(ctx, texts)
}

func (g *gatedEmbedder) Dimensions() int                    { return g.inner.Dimensions() }
func (g *gatedEmbedder) ModelName() string                  { return g.inner.ModelName() }
func (g *gatedEmbedder) Available(ctx context.Context) bool { return true }
func (g *gatedEmbedder) Close() error                       { return nil }

func TestCoordinator_SamePathQueueOne(t *testing.T) {
	// Given a task held in flight for a path
	gated := newGatedEmbedder()
	fx := newFixture(t, gated, 1<<20)
	dir := resolvedTempDir(t)
	path := filepath.Join(dir, "doc.md")
	writeFile(t, path, "one")
	require.NoError(t, fx.pump.AddFolder(dir))

	ctx := context.Background()
	t1 := make(chan result, 1)
	fx.c.submit(task{ctx: ctx, path: path, op: watcher.OpCreate, quiet: true, resCh: t1})

	require.Eventually(t, func() bool { return gated.calls.Load() == 1 },
		5*time.Second, 5*time.Millisecond, "first task should reach the embedder")

	// When two more tasks arrive for the same path while it is busy
	writeFile(t, path, "two")
	t2 := make(chan result, 1)
	fx.c.submit(task{ctx: ctx, path: path, op: watcher.OpModify, quiet: true, resCh: t2})

	writeFile(t, path, "three")
	t3 := make(chan result, 1)
	fx.c.submit(task{ctx: ctx, path: path, op: watcher.OpModify, quiet: true, resCh: t3})

	// Then the middle task is superseded immediately
	select {
	case res := <-t2:
		assert.True(t, res.skipped)
	case <-time.After(time.Second):
		t.Fatal("superseded task was not resolved")
	}

	// And after the gate opens, commits land in submission order with
	// the latest content winning
	close(gated.gate)
	res1 := <-t1
	assert.True(t, res1.indexed)
	res3 := <-t3
	assert.True(t, res3.indexed)

	rec := fx.catalog.Get(path)
	require.NotNil(t, rec)
	assert.Equal(t, "three", rec.Summary)
}

func TestCoordinator_DeleteRemovesSubtree(t *testing.T) {
	// Given an indexed tree with a subdirectory
	fx := newFixture(t, embed.NewStaticEmbedder(), 1<<20)
	dir := resolvedTempDir(t)
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	writeFile(t, filepath.Join(dir, "top.md"), "top level file")
	writeFile(t, filepath.Join(sub, "a.md"), "nested file a")
	writeFile(t, filepath.Join(sub, "b.md"), "nested file b")

	stats, err := fx.c.AddFolder(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 3, stats.IndexedFiles)

	// When a delete arrives for the subdirectory path
	require.NoError(t, os.RemoveAll(sub))
	res := fx.c.submitWait(context.Background(),
		task{path: sub, op: watcher.OpDelete, quiet: true})

	// Then every record under it is gone and the top-level file remains
	assert.Equal(t, 2, res.deleted)
	assert.Equal(t, 1, fx.catalog.Len())
	assert.Equal(t, 1, fx.vectors.Count())
	assert.NotNil(t, fx.catalog.Get(filepath.Join(dir, "top.md")))
}

func TestCoordinator_DeleteUnknownPathIsNoop(t *testing.T) {
	// Given an empty index
	fx := newFixture(t, embed.NewStaticEmbedder(), 1<<20)

	// When a delete arrives for a path that was never indexed
	res := fx.c.submitWait(context.Background(),
		task{path: "/nowhere/ghost.md", op: watcher.OpDelete, quiet: true})

	// Then nothing happens
	assert.True(t, res.skipped)
	assert.Equal(t, 0, res.deleted)
}

func TestCoordinator_RemoveFolderPurgesAndPublishes(t *testing.T) {
	// Given an indexed folder
	fx := newFixture(t, embed.NewStaticEmbedder(), 1<<20)
	dir := resolvedTempDir(t)
	writeFile(t, filepath.Join(dir, "doc.md"), "to be removed")
	_, err := fx.c.AddFolder(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 1, fx.catalog.Len())

	sess := fx.bus.Register()
	defer fx.bus.Unregister(sess.ID())

	// When the folder is removed
	require.NoError(t, fx.c.RemoveFolder(context.Background(), dir))

	// Then all state under it is purged and sessions are notified
	assert.Equal(t, 0, fx.catalog.Len())
	assert.Equal(t, 0, fx.vectors.Count())
	assert.Empty(t, fx.c.Folders())

	event := nextEvent(t, sess)
	assert.Equal(t, protocol.TypeFolderRemoved, event["type"])
	assert.Equal(t, dir, event["path"])
}

func TestCoordinator_RemoveUnknownFolderIsNoop(t *testing.T) {
	// Given a folder that was never added
	fx := newFixture(t, embed.NewStaticEmbedder(), 1<<20)
	dir := resolvedTempDir(t)

	// When it is removed
	err := fx.c.RemoveFolder(context.Background(), dir)

	// Then the call succeeds without side effects
	require.NoError(t, err)
	assert.Equal(t, 0, fx.catalog.Len())
}

// failingEmbedder always errors, simulating an unreachable model server.
type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("model server unreachable")
}

func (failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("model server unreachable")
}

func (failingEmbedder) Dimensions() int                    { return 256 }
func (failingEmbedder) ModelName() string                  { return "failing" }
func (failingEmbedder) Available(ctx context.Context) bool { return false }
func (failingEmbedder) Close() error                       { return nil }

func TestCoordinator_EmbedFailureStaysTextSearchable(t *testing.T) {
	// Given an embedder that always fails
	fx := newFixture(t, failingEmbedder{}, 1<<20)
	dir := resolvedTempDir(t)
	path := filepath.Join(dir, "report.md")
	writeFile(t, path, "annual revenue report")

	// When the folder is indexed
	stats, err := fx.c.AddFolder(context.Background(), dir)

	// Then the record commits without an embedding and exact-text
	// search still finds it
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalFiles)
	assert.Equal(t, 1, stats.IndexedFiles)
	assert.Equal(t, 0, stats.FailedFiles)
	assert.Equal(t, 0, fx.vectors.Count())

	rec := fx.catalog.Get(path)
	require.NotNil(t, rec)
	assert.False(t, rec.HasEmbedding)

	hits, err := fx.texts.Search(context.Background(), "revenue", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, rec.ID, hits[0].ID)
}

// outageEmbedder works until failNow is set, simulating a model server
// that goes down between two indexing passes.
type outageEmbedder struct {
	inner   *embed.StaticEmbedder
	failNow atomic.Bool
}

func newOutageEmbedder() *outageEmbedder {
	return &outageEmbedder{inner: embed.NewStaticEmbedder()}
}

func (o *outageEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if o.failNow.Load() {
		return nil, errors.New("model server unreachable")
	}
	return o.inner.Embed(ctx, text)
}

func (o *outageEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if o.failNow.Load() {
		return nil, errors.New("model server unreachable")
	}
	return o.inner.EmbedBatch(ctx, texts)
}

func (o *outageEmbedder) Dimensions() int                    { return o.inner.Dimensions() }
func (o *outageEmbedder) ModelName() string                  { return o.inner.ModelName() }
func (o *outageEmbedder) Available(ctx context.Context) bool { return !o.failNow.Load() }
func (o *outageEmbedder) Close() error                       { return nil }

func TestCoordinator_EmbedFailureOnModifyPurgesOldVector(t *testing.T) {
	// Given a file indexed with an embedding
	embedder := newOutageEmbedder()
	fx := newFixture(t, embedder, 1<<20)
	dir := resolvedTempDir(t)
	path := filepath.Join(dir, "lease.md")
	writeFile(t, path, "signed lease agreement for the harbor office")

	_, err := fx.c.AddFolder(context.Background(), dir)
	require.NoError(t, err)
	rec := fx.catalog.Get(path)
	require.NotNil(t, rec)
	require.True(t, rec.HasEmbedding)
	require.True(t, fx.vectors.Contains(rec.ID))

	// When the content changes while the embedder is down
	embedder.failNow.Store(true)
	writeFile(t, path, "terminated, see the storage unit contract instead")
	res := fx.c.submitWait(context.Background(),
		task{path: path, op: watcher.OpModify, quiet: true})

	// Then the record commits without an embedding and the old content's
	// vector is gone with it
	assert.True(t, res.indexed)
	rec = fx.catalog.Get(path)
	require.NotNil(t, rec)
	assert.False(t, rec.HasEmbedding)
	assert.False(t, fx.vectors.Contains(rec.ID))

	// And a semantic query for the old content no longer finds the file
	oldVec, err := embedder.inner.Embed(context.Background(), "signed lease agreement for the harbor office")
	require.NoError(t, err)
	hits, err := fx.vectors.Query(context.Background(), oldVec, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	// While exact-text search reflects the new content
	textHits, err := fx.texts.Search(context.Background(), "storage", 10)
	require.NoError(t, err)
	require.Len(t, textHits, 1)
	assert.Equal(t, rec.ID, textHits[0].ID)
}

func TestCoordinator_WatchEventsDriveIndexing(t *testing.T) {
	// Given a running pump and coordinator
	fx := newFixture(t, embed.NewStaticEmbedder(), 1<<20)
	dir := resolvedTempDir(t)
	require.NoError(t, fx.pump.AddFolder(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = fx.pump.Run(ctx) }()
	go func() { _ = fx.c.Run(ctx) }()

	// When a file is created in the watched folder
	path := filepath.Join(dir, "live.md")
	writeFile(t, path, "created while watching")

	// Then it shows up in the catalog without any explicit index call
	require.Eventually(t, func() bool {
		return fx.catalog.Get(path) != nil
	}, 5*time.Second, 10*time.Millisecond)

	// And when it is deleted, the record disappears again
	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool {
		return fx.catalog.Get(path) == nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCoordinator_StatsReflectCatalog(t *testing.T) {
	// Given two indexed files
	fx := newFixture(t, embed.NewStaticEmbedder(), 1<<20)
	dir := resolvedTempDir(t)
	writeFile(t, filepath.Join(dir, "a.md"), "first")
	writeFile(t, filepath.Join(dir, "b.md"), "second")
	_, err := fx.c.AddFolder(context.Background(), dir)
	require.NoError(t, err)

	// When a global snapshot is taken
	stats := fx.c.Stats()

	// Then counters match the catalog and vector index
	assert.Equal(t, 2, stats.TotalFiles)
	assert.Equal(t, 2, stats.IndexedFiles)
	assert.Equal(t, 0, stats.FailedFiles)
	assert.Equal(t, 2, stats.TotalChunks)
}
