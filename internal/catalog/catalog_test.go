package catalog

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize_ShortContentVerbatim(t *testing.T) {
	content := "hello world"
	assert.Equal(t, content, Summarize(content))
}

func TestSummarize_ExactBoundaryVerbatim(t *testing.T) {
	content := strings.Repeat("x", SummaryLength)
	assert.Equal(t, content, Summarize(content))
}

func TestSummarize_LongContentTruncated(t *testing.T) {
	content := strings.Repeat("x", 500)
	summary := Summarize(content)

	assert.True(t, strings.HasSuffix(summary, "..."))
	assert.LessOrEqual(t, len(summary), SummaryLength+3)
	assert.Equal(t, content[:SummaryLength], summary[:SummaryLength])
}

func TestPut_PreservesIDAcrossEdits(t *testing.T) {
	c := New()
	first := c.Put(FileRecord{ID: c.NewID(), Path: "/docs/a.txt", Summary: "v1"})

	second := c.Put(FileRecord{ID: c.NewID(), Path: "/docs/a.txt", Summary: "v2"})

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "v2", c.Get("/docs/a.txt").Summary)
	assert.Equal(t, 1, c.Len())
}

func TestRemove_ThenReAdd_YieldsFreshID(t *testing.T) {
	c := New()
	orig := c.Put(FileRecord{ID: c.NewID(), Path: "/docs/a.txt"})

	removed := c.Remove("/docs/a.txt")
	require.NotNil(t, removed)
	assert.Equal(t, orig.ID, removed.ID)

	readded := c.Put(FileRecord{ID: c.NewID(), Path: "/docs/a.txt"})
	assert.NotEqual(t, orig.ID, readded.ID)
}

func TestRemove_AbsentPathIsNil(t *testing.T) {
	assert.Nil(t, New().Remove("/nope"))
}

func TestGetByID(t *testing.T) {
	c := New()
	rec := c.Put(FileRecord{ID: c.NewID(), Path: "/docs/a.txt", Name: "a.txt"})

	found := c.GetByID(rec.ID)
	require.NotNil(t, found)
	assert.Equal(t, "/docs/a.txt", found.Path)
	assert.Nil(t, c.GetByID("missing"))
}

func TestRemoveUnder_OnlyNestedPaths(t *testing.T) {
	c := New()
	c.Put(FileRecord{ID: c.NewID(), Path: "/docs/a.txt"})
	c.Put(FileRecord{ID: c.NewID(), Path: "/docs/sub/b.md"})
	c.Put(FileRecord{ID: c.NewID(), Path: "/docs-other/c.txt"})

	removed := c.RemoveUnder("/docs")

	require.Len(t, removed, 2)
	assert.Equal(t, "/docs/a.txt", removed[0].Path)
	assert.Equal(t, "/docs/sub/b.md", removed[1].Path)
	assert.Equal(t, 1, c.Len())
	assert.NotNil(t, c.Get("/docs-other/c.txt"))
}

func TestList_SortedByPath(t *testing.T) {
	c := New()
	c.Put(FileRecord{ID: c.NewID(), Path: "/z.txt"})
	c.Put(FileRecord{ID: c.NewID(), Path: "/a.txt"})

	records := c.List()
	require.Len(t, records, 2)
	assert.Equal(t, "/a.txt", records[0].Path)
	assert.Equal(t, "/z.txt", records[1].Path)
}

func TestGet_ReturnsCopy(t *testing.T) {
	c := New()
	c.Put(FileRecord{ID: c.NewID(), Path: "/docs/a.txt", Summary: "original"})

	got := c.Get("/docs/a.txt")
	got.Summary = "mutated"

	assert.Equal(t, "original", c.Get("/docs/a.txt").Summary)
}

func TestStore_RoundTrip(t *testing.T) {
	store, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ctx := t.Context()
	rec := &FileRecord{
		ID:           "id-1",
		Path:         "/docs/a.txt",
		Name:         "a.txt",
		FileType:     "txt",
		Summary:      "hello",
		ModifiedAt:   time.Now().Truncate(time.Millisecond),
		ContentHash:  "abc",
		HasEmbedding: true,
		IndexedAt:    time.Now().Truncate(time.Millisecond),
	}
	require.NoError(t, store.SaveRecord(ctx, rec))

	cat := New()
	n, err := store.LoadAll(ctx, cat)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	loaded := cat.Get("/docs/a.txt")
	require.NotNil(t, loaded)
	assert.Equal(t, "id-1", loaded.ID)
	assert.Equal(t, "hello", loaded.Summary)
	// Embedding flags are not trusted across restarts
	assert.False(t, loaded.HasEmbedding)
}

func TestStore_DeleteUnder(t *testing.T) {
	store, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ctx := t.Context()
	for _, p := range []string{"/docs/a.txt", "/docs/sub/b.md", "/notes/c.txt"} {
		require.NoError(t, store.SaveRecord(ctx, &FileRecord{ID: p, Path: p, Name: "f", FileType: "txt"}))
	}

	require.NoError(t, store.DeleteUnder(ctx, "/docs"))

	cat := New()
	n, err := store.LoadAll(ctx, cat)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotNil(t, cat.Get("/notes/c.txt"))
}
