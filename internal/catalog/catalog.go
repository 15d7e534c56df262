// Package catalog is the in-memory authoritative record of indexed files.
//
// The Catalog is the single owner of filesystem-derived truth: one live
// FileRecord per canonical path. It is mutated only by the Indexing
// Coordinator and read concurrently by the Query Coordinator and folder
// listing requests. The guarding lock is never held across network I/O.
package catalog

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SummaryLength is the number of content characters kept in a summary.
const SummaryLength = 200

// summaryEllipsis marks a truncated summary.
const summaryEllipsis = "..."

// FileRecord represents one indexed file.
type FileRecord struct {
	// ID is a process-unique stable identifier, assigned once at first
	// successful index and never reused after deletion.
	ID string

	// Path is the canonical filesystem path; unique within the catalog.
	Path string

	// Name is the file's base name.
	Name string

	// FileType is the lowercase extension, without dot.
	FileType string

	// Summary is the first SummaryLength characters of extracted content,
	// plus an ellipsis when truncated.
	Summary string

	// ModifiedAt is the filesystem modification timestamp.
	ModifiedAt time.Time

	// ContentHash is the SHA-256 hex of the most recent extracted content.
	ContentHash string

	// HasEmbedding signals the record is reachable by semantic search.
	// Records without an embedding still satisfy exact-text lookup.
	HasEmbedding bool

	// IndexedAt is when the record was last committed.
	IndexedAt time.Time
}

// Summarize derives the summary for extracted content.
// Result length never exceeds SummaryLength + len("...").
func Summarize(content string) string {
	runes := []rune(content)
	if len(runes) <= SummaryLength {
		return content
	}
	return string(runes[:SummaryLength]) + summaryEllipsis
}

// Catalog holds FileRecords keyed by path.
type Catalog struct {
	mu      sync.RWMutex
	byPath  map[string]*FileRecord
	byID    map[string]*FileRecord
	usedIDs map[string]bool // IDs are never reused within a session
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		byPath:  make(map[string]*FileRecord),
		byID:    make(map[string]*FileRecord),
		usedIDs: make(map[string]bool),
	}
}

// NewID allocates a fresh record identifier.
func (c *Catalog) NewID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		id := uuid.NewString()
		if !c.usedIDs[id] {
			c.usedIDs[id] = true
			return id
		}
	}
}

// Put commits a record, replacing any prior record for the same path.
// The prior record's ID is preserved so identity is stable across edits.
// Returns the committed record.
func (c *Catalog) Put(rec FileRecord) *FileRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.byPath[rec.Path]; ok {
		rec.ID = prev.ID
		delete(c.byID, prev.ID)
	}

	stored := rec
	c.byPath[rec.Path] = &stored
	c.byID[rec.ID] = &stored
	c.usedIDs[rec.ID] = true
	return &stored
}

// Get returns the record for path, or nil.
func (c *Catalog) Get(path string) *FileRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if rec, ok := c.byPath[path]; ok {
		copied := *rec
		return &copied
	}
	return nil
}

// GetByID returns the record with the given ID, or nil.
func (c *Catalog) GetByID(id string) *FileRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if rec, ok := c.byID[id]; ok {
		copied := *rec
		return &copied
	}
	return nil
}

// Remove deletes the record for path and returns it, or nil if absent.
// The removed ID stays burned for the rest of the session.
func (c *Catalog) Remove(path string) *FileRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.byPath[path]
	if !ok {
		return nil
	}
	delete(c.byPath, path)
	delete(c.byID, rec.ID)
	copied := *rec
	return &copied
}

// RemoveUnder deletes every record whose path is nested under root and
// returns the removed records. Used when a watched folder is removed.
func (c *Catalog) RemoveUnder(root string) []*FileRecord {
	prefix := strings.TrimSuffix(root, "/") + "/"

	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []*FileRecord
	for path, rec := range c.byPath {
		if path == root || strings.HasPrefix(path, prefix) {
			delete(c.byPath, path)
			delete(c.byID, rec.ID)
			copied := *rec
			removed = append(removed, &copied)
		}
	}

	sort.Slice(removed, func(i, j int) bool { return removed[i].Path < removed[j].Path })
	return removed
}

// List returns all records sorted by path.
func (c *Catalog) List() []*FileRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	records := make([]*FileRecord, 0, len(c.byPath))
	for _, rec := range c.byPath {
		copied := *rec
		records = append(records, &copied)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	return records
}

// Len returns the number of live records.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byPath)
}
