// Package index keeps the catalog, vector index, and text index in sync
// with the filesystem.
//
// The Coordinator is the only writer of indexed state. It consumes
// debounced watch events, runs batch folder indexing, and guarantees
// per-path ordering: at most one task per path is in flight, and at most
// one is queued behind it (later arrivals replace the queued task).
// Commits for a path therefore apply strictly in submission order.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	stderrors "errors"

	"golang.org/x/sync/errgroup"

	"github.com/filesense/filesense/internal/broadcast"
	"github.com/filesense/filesense/internal/catalog"
	"github.com/filesense/filesense/internal/embed"
	ferrors "github.com/filesense/filesense/internal/errors"
	"github.com/filesense/filesense/internal/extract"
	"github.com/filesense/filesense/internal/protocol"
	"github.com/filesense/filesense/internal/store"
	"github.com/filesense/filesense/internal/watcher"
)

// maxIndexParallel bounds concurrent file tasks during a folder walk.
const maxIndexParallel = 8

// CoordinatorConfig contains the coordinator's collaborators.
type CoordinatorConfig struct {
	// Extractor turns files into text.
	Extractor *extract.Extractor

	// Embedder produces vectors. Usually the full gateway chain.
	Embedder embed.Embedder

	// Catalog is the authoritative in-memory record set.
	Catalog *catalog.Catalog

	// DB persists catalog records across restarts (optional).
	DB *catalog.Store

	// Vectors is the semantic index.
	Vectors *store.VectorIndex

	// Texts is the exact-text index.
	Texts *store.TextIndex

	// Pump supplies file events and tracks watched roots.
	Pump *watcher.Pump

	// Bus receives progress and error events (optional).
	Bus *broadcast.Broadcaster

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Coordinator applies filesystem changes to the indexes.
type Coordinator struct {
	cfg    CoordinatorConfig
	logger *slog.Logger

	mu      sync.Mutex
	flights map[string]*flight

	failedTotal atomic.Int64
}

// flight tracks the in-flight task for one path plus at most one queued
// successor.
type flight struct {
	pending *task
}

// task is one unit of index work for a single path.
type task struct {
	ctx  context.Context
	path string
	op   watcher.Op

	// quiet suppresses per-task progress events; batch indexing emits
	// one aggregate instead.
	quiet bool

	// resCh receives exactly one result when set.
	resCh chan result
}

// result reports how a task ended.
type result struct {
	indexed  bool // committed new or changed content
	upToDate bool // content hash matched, nothing to do
	deleted  int  // records removed
	skipped  bool // unsupported, superseded, or no longer watched
	failed   bool
	err      error
}

// NewCoordinator creates a coordinator. Run must be called for watch
// events to be processed; AddFolder and IndexFolder work immediately.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Coordinator{
		cfg:     cfg,
		logger:  cfg.Logger,
		flights: make(map[string]*flight),
	}
}

// Run consumes watch events until ctx is cancelled or the pump stops.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-c.cfg.Pump.Events():
			if !ok {
				return nil
			}
			c.handleEvents(ctx, batch)
		case err, ok := <-c.cfg.Pump.Errors():
			if !ok {
				return nil
			}
			c.logger.Warn("watcher error", "error", err)
		}
	}
}

// handleEvents submits one task per debounced event.
func (c *Coordinator) handleEvents(ctx context.Context, events []watcher.FileEvent) {
	for _, event := range events {
		switch event.Op {
		case watcher.OpDelete:
			c.submit(task{ctx: ctx, path: event.Path, op: watcher.OpDelete})
		case watcher.OpCreate:
			if event.IsDir {
				// A directory can appear fully populated (mv into the
				// tree); its contents never produce their own events.
				dir := event.Path
				go c.scanTree(ctx, dir)
				continue
			}
			c.submit(task{ctx: ctx, path: event.Path, op: event.Op})
		case watcher.OpModify:
			if event.IsDir {
				continue
			}
			c.submit(task{ctx: ctx, path: event.Path, op: event.Op})
		}
	}
}

// scanTree submits a create task for every supported file under root.
func (c *Coordinator) scanTree(ctx context.Context, root string) {
	err := walkFollowingSymlinks(root, func(path string, info os.FileInfo) {
		if !extract.Supported(extract.FileType(path)) {
			return
		}
		c.submit(task{ctx: ctx, path: path, op: watcher.OpCreate})
	})
	if err != nil {
		c.logger.Warn("directory scan failed", "path", root, "error", err)
	}
}

// submit dispatches a task, starting a worker unless the path already
// has one in flight. A queued task for the same path is replaced.
func (c *Coordinator) submit(t task) {
	c.mu.Lock()
	if fl, inFlight := c.flights[t.path]; inFlight {
		if fl.pending != nil {
			notify(*fl.pending, result{skipped: true})
		}
		fl.pending = &t
		c.mu.Unlock()
		return
	}
	c.flights[t.path] = &flight{}
	c.mu.Unlock()

	go c.work(t)
}

// submitWait submits a task and blocks until it resolves.
func (c *Coordinator) submitWait(ctx context.Context, t task) result {
	t.resCh = make(chan result, 1)
	if t.ctx == nil {
		t.ctx = ctx
	}
	c.submit(t)

	select {
	case res := <-t.resCh:
		return res
	case <-ctx.Done():
		return result{skipped: true, err: ctx.Err()}
	}
}

// work executes one task and then promotes the queued successor, if any.
func (c *Coordinator) work(t task) {
	res := c.execute(t.ctx, t)
	if !t.quiet && (res.indexed || res.deleted > 0) {
		c.publish(protocol.NewIndexingProgress(c.Stats()))
	}
	notify(t, res)

	c.mu.Lock()
	var next *task
	if fl, ok := c.flights[t.path]; ok {
		if fl.pending != nil {
			next = fl.pending
			fl.pending = nil
		} else {
			delete(c.flights, t.path)
		}
	}
	c.mu.Unlock()

	if next != nil {
		go c.work(*next)
	}
}

// notify delivers a task's result when someone is waiting for it.
func notify(t task, res result) {
	if t.resCh != nil {
		t.resCh <- res
	}
}

// execute runs one task to completion.
func (c *Coordinator) execute(ctx context.Context, t task) result {
	if t.op == watcher.OpDelete {
		return c.executeDelete(ctx, t.path)
	}
	return c.executeUpsert(ctx, t)
}

// executeDelete removes the record for path and, when path was a
// directory, every record nested under it. Deleting an unknown path is
// a no-op.
func (c *Coordinator) executeDelete(ctx context.Context, path string) result {
	var removed []*catalog.FileRecord
	if rec := c.cfg.Catalog.Remove(path); rec != nil {
		removed = append(removed, rec)
	}
	// Directory deletions arrive as a single event for the directory
	// path; the files inside never get their own delete events.
	removed = append(removed, c.cfg.Catalog.RemoveUnder(path)...)
	if len(removed) == 0 {
		return result{skipped: true}
	}

	for _, rec := range removed {
		if err := c.cfg.Vectors.Delete(ctx, rec.ID); err != nil {
			c.logger.Warn("vector delete failed", "path", rec.Path, "error", err)
		}
		if err := c.cfg.Texts.Delete(ctx, rec.ID); err != nil {
			c.logger.Warn("text delete failed", "path", rec.Path, "error", err)
		}
	}
	if c.cfg.DB != nil {
		if err := c.cfg.DB.DeleteRecord(ctx, path); err != nil {
			c.logger.Warn("catalog db delete failed", "path", path, "error", err)
		}
		if err := c.cfg.DB.DeleteUnder(ctx, path); err != nil {
			c.logger.Warn("catalog db subtree delete failed", "path", path, "error", err)
		}
	}

	c.logger.Info("removed from index", "path", path, "records", len(removed))
	return result{deleted: len(removed)}
}

// executeUpsert extracts, embeds, and commits one file. Extraction
// failure counts as a per-file failure and leaves any stale record in
// place. Embedding failure still commits the record so the file stays
// reachable by exact-text search, but any vector from the previous
// content is purged so semantic search never ranks the file by content
// it no longer has.
func (c *Coordinator) executeUpsert(ctx context.Context, t task) result {
	fileType := extract.FileType(t.path)
	if !extract.Supported(fileType) {
		return result{skipped: true}
	}

	content, err := c.cfg.Extractor.Extract(t.path)
	if err != nil {
		if stderrors.Is(err, extract.ErrUnsupportedType) {
			return result{skipped: true}
		}
		ferr := ferrors.ExtractionError(t.path, err)
		c.logger.Warn("extraction failed", "path", t.path, "error", err)
		c.failedTotal.Add(1)
		c.publish(protocol.NewError(ferr.Error()))
		return result{failed: true, err: ferr}
	}

	sum := sha256.Sum256([]byte(content))
	hash := hex.EncodeToString(sum[:])

	prev := c.cfg.Catalog.Get(t.path)
	if prev != nil && prev.ContentHash == hash && prev.HasEmbedding {
		// The text index is memory-only; after a restart it needs a
		// refill even when the vector side is current.
		if !c.cfg.Texts.Contains(prev.ID) {
			if txErr := c.cfg.Texts.Upsert(ctx, prev.ID, prev.Name, prev.Path, content); txErr != nil {
				c.logger.Warn("text index refill failed", "path", t.path, "error", txErr)
			}
		}
		return result{upToDate: true}
	}

	id := ""
	if prev != nil {
		id = prev.ID
	} else {
		id = c.cfg.Catalog.NewID()
	}

	name := filepath.Base(t.path)
	summary := catalog.Summarize(content)

	var modTime time.Time
	if info, statErr := os.Stat(t.path); statErr == nil {
		modTime = info.ModTime()
	}

	hasEmbedding := false
	vec, embErr := c.cfg.Embedder.Embed(ctx, content)
	if embErr != nil {
		c.logger.Warn("embedding failed, file stays text-searchable",
			"path", t.path, "error", embErr)
	} else {
		payload := store.Payload{Path: t.path, Name: name, Summary: summary}
		if upErr := c.cfg.Vectors.Upsert(ctx, id, vec, payload); upErr != nil {
			c.logger.Warn("vector upsert failed", "path", t.path, "error", upErr)
		} else {
			hasEmbedding = true
		}
	}

	// Without a fresh embedding, a vector from the file's previous
	// content must not keep answering semantic queries for it.
	if !hasEmbedding && prev != nil && prev.HasEmbedding {
		if delErr := c.cfg.Vectors.Delete(ctx, id); delErr != nil {
			c.logger.Warn("stale vector delete failed", "path", t.path, "error", delErr)
		}
	}

	// The folder may have been removed while the task was embedding;
	// results for unwatched paths are discarded, not committed.
	if c.cfg.Pump != nil && !c.cfg.Pump.Watches(t.path) {
		if hasEmbedding {
			_ = c.cfg.Vectors.Delete(ctx, id)
		}
		return result{skipped: true}
	}

	if txErr := c.cfg.Texts.Upsert(ctx, id, name, t.path, content); txErr != nil {
		c.logger.Warn("text index upsert failed", "path", t.path, "error", txErr)
	}

	rec := c.cfg.Catalog.Put(catalog.FileRecord{
		ID:           id,
		Path:         t.path,
		Name:         name,
		FileType:     fileType,
		Summary:      summary,
		ModifiedAt:   modTime,
		ContentHash:  hash,
		HasEmbedding: hasEmbedding,
		IndexedAt:    time.Now(),
	})
	if c.cfg.DB != nil {
		if dbErr := c.cfg.DB.SaveRecord(ctx, rec); dbErr != nil {
			c.logger.Warn("catalog db save failed", "path", t.path, "error", dbErr)
		}
	}

	c.logger.Debug("indexed file", "path", t.path, "embedded", hasEmbedding)
	return result{indexed: true}
}

// AddFolder starts watching root and runs an initial batch index of it.
func (c *Coordinator) AddFolder(ctx context.Context, root string) (protocol.IndexStats, error) {
	if err := c.cfg.Pump.AddFolder(root); err != nil {
		return protocol.IndexStats{}, err
	}
	return c.IndexFolder(ctx, root)
}

// IndexFolder walks root, indexes every supported file, and emits one
// aggregate progress event for the batch. TotalFiles counts every
// regular file seen; unsupported files are neither indexed nor failed.
func (c *Coordinator) IndexFolder(ctx context.Context, root string) (protocol.IndexStats, error) {
	abs, err := resolvePath(root)
	if err != nil {
		return protocol.IndexStats{}, err
	}

	var total, indexed, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxIndexParallel)

	walkErr := walkFollowingSymlinks(abs, func(path string, info os.FileInfo) {
		total.Add(1)
		if !extract.Supported(extract.FileType(path)) {
			return
		}
		g.Go(func() error {
			res := c.submitWait(gctx, task{path: path, op: watcher.OpCreate, quiet: true})
			switch {
			case res.failed:
				failed.Add(1)
			case res.indexed, res.upToDate:
				indexed.Add(1)
			}
			return nil
		})
	})
	_ = g.Wait()
	if walkErr != nil {
		return protocol.IndexStats{}, ferrors.New(ferrors.ErrCodeWatchSetupFailed,
			"failed to index folder", walkErr).WithDetail("path", root)
	}

	stats := c.Stats()
	stats.TotalFiles = int(total.Load())
	stats.IndexedFiles = int(indexed.Load())
	stats.FailedFiles = int(failed.Load())

	c.publish(protocol.NewIndexingProgress(stats))
	c.logger.Info("folder indexed", "path", abs,
		"total", stats.TotalFiles, "indexed", stats.IndexedFiles, "failed", stats.FailedFiles)
	return stats, nil
}

// RemoveFolder stops watching root and purges everything indexed under
// it. Tasks queued for paths under root are dropped; in-flight tasks
// finish but their commits are discarded. Removing a folder that was
// never added is a no-op success.
func (c *Coordinator) RemoveFolder(ctx context.Context, root string) error {
	abs, err := resolvePath(root)
	if err != nil {
		return err
	}

	if err := c.cfg.Pump.RemoveFolder(abs); err != nil {
		return err
	}

	c.mu.Lock()
	for path, fl := range c.flights {
		if fl.pending != nil && underRoot(path, abs) {
			notify(*fl.pending, result{skipped: true})
			fl.pending = nil
		}
	}
	c.mu.Unlock()

	removed := c.cfg.Catalog.RemoveUnder(abs)
	for _, rec := range removed {
		if delErr := c.cfg.Vectors.Delete(ctx, rec.ID); delErr != nil {
			c.logger.Warn("vector delete failed", "path", rec.Path, "error", delErr)
		}
		if delErr := c.cfg.Texts.Delete(ctx, rec.ID); delErr != nil {
			c.logger.Warn("text delete failed", "path", rec.Path, "error", delErr)
		}
	}
	if c.cfg.DB != nil {
		if dbErr := c.cfg.DB.DeleteUnder(ctx, abs); dbErr != nil {
			c.logger.Warn("catalog db subtree delete failed", "path", abs, "error", dbErr)
		}
	}

	c.publish(protocol.NewFolderRemoved(abs))
	c.logger.Info("folder removed", "path", abs, "records", len(removed))
	return nil
}

// Folders returns the watched roots, sorted.
func (c *Coordinator) Folders() []string {
	return c.cfg.Pump.Folders()
}

// Stats snapshots the current index counters.
func (c *Coordinator) Stats() protocol.IndexStats {
	embedded := 0
	records := c.cfg.Catalog.List()
	for _, rec := range records {
		if rec.HasEmbedding {
			embedded++
		}
	}

	stats := protocol.IndexStats{
		TotalFiles:   len(records),
		IndexedFiles: embedded,
		FailedFiles:  int(c.failedTotal.Load()),
		TotalChunks:  c.cfg.Vectors.Count(),
	}
	if c.cfg.DB != nil {
		if size := c.cfg.DB.SizeBytes(); size > 0 {
			stats.IndexSizeBytes = uint64(size)
		}
	}
	return stats
}

// publish sends an event to every session, when a bus is attached.
func (c *Coordinator) publish(event any) {
	if c.cfg.Bus != nil {
		c.cfg.Bus.Publish(event)
	}
}

// resolvePath makes a path absolute and follows a symlinked root.
func resolvePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", ferrors.New(ferrors.ErrCodeInvalidPath,
			"invalid folder path", err).WithDetail("path", path)
	}
	if resolved, evalErr := filepath.EvalSymlinks(abs); evalErr == nil {
		abs = resolved
	}
	return abs, nil
}

// underRoot reports whether path equals root or is nested under it.
func underRoot(path, root string) bool {
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}
