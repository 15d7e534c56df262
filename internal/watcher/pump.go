package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	ferrors "github.com/filesense/filesense/internal/errors"
)

// Pump watches a dynamic set of root folders with one shared fsnotify
// watcher and emits debounced FileEvent batches on a single stream.
// Folders can be added and removed while the pump is running.
type Pump struct {
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	logger    *slog.Logger
	opts      Options

	events  chan []FileEvent
	errs    chan error
	stopCh  chan struct{}
	started atomic.Bool

	mu             sync.RWMutex
	roots          map[string]struct{}
	stopped        bool
	droppedBatches atomic.Uint64
}

// NewPump creates a pump with no watched folders.
func NewPump(opts Options, logger *slog.Logger) (*Pump, error) {
	opts = opts.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ferrors.New(ferrors.ErrCodeWatchSetupFailed, "failed to create filesystem watcher", err)
	}

	return &Pump{
		fsWatcher: fsw,
		debouncer: NewDebouncer(opts.DebounceWindow),
		logger:    logger,
		opts:      opts,
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errs:      make(chan error, 10),
		stopCh:    make(chan struct{}),
		roots:     make(map[string]struct{}),
	}, nil
}

// Run consumes fsnotify events until ctx is cancelled or Stop is
// called. It must be running for Events to produce anything.
func (p *Pump) Run(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return fmt.Errorf("pump already running")
	}

	go p.forwardDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case event, ok := <-p.fsWatcher.Events:
			if !ok {
				return nil
			}
			p.handleFsnotifyEvent(event)
		case err, ok := <-p.fsWatcher.Errors:
			if !ok {
				return nil
			}
			p.emitError(err)
		}
	}
}

// AddFolder starts watching root recursively. Adding a folder that is
// already watched is a no-op success. A setup failure (missing path,
// permission denied) leaves other folders untouched and returns a
// recoverable error.
func (p *Pump) AddFolder(root string) error {
	resolved, err := p.resolveRoot(root)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ferrors.New(ferrors.ErrCodeWatchSetupFailed, "watcher is stopped", nil)
	}
	if _, watched := p.roots[resolved]; watched {
		return nil
	}

	added, err := p.addRecursive(resolved)
	if err != nil {
		// Roll back partial watches so a failed add leaves no residue.
		for _, dir := range added {
			_ = p.fsWatcher.Remove(dir)
		}
		return ferrors.New(ferrors.ErrCodeWatchSetupFailed,
			fmt.Sprintf("failed to watch %s", root), err).WithDetail("path", root)
	}

	p.roots[resolved] = struct{}{}
	p.logger.Info("watching folder", "path", resolved, "dirs", len(added))
	return nil
}

// resolveRoot makes the root absolute, follows a symlinked root, and
// verifies it is a directory.
func (p *Pump) resolveRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", ferrors.New(ferrors.ErrCodeInvalidPath,
			fmt.Sprintf("invalid folder path %s", root), err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", ferrors.New(ferrors.ErrCodeWatchSetupFailed,
			fmt.Sprintf("cannot resolve %s", root), err).WithDetail("path", root)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", ferrors.New(ferrors.ErrCodeWatchSetupFailed,
			fmt.Sprintf("cannot stat %s", root), err).WithDetail("path", root)
	}
	if !info.IsDir() {
		return "", ferrors.New(ferrors.ErrCodeInvalidPath,
			fmt.Sprintf("%s is not a directory", root), nil)
	}
	return resolved, nil
}

// addRecursive registers root and all subdirectories with fsnotify.
// Returns the directories added so the caller can roll back on error.
func (p *Pump) addRecursive(root string) ([]string, error) {
	var added []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			p.logger.Warn("skipping unreadable directory", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if watchErr := p.fsWatcher.Add(path); watchErr != nil {
			if path == root {
				return watchErr
			}
			p.logger.Warn("failed to watch subdirectory", "path", path, "error", watchErr)
			return nil
		}
		added = append(added, path)
		return nil
	})
	if err != nil {
		return added, err
	}
	return added, nil
}

// RemoveFolder stops watching root. Removing an unknown folder is a
// no-op success.
func (p *Pump) RemoveFolder(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return ferrors.New(ferrors.ErrCodeInvalidPath,
			fmt.Sprintf("invalid folder path %s", root), err)
	}
	if resolved, evalErr := filepath.EvalSymlinks(abs); evalErr == nil {
		abs = resolved
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, watched := p.roots[abs]; !watched {
		return nil
	}
	delete(p.roots, abs)

	// fsnotify drops watches for deleted directories on its own; this
	// covers the explicit-removal path.
	for _, dir := range p.fsWatcher.WatchList() {
		if dir == abs || strings.HasPrefix(dir, abs+string(filepath.Separator)) {
			_ = p.fsWatcher.Remove(dir)
		}
	}

	p.logger.Info("stopped watching folder", "path", abs)
	return nil
}

// Folders returns the currently watched roots, sorted.
func (p *Pump) Folders() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	roots := make([]string, 0, len(p.roots))
	for root := range p.roots {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	return roots
}

// Watches reports whether path belongs to a currently watched root.
func (p *Pump) Watches(path string) bool {
	return p.underWatchedRoot(path)
}

// underWatchedRoot reports whether path belongs to a watched root.
func (p *Pump) underWatchedRoot(path string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for root := range p.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// handleFsnotifyEvent converts and filters one fsnotify event.
func (p *Pump) handleFsnotifyEvent(event fsnotify.Event) {
	path := event.Name

	// Events may straggle in after RemoveFolder.
	if !p.underWatchedRoot(path) {
		return
	}

	isDir := false
	if info, err := os.Stat(path); err == nil {
		isDir = info.IsDir()
	}

	var op Op
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
		// New directories need their own watch for recursion.
		if isDir {
			if err := p.fsWatcher.Add(path); err != nil {
				p.logger.Warn("failed to watch new directory", "path", path, "error", err)
			}
		}
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		// The file is gone from this path; its new location arrives
		// as a separate Create event.
		op = OpDelete
	default:
		// chmod and friends carry no content change
		return
	}

	p.debouncer.Add(FileEvent{
		Path:      path,
		Op:        op,
		IsDir:     isDir,
		Timestamp: time.Now(),
	})
}

// forwardDebounced moves debounced batches onto the output channel.
func (p *Pump) forwardDebounced(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case events, ok := <-p.debouncer.Output():
			if !ok {
				return
			}
			if len(events) == 0 {
				continue
			}
			p.emitEvents(events)
		}
	}
}

// emitEvents sends a batch without ever blocking the fsnotify loop.
// The lock is held across the send so Stop cannot close the channel
// between the stopped check and the send; the send itself never blocks.
func (p *Pump) emitEvents(events []FileEvent) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return
	}

	select {
	case p.events <- events:
	default:
		count := p.droppedBatches.Add(1)
		p.logger.Warn("event buffer full, dropping batch",
			"batch_size", len(events),
			"total_dropped_batches", count)
	}
}

// emitError sends a watcher error, dropping it if nobody is reading.
func (p *Pump) emitError(err error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return
	}

	select {
	case p.errs <- err:
	default:
	}
}

// DroppedBatches returns the number of batches dropped on overflow.
func (p *Pump) DroppedBatches() uint64 {
	return p.droppedBatches.Load()
}

// Events returns the channel of debounced file event batches.
func (p *Pump) Events() <-chan []FileEvent {
	return p.events
}

// Errors returns the channel of non-fatal watcher errors.
func (p *Pump) Errors() <-chan error {
	return p.errs
}

// Stop shuts the pump down. Safe to call multiple times.
func (p *Pump) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	p.debouncer.Stop()
	_ = p.fsWatcher.Close()
	close(p.events)
	close(p.errs)
	return nil
}
