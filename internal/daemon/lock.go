// Package daemon holds single-instance plumbing for the long-running
// server: the data-dir lock and the PID file.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// DataDirLock guards a data directory against concurrent daemons. Two
// processes sharing one catalog database and vector index would corrupt
// both, so serve refuses to start when the lock is held.
type DataDirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDataDirLock creates a lock for the given data directory. The lock
// file lives at <dir>/.filesense.lock.
func NewDataDirLock(dir string) *DataDirLock {
	lockPath := filepath.Join(dir, ".filesense.lock")
	return &DataDirLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// Path returns the lock file path.
func (l *DataDirLock) Path() string {
	return l.path
}

// TryLock attempts to acquire the lock without blocking. Returns false
// when another process holds it.
func (l *DataDirLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock. Safe to call on an unlocked lock.
func (l *DataDirLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
