package index

import (
	"os"
	"path/filepath"
)

// walkFollowingSymlinks visits every regular file under root, following
// directory symlinks. A visited set of resolved paths guards against
// symlink cycles. Unreadable entries are skipped, not fatal; only a
// failure on root itself is returned.
func walkFollowingSymlinks(root string, fn func(path string, info os.FileInfo)) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &os.PathError{Op: "walk", Path: root, Err: os.ErrInvalid}
	}
	return walkDir(root, map[string]struct{}{}, fn)
}

func walkDir(dir string, visited map[string]struct{}, fn func(path string, info os.FileInfo)) error {
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return err
	}
	if _, seen := visited[resolved]; seen {
		return nil
	}
	visited[resolved] = struct{}{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())

		// Stat, not Lstat: symlinked files and directories are followed.
		info, statErr := os.Stat(full)
		if statErr != nil {
			continue
		}

		if info.IsDir() {
			_ = walkDir(full, visited, fn)
			continue
		}
		if info.Mode().IsRegular() {
			fn(full, info)
		}
	}
	return nil
}
