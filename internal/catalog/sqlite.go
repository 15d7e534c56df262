package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// Store persists FileRecords in SQLite so the catalog survives restarts.
// Embeddings are not persisted here; the vector index has its own
// save/load path and records are re-embedded if the two diverge.
type Store struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS files (
	id            TEXT PRIMARY KEY,
	path          TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL,
	file_type     TEXT NOT NULL,
	summary       TEXT NOT NULL,
	modified_at   INTEGER NOT NULL,
	content_hash  TEXT NOT NULL,
	has_embedding INTEGER NOT NULL DEFAULT 0,
	indexed_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_files_path ON files(path);
`

// OpenStore opens (or creates) the catalog database at dir/catalog.db.
// WAL mode is set via PRAGMA; DSN parameters are ignored by the driver.
func OpenStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dir, "catalog.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// SaveRecord upserts one record.
func (s *Store) SaveRecord(ctx context.Context, rec *FileRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (id, path, name, file_type, summary, modified_at, content_hash, has_embedding, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name = excluded.name,
			file_type = excluded.file_type,
			summary = excluded.summary,
			modified_at = excluded.modified_at,
			content_hash = excluded.content_hash,
			has_embedding = excluded.has_embedding,
			indexed_at = excluded.indexed_at`,
		rec.ID, rec.Path, rec.Name, rec.FileType, rec.Summary,
		rec.ModifiedAt.UnixNano(), rec.ContentHash, boolToInt(rec.HasEmbedding),
		rec.IndexedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save record %s: %w", rec.Path, err)
	}
	return nil
}

// DeleteRecord removes the record for path; missing rows are not an error.
func (s *Store) DeleteRecord(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete record %s: %w", path, err)
	}
	return nil
}

// DeleteUnder removes every record nested under root.
func (s *Store) DeleteUnder(ctx context.Context, root string) error {
	prefix := root
	if prefix != "" && prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM files WHERE path = ? OR path LIKE ? ESCAPE '\'`,
		root, escapeLike(prefix)+"%")
	if err != nil {
		return fmt.Errorf("delete records under %s: %w", root, err)
	}
	return nil
}

// LoadAll restores every persisted record into the given catalog.
// Persisted embedding flags are cleared: vectors live in the vector index,
// and the coordinator re-embeds anything the index no longer holds.
func (s *Store) LoadAll(ctx context.Context, cat *Catalog) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path, name, file_type, summary, modified_at, content_hash, has_embedding, indexed_at FROM files`)
	if err != nil {
		return 0, fmt.Errorf("load records: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var rec FileRecord
		var modified, indexed int64
		var hasEmbedding int
		if err := rows.Scan(&rec.ID, &rec.Path, &rec.Name, &rec.FileType, &rec.Summary,
			&modified, &rec.ContentHash, &hasEmbedding, &indexed); err != nil {
			return count, fmt.Errorf("scan record: %w", err)
		}
		rec.ModifiedAt = time.Unix(0, modified)
		rec.IndexedAt = time.Unix(0, indexed)
		// The vector index is the source of truth for embeddings; the
		// coordinator re-embeds after restart before flipping this back.
		_ = hasEmbedding
		rec.HasEmbedding = false
		cat.Put(rec)
		count++
	}

	return count, rows.Err()
}

// SizeBytes returns the on-disk size of the catalog database.
func (s *Store) SizeBytes() int64 {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// escapeLike escapes LIKE wildcards in a literal prefix.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
