package cachestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;

CREATE TABLE IF NOT EXISTS cache_entries (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    expires_at INTEGER NOT NULL DEFAULT 0 -- unix nanoseconds, 0 = never
);

CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries(expires_at);
`

// SQLite is a persistent pagepick.Cache stored in a single database file.
type SQLite struct {
	db  *sql.DB
	ns  string
	now func() time.Time
}

// OpenSQLite opens or creates the cache database at path.
func OpenSQLite(path, ns string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLite{db: db, ns: ns, now: time.Now}, nil
}

// Key builds a namespaced cache key.
func (s *SQLite) Key(prefix, value string) string { return buildKey(s.ns, prefix, value) }

// Get decodes the unexpired value at key into dest.
func (s *SQLite) Get(ctx context.Context, key string, dest any) bool {
	var (
		b       []byte
		expires int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT value, expires_at FROM cache_entries WHERE key = ?", key).Scan(&b, &expires)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Warn("cachestore: sqlite get failed", "key", key, "error", err.Error())
		}
		return false
	}
	if expires != 0 && s.now().UnixNano() > expires {
		return false
	}
	return unmarshalJSON(b, dest)
}

// Set upserts value under key with ttl (0 = no expiry).
func (s *SQLite) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	b, ok := marshalJSON(value)
	if !ok {
		return
	}
	var expires int64
	if ttl > 0 {
		expires = s.now().Add(ttl).UnixNano()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, b, expires)
	if err != nil {
		slog.Warn("cachestore: sqlite set failed", "key", key, "error", err.Error())
	}
}

// Purge deletes expired entries and returns how many were removed.
func (s *SQLite) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM cache_entries WHERE expires_at != 0 AND expires_at < ?", s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purge expired: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }
