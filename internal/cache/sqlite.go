package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

// SQLiteStore keeps cache entries in a SQLite table. Timestamps are stored as
// Unix milliseconds so age comparisons are numeric.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the cache database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.EnsureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the cache table and its age index if missing.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		query_hash TEXT PRIMARY KEY,
		query_text TEXT NOT NULL,
		response TEXT NOT NULL,
		source_ids TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		hit_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_cache_created_at ON cache_entries(created_at);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create cache schema: %w", err)
	}
	return nil
}

// Get increments and returns the entry for hash in a single statement.
func (s *SQLiteStore) Get(ctx context.Context, hash string) (*models.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE cache_entries SET hit_count = hit_count + 1
		WHERE query_hash = ?
		RETURNING query_hash, query_text, response, source_ids, created_at, updated_at, hit_count`, hash)

	var (
		e                models.CacheEntry
		sourceIDs        string
		created, updated int64
	)
	err := row.Scan(&e.QueryHash, &e.QueryText, &e.Response, &sourceIDs, &created, &updated, &e.HitCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache lookup failed: %w", err)
	}
	if err := json.Unmarshal([]byte(sourceIDs), &e.SourceIDs); err != nil {
		return nil, fmt.Errorf("corrupt source ids for %s: %w", hash, err)
	}
	e.CreatedAt = time.UnixMilli(created).UTC()
	e.UpdatedAt = time.UnixMilli(updated).UTC()
	return &e, nil
}

// Put inserts entry or overwrites the text, response, sources and update time
// of the existing row.
func (s *SQLiteStore) Put(ctx context.Context, entry *models.CacheEntry) error {
	ids := entry.SourceIDs
	if ids == nil {
		ids = []string{}
	}
	sourceIDs, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to encode source ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (query_hash, query_text, response, source_ids, created_at, updated_at, hit_count)
		VALUES (?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(query_hash) DO UPDATE SET
			query_text = excluded.query_text,
			response = excluded.response,
			source_ids = excluded.source_ids,
			updated_at = excluded.updated_at`,
		entry.QueryHash, entry.QueryText, entry.Response, string(sourceIDs),
		entry.CreatedAt.UnixMilli(), entry.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("cache write failed: %w", err)
	}
	return nil
}

// Delete removes the entry for hash and reports whether one existed.
func (s *SQLiteStore) Delete(ctx context.Context, hash string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE query_hash = ?", hash)
	if err != nil {
		return false, fmt.Errorf("cache delete failed: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteOlderThan removes entries created before cutoff.
func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE created_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("cache eviction failed: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every entry.
func (s *SQLiteStore) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries")
	if err != nil {
		return 0, fmt.Errorf("cache clear failed: %w", err)
	}
	return res.RowsAffected()
}

// Stats reports entry count, accumulated hits and the oldest entry.
func (s *SQLiteStore) Stats(ctx context.Context) (*models.CacheStats, error) {
	var (
		stats  = &models.CacheStats{Backend: config.CacheBackendSQLite}
		oldest sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(hit_count), 0), MIN(created_at) FROM cache_entries",
	).Scan(&stats.Entries, &stats.TotalHits, &oldest)
	if err != nil {
		return nil, fmt.Errorf("cache stats failed: %w", err)
	}
	if oldest.Valid {
		stats.Oldest = time.UnixMilli(oldest.Int64).UTC()
	}
	return stats, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
