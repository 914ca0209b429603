// Package storage provides the SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotae/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS content_items (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'publish',
		title TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		excerpt TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		blocks TEXT,
		fields TEXT,
		metadata TEXT,
		published_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_content_type_status_published
		ON content_items(type, status, published_at);
	`
	_, err := db.Exec(schema)
	return err
}

const itemColumns = `id, type, status, title, body, excerpt, url, blocks, fields, metadata,
	published_at, created_at, updated_at`

// UpsertItem inserts item or replaces the stored copy with the same id.
// CreatedAt is preserved across updates; a zero PublishedAt defaults to now.
func (s *SQLiteStorage) UpsertItem(ctx context.Context, item *models.ContentItem) error {
	if item.ID == "" {
		return errors.New("content item id is required")
	}
	if item.Type == "" {
		return errors.New("content item type is required")
	}
	if item.Status == "" {
		item.Status = models.StatusPublish
	}
	blocks, err := marshalNullable(item.Blocks, len(item.Blocks) == 0)
	if err != nil {
		return fmt.Errorf("failed to marshal blocks: %w", err)
	}
	fields, err := marshalNullable(item.Fields, len(item.Fields) == 0)
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}
	metadata, err := marshalNullable(item.Metadata, len(item.Metadata) == 0)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	now := time.Now().UTC()
	if item.PublishedAt.IsZero() {
		item.PublishedAt = now
	}
	// Timestamps are stored as text; a single zone keeps ORDER BY chronological.
	item.PublishedAt = item.PublishedAt.UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO content_items (`+itemColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			status = excluded.status,
			title = excluded.title,
			body = excluded.body,
			excerpt = excluded.excerpt,
			url = excluded.url,
			blocks = excluded.blocks,
			fields = excluded.fields,
			metadata = excluded.metadata,
			published_at = excluded.published_at,
			updated_at = excluded.updated_at`,
		item.ID, item.Type, item.Status, item.Title, item.Body, item.Excerpt, item.URL,
		blocks, fields, metadata, item.PublishedAt, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert content item: %w", err)
	}
	return nil
}

// GetItem returns a content item by ID.
func (s *SQLiteStorage) GetItem(ctx context.Context, id string) (*models.ContentItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM content_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// DeleteItem removes a content item. Deleting a missing item is not an error.
func (s *SQLiteStorage) DeleteItem(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM content_items WHERE id = ?`, id)
	return err
}

// ListItems returns items ordered by id.
func (s *SQLiteStorage) ListItems(ctx context.Context, offset, limit int) ([]*models.ContentItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM content_items ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// FindByTerms returns the ids of published items of the given types whose title
// or raw body contains any of terms. Matching is a substring LIKE, case-insensitive
// for ASCII only, so callers should verify candidates against extracted text.
func (s *SQLiteStorage) FindByTerms(ctx context.Context, types, terms []string, limit int) ([]string, error) {
	if len(types) == 0 || len(terms) == 0 || limit <= 0 {
		return nil, nil
	}
	var (
		conds []string
		args  []interface{}
	)
	for _, t := range types {
		args = append(args, t)
	}
	args = append(args, models.StatusPublish)
	for _, term := range terms {
		pattern := "%" + escapeLike(term) + "%"
		conds = append(conds, `title LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\'`)
		args = append(args, pattern, pattern)
	}
	args = append(args, limit)

	query := `SELECT id FROM content_items
		WHERE type IN (` + placeholders(len(types)) + `) AND status = ?
		AND (` + strings.Join(conds, " OR ") + `)
		ORDER BY published_at DESC, id
		LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("term search failed: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListRecent returns up to limit published items of the given types, newest first.
func (s *SQLiteStorage) ListRecent(ctx context.Context, types []string, limit int) ([]*models.ContentItem, error) {
	if len(types) == 0 || limit <= 0 {
		return nil, nil
	}
	args := make([]interface{}, 0, len(types)+2)
	for _, t := range types {
		args = append(args, t)
	}
	args = append(args, models.StatusPublish, limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM content_items
		 WHERE type IN (`+placeholders(len(types))+`) AND status = ?
		 ORDER BY published_at DESC, id
		 LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("recent listing failed: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// CountItems returns the number of stored items.
func (s *SQLiteStorage) CountItems(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM content_items`).Scan(&n)
	return n, err
}

// CountByType returns the number of stored items per content type.
func (s *SQLiteStorage) CountByType(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM content_items GROUP BY type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int64)
	for rows.Next() {
		var (
			typ string
			n   int64
		)
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		counts[typ] = n
	}
	return counts, rows.Err()
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row scanner) (*models.ContentItem, error) {
	var (
		item                     models.ContentItem
		blocks, fields, metadata sql.NullString
		publishedAt              sql.NullTime
	)
	err := row.Scan(&item.ID, &item.Type, &item.Status, &item.Title, &item.Body, &item.Excerpt, &item.URL,
		&blocks, &fields, &metadata, &publishedAt, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if publishedAt.Valid {
		item.PublishedAt = publishedAt.Time
	}
	if blocks.Valid && blocks.String != "" {
		if err := json.Unmarshal([]byte(blocks.String), &item.Blocks); err != nil {
			return nil, fmt.Errorf("failed to unmarshal blocks of %s: %w", item.ID, err)
		}
	}
	if fields.Valid && fields.String != "" {
		if err := json.Unmarshal([]byte(fields.String), &item.Fields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fields of %s: %w", item.ID, err)
		}
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &item.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata of %s: %w", item.ID, err)
		}
	}
	return &item, nil
}

func scanItems(rows *sql.Rows) ([]*models.ContentItem, error) {
	var items []*models.ContentItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func marshalNullable(v interface{}, empty bool) (sql.NullString, error) {
	if empty {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
