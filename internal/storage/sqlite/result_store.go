// Package sqlite provides the default file-backed ResultStore.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/scriptcensus/internal/crawler"
)

const (
	driverName = "sqlite"

	createTableSQL = `CREATE TABLE IF NOT EXISTS results (
	url TEXT PRIMARY KEY,
	script_count INTEGER,
	status TEXT
)`
	selectKeysSQL = `SELECT url FROM results`
	upsertSQL     = `REPLACE INTO results (url, script_count, status) VALUES (?, ?, ?)`
	selectAllSQL  = `SELECT url, script_count, status FROM results ORDER BY url`
)

// Config locates the database file.
type Config struct {
	// Path is the database file. ":memory:" opens a private in-memory database.
	Path string
	// BusyTimeoutMs is how long SQLite waits on a locked database (default 5000).
	BusyTimeoutMs int
}

// ResultStore persists results in a single SQLite table.
type ResultStore struct {
	mu sync.Mutex
	db *sqlx.DB
}

type resultRow struct {
	URL         string         `db:"url"`
	ScriptCount sql.NullInt64  `db:"script_count"`
	Status      sql.NullString `db:"status"`
}

// Open opens or creates the database at cfg.Path and ensures the schema exists.
func Open(ctx context.Context, cfg Config) (*ResultStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", crawler.ErrStorage)
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("%w: create database directory: %w", crawler.ErrStorage, err)
			}
		}
	}
	busy := cfg.BusyTimeoutMs
	if busy <= 0 {
		busy = 5000
	}
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)", path, busy)

	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite %q: %w", crawler.ErrStorage, path, err)
	}
	// One connection keeps writes strictly serialized and ":memory:" coherent.
	db.SetMaxOpenConns(1)

	store, err := NewWithDB(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewWithDB wraps an existing handle (primarily for testing) and ensures the schema.
func NewWithDB(ctx context.Context, db *sqlx.DB) (*ResultStore, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: db is required", crawler.ErrStorage)
	}
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		return nil, fmt.Errorf("%w: create results table: %w", crawler.ErrStorage, err)
	}
	return &ResultStore{db: db}, nil
}

// ProcessedKeys returns every URL already recorded.
func (s *ResultStore) ProcessedKeys(ctx context.Context) (map[string]struct{}, error) {
	var urls []string
	if err := s.db.SelectContext(ctx, &urls, selectKeysSQL); err != nil {
		return nil, fmt.Errorf("%w: select processed urls: %w", crawler.ErrStorage, err)
	}
	keys := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		keys[u] = struct{}{}
	}
	return keys, nil
}

// Upsert replaces the row for result.URL.
func (s *ResultStore) Upsert(ctx context.Context, result crawler.ProcessedResult) error {
	if err := result.Validate(); err != nil {
		return fmt.Errorf("%w: %w", crawler.ErrStorage, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, upsertSQL, result.URL, countArg(result), string(result.Status)); err != nil {
		return fmt.Errorf("%w: upsert %q: %w", crawler.ErrStorage, result.URL, err)
	}
	return nil
}

// ScanAll returns every row ordered by URL.
func (s *ResultStore) ScanAll(ctx context.Context) ([]crawler.ProcessedResult, error) {
	var rows []resultRow
	if err := s.db.SelectContext(ctx, &rows, selectAllSQL); err != nil {
		return nil, fmt.Errorf("%w: select results: %w", crawler.ErrStorage, err)
	}
	out := make([]crawler.ProcessedResult, 0, len(rows))
	for _, row := range rows {
		r, err := row.toResult()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", crawler.ErrStorage, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Close flushes and closes the database handle.
func (s *ResultStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: close sqlite: %w", crawler.ErrStorage, err)
	}
	return nil
}

func (r resultRow) toResult() (crawler.ProcessedResult, error) {
	status, err := crawler.ParseStatus(r.Status.String)
	if err != nil {
		return crawler.ProcessedResult{}, fmt.Errorf("row %q: %w", r.URL, err)
	}
	out := crawler.ProcessedResult{URL: r.URL, Status: status}
	if r.ScriptCount.Valid {
		n := int(r.ScriptCount.Int64)
		out.ScriptCount = &n
	}
	if err := out.Validate(); err != nil {
		return crawler.ProcessedResult{}, err
	}
	return out, nil
}

func countArg(r crawler.ProcessedResult) any {
	if r.ScriptCount == nil {
		return nil
	}
	return *r.ScriptCount
}
