// Package postgres provides a Postgres-backed ResultStore.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/scriptcensus/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "results"

// Config controls the Postgres connection pool used for result rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// ResultStore writes result rows into Postgres.
type ResultStore struct {
	pool  pool
	table string
}

// NewResultStore connects to Postgres using cfg and ensures the results table exists.
func NewResultStore(ctx context.Context, cfg Config) (*ResultStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: postgres dsn is required", crawler.ErrStorage)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: parse postgres dsn: %w", crawler.ErrStorage, err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: connect postgres: %w", crawler.ErrStorage, err)
	}
	store, err := NewResultStoreWithPool(ctx, p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewResultStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewResultStoreWithPool(ctx context.Context, p pool, table string) (*ResultStore, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: pool is required", crawler.ErrStorage)
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", crawler.ErrStorage, table)
	}
	s := &ResultStore{pool: p, table: table}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ResultStore) ensureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	url TEXT PRIMARY KEY,
	script_count INTEGER,
	status TEXT NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("%w: create %s table: %w", crawler.ErrStorage, s.table, err)
	}
	return nil
}

// ProcessedKeys returns every URL already recorded.
func (s *ResultStore) ProcessedKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT url FROM %s`, s.table))
	if err != nil {
		return nil, fmt.Errorf("%w: select processed urls: %w", crawler.ErrStorage, err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("%w: scan url: %w", crawler.ErrStorage, err)
		}
		keys[url] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate urls: %w", crawler.ErrStorage, err)
	}
	return keys, nil
}

// Upsert inserts the row or overwrites the existing one for the same URL.
func (s *ResultStore) Upsert(ctx context.Context, result crawler.ProcessedResult) error {
	if err := result.Validate(); err != nil {
		return fmt.Errorf("%w: %w", crawler.ErrStorage, err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (url, script_count, status)
VALUES ($1, $2, $3)
ON CONFLICT (url) DO UPDATE
SET script_count = EXCLUDED.script_count, status = EXCLUDED.status`, s.table)

	var count any
	if result.ScriptCount != nil {
		count = *result.ScriptCount
	}
	if _, err := s.pool.Exec(ctx, query, result.URL, count, string(result.Status)); err != nil {
		return fmt.Errorf("%w: upsert %q: %w", crawler.ErrStorage, result.URL, err)
	}
	return nil
}

// ScanAll returns every row ordered by URL.
func (s *ResultStore) ScanAll(ctx context.Context) ([]crawler.ProcessedResult, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT url, script_count, status FROM %s ORDER BY url`, s.table))
	if err != nil {
		return nil, fmt.Errorf("%w: select results: %w", crawler.ErrStorage, err)
	}
	defer rows.Close()

	var out []crawler.ProcessedResult
	for rows.Next() {
		var (
			url    string
			count  sql.NullInt64
			status sql.NullString
		)
		if err := rows.Scan(&url, &count, &status); err != nil {
			return nil, fmt.Errorf("%w: scan result: %w", crawler.ErrStorage, err)
		}
		parsed, err := crawler.ParseStatus(status.String)
		if err != nil {
			return nil, fmt.Errorf("%w: row %q: %w", crawler.ErrStorage, url, err)
		}
		r := crawler.ProcessedResult{URL: url, Status: parsed}
		if count.Valid {
			n := int(count.Int64)
			r.ScriptCount = &n
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", crawler.ErrStorage, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate results: %w", crawler.ErrStorage, err)
	}
	return out, nil
}

// Close releases the underlying pool resources.
func (s *ResultStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
