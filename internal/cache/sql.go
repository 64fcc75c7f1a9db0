package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
)

const createTable = `
CREATE TABLE IF NOT EXISTS scanline_cache (
	namespace TEXT  NOT NULL,
	key       TEXT  NOT NULL,
	value     BYTEA NOT NULL,
	PRIMARY KEY (namespace, key)
)`

// SQLStorage keeps records in a PostgreSQL table shared by all namespaces.
type SQLStorage struct {
	db        *sql.DB
	namespace string
}

// OpenPostgres connects to dsn through the pgx driver and prepares the
// cache table.
func OpenPostgres(ctx context.Context, dsn, namespace string) (*SQLStorage, error) {
	if dsn == "" {
		return nil, errors.New("database URL is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s, err := NewSQLStorage(ctx, db, namespace)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStorage uses an open database handle and creates the table if needed.
func NewSQLStorage(ctx context.Context, db *sql.DB, namespace string) (*SQLStorage, error) {
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		return nil, fmt.Errorf("create cache table: %w", err)
	}
	return &SQLStorage{db: db, namespace: namespace}, nil
}

func (s *SQLStorage) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM scanline_cache WHERE namespace = $1 AND key = $2`,
		s.namespace, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", key, err)
	}
	return v, nil
}

func (s *SQLStorage) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scanline_cache (namespace, key, value) VALUES ($1, $2, $3)
		ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value`,
		s.namespace, key, value)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

func (s *SQLStorage) Remove(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM scanline_cache WHERE namespace = $1 AND key = $2`, s.namespace, key)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLStorage) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM scanline_cache WHERE namespace = $1 ORDER BY key`, s.namespace)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close closes the database handle.
func (s *SQLStorage) Close() error {
	return s.db.Close()
}
