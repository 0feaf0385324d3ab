package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

const kvSchema = `
CREATE TABLE IF NOT EXISTS kv_entries (
    key        TEXT PRIMARY KEY,
    value      JSONB NOT NULL,
    version    BIGINT NOT NULL DEFAULT 1,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PGStore keeps entries in the kv_entries table. Any *pgxpool.Pool works as
// the connection.
type PGStore struct {
	conn queryable
}

// NewPGStore returns a PGStore over conn. Call EnsureSchema before first use.
func NewPGStore(conn queryable) *PGStore {
	return &PGStore{conn: conn}
}

// EnsureSchema creates the kv_entries table if it does not exist.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, kvSchema); err != nil {
		return fmt.Errorf("create kv_entries table: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, key string) ([]byte, int64, error) {
	var value []byte
	var version int64
	err := s.conn.QueryRow(ctx, `SELECT value, version FROM kv_entries WHERE key = $1`, key).Scan(&value, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get %s: %w", key, err)
	}
	return value, version, nil
}

func (s *PGStore) Set(ctx context.Context, key string, value []byte) (int64, error) {
	if key == "" {
		return 0, ErrEmptyKey
	}
	if !json.Valid(value) {
		return 0, ErrInvalidValue
	}
	var version int64
	err := s.conn.QueryRow(ctx, `
		INSERT INTO kv_entries (key, value) VALUES ($1, $2::jsonb)
		ON CONFLICT (key) DO UPDATE
			SET value = EXCLUDED.value, version = kv_entries.version + 1, updated_at = NOW()
		RETURNING version`, key, string(value)).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("set %s: %w", key, err)
	}
	return version, nil
}

func (s *PGStore) CompareAndSet(ctx context.Context, key string, value []byte, expected int64) (int64, error) {
	if key == "" {
		return 0, ErrEmptyKey
	}
	if !json.Valid(value) {
		return 0, ErrInvalidValue
	}

	var row pgx.Row
	if expected == 0 {
		row = s.conn.QueryRow(ctx, `
			INSERT INTO kv_entries (key, value) VALUES ($1, $2::jsonb)
			ON CONFLICT (key) DO NOTHING
			RETURNING version`, key, string(value))
	} else {
		row = s.conn.QueryRow(ctx, `
			UPDATE kv_entries SET value = $2::jsonb, version = version + 1, updated_at = NOW()
			WHERE key = $1 AND version = $3
			RETURNING version`, key, string(value), expected)
	}

	var version int64
	err := row.Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrVersionConflict
	}
	if err != nil {
		return 0, fmt.Errorf("compare-and-set %s: %w", key, err)
	}
	return version, nil
}

func (s *PGStore) Delete(ctx context.Context, key string) error {
	if _, err := s.conn.Exec(ctx, `DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *PGStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.conn.Query(ctx, `SELECT key FROM kv_entries WHERE starts_with(key, $1) ORDER BY key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
