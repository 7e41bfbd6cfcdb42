package kv

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLite stores values in the kv table created by the migrate package.
type SQLite struct {
	DB  *sql.DB
	Now func() time.Time
}

func (s SQLite) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

func (s SQLite) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO kv(key,value,updated_at) VALUES (?,?,?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, string(value), s.now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s SQLite) Delete(ctx context.Context, key string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM kv WHERE key=?`, key)
	return err
}

func (s SQLite) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, err
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
