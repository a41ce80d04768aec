// Package sqlkv implements storage.Store on top of a SQL table shared by the
// sqlite and postgres backends.
package sqlkv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/vietddude/faceguard/internal/infra/storage"
)

// Store keeps values in the kv_store table created by the migrations package.
type Store struct {
	db *sqlx.DB
}

// New wraps an open, migrated connection.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying connection for health checks.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.GetContext(ctx, &value, s.db.Rebind(`SELECT value FROM kv_store WHERE key = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	query := s.db.Rebind(`
		INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`)
	if _, err := s.db.ExecContext(ctx, query, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM kv_store WHERE key = ?`), key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_store`); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

// ListKeys sorts in Go so the order is byte-wise on every backend,
// independent of the database collation.
func (s *Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var err error
	if prefix == "" {
		err = s.db.SelectContext(ctx, &keys, `SELECT key FROM kv_store`)
	} else {
		err = s.db.SelectContext(ctx, &keys,
			s.db.Rebind(`SELECT key FROM kv_store WHERE substr(key, 1, ?) = ?`), len(prefix), prefix)
	}
	if err != nil {
		return nil, fmt.Errorf("list keys %q: %w", prefix, err)
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
