// Package sqlite opens the on-device durable store.
package sqlite

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/vietddude/faceguard/internal/infra/storage/migrations"
	"github.com/vietddude/faceguard/internal/infra/storage/sqlkv"
)

// Config holds SQLite settings.
type Config struct {
	Path string `yaml:"path" env:"FACEGUARD_SQLITE_PATH"`
}

// Open opens (or creates) the database file, applies migrations and returns
// a Store backed by it.
func Open(cfg Config) (*sqlkv.Store, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := cfg.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serialises writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := migrations.Up(db.DB, "sqlite3"); err != nil {
		_ = db.Close()
		return nil, err
	}

	_ = os.Chmod(cfg.Path, 0o600)
	return sqlkv.New(db), nil
}
