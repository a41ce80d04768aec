// Package postgres opens a PostgreSQL-backed durable store, used when several
// client processes share one queue (kiosk deployments).
package postgres

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Use pgx via database/sql
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/vietddude/faceguard/internal/infra/storage/migrations"
	"github.com/vietddude/faceguard/internal/infra/storage/sqlkv"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	URL      string `yaml:"url"       env:"FACEGUARD_DATABASE_URL"`
	Driver   string `yaml:"driver"` // pgx (default) or postgres (lib/pq)
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// DriverName returns the database/sql driver to open.
func (c Config) DriverName() string {
	if c.Driver == "postgres" {
		return "postgres"
	}
	return "pgx"
}

// Open creates a new database connection, runs migrations and returns the store.
func Open(ctx context.Context, cfg Config) (*sqlkv.Store, error) {
	db, err := sqlx.Open(cfg.DriverName(), cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set pool configuration
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	} else {
		db.SetMaxOpenConns(10)
	}

	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(cfg.MinConns)
	} else {
		db.SetMaxIdleConns(2)
	}

	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrations.Up(db.DB, "postgres"); err != nil {
		_ = db.Close()
		return nil, err
	}

	return sqlkv.New(db), nil
}
