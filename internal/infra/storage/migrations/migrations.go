// Package migrations embeds the goose schema migrations for the SQL stores.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS

// Up applies every pending migration for dialect ("sqlite3" or "postgres").
func Up(db *sql.DB, dialect string) error {
	dir := dialect
	if dialect == "sqlite3" {
		dir = "sqlite"
	}

	goose.SetBaseFS(FS)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("failed to migrate db: %w", err)
	}
	return nil
}
