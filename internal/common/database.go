package common

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// Filename that keeps the whole database in memory. Useful for tests
const InMemory = ":memory:"

// Database is the single SQLite file shared by the bot and the AniList client.
// Each of them wraps it to add their own queries
type Database struct {
	*sql.DB
}

// A named schema change. Migrations are applied in order, and each one only once
type Migration struct {
	Name string
	SQL  string
}

func OpenDatabase(filename string) (Database, error) {

	if filename != InMemory {
		if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
			return Database{}, fmt.Errorf("ensure data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return Database{}, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite takes one writer at a time, and an in-memory
	// database only exists inside its own connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return Database{}, fmt.Errorf("pragma foreign_keys: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return Database{}, fmt.Errorf("pragma journal_mode: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return Database{}, fmt.Errorf("ping sqlite: %w", err)
	}

	return Database{db}, nil
}

// Apply the migrations that have not been applied yet
func (db Database) Migrate(ctx context.Context, migrations []Migration) error {

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, migration := range migrations {
		var count int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE name = ?`, migration.Name).Scan(&count); err != nil {
			return fmt.Errorf("check migration %s: %w", migration.Name, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", migration.Name, err)
		}
		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", migration.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`, migration.Name, time.Now().Unix()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", migration.Name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", migration.Name, err)
		}
		log.Info().Str("migration", migration.Name).Msg("Migration applied")
	}
	return nil
}

// Number of rows of each of the provided tables
func (db Database) Counts(ctx context.Context, tables ...string) (map[string]int, error) {
	counts := make(map[string]int, len(tables))
	for _, table := range tables {
		var count int
		// table names come from code, never from user input
		if err := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %q`, table)).Scan(&count); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = count
	}
	return counts, nil
}
