package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// Dialect selects the DDL variant of a migration
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

// Migration is one versioned schema change. Versions are global across
// packages, so each package owns a distinct range.
type Migration struct {
	Version     int
	Description string
	Postgres    string
	SQLite      string
}

// SQL returns the statement text for the dialect
func (m Migration) SQL(d Dialect) string {
	if d == DialectSQLite && m.SQLite != "" {
		return m.SQLite
	}
	return m.Postgres
}

// Migrate applies every pending migration in version order, each inside
// its own transaction, and records it in schema_migrations.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect, sets ...[]Migration) ([]int, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}

	var all []Migration
	seen := make(map[int]string)
	for _, set := range sets {
		for _, m := range set {
			if prev, dup := seen[m.Version]; dup {
				return nil, fmt.Errorf("duplicate migration version %d (%q and %q)", m.Version, prev, m.Description)
			}
			seen[m.Version] = m.Description
			all = append(all, m)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Version < all[j].Version })

	var ran []int
	for _, m := range all {
		if applied[m.Version] {
			continue
		}
		if err := runMigration(ctx, db, dialect, m); err != nil {
			return ran, err
		}
		ran = append(ran, m.Version)
	}
	return ran, nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func runMigration(ctx context.Context, db *sql.DB, dialect Dialect, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, m.SQL(dialect)); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to execute migration %d: %w", m.Version, err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
		m.Version, m.Description,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
	}
	return nil
}
