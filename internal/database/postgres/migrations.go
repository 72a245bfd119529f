package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path"
	"slices"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version VARCHAR(255) PRIMARY KEY,
		applied_at TIMESTAMPTZ DEFAULT NOW()
	)`

// embeddedMigrations lists the bundled migration files in apply order.
func embeddedMigrations() ([]string, error) {
	entries, err := migrationsFS.ReadDir(migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// pendingMigrations filters the embedded migrations down to those not in applied.
func pendingMigrations(applied []string) ([]string, error) {
	all, err := embeddedMigrations()
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(name string) bool {
		return slices.Contains(applied, name)
	}), nil
}

// MigrationsApplied returns the recorded migration versions in order. The
// bookkeeping table is created on first use.
func (p *Pool) MigrationsApplied(ctx context.Context) ([]string, error) {
	if _, err := p.db.ExecContext(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("create migrations table: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migration versions: %w", err)
	}
	return versions, nil
}

// PendingMigrations returns the embedded migrations not yet applied.
func (p *Pool) PendingMigrations(ctx context.Context) ([]string, error) {
	applied, err := p.MigrationsApplied(ctx)
	if err != nil {
		return nil, err
	}
	return pendingMigrations(applied)
}

// Migrate applies every pending migration, each in its own transaction, and
// returns the names it applied.
func (p *Pool) Migrate(ctx context.Context) ([]string, error) {
	pending, err := p.PendingMigrations(ctx)
	if err != nil {
		return nil, err
	}

	for _, name := range pending {
		body, err := migrationsFS.ReadFile(path.Join(migrationsDir, name))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		err = p.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(body)); err != nil {
				return fmt.Errorf("execute migration %s: %w", name, err)
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", name); err != nil {
				return fmt.Errorf("record migration %s: %w", name, err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return pending, nil
}
