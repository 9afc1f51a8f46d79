package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationsLedger = `
	CREATE TABLE IF NOT EXISTS _intelligence_migrations (
		version VARCHAR(255) PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

type migration struct {
	version string
	name    string
	sql     string
}

// Migrate applies every pending *.up.sql migration in lexical version
// order, recording each in the ledger. Each migration runs in its own
// transaction.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, migrationsLedger); err != nil {
		return fmt.Errorf("create migrations ledger: %w", err)
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	pending, err := loadMigrations(".up.sql")
	if err != nil {
		return err
	}

	ran := 0
	for _, m := range pending {
		if applied[m.version] {
			continue
		}
		if err := s.runMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
		s.logger.Info("Applied migration", zap.String("version", m.version), zap.String("file", m.name))
		ran++
	}

	if ran == 0 {
		s.logger.Debug("Database schema is up to date")
	}
	return nil
}

// Rollback applies the paired .down.sql for a single version and removes
// its ledger row.
func (s *Store) Rollback(ctx context.Context, version string) error {
	downs, err := loadMigrations(".down.sql")
	if err != nil {
		return err
	}

	var target *migration
	for i := range downs {
		if downs[i].version == version {
			target = &downs[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("no rollback file for version %s", version)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rollback: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, target.sql, pgx.QueryExecModeSimpleProtocol); err != nil {
		return fmt.Errorf("execute rollback: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM _intelligence_migrations WHERE version = $1`, version); err != nil {
		return fmt.Errorf("delete ledger row: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.logger.Info("Rolled back migration", zap.String("version", version))
	return nil
}

func (s *Store) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT version FROM _intelligence_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) runMigration(ctx context.Context, m migration) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// Simple protocol: migration files hold multiple statements.
	if _, err := tx.Exec(ctx, m.sql, pgx.QueryExecModeSimpleProtocol); err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO _intelligence_migrations (version) VALUES ($1)`, m.version); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	return tx.Commit(ctx)
}

func loadMigrations(suffix string) ([]migration, error) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var migrations []migration
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, suffix) {
			continue
		}
		content, err := migrationFiles.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		// Version is the leading token before the first underscore,
		// e.g. 20260115000001_init.up.sql.
		version := name
		if idx := strings.Index(name, "_"); idx > 0 {
			version = name[:idx]
		}
		migrations = append(migrations, migration{
			version: version,
			name:    name,
			sql:     string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].version < migrations[j].version
	})
	return migrations, nil
}
