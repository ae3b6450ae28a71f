package store

import (
	"context"
	"database/sql"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/alecthomas/errors"
)

// Migrate applies the *.sql files in fsys that have not yet been applied, in lexical order.
//
// Each file is applied in its own transaction and recorded by name. Statements within a file are separated by ";" at
// the end of a line.
func Migrate(ctx context.Context, db *sql.DB, driver Driver, fsys fs.FS, logger *slog.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) NOT NULL PRIMARY KEY
		)`)
	if err != nil {
		return errors.Errorf("failed to create migrations table: %w", err)
	}
	files, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return errors.WithStack(err)
	}
	for _, name := range files {
		var count int
		row := db.QueryRowContext(ctx, driver.Denormalise(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`), name)
		if err := row.Scan(&count); err != nil {
			return errors.Errorf("%s: failed to check migration: %w", name, err)
		}
		if count > 0 {
			continue
		}
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return errors.Errorf("%s: %w", name, err)
		}
		if err := applyMigration(ctx, db, driver, name, string(data)); err != nil {
			return err
		}
		logger.Debug("Applied migration", "driver", driver.Name(), "migration", name)
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, driver Driver, name, script string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Errorf("%s: failed to begin transaction: %w", name, err)
	}
	defer tx.Rollback() //nolint:errcheck
	for _, stmt := range splitStatements(script) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Errorf("%s: %w", name, driver.TranslateError(err))
		}
	}
	if _, err := tx.ExecContext(ctx, driver.Denormalise(`INSERT INTO schema_migrations (version) VALUES (?)`), name); err != nil {
		return errors.Errorf("%s: failed to record migration: %w", name, driver.TranslateError(err))
	}
	return errors.WithStack(tx.Commit())
}

func splitStatements(script string) []string {
	var out []string
	current := &strings.Builder{}
	for line := range strings.Lines(script) {
		current.WriteString(line)
		if strings.HasSuffix(strings.TrimSpace(line), ";") {
			if stmt := strings.TrimSpace(current.String()); stmt != ";" {
				out = append(out, strings.TrimSuffix(stmt, ";"))
			}
			current.Reset()
		}
	}
	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		out = append(out, stmt)
	}
	return out
}
