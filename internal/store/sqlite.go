package store

import (
	"database/sql"

	"github.com/alecthomas/errors"
	"modernc.org/sqlite"
)

func init() {
	Register("sqlite", SQLiteDriver{})
}

type SQLiteDriver struct{}

var _ Driver = (*SQLiteDriver)(nil)

func (SQLiteDriver) Name() string { return "sqlite" }

func (SQLiteDriver) TranslateError(err error) error {
	var sqliteError *sqlite.Error
	if errors.As(err, &sqliteError) {
		switch sqliteError.Code() {
		case 19, 787, 1555, 2067: // SQLITE_CONSTRAINT, _FOREIGNKEY, _PRIMARYKEY, _UNIQUE
			return errors.Errorf("%w: %w", ErrConstraint, err)
		}
	}
	return err
}

func (SQLiteDriver) Denormalise(query string) string { return query }

// Open an SQLite database. Every connection to an in-memory database is a new database, so connections are limited
// to one.
func (SQLiteDriver) Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}
