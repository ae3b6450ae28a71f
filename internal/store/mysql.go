package store

import (
	"database/sql"

	"github.com/alecthomas/errors"
	"github.com/go-sql-driver/mysql"
)

func init() {
	Register("mysql", MySQLDriver{})
}

type MySQLDriver struct{}

var _ Driver = (*MySQLDriver)(nil)

func (MySQLDriver) Name() string { return "mysql" }

func (MySQLDriver) TranslateError(err error) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1062, 1451, 1452: // ER_DUP_ENTRY, ER_ROW_IS_REFERENCED_2, ER_NO_REFERENCED_ROW_2
			return errors.Errorf("%w: %w", ErrConstraint, err)
		}
	}
	return err
}

func (MySQLDriver) Denormalise(query string) string { return query }

func (MySQLDriver) Open(dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, errors.Errorf("failed to parse MySQL DSN: %w", err)
	}
	cfg.ParseTime = true
	return errors.WithStack2(sql.Open("mysql", cfg.FormatDSN()))
}
