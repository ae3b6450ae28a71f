package store

import (
	"database/sql"
	"strconv"
	"strings"

	"github.com/alecthomas/errors"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func init() {
	Register("postgres", PostgresDriver{})
	Register("pgx", PostgresDriver{})
}

type PostgresDriver struct{}

var _ Driver = (*PostgresDriver)(nil)

func (PostgresDriver) Name() string { return "postgres" }

func (PostgresDriver) TranslateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) {
		return errors.Errorf("%w: %w", ErrConstraint, err)
	}
	return err
}

func (PostgresDriver) Denormalise(query string) string {
	out := &strings.Builder{}
	i := 0
	for _, r := range query {
		if r == '?' {
			i++
			out.WriteString("$" + strconv.Itoa(i))
			continue
		}
		out.WriteRune(r)
	}
	return out.String()
}

func (PostgresDriver) Open(dsn string) (*sql.DB, error) {
	return errors.WithStack2(sql.Open("pgx", dsn))
}
