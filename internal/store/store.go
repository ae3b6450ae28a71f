// Package store persists accepted diagnostics, the "baseline", in an SQL database.
//
// A diagnostic is accepted by fingerprint, per project. Filtering a later analysis against the baseline leaves only
// the diagnostics that are new.
package store

import (
	"context"
	"database/sql"
	"embed"
	"io"
	"io/fs"
	"log/slog"
	"slices"
	"time"

	"github.com/alecthomas/errors"
	"github.com/jpillora/backoff"
	"go.jetify.com/typeid/v2"

	"github.com/alecthomas/diplan/internal/diag"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrConstraint is returned when a write violates a database constraint.
var ErrConstraint = errors.New("constraint violation")

type storeOptions struct {
	logger     *slog.Logger
	migrations []fs.FS
	attempts   int
	retryMin   time.Duration
	retryMax   time.Duration
}

type Option func(*storeOptions) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *storeOptions) error {
		if logger == nil {
			return errors.Errorf("logger must not be nil")
		}
		o.logger = logger
		return nil
	}
}

// WithMigrations adds migrations applied after the built-in schema.
func WithMigrations(fsys fs.FS) Option {
	return func(o *storeOptions) error {
		o.migrations = append(o.migrations, fsys)
		return nil
	}
}

// WithConnectRetry sets how many times connecting is attempted, and the bounds of the delay between attempts.
func WithConnectRetry(attempts int, minDelay, maxDelay time.Duration) Option {
	return func(o *storeOptions) error {
		if attempts < 1 {
			return errors.Errorf("at least one connection attempt is required")
		}
		if minDelay > maxDelay {
			return errors.Errorf("minimum retry delay %s exceeds maximum %s", minDelay, maxDelay)
		}
		o.attempts, o.retryMin, o.retryMax = attempts, minDelay, maxDelay
		return nil
	}
}

// Store is a diagnostic baseline.
type Store struct {
	db     *sql.DB
	driver Driver
	q      func(string) string
	logger *slog.Logger
}

// Open a baseline store, creating or migrating its schema as necessary.
//
// The driver is selected by DSN scheme: sqlite://, postgres:// (or pgx://) and mysql://.
func Open(ctx context.Context, dsn string, options ...Option) (*Store, error) {
	opts := &storeOptions{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		attempts: 5,
		retryMin: time.Millisecond * 100,
		retryMax: time.Second * 2,
	}
	for _, option := range options {
		if err := option(opts); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	driver, driverDSN, err := DriverForDSN(dsn)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	db, err := driver.Open(driverDSN)
	if err != nil {
		return nil, errors.Errorf("failed to open %s database: %w", driver.Name(), err)
	}
	if err := ping(ctx, db, driver, opts); err != nil {
		_ = db.Close()
		return nil, err
	}
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		_ = db.Close()
		return nil, errors.WithStack(err)
	}
	for _, fsys := range append([]fs.FS{sub}, opts.migrations...) {
		if err := Migrate(ctx, db, driver, fsys, opts.logger); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &Store{db: db, driver: driver, q: driver.Denormalise, logger: opts.logger}, nil
}

func ping(ctx context.Context, db *sql.DB, driver Driver, opts *storeOptions) error {
	retry := backoff.Backoff{Min: opts.retryMin, Max: opts.retryMax, Jitter: true}
	for {
		err := db.PingContext(ctx)
		if err == nil {
			return nil
		}
		if int(retry.Attempt())+1 >= opts.attempts {
			return errors.Errorf("failed to connect to %s database: %w", driver.Name(), err)
		}
		delay := retry.Duration()
		opts.logger.Warn("Database not ready, retrying", "driver", driver.Name(), "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case <-time.After(delay):
		}
	}
}

// Close the underlying database.
func (s *Store) Close() error { return errors.WithStack(s.db.Close()) }

// Driver of the store.
func (s *Store) Driver() Driver { return s.driver }

// Accept diagnostics into the baseline of a project, returning how many were not already accepted.
//
// Diagnostics accepted together share a batch ID, a [TypeID](https://github.com/jetify-com/typeid) prefixed with
// "baseline".
func (s *Store) Accept(ctx context.Context, project string, diagnostics diag.Set) (int, error) {
	accepted, err := s.Accepted(ctx, project)
	if err != nil {
		return 0, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	now := time.Now().UTC()
	batch := typeid.MustGenerate("baseline").String()
	count := 0
	for _, d := range diagnostics {
		fingerprint := d.Fingerprint()
		if _, found := slices.BinarySearch(accepted, fingerprint); found {
			continue
		}
		_, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO baseline (project, fingerprint, code, message, accepted_at, batch)
			VALUES (?, ?, ?, ?, ?, ?)
		`), project, fingerprint, string(d.Code), d.Message, now, batch)
		if err != nil {
			return 0, errors.Errorf("%s: %w", fingerprint, s.driver.TranslateError(err))
		}
		accepted = append(accepted, fingerprint)
		slices.Sort(accepted)
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Errorf("failed to commit baseline: %w", s.driver.TranslateError(err))
	}
	s.logger.Debug("Accepted diagnostics", "project", project, "batch", batch, "new", count)
	return count, nil
}

// Accepted returns the sorted fingerprints accepted for a project.
func (s *Store) Accepted(ctx context.Context, project string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT fingerprint FROM baseline WHERE project = ? ORDER BY fingerprint`), project)
	if err != nil {
		return nil, errors.Errorf("failed to query baseline: %w", err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var fingerprint string
		if err := rows.Scan(&fingerprint); err != nil {
			return nil, errors.WithStack(err)
		}
		out = append(out, fingerprint)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	slices.Sort(out)
	return out, nil
}

// Filter returns the diagnostics that are not in the baseline of a project.
func (s *Store) Filter(ctx context.Context, project string, diagnostics diag.Set) (diag.Set, error) {
	accepted, err := s.Accepted(ctx, project)
	if err != nil {
		return nil, err
	}
	return diagnostics.Filter(func(d diag.Diagnostic) bool {
		_, found := slices.BinarySearch(accepted, d.Fingerprint())
		return !found
	}), nil
}

// Prune removes accepted fingerprints of a project that are no longer reported, returning how many were removed.
func (s *Store) Prune(ctx context.Context, project string, current diag.Set) (int, error) {
	accepted, err := s.Accepted(ctx, project)
	if err != nil {
		return 0, err
	}
	reported := map[string]bool{}
	for _, d := range current {
		reported[d.Fingerprint()] = true
	}
	count := 0
	for _, fingerprint := range accepted {
		if reported[fingerprint] {
			continue
		}
		_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM baseline WHERE project = ? AND fingerprint = ?`), project, fingerprint)
		if err != nil {
			return count, errors.Errorf("%s: %w", fingerprint, s.driver.TranslateError(err))
		}
		count++
	}
	return count, nil
}
