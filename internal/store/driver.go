package store

import (
	"database/sql"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/alecthomas/errors"
)

// Driver abstracts the differences between SQL databases.
type Driver interface {
	// Name of the driver.
	Name() string
	// Open a database with a DSN in the driver's native form.
	Open(dsn string) (*sql.DB, error)
	// TranslateError wraps constraint violations in [ErrConstraint].
	TranslateError(err error) error
	// Denormalise a query written with "?" placeholders into the driver's placeholder syntax.
	Denormalise(query string) string
}

var (
	driversLock sync.Mutex
	drivers     = map[string]Driver{}
)

// Register a driver for a DSN scheme.
func Register(scheme string, driver Driver) {
	driversLock.Lock()
	defer driversLock.Unlock()
	drivers[scheme] = driver
}

// Schemes returns the registered DSN schemes.
func Schemes() []string {
	driversLock.Lock()
	defer driversLock.Unlock()
	out := make([]string, 0, len(drivers))
	for scheme := range drivers {
		out = append(out, scheme)
	}
	slices.Sort(out)
	return out
}

// DriverForDSN returns the driver for a DSN, and the DSN in the driver's native form.
func DriverForDSN(dsn string) (Driver, string, error) {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return nil, "", errors.Errorf("DSN %q has no scheme", dsn)
	}
	driversLock.Lock()
	driver, ok := drivers[scheme]
	driversLock.Unlock()
	if !ok {
		return nil, "", errors.Errorf("unsupported SQL DSN scheme: %s", scheme)
	}
	switch driver.Name() {
	case "postgres":
		u, err := url.Parse(dsn)
		if err != nil {
			return nil, "", errors.Errorf("failed to parse DSN: %w", err)
		}
		u.Scheme = "postgres"
		return driver, u.String(), nil
	default:
		return driver, rest, nil
	}
}
