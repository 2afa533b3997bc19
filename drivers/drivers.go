// Package drivers exposes the synchronous database drivers this module is
// built against, keyed by the short names used in configuration. The pool
// itself is driver-agnostic; this package is the one place that imports
// concrete driver implementations.
package drivers

import (
	"database/sql/driver"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
)

// Driver names accepted by ByName and the configuration surface.
const (
	Postgres = "postgres"
	MySQL    = "mysql"
	SQLite   = "sqlite3"
)

// ByName resolves a short driver name to the driver implementation.
// Returns an error for unknown names so configuration typos fail fast.
func ByName(name string) (driver.Driver, error) {
	switch name {
	case Postgres:
		return stdlib.GetDefaultDriver(), nil
	case MySQL:
		return &mysql.MySQLDriver{}, nil
	case SQLite:
		return &sqlite3.SQLiteDriver{}, nil
	default:
		return nil, fmt.Errorf("unknown driver %q (supported: %s, %s, %s)",
			name, Postgres, MySQL, SQLite)
	}
}

// Names returns the supported driver names, for error messages and
// configuration validation.
func Names() []string {
	return []string{Postgres, MySQL, SQLite}
}
