package dockertest

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/bridgepool/drivers"
)

// ApplySchema runs goose migrations from migrationsDir against the
// database. The dialect is the goose dialect name ("postgres", "mysql",
// "sqlite3").
func ApplySchema(db *sql.DB, dialect, migrationsDir string) error {
	goose.SetTableName("schema_migrations")
	goose.SetBaseFS(os.DirFS(migrationsDir))
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// SetupSchemaT applies migrations to a provisioned server, failing the test
// on any error. The database/sql handle used for migrations is closed
// before returning; the pool under test opens its own connections.
func SetupSchemaT(t *testing.T, srv *Server, migrationsDir string) {
	t.Helper()
	require.DirExists(t, migrationsDir, "Migrations directory does not exist: %s", migrationsDir)

	db, err := sql.Open(SQLDriverName(srv.Engine), srv.DSN)
	require.NoError(t, err, "Failed to open migration connection")
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Logf("Warning: failed to close migration connection: %v", closeErr)
		}
	}()

	goose.SetLogger(&testGooseLogger{t: t})
	require.NoError(t, ApplySchema(db, srv.Engine, migrationsDir), "Failed to run migrations")
}

// SQLDriverName maps a drivers package name to the name the corresponding
// driver registers with database/sql.
func SQLDriverName(engine string) string {
	if engine == drivers.Postgres {
		return "pgx"
	}
	return engine
}

// testGooseLogger implements a minimal logger interface for goose
type testGooseLogger struct {
	t *testing.T
}

// Printf implements the required logging method for goose's SetLogger
func (l *testGooseLogger) Printf(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	l.t.Log("Goose: " + strings.TrimSpace(msg))
}

// Fatalf implements the required logging method for goose's SetLogger
func (l *testGooseLogger) Fatalf(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	l.t.Fatal("Goose fatal error: " + strings.TrimSpace(msg))
}
