package drivers

import (
	"context"
	"database/sql/driver"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/bridgepool/dsn"
	"github.com/phrazzld/bridgepool/pool"
)

func TestByName(t *testing.T) {
	for _, name := range Names() {
		drv, err := ByName(name)
		require.NoError(t, err, "known driver %q must resolve", name)
		assert.NotNil(t, drv)
	}

	drv, err := ByName("oracle")
	assert.Error(t, err)
	assert.Nil(t, drv)
}

// TestSQLiteRoundTrip exercises the pool end to end against a real blocking
// driver without needing a database server: create a table, insert through
// a transaction, read the row back, and tear the pool down cleanly.
func TestSQLiteRoundTrip(t *testing.T) {
	drv, err := ByName(SQLite)
	require.NoError(t, err)

	ctx := context.Background()
	p, err := pool.New(ctx, pool.Config{
		Driver:         drv,
		DSN:            dsn.SQLite(filepath.Join(t.TempDir(), "sqlite.db"), nil),
		MaxSize:        2,
		AcquireTimeout: 5 * time.Second,
	})
	require.NoError(t, err)

	conn, err := p.Acquire(ctx)
	require.NoError(t, err)

	_, err = conn.ExecContext(ctx, "CREATE TABLE t (n INTEGER)")
	require.NoError(t, err)

	tx, err := conn.Begin(ctx)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, "INSERT INTO t (n) VALUES (42)")
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	rows, err := conn.QueryContext(ctx, "SELECT n FROM t")
	require.NoError(t, err)
	dest := make([]driver.Value, 1)
	require.NoError(t, rows.Next(dest))
	assert.EqualValues(t, 42, dest[0])
	require.ErrorIs(t, rows.Next(dest), io.EOF)
	require.NoError(t, rows.Close())

	require.NoError(t, p.Release(conn))
	require.NoError(t, p.Close())

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, p.WaitClosed(waitCtx))
}
