package pool

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Conn wraps one native driver handle together with its dedicated execution
// context. All driver calls made through a Conn are submitted to the
// connection's own single worker, so they execute strictly one at a time
// against the underlying handle.
//
// A Conn is owned exclusively by the pool while idle and exclusively by the
// caller between Acquire and Release. It must never be shared between
// goroutines that release it independently.
type Conn struct {
	id     uuid.UUID
	pool   *Pool
	handle driver.Conn
	runner *runner

	// bad is set when the driver reports the handle unusable. The pool
	// checks it on release and evicts instead of pooling.
	bad atomic.Bool

	// busy and lastUsed are guarded by the owning pool's mutex.
	busy     bool
	lastUsed time.Time
}

// ID returns the pool-assigned identity of this connection.
func (c *Conn) ID() uuid.UUID {
	return c.id
}

// ExecContext executes a statement that returns no rows. The call runs on
// the connection's dedicated worker; the context bounds how long the caller
// waits, not the driver call itself.
func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (driver.Result, error) {
	var res driver.Result
	var err error
	if submitErr := c.runner.submit(ctx, func() {
		res, err = c.exec(ctx, query, namedValues(args))
	}); submitErr != nil {
		return nil, submitErr
	}
	return res, c.noteErr("exec", err)
}

// QueryContext executes a query and returns the driver's row iterator. The
// returned rows must be closed by the caller before the Conn is released.
func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	var rows driver.Rows
	var err error
	if submitErr := c.runner.submit(ctx, func() {
		rows, err = c.query(ctx, query, namedValues(args))
	}); submitErr != nil {
		return nil, submitErr
	}
	return rows, c.noteErr("query", err)
}

// Ping verifies the handle is still alive, using the driver's Pinger when
// available and a trivial query otherwise.
func (c *Conn) Ping(ctx context.Context) error {
	var err error
	if submitErr := c.runner.submit(ctx, func() {
		if pinger, ok := c.handle.(driver.Pinger); ok {
			err = pinger.Ping(ctx)
			return
		}
		var rows driver.Rows
		rows, err = c.query(ctx, "SELECT 1", nil)
		if rows != nil {
			closeErr := rows.Close()
			if err == nil {
				err = closeErr
			}
		}
	}); submitErr != nil {
		return submitErr
	}
	return c.noteErr("ping", err)
}

// Begin starts a transaction on the underlying handle. Commit and Rollback
// on the returned Tx run on the same dedicated worker as every other call
// for this connection.
func (c *Conn) Begin(ctx context.Context) (*Tx, error) {
	var tx driver.Tx
	var err error
	if submitErr := c.runner.submit(ctx, func() {
		if beginner, ok := c.handle.(driver.ConnBeginTx); ok {
			tx, err = beginner.BeginTx(ctx, driver.TxOptions{})
			return
		}
		tx, err = c.handle.Begin() //nolint:staticcheck // fallback for legacy drivers
	}); submitErr != nil {
		return nil, submitErr
	}
	if err != nil {
		return nil, c.noteErr("begin", err)
	}
	return &Tx{conn: c, tx: tx}, nil
}

// exec runs on the worker. It prefers the driver's context-aware fast path
// and falls back to a prepared statement.
func (c *Conn) exec(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if execer, ok := c.handle.(driver.ExecerContext); ok {
		res, err := execer.ExecContext(ctx, query, args)
		if !errors.Is(err, driver.ErrSkip) {
			return res, err
		}
	}
	stmt, err := c.prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = stmt.Close() }()
	if execerCtx, ok := stmt.(driver.StmtExecContext); ok {
		return execerCtx.ExecContext(ctx, args)
	}
	return stmt.Exec(values(args)) //nolint:staticcheck // fallback for legacy drivers
}

// query runs on the worker, mirroring exec for row-returning statements.
func (c *Conn) query(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if queryer, ok := c.handle.(driver.QueryerContext); ok {
		rows, err := queryer.QueryContext(ctx, query, args)
		if !errors.Is(err, driver.ErrSkip) {
			return rows, err
		}
	}
	stmt, err := c.prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	rows, err := queryStmt(ctx, stmt, args)
	if err != nil {
		_ = stmt.Close()
		return nil, err
	}
	// The statement stays open until the rows are closed.
	return &stmtRows{Rows: rows, stmt: stmt}, nil
}

func (c *Conn) prepare(ctx context.Context, query string) (driver.Stmt, error) {
	if preparer, ok := c.handle.(driver.ConnPrepareContext); ok {
		return preparer.PrepareContext(ctx, query)
	}
	return c.handle.Prepare(query)
}

func queryStmt(ctx context.Context, stmt driver.Stmt, args []driver.NamedValue) (driver.Rows, error) {
	if queryerCtx, ok := stmt.(driver.StmtQueryContext); ok {
		return queryerCtx.QueryContext(ctx, args)
	}
	return stmt.Query(values(args)) //nolint:staticcheck // fallback for legacy drivers
}

// noteErr records driver-reported handle failures so the pool evicts the
// connection on release instead of returning it to the free list. All other
// driver errors propagate unchanged and leave the connection pooled.
func (c *Conn) noteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, driver.ErrBadConn) {
		c.bad.Store(true)
		return fmt.Errorf("%w: %s: %v", ErrBadConn, op, err)
	}
	return err
}

// stmtRows keeps the prepared statement alive for the lifetime of its rows.
type stmtRows struct {
	driver.Rows
	stmt driver.Stmt
}

func (r *stmtRows) Close() error {
	rowsErr := r.Rows.Close()
	stmtErr := r.stmt.Close()
	if rowsErr != nil {
		return rowsErr
	}
	return stmtErr
}

// Tx is a transaction started on a pooled connection. It delegates to the
// driver's transaction object on the connection's dedicated worker.
type Tx struct {
	conn *Conn
	tx   driver.Tx
}

// Commit commits the transaction.
func (t *Tx) Commit(ctx context.Context) error {
	var err error
	if submitErr := t.conn.runner.submit(ctx, func() {
		err = t.tx.Commit()
	}); submitErr != nil {
		return submitErr
	}
	return t.conn.noteErr("commit", err)
}

// Rollback aborts the transaction.
func (t *Tx) Rollback(ctx context.Context) error {
	var err error
	if submitErr := t.conn.runner.submit(ctx, func() {
		err = t.tx.Rollback()
	}); submitErr != nil {
		return submitErr
	}
	return t.conn.noteErr("rollback", err)
}

// namedValues converts variadic arguments to the driver's argument form.
// Values are passed through as-is; drivers reject unsupported types.
func namedValues(args []any) []driver.NamedValue {
	if len(args) == 0 {
		return nil
	}
	named := make([]driver.NamedValue, len(args))
	for i, arg := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: driver.Value(arg)}
	}
	return named
}

// values strips names for legacy driver entry points.
func values(args []driver.NamedValue) []driver.Value {
	if len(args) == 0 {
		return nil
	}
	vals := make([]driver.Value, len(args))
	for i, arg := range args {
		vals[i] = arg.Value
	}
	return vals
}
