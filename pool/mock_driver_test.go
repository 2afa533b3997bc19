package pool

import (
	"context"
	"database/sql/driver"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// mockDriver is an in-memory driver that counts opened and closed handles
// and supports failure injection. It stands in for a real blocking driver
// in every unit test.
type mockDriver struct {
	mu        sync.Mutex
	opens     int
	closes    int
	openDelay time.Duration
	openErr   error
	openGate  chan struct{} // when set, Open blocks on it before doing anything

	// overlaps counts driver calls that ran concurrently against a single
	// handle. The serial runner must keep this at zero.
	overlaps atomic.Int32
}

func (d *mockDriver) Open(name string) (driver.Conn, error) {
	d.mu.Lock()
	gate := d.openGate
	d.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if d.openDelay > 0 {
		time.Sleep(d.openDelay)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.opens++
	return &mockConn{drv: d}, nil
}

func (d *mockDriver) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

func (d *mockDriver) closeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

func (d *mockDriver) openHandles() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens - d.closes
}

func (d *mockDriver) gateOpens(gate chan struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openGate = gate
}

func (d *mockDriver) failOpens(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openErr = err
}

// mockConn implements driver.Conn plus the context-aware fast paths the
// pool prefers.
type mockConn struct {
	drv      *mockDriver
	inCall   atomic.Bool
	mu       sync.Mutex
	execErr  error // returned by the next Exec/Query, then cleared
	execSlow time.Duration
}

func (c *mockConn) setNextErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execErr = err
}

func (c *mockConn) setSlow(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execSlow = d
}

func (c *mockConn) takeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.execErr
	c.execErr = nil
	return err
}

// enter flags overlapping calls against this handle.
func (c *mockConn) enter() func() {
	if !c.inCall.CompareAndSwap(false, true) {
		c.drv.overlaps.Add(1)
	}
	c.mu.Lock()
	slow := c.execSlow
	c.mu.Unlock()
	if slow > 0 {
		time.Sleep(slow)
	}
	return func() { c.inCall.Store(false) }
}

func (c *mockConn) Prepare(query string) (driver.Stmt, error) {
	return &mockStmt{conn: c}, nil
}

func (c *mockConn) Close() error {
	defer c.enter()()
	c.drv.mu.Lock()
	defer c.drv.mu.Unlock()
	c.drv.closes++
	return nil
}

func (c *mockConn) Begin() (driver.Tx, error) {
	defer c.enter()()
	return &mockTx{conn: c}, nil
}

func (c *mockConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	defer c.enter()()
	if err := c.takeErr(); err != nil {
		return nil, err
	}
	return driver.RowsAffected(0), nil
}

func (c *mockConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	defer c.enter()()
	if err := c.takeErr(); err != nil {
		return nil, err
	}
	return &mockRows{}, nil
}

func (c *mockConn) Ping(ctx context.Context) error {
	defer c.enter()()
	return c.takeErr()
}

type mockStmt struct {
	conn *mockConn
}

func (s *mockStmt) Close() error  { return nil }
func (s *mockStmt) NumInput() int { return -1 }

func (s *mockStmt) Exec(args []driver.Value) (driver.Result, error) {
	defer s.conn.enter()()
	if err := s.conn.takeErr(); err != nil {
		return nil, err
	}
	return driver.RowsAffected(0), nil
}

func (s *mockStmt) Query(args []driver.Value) (driver.Rows, error) {
	defer s.conn.enter()()
	if err := s.conn.takeErr(); err != nil {
		return nil, err
	}
	return &mockRows{}, nil
}

type mockTx struct {
	conn *mockConn
}

func (t *mockTx) Commit() error {
	defer t.conn.enter()()
	return t.conn.takeErr()
}

func (t *mockTx) Rollback() error {
	defer t.conn.enter()()
	return t.conn.takeErr()
}

type mockRows struct{}

func (r *mockRows) Columns() []string              { return []string{"1"} }
func (r *mockRows) Close() error                   { return nil }
func (r *mockRows) Next(dest []driver.Value) error { return io.EOF }
