package pool

import (
	"context"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultAcquireTimeout bounds Acquire when the configuration does not set
// an explicit timeout.
const DefaultAcquireTimeout = 30 * time.Second

// closeTimeout bounds how long teardown waits for a handle's close call to
// be scheduled on its worker.
const closeTimeout = 10 * time.Second

// Config holds the settings for a connection pool.
type Config struct {
	// Driver is the synchronous database driver used to open handles.
	Driver driver.Driver

	// DSN is the driver-specific connection string. It is treated as an
	// opaque value and passed through to the driver unchanged.
	DSN string

	// MinSize is the number of connections opened eagerly when the pool is
	// created. Zero means the pool starts empty.
	MinSize int

	// MaxSize is the hard upper bound on open connections. Must be > 0.
	MaxSize int

	// AcquireTimeout is how long Acquire waits for a free connection before
	// failing with ErrPoolExhausted. Zero selects DefaultAcquireTimeout; a
	// negative value disables the timeout.
	AcquireTimeout time.Duration

	// Logger receives structured pool lifecycle events. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// validate checks the size bounds and required fields.
func (c *Config) validate() error {
	if c.Driver == nil {
		return newPoolError("config", "driver is required", ErrInvalidState)
	}
	if c.DSN == "" {
		return newPoolError("config", "dsn is required", ErrInvalidState)
	}
	if c.MaxSize <= 0 {
		return newPoolError("config", "max size must be positive", ErrInvalidState)
	}
	if c.MinSize < 0 || c.MinSize > c.MaxSize {
		return newPoolError("config", "min size must be between 0 and max size", ErrInvalidState)
	}
	return nil
}

// Stats is a point-in-time snapshot of pool bookkeeping.
type Stats struct {
	Size    int // open connections, including slots reserved for in-flight opens
	Idle    int // connections on the free list
	Busy    int // connections checked out to callers
	Waiters int // callers suspended in Acquire
}

// Pool owns a bounded collection of connections and serializes acquisition
// and release so that concurrent callers never share one physical handle.
//
// All bookkeeping (free list, waiter queue, size counters) is guarded by a
// single mutex; each connection's driver I/O happens on that connection's
// own dedicated worker, never under the pool lock.
type Pool struct {
	cfg    Config
	logger *slog.Logger

	mu         sync.Mutex
	conns      map[uuid.UUID]*Conn
	free       []*Conn      // FIFO: acquire pops the head, release appends
	waiters    []chan *Conn // FIFO: release hands off to the head
	size       int
	closed     bool
	doneClosed bool
	done       chan struct{}
}

// New creates a pool and pre-warms it to MinSize connections. The context
// bounds the pre-warm dials.
func New(ctx context.Context, cfg Config) (*Pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.AcquireTimeout == 0 {
		cfg.AcquireTimeout = DefaultAcquireTimeout
	}

	p := &Pool{
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("component", "pool")),
		conns:  make(map[uuid.UUID]*Conn),
		done:   make(chan struct{}),
	}

	for i := 0; i < cfg.MinSize; i++ {
		conn, err := p.dial(ctx)
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("failed to pre-warm pool: %w", err)
		}
		p.mu.Lock()
		p.conns[conn.id] = conn
		p.size++
		p.free = append(p.free, conn)
		p.mu.Unlock()
	}

	p.logger.Debug("pool created",
		"min_size", cfg.MinSize,
		"max_size", cfg.MaxSize,
		"acquire_timeout", cfg.AcquireTimeout)
	return p, nil
}

// Acquire returns an exclusive connection: an idle one when the free list
// is non-empty, a freshly opened one while the pool is below MaxSize, and
// otherwise it suspends until a connection is released. Suspended callers
// are served in first-in-first-out order.
//
// Acquire fails with ErrPoolExhausted when the configured acquire timeout
// elapses first, with ErrPoolClosed after Close, and with ctx.Err() when
// the caller's context is cancelled while waiting. A cancelled waiter is
// removed from the queue without leaking a connection.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, newPoolError("acquire", "pool has been closed", ErrPoolClosed)
	}

	// Fast path: reuse the oldest idle connection.
	if len(p.free) > 0 {
		conn := p.free[0]
		p.free = p.free[1:]
		conn.busy = true
		p.mu.Unlock()
		return conn, nil
	}

	// Grow path: reserve a slot before dialing so concurrent acquires never
	// overshoot MaxSize, then open the handle outside the lock.
	if p.size < p.cfg.MaxSize {
		p.size++
		p.mu.Unlock()

		conn, err := p.dial(ctx)
		if err != nil {
			p.mu.Lock()
			p.releaseSlotLocked()
			p.mu.Unlock()
			return nil, fmt.Errorf("failed to open connection: %w", err)
		}

		p.mu.Lock()
		p.conns[conn.id] = conn
		if p.closed {
			p.mu.Unlock()
			p.destroy(conn)
			return nil, newPoolError("acquire", "pool closed while connecting", ErrPoolClosed)
		}
		conn.busy = true
		p.mu.Unlock()
		return conn, nil
	}

	// Wait path: join the FIFO waiter queue.
	w := make(chan *Conn, 1)
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()

	var timeout <-chan time.Time
	if p.cfg.AcquireTimeout > 0 {
		timer := time.NewTimer(p.cfg.AcquireTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case conn := <-w:
		if conn == nil {
			// The pool was closed while we were waiting.
			return nil, newPoolError("acquire", "pool closed while waiting", ErrPoolClosed)
		}
		return conn, nil
	case <-timeout:
		p.abandonWaiter(w)
		return nil, newPoolError("acquire", "timed out waiting for a free connection", ErrPoolExhausted)
	case <-ctx.Done():
		p.abandonWaiter(w)
		return nil, ctx.Err()
	}
}

// abandonWaiter removes a waiter from the queue. If a release handed off a
// connection in the same instant, the connection is returned to the pool so
// nothing leaks to the departed caller.
func (p *Pool) abandonWaiter(w chan *Conn) {
	p.mu.Lock()
	for i, queued := range p.waiters {
		if queued == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			p.mu.Unlock()
			return
		}
	}
	p.mu.Unlock()

	select {
	case conn := <-w:
		if conn != nil {
			_ = p.Release(conn)
		}
	default:
	}
}

// Release returns a checked-out connection to the pool. If a waiter is
// suspended in Acquire, the connection is handed to the oldest one directly
// without touching the free list. Releasing a connection that is not
// checked out fails with ErrInvalidState and leaves pool state untouched.
func (p *Pool) Release(conn *Conn) error {
	if conn == nil || conn.pool != p {
		return newPoolError("release", "connection does not belong to this pool", ErrInvalidState)
	}

	p.mu.Lock()
	if !conn.busy {
		p.mu.Unlock()
		return newPoolError("release", "connection is not checked out", ErrInvalidState)
	}
	conn.busy = false
	conn.lastUsed = time.Now()

	// Evict handles the driver reported unusable, and close everything that
	// comes back after the pool has been shut down.
	if conn.bad.Load() || p.closed {
		evicted := conn.bad.Load()
		p.mu.Unlock()
		if evicted {
			p.logger.Warn("evicting bad connection", "conn_id", conn.id)
		}
		p.destroy(conn)
		return nil
	}

	// Direct handoff: the oldest waiter gets the connection without a
	// re-queue race. The send happens under the lock so an abandoning
	// waiter that no longer finds itself queued is guaranteed to see the
	// buffered connection. The channel has capacity 1, so this never
	// blocks.
	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		conn.busy = true
		w <- conn
		p.mu.Unlock()
		return nil
	}

	p.free = append(p.free, conn)
	p.mu.Unlock()
	return nil
}

// Do acquires a connection, runs fn with it, and releases it regardless of
// the outcome.
func (p *Pool) Do(ctx context.Context, fn func(conn *Conn) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := p.Release(conn); releaseErr != nil {
			p.logger.Error("failed to release connection", "error", releaseErr)
		}
	}()
	return fn(conn)
}

// Close marks the pool closed and closes every idle connection on its own
// execution context. Connections currently checked out are closed when they
// are released, not force-terminated, so in-flight results are preserved.
// Waiters suspended in Acquire are woken with ErrPoolClosed. Close is
// idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	idle := p.free
	p.free = nil
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}

	var wg sync.WaitGroup
	for _, conn := range idle {
		wg.Add(1)
		go func(conn *Conn) {
			defer wg.Done()
			p.destroy(conn)
		}(conn)
	}
	wg.Wait()

	p.mu.Lock()
	if p.size == 0 && !p.doneClosed {
		p.doneClosed = true
		close(p.done)
	}
	remaining := p.size
	p.mu.Unlock()

	p.logger.Debug("pool closed", "checked_out_remaining", remaining)
	return nil
}

// WaitClosed suspends until every connection has been fully closed,
// including ones that were checked out when Close was called. Calling
// WaitClosed before Close fails with ErrInvalidState.
func (p *Pool) WaitClosed(ctx context.Context) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if !closed {
		return newPoolError("wait_closed", "pool has not been closed", ErrInvalidState)
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the pool's bookkeeping counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	busy := 0
	for _, conn := range p.conns {
		if conn.busy {
			busy++
		}
	}
	return Stats{
		Size:    p.size,
		Idle:    len(p.free),
		Busy:    busy,
		Waiters: len(p.waiters),
	}
}

// dial opens a new handle on a fresh dedicated worker. The context bounds
// how long the caller waits for the worker; an open that completes after
// the caller gave up is closed immediately instead of leaking.
func (p *Pool) dial(ctx context.Context) (*Conn, error) {
	r := newRunner(p.logger)

	var mu sync.Mutex
	var abandoned bool
	var handle driver.Conn
	var openErr error

	submitErr := r.submit(ctx, func() {
		h, err := p.cfg.Driver.Open(p.cfg.DSN)
		mu.Lock()
		defer mu.Unlock()
		if abandoned {
			if h != nil {
				_ = h.Close()
			}
			return
		}
		handle, openErr = h, err
	})
	if submitErr != nil {
		mu.Lock()
		abandoned = true
		mu.Unlock()
		go r.stop()
		return nil, submitErr
	}
	if openErr != nil {
		r.stop()
		return nil, openErr
	}

	conn := &Conn{
		id:       uuid.New(),
		pool:     p,
		handle:   handle,
		runner:   r,
		lastUsed: time.Now(),
	}
	p.logger.Debug("connection opened", "conn_id", conn.id)
	return conn, nil
}

// destroy closes a connection's handle on its own worker, shuts the worker
// down, and removes the connection from the bookkeeping. When the last
// connection of a closed pool goes away, WaitClosed is unblocked. Must not
// be called with the pool lock held.
func (p *Pool) destroy(conn *Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := conn.runner.submit(ctx, func() {
		if err := conn.handle.Close(); err != nil {
			p.logger.Warn("failed to close driver handle", "conn_id", conn.id, "error", err)
		}
	}); err != nil {
		p.logger.Warn("failed to schedule handle close", "conn_id", conn.id, "error", err)
	}
	conn.runner.stop()

	p.mu.Lock()
	if _, tracked := p.conns[conn.id]; tracked {
		delete(p.conns, conn.id)
		p.releaseSlotLocked()
	}
	notifyWaiter := !p.closed && len(p.waiters) > 0 && p.size < p.cfg.MaxSize
	p.mu.Unlock()

	p.logger.Debug("connection closed", "conn_id", conn.id)

	// An eviction freed capacity while callers were queued; open a
	// replacement so the oldest waiter is not stranded.
	if notifyWaiter {
		go p.replaceForWaiter()
	}
}

// releaseSlotLocked gives back one reserved size slot and completes the
// close handshake when it was the last slot of a closed pool. Every
// size decrement goes through here so WaitClosed always unblocks, even
// when the slot never produced a tracked connection (a dial that failed
// after Close). Caller must hold p.mu.
func (p *Pool) releaseSlotLocked() {
	p.size--
	if p.closed && p.size == 0 && !p.doneClosed {
		p.doneClosed = true
		close(p.done)
	}
}

// replaceForWaiter opens a replacement connection after an eviction and
// hands it to the oldest waiter, or pools it if every waiter has left.
func (p *Pool) replaceForWaiter() {
	p.mu.Lock()
	if p.closed || p.size >= p.cfg.MaxSize {
		p.mu.Unlock()
		return
	}
	p.size++
	p.mu.Unlock()

	timeout := p.cfg.AcquireTimeout
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn, err := p.dial(ctx)
	if err != nil {
		p.mu.Lock()
		p.releaseSlotLocked()
		p.mu.Unlock()
		p.logger.Error("failed to open replacement connection", "error", err)
		return
	}

	p.mu.Lock()
	p.conns[conn.id] = conn
	if p.closed {
		p.mu.Unlock()
		p.destroy(conn)
		return
	}
	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		conn.busy = true
		w <- conn
		p.mu.Unlock()
		return
	}
	p.free = append(p.free, conn)
	p.mu.Unlock()
}
