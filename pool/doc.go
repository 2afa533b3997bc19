// Package pool implements a bounded connection pool that hands out
// exclusive, blocking-capable database connections to concurrent callers.
//
// Every connection is bound to its own dedicated execution context: a
// single worker goroutine that runs all driver calls for that handle in
// order. Blocking drivers therefore never see concurrent calls against one
// handle, and no locking is needed at the driver-call level. The pool's own
// bookkeeping (free list, waiter queue, size counters) lives behind a
// single mutex.
//
// Acquisition follows a three-step strategy: reuse the oldest idle
// connection, open a new one while the pool is below its maximum size, and
// otherwise suspend the caller in a first-in-first-out waiter queue. A
// released connection is handed directly to the oldest waiter, so fairness
// holds under contention. Teardown is lazy: Close shuts idle connections
// down immediately and checked-out connections as they come back, and
// WaitClosed blocks until every driver handle is gone.
//
// The driver boundary is the standard database/sql/driver surface; any
// registered synchronous driver works. See the drivers package for the
// drivers wired into this module.
package pool
