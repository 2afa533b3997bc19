package pool

import (
	"errors"
	"fmt"
)

// Common pool errors returned by Pool and Conn operations.
var (
	// ErrPoolExhausted is returned when the configured acquire timeout
	// elapses before a connection becomes available.
	ErrPoolExhausted = errors.New("pool exhausted")

	// ErrPoolClosed is returned when an operation is attempted on a pool
	// that has been closed.
	ErrPoolClosed = errors.New("pool is closed")

	// ErrInvalidState is returned on protocol misuse, for example releasing
	// a connection that is not currently checked out, or calling WaitClosed
	// before Close.
	ErrInvalidState = errors.New("invalid pool state")

	// ErrBadConn is returned when the underlying driver reports that a
	// connection handle is no longer usable. The connection is evicted from
	// the pool and never returned to the free list.
	ErrBadConn = errors.New("bad connection")
)

// IsExhausted checks if the error indicates an acquire timeout.
func IsExhausted(err error) bool {
	return errors.Is(err, ErrPoolExhausted)
}

// IsClosed checks if the error indicates the pool has been closed.
func IsClosed(err error) bool {
	return errors.Is(err, ErrPoolClosed)
}

// PoolError is a custom error type for pool-specific failures with
// additional context about the failing operation.
type PoolError struct {
	Op      string // The operation that failed (e.g., "acquire", "release")
	Message string // Error message
	Err     error  // Original error
}

// Error implements the error interface for PoolError.
func (e *PoolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pool %s failed: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("pool %s failed: %s", e.Op, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *PoolError) Unwrap() error {
	return e.Err
}

// newPoolError creates a new PoolError with the given operation, message,
// and wrapped error.
func newPoolError(op, message string, err error) *PoolError {
	return &PoolError{
		Op:      op,
		Message: message,
		Err:     err,
	}
}
