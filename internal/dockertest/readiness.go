package dockertest

import (
	"context"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/phrazzld/bridgepool/drivers"
)

// Polling cadence for readiness checks. The constant interval plus jitter
// approximates a random sleep between 0.1s and 1s per attempt.
const (
	pollInterval = 550 * time.Millisecond
	pollJitter   = 450 * time.Millisecond
)

// waitReady polls the server with a trivial query until it accepts
// connections or the window elapses. Each attempt opens a fresh handle
// through the synchronous driver, runs SELECT 1, and closes everything
// again, so readiness proves the full connect path and not just a TCP
// accept.
func (s *Server) waitReady(ctx context.Context, window time.Duration) error {
	drv, err := drivers.ByName(s.Engine)
	if err != nil {
		return err
	}

	backoff := retry.WithMaxDuration(window,
		retry.WithJitter(pollJitter,
			retry.NewConstant(pollInterval)))

	start := time.Now()
	attempts := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		if probeErr := probe(drv, s.DSN); probeErr != nil {
			return retry.RetryableError(probeErr)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("server not ready after %d attempts in %s: %w",
			attempts, time.Since(start).Round(time.Millisecond), err)
	}

	s.logger.Info("server ready",
		"attempts", attempts,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// probe opens a handle, runs SELECT 1, and closes the handle. Any failure
// along the way means the server is not ready yet.
func probe(drv driver.Driver, dataSource string) error {
	handle, err := drv.Open(dataSource)
	if err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	defer func() { _ = handle.Close() }()

	if queryer, ok := handle.(driver.QueryerContext); ok {
		rows, err := queryer.QueryContext(context.Background(), "SELECT 1;", nil)
		if err != nil {
			return fmt.Errorf("probe query failed: %w", err)
		}
		return rows.Close()
	}

	stmt, err := handle.Prepare("SELECT 1;")
	if err != nil {
		return fmt.Errorf("probe prepare failed: %w", err)
	}
	defer func() { _ = stmt.Close() }()
	rows, err := stmt.Query(nil) //nolint:staticcheck // probe path for legacy drivers
	if err != nil {
		return fmt.Errorf("probe query failed: %w", err)
	}
	return rows.Close()
}
