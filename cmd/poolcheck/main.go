// Package main implements poolcheck, a small diagnostic binary that opens a
// connection pool against the configured database, runs a trivial query
// round trip through it, and reports the pool's bookkeeping counters.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/phrazzld/bridgepool/drivers"
	"github.com/phrazzld/bridgepool/internal/config"
	"github.com/phrazzld/bridgepool/internal/platform/logger"
	"github.com/phrazzld/bridgepool/pool"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("poolcheck failed: %v", err)
	}
}

// run loads configuration, sets up logging, and exercises the pool once.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	slog.Info("configuration loaded",
		"driver", cfg.Database.Driver,
		"min_size", cfg.Pool.MinSize,
		"max_size", cfg.Pool.MaxSize,
		"acquire_timeout", cfg.Pool.AcquireTimeout)

	drv, err := drivers.ByName(cfg.Database.Driver)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := pool.New(ctx, pool.Config{
		Driver:         drv,
		DSN:            cfg.Database.ResolveDSN(),
		MinSize:        cfg.Pool.MinSize,
		MaxSize:        cfg.Pool.MaxSize,
		AcquireTimeout: cfg.Pool.AcquireTimeout,
		Logger:         appLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to create pool: %w", err)
	}

	if err := p.Do(ctx, func(conn *pool.Conn) error {
		return conn.Ping(ctx)
	}); err != nil {
		_ = p.Close()
		return fmt.Errorf("round trip failed: %w", err)
	}

	stats := p.Stats()
	slog.Info("round trip succeeded",
		"size", stats.Size,
		"idle", stats.Idle,
		"busy", stats.Busy,
		"waiters", stats.Waiters)

	if err := p.Close(); err != nil {
		return fmt.Errorf("failed to close pool: %w", err)
	}
	if err := p.WaitClosed(ctx); err != nil {
		return fmt.Errorf("failed waiting for pool teardown: %w", err)
	}
	slog.Info("pool closed cleanly")
	return nil
}
