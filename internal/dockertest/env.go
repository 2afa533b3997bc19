package dockertest

import (
	"context"
	"os"
	"testing"

	docker "github.com/fsouza/go-dockerclient"
	"github.com/stretchr/testify/require"
)

// This file contains environment detection utilities for determining test
// execution context, plus the testing.T-facing provisioning entry points.

// GetTestDatabaseURL returns an externally provided database URL for tests.
// It checks DATABASE_URL and BRIDGEPOOL_TEST_DB_URL in that order,
// returning the first non-empty value. When set, tests use it instead of
// provisioning a container.
func GetTestDatabaseURL() string {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = os.Getenv("BRIDGEPOOL_TEST_DB_URL")
	}
	return dbURL
}

// HasExternalDatabase returns true if an external database URL is
// configured for integration tests.
func HasExternalDatabase() bool {
	return GetTestDatabaseURL() != ""
}

// DockerAvailable reports whether a Docker daemon is reachable.
func DockerAvailable() bool {
	client, err := docker.NewClientFromEnv()
	if err != nil {
		return false
	}
	return client.Ping() == nil
}

// ShouldSkipContainerTest returns true when container-backed tests cannot
// run in this environment. Tests use this for a consistent skip message.
func ShouldSkipContainerTest() bool {
	return !DockerAvailable()
}

// StartPostgresT provisions a Postgres container for the duration of the
// test, registering unconditional teardown via t.Cleanup. The test is
// skipped when no Docker daemon is reachable.
func StartPostgresT(t *testing.T, opts Options) *Server {
	t.Helper()
	if ShouldSkipContainerTest() {
		t.Skip("Docker daemon not available - skipping container test")
	}

	srv, err := StartPostgres(context.Background(), opts)
	require.NoError(t, err, "Failed to provision postgres container")
	t.Cleanup(srv.Stop)
	return srv
}

// StartMySQLT provisions a MySQL container for the duration of the test,
// registering unconditional teardown via t.Cleanup. The test is skipped
// when no Docker daemon is reachable.
func StartMySQLT(t *testing.T, opts Options) *Server {
	t.Helper()
	if ShouldSkipContainerTest() {
		t.Skip("Docker daemon not available - skipping container test")
	}

	srv, err := StartMySQL(context.Background(), opts)
	require.NoError(t, err, "Failed to provision mysql container")
	t.Cleanup(srv.Stop)
	return srv
}
