// Package dockertest provisions ephemeral database servers in Docker
// containers for integration tests.
//
// A server is started with a unique per-session name, its published port is
// discovered from the container, and readiness is established by polling a
// trivial query through the blocking driver with jittered backoff. Teardown
// is unconditional: the container is killed and removed together with its
// volumes, registered via t.Cleanup so it runs regardless of test outcome.
//
// Tests that cannot reach a Docker daemon are skipped, and an existing
// database can be supplied through DATABASE_URL to bypass provisioning
// entirely.
package dockertest
