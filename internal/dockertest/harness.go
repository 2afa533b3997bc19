package dockertest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	docker "github.com/fsouza/go-dockerclient"
	"github.com/google/uuid"

	"github.com/phrazzld/bridgepool/drivers"
	"github.com/phrazzld/bridgepool/dsn"
)

// Default readiness windows. The Postgres image historically needs longer
// than MySQL to accept connections after start; both are configurable
// through Options rather than hard-coded.
const (
	DefaultPostgresReadyWindow = 40 * time.Second
	DefaultMySQLReadyWindow    = 30 * time.Second
)

// Default credentials for provisioned servers, mirroring the container
// image environment set below.
const (
	defaultUser     = "bridgepool"
	defaultPassword = "mysecretpassword"
	defaultDatabase = "bridgepool"
)

// Options controls how a database server container is provisioned.
type Options struct {
	// Tag is the image tag to run (e.g. "16" for postgres:16). Empty
	// selects the per-engine default.
	Tag string

	// Host is the address the published port is reachable on. Empty uses
	// DOCKER_MACHINE_IP when set and 127.0.0.1 otherwise.
	Host string

	// ReadyWindow bounds the readiness polling. Zero selects the
	// per-engine default window.
	ReadyWindow time.Duration

	// Logger receives provisioning progress. Defaults to slog.Default().
	Logger *slog.Logger
}

// Server is a running ephemeral database container.
type Server struct {
	Engine string // driver name: drivers.Postgres or drivers.MySQL
	DSN    string
	Params dsn.Params

	client      *docker.Client
	containerID string
	logger      *slog.Logger
}

// StartPostgres provisions a Postgres container, waits for it to accept
// connections, and returns a handle for teardown. The caller must call Stop.
func StartPostgres(ctx context.Context, opts Options) (*Server, error) {
	tag := opts.Tag
	if tag == "" {
		tag = "16"
	}
	window := opts.ReadyWindow
	if window == 0 {
		window = DefaultPostgresReadyWindow
	}

	srv, err := startContainer(ctx, containerSpec{
		engine: drivers.Postgres,
		image:  "postgres",
		tag:    tag,
		env: []string{
			"POSTGRES_USER=" + defaultUser,
			"POSTGRES_PASSWORD=" + defaultPassword,
			"POSTGRES_DB=" + defaultDatabase,
		},
		containerPort: "5432/tcp",
	}, opts)
	if err != nil {
		return nil, err
	}

	srv.DSN = dsn.Postgres(srv.Params)
	if err := srv.waitReady(ctx, window); err != nil {
		srv.Stop()
		return nil, fmt.Errorf("postgres server did not become ready: %w", err)
	}
	return srv, nil
}

// StartMySQL provisions a MySQL container, waits for it to accept
// connections, and returns a handle for teardown. The caller must call Stop.
func StartMySQL(ctx context.Context, opts Options) (*Server, error) {
	tag := opts.Tag
	if tag == "" {
		tag = "8"
	}
	window := opts.ReadyWindow
	if window == 0 {
		window = DefaultMySQLReadyWindow
	}

	srv, err := startContainer(ctx, containerSpec{
		engine: drivers.MySQL,
		image:  "mysql",
		tag:    tag,
		env: []string{
			"MYSQL_USER=" + defaultUser,
			"MYSQL_PASSWORD=" + defaultPassword,
			"MYSQL_DATABASE=" + defaultDatabase,
			"MYSQL_ROOT_PASSWORD=" + defaultPassword,
		},
		containerPort: "3306/tcp",
	}, opts)
	if err != nil {
		return nil, err
	}

	srv.DSN = dsn.MySQL(srv.Params)
	if err := srv.waitReady(ctx, window); err != nil {
		srv.Stop()
		return nil, fmt.Errorf("mysql server did not become ready: %w", err)
	}
	return srv, nil
}

// Stop kills the container and removes it together with its volumes. It is
// safe to call on a partially provisioned server and never fails the test:
// teardown problems are logged, not raised.
func (s *Server) Stop() {
	if s.client == nil || s.containerID == "" {
		return
	}
	if err := s.client.KillContainer(docker.KillContainerOptions{ID: s.containerID}); err != nil {
		s.logger.Warn("failed to kill container", "container_id", s.containerID, "error", err)
	}
	if err := s.client.RemoveContainer(docker.RemoveContainerOptions{
		ID:            s.containerID,
		RemoveVolumes: true,
		Force:         true,
	}); err != nil {
		s.logger.Warn("failed to remove container", "container_id", s.containerID, "error", err)
	}
	s.containerID = ""
}

// containerSpec describes one engine's container configuration.
type containerSpec struct {
	engine        string
	image         string
	tag           string
	env           []string
	containerPort docker.Port
}

// startContainer pulls the image, creates and starts a uniquely named
// container with all ports published, and resolves the host port mapping.
func startContainer(ctx context.Context, spec containerSpec, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(
		slog.String("component", "dockertest"),
		slog.String("engine", spec.engine))

	client, err := docker.NewClientFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	image := spec.image + ":" + spec.tag
	logger.Info("pulling image", "image", image)
	if err := client.PullImage(docker.PullImageOptions{
		Repository: spec.image,
		Tag:        spec.tag,
		Context:    ctx,
	}, docker.AuthConfiguration{}); err != nil {
		return nil, fmt.Errorf("failed to pull image %s: %w", image, err)
	}

	name := fmt.Sprintf("bridgepool-test-%s-%s-%s", spec.image, spec.tag, uuid.NewString())
	container, err := client.CreateContainer(docker.CreateContainerOptions{
		Name: name,
		Config: &docker.Config{
			Image: image,
			Env:   spec.env,
		},
		HostConfig: &docker.HostConfig{
			PublishAllPorts: true,
		},
		Context: ctx,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create container %s: %w", name, err)
	}

	srv := &Server{
		Engine:      spec.engine,
		client:      client,
		containerID: container.ID,
		logger:      logger,
	}

	if err := client.StartContainer(container.ID, nil); err != nil {
		srv.Stop()
		return nil, fmt.Errorf("failed to start container %s: %w", name, err)
	}

	port, err := hostPort(client, container.ID, spec.containerPort)
	if err != nil {
		srv.Stop()
		return nil, err
	}

	srv.Params = dsn.Params{
		Host:     dockerHost(opts),
		Port:     port,
		Database: defaultDatabase,
		User:     defaultUser,
		Password: defaultPassword,
	}
	logger.Info("container started", "name", name, "host_port", port)
	return srv, nil
}

// hostPort resolves the published host port for a container port.
func hostPort(client *docker.Client, containerID string, containerPort docker.Port) (int, error) {
	container, err := client.InspectContainerWithOptions(docker.InspectContainerOptions{
		ID: containerID,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to inspect container: %w", err)
	}

	bindings := container.NetworkSettings.Ports[containerPort]
	if len(bindings) == 0 {
		return 0, fmt.Errorf("no host port published for %s", containerPort)
	}
	port, err := strconv.Atoi(bindings[0].HostPort)
	if err != nil {
		return 0, fmt.Errorf("invalid host port %q: %w", bindings[0].HostPort, err)
	}
	return port, nil
}

// dockerHost returns the address containers are reachable on.
// DOCKER_MACHINE_IP overrides the local default, matching remote-daemon
// setups.
func dockerHost(opts Options) string {
	if opts.Host != "" {
		return opts.Host
	}
	if host := os.Getenv("DOCKER_MACHINE_IP"); host != "" {
		return host
	}
	return "127.0.0.1"
}
