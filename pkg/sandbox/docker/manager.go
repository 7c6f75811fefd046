package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	"github.com/nstogner/agentcore/pkg/sandbox"
)

const (
	// DefaultImage is used when Config.Image is empty.
	DefaultImage = "ubuntu:24.04"
	// WorkspaceDir is where the host workspace is mounted.
	WorkspaceDir = "/workspace"
	// LabelManager identifies containers managed by this package.
	LabelManager      = "manager"
	LabelManagerValue = "agentcore"
	// LabelSessionID identifies the session a container belongs to.
	LabelSessionID = "session-id"
)

// Config configures the docker manager.
type Config struct {
	Image string
	// Workspace is bind-mounted at WorkspaceDir when set.
	Workspace string
	// Ports are published from the container, in docker run -p syntax.
	Ports  []string
	Logger *slog.Logger
}

// DockerManager implements sandbox.Manager using one container per session.
type DockerManager struct {
	cli    *client.Client
	cfg    Config
	logger *slog.Logger

	exposed  nat.PortSet
	bindings nat.PortMap

	mu    sync.Mutex
	ready map[string]bool
}

// Ensure DockerManager implements sandbox.Manager
var _ sandbox.Manager = (*DockerManager)(nil)

// New creates a new DockerManager.
func New(cfg Config) (*DockerManager, error) {
	exposed, bindings, err := nat.ParsePortSpecs(cfg.Ports)
	if err != nil {
		return nil, fmt.Errorf("invalid sandbox ports: %w", err)
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if cfg.Image == "" {
		cfg.Image = DefaultImage
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &DockerManager{
		cli:      cli,
		cfg:      cfg,
		logger:   cfg.Logger,
		exposed:  exposed,
		bindings: bindings,
		ready:    map[string]bool{},
	}, nil
}

func (m *DockerManager) Close() error {
	return m.cli.Close()
}

func (m *DockerManager) containerName(sessionID string) string {
	return fmt.Sprintf("agentcore-session-%s", sessionID)
}

// Exec runs command with bash in the session's container.
func (m *DockerManager) Exec(ctx context.Context, sessionID string, command string) (*sandbox.Result, error) {
	name, err := m.ensureRunning(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	exec, err := m.cli.ContainerExecCreate(ctx, name, types.ExecConfig{
		Cmd:          []string{"bash", "-lc", command},
		WorkingDir:   WorkspaceDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exec: %w", err)
	}

	attach, err := m.cli.ContainerExecAttach(ctx, exec.ID, types.ExecStartCheck{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach exec: %w", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		done <- err
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-done:
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to read exec output: %w", err)
		}
	}

	inspect, err := m.cli.ContainerExecInspect(ctx, exec.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect exec: %w", err)
	}
	m.logger.Debug("Sandbox command finished", "sessionID", sessionID, "exitCode", inspect.ExitCode)

	return &sandbox.Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: inspect.ExitCode,
	}, nil
}

func (m *DockerManager) Stop(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.ready, sessionID)
	m.mu.Unlock()
	err := m.cli.ContainerRemove(ctx, m.containerName(sessionID), types.ContainerRemoveOptions{
		Force: true,
	})
	if client.IsErrNotFound(err) {
		return nil
	}
	return err
}

// Cleanup removes every container this manager ever created.
func (m *DockerManager) Cleanup(ctx context.Context) error {
	list, err := m.cli.ContainerList(ctx, types.ContainerListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", LabelManager+"="+LabelManagerValue)),
	})
	if err != nil {
		return fmt.Errorf("listing managed containers: %w", err)
	}
	for _, c := range list {
		if err := m.cli.ContainerRemove(ctx, c.ID, types.ContainerRemoveOptions{Force: true}); err != nil {
			m.logger.Warn("Failed to remove container", "id", c.ID, "error", err)
		}
	}
	return nil
}

// ensureRunning checks if the container is running, starts it if not, and
// returns its name.
func (m *DockerManager) ensureRunning(ctx context.Context, sessionID string) (string, error) {
	name := m.containerName(sessionID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ready[sessionID] {
		return name, nil
	}

	c, err := m.cli.ContainerInspect(ctx, name)
	if err != nil {
		if !client.IsErrNotFound(err) {
			return "", fmt.Errorf("failed to inspect container: %w", err)
		}
		if err := m.create(ctx, sessionID); err != nil {
			return "", err
		}
	} else if c.State.Running {
		m.ready[sessionID] = true
		return name, nil
	}

	if err := m.cli.ContainerStart(ctx, name, types.ContainerStartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container: %w", err)
	}
	m.logger.Info("Sandbox started", "sessionID", sessionID, "image", m.cfg.Image)
	m.ready[sessionID] = true
	return name, nil
}

func (m *DockerManager) create(ctx context.Context, sessionID string) error {
	if _, _, err := m.cli.ImageInspectWithRaw(ctx, m.cfg.Image); err != nil {
		m.logger.Info("Pulling sandbox image", "image", m.cfg.Image)
		rc, err := m.cli.ImagePull(ctx, m.cfg.Image, types.ImagePullOptions{})
		if err != nil {
			return fmt.Errorf("sandbox image '%s' not available: %w", m.cfg.Image, err)
		}
		_, _ = io.Copy(io.Discard, rc)
		rc.Close()
	}

	cfg := &container.Config{
		Image:      m.cfg.Image,
		Cmd:        []string{"sleep", "infinity"},
		WorkingDir: WorkspaceDir,
		Labels: map[string]string{
			LabelManager:   LabelManagerValue,
			LabelSessionID: sessionID,
		},
	}
	hostCfg := &container.HostConfig{}
	if len(m.exposed) > 0 {
		cfg.ExposedPorts = m.exposed
		hostCfg.PortBindings = m.bindings
	}
	if m.cfg.Workspace != "" {
		abs, err := filepath.Abs(m.cfg.Workspace)
		if err != nil {
			return err
		}
		hostCfg.Binds = []string{abs + ":" + WorkspaceDir}
	}

	if _, err := m.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, m.containerName(sessionID)); err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	return nil
}
