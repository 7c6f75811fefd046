package docker_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nstogner/agentcore/pkg/sandbox/docker"
)

func TestIntegration_DockerManager_Exec(t *testing.T) {
	// Check if DOCKER_HOST is set. If not, we skip.
	if os.Getenv("DOCKER_HOST") == "" {
		t.Skip("Skipping integration test: DOCKER_HOST not set")
	}

	workspace := t.TempDir()
	if err := os.WriteFile(filepath.Join(workspace, "hello.txt"), []byte("from host"), 0644); err != nil {
		t.Fatal(err)
	}

	mgr, err := docker.New(docker.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	defer mgr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	sessionID := uuid.New().String()
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mgr.Stop(cleanupCtx, sessionID)
	}()

	// First run (should trigger cold start)
	res, err := mgr.Exec(ctx, sessionID, "cat hello.txt")
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if res.Stdout != "from host" {
		t.Errorf("Expected workspace file contents, got %q", res.Stdout)
	}

	// Second run (warm)
	res, err = mgr.Exec(ctx, sessionID, "echo oops >&2; exit 3")
	if err != nil {
		t.Fatalf("Exec 2 failed: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("Expected exit code 3, got %d", res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "oops") {
		t.Errorf("Expected stderr, got %q", res.Stderr)
	}
}
