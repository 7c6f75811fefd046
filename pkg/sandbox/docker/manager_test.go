package docker_test

import (
	"testing"

	"github.com/nstogner/agentcore/pkg/sandbox/docker"
)

func TestNewRejectsBadPorts(t *testing.T) {
	if _, err := docker.New(docker.Config{Ports: []string{"not-a-port"}}); err == nil {
		t.Fatal("expected an error for an invalid port spec")
	}
}

func TestNewAcceptsPorts(t *testing.T) {
	mgr, err := docker.New(docker.Config{Ports: []string{"8080:80", "127.0.0.1:9000:9000/udp"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer mgr.Close()
}
