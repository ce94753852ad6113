package ssh

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kubewright/kubewright/internal/config"
	"github.com/kubewright/kubewright/internal/nodes"
)

func writeStub(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ssh-stub")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func newTestExecutor(t *testing.T, stub string) *SystemExecutor {
	t.Helper()
	factory := &SystemFactory{
		Session: SessionConfig{
			Port:          22,
			Auth:          Auth{Method: AuthKey, KeyPath: "/keys/id_ed25519"},
			HostKeyPolicy: config.HostKeyOff,
		},
	}
	executor, err := factory.New(nodes.Address{User: "root", Host: "node-1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sys := executor.(*SystemExecutor)
	sys.SetBinaries(stub, stub)
	return sys
}

func TestSystemExecutorExecPassesTargetAndCommand(t *testing.T) {
	stub := writeStub(t, `echo "$@"`)
	executor := newTestExecutor(t, stub)

	stdout, _, err := executor.Exec(context.Background(), "kubectl get nodes")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}

	out := string(stdout)
	if !strings.Contains(out, "root@node-1") {
		t.Fatalf("target missing from invocation: %q", out)
	}
	if !strings.Contains(out, "kubectl get nodes") {
		t.Fatalf("command missing from invocation: %q", out)
	}
	if !strings.Contains(out, "BatchMode=yes") {
		t.Fatalf("option surface missing: %q", out)
	}
}

func TestSystemExecutorExecWrapsExitCode(t *testing.T) {
	stub := writeStub(t, "echo boom >&2\nexit 7")
	executor := newTestExecutor(t, stub)

	_, stderr, err := executor.Exec(context.Background(), "false-step")
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecError, got %v", err)
	}
	if execErr.ExitCode != 7 {
		t.Fatalf("exit code: got %d", execErr.ExitCode)
	}
	if !strings.Contains(string(stderr), "boom") {
		t.Fatalf("stderr not captured: %q", stderr)
	}
}

func TestSystemFactoryRequiresHost(t *testing.T) {
	factory := &SystemFactory{}
	if _, err := factory.New(nodes.Address{User: "root"}); !errors.Is(err, ErrMissingHost) {
		t.Fatalf("expected ErrMissingHost, got %v", err)
	}
}
