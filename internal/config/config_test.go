package config

import (
	"strings"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsBadPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SSH.HostKeyPolicy = "ask"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "host_key_policy") {
		t.Fatalf("expected host_key_policy error, got %v", err)
	}
}

func TestValidateRejectsBadTransport(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SSH.Transport = "telnet"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SSH.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected port error")
	}
}

func TestStateAndDiagnosticsDirs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Global.DataDir = "/var/lib/kubewright"

	if got := cfg.StateDir(); got != "/var/lib/kubewright/state" {
		t.Fatalf("StateDir: got %q", got)
	}
	if got := cfg.DiagnosticsDir(); got != "/var/lib/kubewright/diagnostics" {
		t.Fatalf("DiagnosticsDir: got %q", got)
	}

	cfg.Diagnostics.Dir = "/tmp/diag"
	if got := cfg.DiagnosticsDir(); got != "/tmp/diag" {
		t.Fatalf("explicit diagnostics dir ignored: %q", got)
	}
}
