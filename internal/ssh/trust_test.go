package ssh

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSetupSessionTrustEphemeral(t *testing.T) {
	handle, err := SetupSessionTrust(SessionConfig{}, "deploy")
	if err != nil {
		t.Fatalf("SetupSessionTrust: %v", err)
	}
	defer handle.Teardown()

	info, err := os.Stat(handle.Path)
	if err != nil {
		t.Fatalf("trust file missing: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("trust file mode: got %v", info.Mode().Perm())
	}
	if info.Size() != 0 {
		t.Fatalf("fresh trust file should be empty, size %d", info.Size())
	}
}

func TestSetupSessionTrustPreseeded(t *testing.T) {
	preseeded := filepath.Join(t.TempDir(), "known_hosts")
	content := "host1 ssh-ed25519 AAAA...\n"
	if err := os.WriteFile(preseeded, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	handle, err := SetupSessionTrust(SessionConfig{PreseededKnownHosts: preseeded}, "deploy")
	if err != nil {
		t.Fatalf("SetupSessionTrust: %v", err)
	}
	defer handle.Teardown()

	data, err := os.ReadFile(handle.Path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != content {
		t.Fatalf("pre-seeded content not copied, got %q", data)
	}
}

func TestTeardownPersistsAndRemoves(t *testing.T) {
	persistTo := filepath.Join(t.TempDir(), "saved_known_hosts")

	handle, err := SetupSessionTrust(SessionConfig{PersistKnownHostsTo: persistTo}, "deploy")
	if err != nil {
		t.Fatalf("SetupSessionTrust: %v", err)
	}
	ephemeral := handle.Path

	content := "host1 ssh-ed25519 AAAA...\n"
	if err := os.WriteFile(ephemeral, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := handle.Teardown(); err != nil {
		t.Fatalf("Teardown: %v", err)
	}

	if _, err := os.Stat(ephemeral); !os.IsNotExist(err) {
		t.Fatalf("ephemeral file should be gone: %v", err)
	}

	info, err := os.Stat(persistTo)
	if err != nil {
		t.Fatalf("persisted file missing: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("persisted file mode: got %v", info.Mode().Perm())
	}
	data, _ := os.ReadFile(persistTo)
	if string(data) != content {
		t.Fatalf("persisted content mismatch: %q", data)
	}
}

func TestTeardownIsIdempotent(t *testing.T) {
	handle, err := SetupSessionTrust(SessionConfig{}, "deploy")
	if err != nil {
		t.Fatalf("SetupSessionTrust: %v", err)
	}
	if err := handle.Teardown(); err != nil {
		t.Fatalf("first Teardown: %v", err)
	}
	if err := handle.Teardown(); err != nil {
		t.Fatalf("second Teardown should be a no-op: %v", err)
	}
}
