package upgrade

import (
	"context"
	"testing"

	"github.com/kubewright/kubewright/internal/nodes"
	"github.com/kubewright/kubewright/internal/state"
	"github.com/kubewright/kubewright/internal/testutil"
)

func mustAddr(t *testing.T, entry string) nodes.Address {
	t.Helper()
	addr, err := nodes.Parse(entry, "root")
	if err != nil {
		t.Fatalf("Parse(%q): %v", entry, err)
	}
	return addr
}

func TestCurrentClusterVersionPicksOldest(t *testing.T) {
	fleet := testutil.NewFakeFleet()
	fleet.Respond("kubeletVersion", "v1.32.1\nv1.31.4\nv1.32.0\n")
	addr := mustAddr(t, "10.0.0.1")

	exec, err := fleet.New(addr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer exec.Close()

	got, err := CurrentClusterVersion(context.Background(), exec)
	if err != nil {
		t.Fatalf("CurrentClusterVersion: %v", err)
	}
	if got != "1.31.4" {
		t.Fatalf("got %s, want 1.31.4", got)
	}
}

func TestCurrentClusterVersionRejectsEmptyAnswer(t *testing.T) {
	fleet := testutil.NewFakeFleet()
	addr := mustAddr(t, "10.0.0.1")
	exec, _ := fleet.New(addr)
	defer exec.Close()

	if _, err := CurrentClusterVersion(context.Background(), exec); err == nil {
		t.Fatal("expected error for empty version list")
	}
}

func TestRollbackVersionRoundTrip(t *testing.T) {
	st, err := state.Init(context.Background(), t.TempDir(), "upgrade")
	if err != nil {
		t.Fatalf("state.Init: %v", err)
	}
	defer st.Close()

	addr, err := nodes.Parse("root@10.0.0.1", "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if _, err := RollbackVersion(st, addr); err == nil {
		t.Fatal("expected error before recording")
	}
	if err := RecordRollbackVersion(context.Background(), st, addr, "1.31.4"); err != nil {
		t.Fatalf("RecordRollbackVersion: %v", err)
	}
	got, err := RollbackVersion(st, addr)
	if err != nil {
		t.Fatalf("RollbackVersion: %v", err)
	}
	if got != "1.31.4" {
		t.Fatalf("got %s, want 1.31.4", got)
	}
}

func TestNodeVersionParsesShortOutput(t *testing.T) {
	fleet := testutil.NewFakeFleet()
	fleet.Respond("kubeadm version", "v1.31.4\n")
	addr := mustAddr(t, "10.0.0.1")
	exec, _ := fleet.New(addr)
	defer exec.Close()

	got, err := NodeVersion(context.Background(), exec)
	if err != nil {
		t.Fatalf("NodeVersion: %v", err)
	}
	if got != "1.31.4" {
		t.Fatalf("got %s, want 1.31.4", got)
	}
}

func TestRemoteResolverParsesAndValidates(t *testing.T) {
	fleet := testutil.NewFakeFleet()
	fleet.Respond("resolve-patch 1.32", "1.32.5\n")
	addr := mustAddr(t, "10.0.0.1")

	r := &RemoteResolver{Factory: fleet, Primary: addr, Script: "/tmp/kubewright-x/bundle.sh"}
	got, err := r.LatestPatch(context.Background(), "1.32")
	if err != nil {
		t.Fatalf("LatestPatch: %v", err)
	}
	if got != "1.32.5" {
		t.Fatalf("got %s, want 1.32.5", got)
	}

	if _, err := r.LatestPatch(context.Background(), "1.29"); err == nil {
		t.Fatal("expected error for empty resolver output")
	}
}
