package upgrade

import (
	"context"
	"fmt"
	"strings"

	"github.com/kubewright/kubewright/internal/nodes"
	"github.com/kubewright/kubewright/internal/ssh"
	"github.com/kubewright/kubewright/internal/state"
)

const kubeconfigPath = "/etc/kubernetes/admin.conf"

// CurrentClusterVersion queries the primary control plane for the kubelet
// versions of all nodes and returns the oldest one. Skew is validated
// against the oldest node so an upgrade can never push a straggler more
// than one minor at a time.
func CurrentClusterVersion(ctx context.Context, exec ssh.Executor) (string, error) {
	cmd := fmt.Sprintf(
		"kubectl --kubeconfig %s get nodes -o jsonpath='{range .items[*]}{.status.nodeInfo.kubeletVersion}{\"\\n\"}{end}'",
		kubeconfigPath)
	stdout, stderr, err := exec.Exec(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("query cluster version: %w (stderr: %s)", err, strings.TrimSpace(string(stderr)))
	}

	var oldest string
	for _, line := range strings.Split(string(stdout), "\n") {
		raw := strings.TrimSpace(line)
		if raw == "" {
			continue
		}
		v, err := ParseVersion(raw)
		if err != nil {
			return "", fmt.Errorf("node reported unparseable version %q: %w", raw, err)
		}
		if oldest == "" {
			oldest = v.String()
			continue
		}
		ov, _ := ParseVersion(oldest)
		if v.LessThan(ov) {
			oldest = v.String()
		}
	}
	if oldest == "" {
		return "", fmt.Errorf("cluster reported no node versions")
	}
	return oldest, nil
}

const rollbackKeyPrefix = "rollback-version/"

// RecordRollbackVersion stores the version a node ran before its upgrade so
// a failed upgrade can be reverted to exactly that release.
func RecordRollbackVersion(ctx context.Context, st *state.Store, addr nodes.Address, ver string) error {
	return st.Set(ctx, rollbackKeyPrefix+addr.Key(), ver)
}

// RollbackVersion returns the recorded pre-upgrade version for a node.
func RollbackVersion(st *state.Store, addr nodes.Address) (string, error) {
	v, ok := st.Get(rollbackKeyPrefix + addr.Key())
	if !ok || v == "" {
		return "", fmt.Errorf("no rollback version recorded for %s", addr.Key())
	}
	return v, nil
}

// NodeVersion asks one node which kubeadm release it has installed.
func NodeVersion(ctx context.Context, exec ssh.Executor) (string, error) {
	stdout, _, err := exec.Exec(ctx, "kubeadm version -o short")
	if err != nil {
		return "", fmt.Errorf("query node version: %w", err)
	}
	raw := strings.TrimSpace(string(stdout))
	v, err := ParseVersion(raw)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}
