package upgrade

import (
	"context"
	"fmt"
	"strings"

	"github.com/kubewright/kubewright/internal/logging"
	"github.com/kubewright/kubewright/internal/nodes"
	"github.com/kubewright/kubewright/internal/ssh"
)

// PatchResolver maps a minor series like "1.32" to its newest available
// patch release, e.g. "1.32.5".
type PatchResolver interface {
	LatestPatch(ctx context.Context, series string) (string, error)
}

// StaticResolver serves pinned patch versions from a fixed table.
type StaticResolver map[string]string

func (r StaticResolver) LatestPatch(ctx context.Context, series string) (string, error) {
	v, ok := r[series]
	if !ok {
		return "", fmt.Errorf("no patch release pinned for series %s", series)
	}
	return v, nil
}

// RemoteResolver asks the primary control plane's package manager, through
// the distributed bundle, which patch releases it can actually install.
type RemoteResolver struct {
	Factory ssh.Factory
	Primary nodes.Address
	Script  string
}

func (r *RemoteResolver) LatestPatch(ctx context.Context, series string) (string, error) {
	exec, err := r.Factory.New(r.Primary)
	if err != nil {
		return "", fmt.Errorf("connect to %s: %w", r.Primary.Key(), err)
	}
	defer exec.Close()

	cmd := fmt.Sprintf("%s resolve-patch %s", r.Script, series)
	stdout, _, err := exec.Exec(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("resolve patch for %s on %s: %w", series, r.Primary.Key(), err)
	}
	patch := strings.TrimSpace(string(stdout))
	if patch == "" {
		return "", fmt.Errorf("no installable patch release found for series %s", series)
	}
	if _, err := ParseVersion(patch); err != nil {
		return "", err
	}
	logger := logging.Component("upgrade")
	logger.Debug().
		Str("series", series).Str("patch", patch).Msg("resolved patch release")
	return patch, nil
}
