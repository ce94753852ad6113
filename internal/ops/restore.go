package ops

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/kubewright/kubewright/internal/nodes"
	"github.com/kubewright/kubewright/internal/orchestrate"
	"github.com/kubewright/kubewright/internal/ssh"
)

// RestoreOptions parameterizes an etcd snapshot restore.
type RestoreOptions struct {
	// SnapshotPath is the local snapshot file to restore from.
	SnapshotPath string
}

// Restore uploads a local etcd snapshot to the primary control plane and
// restores the cluster's etcd data from it.
func Restore(ctx context.Context, env *Env, opts RestoreOptions) error {
	if opts.SnapshotPath == "" {
		return fmt.Errorf("a snapshot path is required")
	}
	if _, err := os.Stat(opts.SnapshotPath); err != nil {
		return fmt.Errorf("snapshot %s: %w", opts.SnapshotPath, err)
	}

	r, err := env.setup(ctx, "restore", false)
	if err != nil {
		return err
	}

	step := orchestrate.Step{
		Name: "restore-etcd",
		Run: func(ctx context.Context, exec ssh.Executor, addr nodes.Address) error {
			script, err := r.scriptFor(addr)
			if err != nil {
				return err
			}
			remoteSnap := path.Dir(script) + "/restore-snapshot.db"
			if err := exec.Upload(ctx, opts.SnapshotPath, remoteSnap); err != nil {
				return fmt.Errorf("upload snapshot: %w", err)
			}
			_, _, err = exec.Exec(ctx, fmt.Sprintf("%s restore %s", script, remoteSnap))
			return err
		},
	}
	opErr := r.driver.RunSequential(ctx, nodes.FromAddresses(env.Primary()), step)
	if opErr == nil {
		opErr = env.waitAPIReady(ctx, env.Primary())
	}
	return env.finish(ctx, r, opErr)
}
