package ops

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/kubewright/kubewright/internal/nodes"
	"github.com/kubewright/kubewright/internal/orchestrate"
	"github.com/kubewright/kubewright/internal/ssh"
)

// BackupOptions parameterizes an etcd snapshot backup.
type BackupOptions struct {
	// OutputPath is the local file the snapshot is written to. Empty
	// means a timestamped file in the working directory.
	OutputPath string
}

// Backup snapshots etcd on the primary control plane and downloads the
// snapshot. The remote copy lives in the bundle directory and is removed
// with it.
func Backup(ctx context.Context, env *Env, opts BackupOptions) error {
	if opts.OutputPath == "" {
		opts.OutputPath = fmt.Sprintf("etcd-snapshot-%s.db", time.Now().UTC().Format("20060102T150405Z"))
	}

	r, err := env.setup(ctx, "backup", false)
	if err != nil {
		return err
	}

	step := orchestrate.Step{
		Name: "backup-etcd",
		Run: func(ctx context.Context, exec ssh.Executor, addr nodes.Address) error {
			script, err := r.scriptFor(addr)
			if err != nil {
				return err
			}
			remoteSnap := path.Dir(script) + "/etcd-snapshot.db"
			if _, _, err := exec.Exec(ctx, fmt.Sprintf("%s backup %s", script, remoteSnap)); err != nil {
				return err
			}
			if err := exec.Download(ctx, remoteSnap, opts.OutputPath); err != nil {
				return fmt.Errorf("download snapshot: %w", err)
			}
			return nil
		},
	}
	opErr := r.driver.RunSequential(ctx, nodes.FromAddresses(env.Primary()), step)
	if opErr == nil {
		opErr = r.store.Set(ctx, "snapshot-path", opts.OutputPath)
	}
	return env.finish(ctx, r, opErr)
}
