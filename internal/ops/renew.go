package ops

import (
	"context"
	"fmt"

	"github.com/kubewright/kubewright/internal/nodes"
	"github.com/kubewright/kubewright/internal/orchestrate"
	"github.com/kubewright/kubewright/internal/ssh"
)

// RenewCerts renews the control-plane certificates on every control plane,
// one node at a time.
func RenewCerts(ctx context.Context, env *Env) error {
	r, err := env.setup(ctx, "renew-certs", false)
	if err != nil {
		return err
	}

	step := orchestrate.Step{
		Name: "renew-certs",
		Run: func(ctx context.Context, exec ssh.Executor, addr nodes.Address) error {
			script, err := r.scriptFor(addr)
			if err != nil {
				return err
			}
			_, _, err = exec.Exec(ctx, fmt.Sprintf("%s renew-certs", script))
			return err
		},
	}
	opErr := r.driver.RunSequential(ctx, env.ControlPlanes, step)
	return env.finish(ctx, r, opErr)
}
