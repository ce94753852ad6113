package ops

import (
	"context"
	"fmt"

	"github.com/kubewright/kubewright/internal/nodes"
	"github.com/kubewright/kubewright/internal/orchestrate"
	"github.com/kubewright/kubewright/internal/ssh"
)

// Teardown resets every node: workers in parallel first, then control
// planes in reverse list order so the primary goes last.
func Teardown(ctx context.Context, env *Env) error {
	r, err := env.setup(ctx, "teardown", false)
	if err != nil {
		return err
	}
	return env.finish(ctx, r, teardownSteps(ctx, env, r))
}

func teardownSteps(ctx context.Context, env *Env, r *run) error {
	reset := orchestrate.Step{
		Name: "reset",
		Run: func(ctx context.Context, exec ssh.Executor, addr nodes.Address) error {
			script, err := r.scriptFor(addr)
			if err != nil {
				return err
			}
			_, _, err = exec.Exec(ctx, fmt.Sprintf("%s reset", script))
			return err
		},
	}

	if env.Workers.Len() > 0 {
		if err := r.driver.RunParallel(ctx, env.Workers, reset); err != nil {
			return err
		}
	}
	return r.driver.RunSequential(ctx, env.ControlPlanes.Reversed(), reset)
}
