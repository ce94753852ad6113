package ops

import (
	"context"
	"fmt"

	"github.com/kubewright/kubewright/internal/logging"
	"github.com/kubewright/kubewright/internal/nodes"
	"github.com/kubewright/kubewright/internal/orchestrate"
	"github.com/kubewright/kubewright/internal/ssh"
	"github.com/kubewright/kubewright/internal/upgrade"
)

// DeployOptions parameterizes a cluster deployment.
type DeployOptions struct {
	// Version is the Kubernetes version to install, e.g. "1.32.5".
	Version string

	// PodCIDR is the pod network range passed to kubeadm init.
	PodCIDR string

	// Resume continues the most recent interrupted deploy instead of
	// starting a new one.
	Resume bool
}

const defaultPodCIDR = "10.244.0.0/16"

// State kv keys shared between the initial run and resumes.
const (
	kvJoinCommand    = "join-command"
	kvCertificateKey = "certificate-key"
	kvTargetVersion  = "target-version"
)

// Deploy bootstraps a cluster: primary control plane first, remaining
// control planes one at a time, then all workers in parallel.
func Deploy(ctx context.Context, env *Env, opts DeployOptions) error {
	if _, err := upgrade.ParseVersion(opts.Version); err != nil {
		return err
	}
	if opts.PodCIDR == "" {
		opts.PodCIDR = defaultPodCIDR
	}

	r, err := env.setup(ctx, "deploy", opts.Resume)
	if err != nil {
		return err
	}
	return env.finish(ctx, r, deploySteps(ctx, env, r, opts))
}

func deploySteps(ctx context.Context, env *Env, r *run, opts DeployOptions) error {
	if err := r.store.Set(ctx, kvTargetVersion, opts.Version); err != nil {
		return err
	}

	prepare := orchestrate.Step{
		Name: "prepare",
		Run: func(ctx context.Context, exec ssh.Executor, addr nodes.Address) error {
			script, err := r.scriptFor(addr)
			if err != nil {
				return err
			}
			_, _, err = exec.Exec(ctx, fmt.Sprintf("%s prepare %s", script, opts.Version))
			return err
		},
	}
	if err := r.driver.RunParallel(ctx, env.AllNodes(), prepare); err != nil {
		return err
	}

	primary := nodes.FromAddresses(env.Primary())
	initStep := orchestrate.Step{
		Name: "init",
		Run: func(ctx context.Context, exec ssh.Executor, addr nodes.Address) error {
			script, err := r.scriptFor(addr)
			if err != nil {
				return err
			}
			_, _, err = exec.Exec(ctx, fmt.Sprintf("%s init %s %s", script, opts.Version, opts.PodCIDR))
			return err
		},
	}
	if err := r.driver.RunSequential(ctx, primary, initStep); err != nil {
		return err
	}
	if err := env.waitAPIReady(ctx, env.Primary()); err != nil {
		return err
	}

	joinCmd, certKey, err := ensureJoinCredentials(ctx, env, r)
	if err != nil {
		return err
	}

	if env.ControlPlanes.Len() > 1 {
		secondaries := nodes.FromAddresses(env.ControlPlanes.All()[1:]...)
		joinCP := orchestrate.Step{
			Name: "join-control-plane",
			Run: func(ctx context.Context, exec ssh.Executor, addr nodes.Address) error {
				script, err := r.scriptFor(addr)
				if err != nil {
					return err
				}
				cmd := fmt.Sprintf("%s join %s --control-plane --certificate-key %s", script, joinCmd, certKey)
				_, _, err = exec.Exec(ctx, cmd)
				return err
			},
		}
		if err := r.driver.RunSequential(ctx, secondaries, joinCP); err != nil {
			return err
		}
	}

	if env.Workers.Len() > 0 {
		joinWorker := orchestrate.Step{
			Name: "join-worker",
			Run: func(ctx context.Context, exec ssh.Executor, addr nodes.Address) error {
				script, err := r.scriptFor(addr)
				if err != nil {
					return err
				}
				_, _, err = exec.Exec(ctx, fmt.Sprintf("%s join %s", script, joinCmd))
				return err
			},
		}
		if err := r.driver.RunParallel(ctx, env.Workers, joinWorker); err != nil {
			return err
		}
	}

	return nil
}

// ensureJoinCredentials returns the join command and certificate key minted
// by the primary, reusing the ones recorded in the state store on resume so
// a resumed deploy never re-mints tokens it already handed out.
func ensureJoinCredentials(ctx context.Context, env *Env, r *run) (string, string, error) {
	joinCmd, okJoin := r.store.Get(kvJoinCommand)
	certKey, okCert := r.store.Get(kvCertificateKey)
	if okJoin && okCert {
		return joinCmd, certKey, nil
	}

	script, err := r.scriptFor(env.Primary())
	if err != nil {
		return "", "", err
	}

	joinCmd, err = env.execOn(ctx, env.Primary(), script+" print-join-command")
	if err != nil {
		return "", "", fmt.Errorf("mint join command: %w", err)
	}
	if joinCmd == "" {
		return "", "", fmt.Errorf("primary returned an empty join command")
	}

	certKey, err = env.execOn(ctx, env.Primary(), script+" print-certificate-key")
	if err != nil {
		return "", "", fmt.Errorf("mint certificate key: %w", err)
	}
	if certKey == "" {
		return "", "", fmt.Errorf("primary returned an empty certificate key")
	}

	if err := r.store.Set(ctx, kvJoinCommand, joinCmd); err != nil {
		return "", "", err
	}
	if err := r.store.Set(ctx, kvCertificateKey, certKey); err != nil {
		return "", "", err
	}

	logger := logging.Component("deploy")
	logger.Info().
		Str("join_command", logging.Redact(joinCmd)).
		Msg("join credentials minted")
	return joinCmd, certKey, nil
}
