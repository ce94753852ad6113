package ops

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/kubewright/kubewright/internal/logging"
	"github.com/kubewright/kubewright/internal/nodes"
	"github.com/kubewright/kubewright/internal/orchestrate"
	"github.com/kubewright/kubewright/internal/ssh"
	"github.com/kubewright/kubewright/internal/upgrade"
)

// UpgradeOptions parameterizes a cluster upgrade.
type UpgradeOptions struct {
	// Target is the Kubernetes version to upgrade to.
	Target string

	// AutoStep allows targets more than one minor ahead by stepping
	// through the latest patch release of every skipped minor.
	AutoStep bool

	// Resume continues the most recent interrupted upgrade.
	Resume bool
}

const (
	kvUpgradePlan     = "upgrade-plan"
	kvAchievedVersion = "achieved-version"
)

// Upgrade walks the cluster to the target version: control planes one at a
// time (primary first), then all workers in parallel, drain before and
// uncordon after each node. A node whose upgrade fails is reverted to its
// recorded pre-upgrade version and the operation stops.
func Upgrade(ctx context.Context, env *Env, opts UpgradeOptions) error {
	if _, err := upgrade.ParseVersion(opts.Target); err != nil {
		return err
	}

	r, err := env.setup(ctx, "upgrade", opts.Resume)
	if err != nil {
		return err
	}
	return env.finish(ctx, r, upgradeSteps(ctx, env, r, opts))
}

func upgradeSteps(ctx context.Context, env *Env, r *run, opts UpgradeOptions) error {
	plan, err := upgradePlan(ctx, env, r, opts)
	if err != nil {
		return err
	}
	logger := logging.Component("upgrade")
	logger.Info().Strs("plan", plan).Msg("upgrade path planned")

	for _, version := range plan {
		if err := upgradeControlPlanes(ctx, env, r, version); err != nil {
			return err
		}
		if err := upgradeWorkers(ctx, env, r, version); err != nil {
			return err
		}
	}

	return r.store.Set(ctx, kvAchievedVersion, opts.Target)
}

// upgradePlan computes the version path, or restores the one a resumed
// operation committed to. Replanning on resume could pick different
// intermediate patches and orphan the recorded step labels.
func upgradePlan(ctx context.Context, env *Env, r *run, opts UpgradeOptions) ([]string, error) {
	if saved, ok := r.store.Get(kvUpgradePlan); ok && saved != "" {
		return strings.Split(saved, ","), nil
	}

	script, err := r.scriptFor(env.Primary())
	if err != nil {
		return nil, err
	}

	exec, err := env.Factory.New(env.Primary())
	if err != nil {
		return nil, err
	}
	current, err := upgrade.CurrentClusterVersion(ctx, exec)
	exec.Close()
	if err != nil {
		return nil, err
	}

	resolver := &upgrade.RemoteResolver{Factory: env.Factory, Primary: env.Primary(), Script: script}
	plan, err := upgrade.PlanSteps(ctx, resolver, current, opts.Target, opts.AutoStep)
	if err != nil {
		return nil, err
	}
	if err := r.store.Set(ctx, kvUpgradePlan, strings.Join(plan, ",")); err != nil {
		return nil, err
	}
	return plan, nil
}

func upgradeControlPlanes(ctx context.Context, env *Env, r *run, version string) error {
	primaryKey := env.Primary().Key()
	step := orchestrate.Step{
		Name: "upgrade-" + version,
		Pre: func(ctx context.Context, exec ssh.Executor, addr nodes.Address) error {
			return drainNode(ctx, env, r, exec, addr, "")
		},
		Run: func(ctx context.Context, exec ssh.Executor, addr nodes.Address) error {
			flag := ""
			if addr.Key() == primaryKey {
				flag = "--first-control-plane "
			}
			return upgradeNode(ctx, env, r, exec, addr, version, flag, "")
		},
		Post: func(ctx context.Context, exec ssh.Executor, addr nodes.Address, runErr error) error {
			if runErr != nil {
				return nil
			}
			return uncordonNode(ctx, env, r, exec, addr, "")
		},
	}
	return r.driver.RunSequential(ctx, env.ControlPlanes, step)
}

// upgradeWorkers drains and upgrades all workers in parallel; a failed
// worker does not hold the others back. Workers carry no admin credentials,
// so each gets a copy of the primary's kubeconfig next to its bundle for
// the duration of its own drain/uncordon, removed again in the post-hook.
func upgradeWorkers(ctx context.Context, env *Env, r *run, version string) error {
	if env.Workers.Len() == 0 {
		return nil
	}

	localConf, err := fetchAdminConf(ctx, env)
	if err != nil {
		return err
	}
	defer os.Remove(localConf)

	step := orchestrate.Step{
		Name: "upgrade-" + version,
		Pre: func(ctx context.Context, exec ssh.Executor, addr nodes.Address) error {
			script, err := r.scriptFor(addr)
			if err != nil {
				return err
			}
			remoteConf := path.Dir(script) + "/admin.conf"
			if err := exec.Upload(ctx, localConf, remoteConf); err != nil {
				return fmt.Errorf("stage admin credentials: %w", err)
			}
			if _, _, err := exec.Exec(ctx, fmt.Sprintf("chmod 0600 %s", remoteConf)); err != nil {
				return fmt.Errorf("restrict admin credentials: %w", err)
			}
			return drainNode(ctx, env, r, exec, addr, remoteConf)
		},
		Run: func(ctx context.Context, exec ssh.Executor, addr nodes.Address) error {
			script, err := r.scriptFor(addr)
			if err != nil {
				return err
			}
			return upgradeNode(ctx, env, r, exec, addr, version, "", path.Dir(script)+"/admin.conf")
		},
		Post: func(ctx context.Context, exec ssh.Executor, addr nodes.Address, runErr error) error {
			script, err := r.scriptFor(addr)
			if err != nil {
				return err
			}
			remoteConf := path.Dir(script) + "/admin.conf"
			var uncordonErr error
			if runErr == nil {
				uncordonErr = uncordonNode(ctx, env, r, exec, addr, remoteConf)
			}
			if _, _, err := exec.Exec(ctx, fmt.Sprintf("rm -f %s", remoteConf)); err != nil {
				logger := logging.Component("upgrade")
				logger.Warn().Str("host", addr.Key()).Err(err).
					Msg("cannot remove staged admin credentials")
			}
			return uncordonErr
		},
	}
	return r.driver.RunParallel(ctx, env.Workers, step)
}

// upgradeNode installs the new version and runs kubeadm upgrade. On failure
// it reverts the node to its recorded pre-upgrade version, uncordons it,
// and reports the step as rolled back.
func upgradeNode(ctx context.Context, env *Env, r *run, exec ssh.Executor, addr nodes.Address, version, firstFlag, kubeconfig string) error {
	script, err := r.scriptFor(addr)
	if err != nil {
		return err
	}

	_, _, runErr := exec.Exec(ctx, fmt.Sprintf("%s upgrade %s%s", script, firstFlag, version))
	if runErr == nil {
		return nil
	}

	log := logging.Component("upgrade").With().Str("host", addr.Key()).Logger()
	prev, err := upgrade.RollbackVersion(r.store, addr)
	if err != nil {
		log.Error().Err(err).Msg("upgrade failed and no rollback version is recorded")
		return runErr
	}

	log.Warn().Str("to", prev).Err(runErr).Msg("upgrade failed, rolling back")
	if _, _, err := exec.Exec(ctx, fmt.Sprintf("%s rollback %s", script, prev)); err != nil {
		log.Error().Err(err).Msg("rollback failed, node left cordoned")
		return runErr
	}
	if err := uncordonNode(ctx, env, r, exec, addr, kubeconfig); err != nil {
		log.Error().Err(err).Msg("uncordon after rollback failed")
		return runErr
	}
	return &orchestrate.RollbackError{To: prev, Err: runErr}
}

func drainNode(ctx context.Context, env *Env, r *run, exec ssh.Executor, addr nodes.Address, kubeconfig string) error {
	// Record the running version first so a failed upgrade knows what to
	// roll back to even if draining itself is interrupted.
	current, err := upgrade.NodeVersion(ctx, exec)
	if err != nil {
		return err
	}
	if err := upgrade.RecordRollbackVersion(ctx, r.store, addr, current); err != nil {
		return err
	}

	name, err := env.nodeName(ctx, addr)
	if err != nil {
		return err
	}
	script, err := r.scriptFor(addr)
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf("%s%s drain %s", kubeconfigPrefix(kubeconfig), script, name)
	if _, _, err := exec.Exec(ctx, cmd); err != nil {
		return fmt.Errorf("drain %s: %w", name, err)
	}
	return nil
}

func uncordonNode(ctx context.Context, env *Env, r *run, exec ssh.Executor, addr nodes.Address, kubeconfig string) error {
	name, err := env.nodeName(ctx, addr)
	if err != nil {
		return err
	}
	script, err := r.scriptFor(addr)
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf("%s%s uncordon %s", kubeconfigPrefix(kubeconfig), script, name)
	if _, _, err := exec.Exec(ctx, cmd); err != nil {
		return fmt.Errorf("uncordon %s: %w", name, err)
	}
	return nil
}

func kubeconfigPrefix(kubeconfig string) string {
	if kubeconfig == "" {
		return ""
	}
	return fmt.Sprintf("KW_KUBECONFIG=%s ", kubeconfig)
}

// fetchAdminConf downloads the primary's admin kubeconfig to a local temp
// file so it can be staged onto workers.
func fetchAdminConf(ctx context.Context, env *Env) (string, error) {
	tmp, err := os.CreateTemp("", "kubewright-admin-*.conf")
	if err != nil {
		return "", err
	}
	tmp.Close()

	exec, err := env.Factory.New(env.Primary())
	if err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	defer exec.Close()

	if err := exec.Download(ctx, "/etc/kubernetes/admin.conf", tmp.Name()); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("fetch admin credentials from %s: %w", env.Primary().Key(), err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}
