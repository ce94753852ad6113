package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/kubewright/kubewright/internal/logging"
	"github.com/kubewright/kubewright/internal/nodes"
	"github.com/kubewright/kubewright/internal/ops"
	"github.com/kubewright/kubewright/internal/orchestrate"
)

// buildEnv assembles the operation environment from the global flags: node
// lists, executor factory and cleanup stack. The returned teardown function
// runs the cleanup stack and must be called exactly once, including on
// error paths, so the ephemeral trust file never outlives the command.
func buildEnv(ctx context.Context, operation string) (*ops.Env, func(), error) {
	if flagControlPlanes == "" {
		return nil, nil, fmt.Errorf("--control-planes is required")
	}

	cps, err := parseNodeFlag(flagControlPlanes)
	if err != nil {
		return nil, nil, fmt.Errorf("--control-planes: %w", err)
	}
	workers := nodes.FromAddresses()
	if flagWorkers != "" {
		workers, err = parseNodeFlag(flagWorkers)
		if err != nil {
			return nil, nil, fmt.Errorf("--workers: %w", err)
		}
	}
	if err := checkDisjoint(cps, workers); err != nil {
		return nil, nil, err
	}

	factory, trust, err := ops.NewFactory(cfg, operation)
	if err != nil {
		return nil, nil, err
	}

	cleanup := &orchestrate.CleanupStack{}
	cleanup.Push("teardown session trust", func(context.Context) error {
		return trust.Teardown()
	})

	env := &ops.Env{
		Config:        cfg,
		Factory:       factory,
		ControlPlanes: cps,
		Workers:       workers,
		Out:           os.Stdout,
		Cleanup:       cleanup,
	}
	// A signal cancels the command context, and remote cleanup (removing
	// staged bundles) still has to run after that. The stack gets a context
	// that survives the cancellation.
	teardown := func() { cleanup.Run(context.WithoutCancel(ctx)) }
	return env, teardown, nil
}

func parseNodeFlag(csv string) (*nodes.List, error) {
	cleaned, n := nodes.Normalize(csv)
	if n == 0 {
		return nil, fmt.Errorf("no node entries")
	}
	list, err := nodes.ParseList(cleaned, cfg.Global.DefaultUser)
	if err != nil {
		return nil, err
	}
	logging.Debug().Int("nodes", n).Str("entries", cleaned).Msg("parsed node list")
	return list, nil
}

// checkDisjoint rejects a node that appears in both roles.
func checkDisjoint(cps, workers *nodes.List) error {
	seen := make(map[string]struct{}, cps.Len())
	for _, addr := range cps.All() {
		seen[addr.Key()] = struct{}{}
	}
	for _, addr := range workers.All() {
		if _, dup := seen[addr.Key()]; dup {
			return fmt.Errorf("node %s is listed as both control plane and worker", addr.Key())
		}
	}
	return nil
}
