package ssh

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kubewright/kubewright/internal/logging"
	"github.com/kubewright/kubewright/internal/nodes"
)

// Preflight verifies SSH connectivity to every node before any bundle
// transfer. All nodes are probed in parallel and every failure is
// collected, so the operator sees the full set of unreachable nodes at
// once instead of one per run.
func Preflight(ctx context.Context, factory Factory, lists ...*nodes.List) error {
	logger := logging.Component("preflight")

	var mu sync.Mutex
	failures := make(map[string]error)

	g, ctx := errgroup.WithContext(ctx)
	for _, list := range lists {
		for _, addr := range list.All() {
			addr := addr
			g.Go(func() error {
				err := probe(ctx, factory, addr)
				if err != nil {
					logger.Warn().Err(err).Str("node", addr.String()).Msg("node unreachable")
					mu.Lock()
					failures[addr.String()] = err
					mu.Unlock()
				}
				return nil
			})
		}
	}
	g.Wait()

	if len(failures) > 0 {
		return &ConnectError{Failures: failures}
	}
	return nil
}

func probe(ctx context.Context, factory Factory, addr nodes.Address) error {
	executor, err := factory.New(addr)
	if err != nil {
		return err
	}
	defer executor.Close()

	_, _, err = executor.Exec(ctx, "true")
	return err
}
