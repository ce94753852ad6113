package ops

import (
	"context"
	"fmt"
	"time"

	"github.com/kubewright/kubewright/internal/logging"
	"github.com/kubewright/kubewright/internal/nodes"
)

// readyzCommand probes the API server health endpoint with the control
// plane's own admin credentials.
const readyzCommand = "kubectl --kubeconfig /etc/kubernetes/admin.conf get --raw=/readyz"

// waitAPIReady polls a control plane until its API server answers the
// readiness probe. kubeadm can return while the control plane is still
// settling, so joins and restores wait here instead of racing it. Attempts
// are paced by the configured poll interval and bounded by the command
// timeout.
func (e *Env) waitAPIReady(ctx context.Context, addr nodes.Address) error {
	log := logging.Component("ops").With().Str("host", addr.Key()).Logger()
	deadline := time.Now().Add(e.Config.Remote.CommandTimeout)

	for attempt := 1; ; attempt++ {
		out, err := e.execOn(ctx, addr, readyzCommand)
		if err == nil && out == "ok" {
			if attempt > 1 {
				log.Info().Int("attempts", attempt).Msg("api server ready")
			}
			return nil
		}
		if err == nil {
			err = fmt.Errorf("api server reported %q", out)
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("api server on %s not ready: %w", addr.Key(), err)
		}
		log.Debug().Err(err).Int("attempt", attempt).Msg("api server not ready yet")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.Config.Remote.PollInterval):
		}
	}
}
