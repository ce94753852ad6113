package orchestrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"github.com/rs/zerolog"

	"github.com/kubewright/kubewright/internal/logging"
	"github.com/kubewright/kubewright/internal/nodes"
	"github.com/kubewright/kubewright/internal/ssh"
)

// diagnosticCommands are captured from a failed node, best effort.
var diagnosticCommands = map[string]string{
	"kubelet.log":    "journalctl -u kubelet --no-pager -n 200",
	"containerd.log": "journalctl -u containerd --no-pager -n 100",
	"events.txt":     "kubectl --kubeconfig /etc/kubernetes/admin.conf get events -A --sort-by=.lastTimestamp 2>/dev/null | tail -n 100",
	"nodes.txt":      "kubectl --kubeconfig /etc/kubernetes/admin.conf get nodes -o wide 2>/dev/null",
}

// CollectDiagnostics pulls recent service logs and cluster events from a
// node that just failed a step and writes them under dir. It first probes
// the node with an ICMP ping to tell a dead host apart from a failed
// command. Every error here is logged and swallowed; diagnostics never
// change the outcome of an operation.
func CollectDiagnostics(ctx context.Context, factory ssh.Factory, addr nodes.Address, dir string) {
	log := logging.Component("diagnostics").With().Str("host", addr.Key()).Logger()

	nodeDir := filepath.Join(dir, fmt.Sprintf("%s-%s", addr.Host, time.Now().UTC().Format("20060102T150405Z")))
	if err := os.MkdirAll(nodeDir, 0o755); err != nil {
		log.Warn().Err(err).Msg("cannot create diagnostics dir")
		return
	}

	if reachable, rtt := pingHost(ctx, addr.BareHost()); reachable {
		log.Info().Dur("rtt", rtt).Msg("node answers ping, collecting logs")
	} else {
		log.Warn().Msg("node does not answer ping")
		writeDiagnostic(log, nodeDir, "ping.txt", []byte("host unreachable\n"))
	}

	exec, err := factory.New(addr)
	if err != nil {
		log.Warn().Err(err).Msg("cannot connect for diagnostics")
		return
	}
	defer exec.Close()

	for name, cmd := range diagnosticCommands {
		stdout, stderr, err := exec.Exec(ctx, cmd)
		if err != nil {
			log.Debug().Err(err).Str("file", name).Msg("diagnostic command failed")
			if len(stderr) > 0 {
				writeDiagnostic(log, nodeDir, name, stderr)
			}
			continue
		}
		writeDiagnostic(log, nodeDir, name, stdout)
	}
	log.Info().Str("dir", nodeDir).Msg("diagnostics written")
}

func pingHost(ctx context.Context, host string) (bool, time.Duration) {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return false, 0
	}
	pinger.Count = 3
	pinger.Timeout = 5 * time.Second
	pinger.SetPrivileged(os.Geteuid() == 0)
	if err := pinger.RunWithContext(ctx); err != nil {
		return false, 0
	}
	stats := pinger.Statistics()
	return stats.PacketsRecv > 0, stats.AvgRtt
}

func writeDiagnostic(log zerolog.Logger, dir, name string, data []byte) {
	if len(data) == 0 {
		return
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		log.Warn().Err(err).Str("file", name).Msg("cannot write diagnostic")
	}
}
