package ssh

import (
	"fmt"
	"math"

	"github.com/kubewright/kubewright/internal/config"
	"github.com/kubewright/kubewright/internal/nodes"
)

// BuildSSHArgs assembles the deterministic option set for an ssh
// invocation. knownHostsPath is the trust file for this operation; empty
// leaves the client default in place.
func BuildSSHArgs(sc SessionConfig, knownHostsPath string, addr nodes.Address) ([]string, string) {
	args := buildCommonArgs(sc, knownHostsPath)
	if sc.Port > 0 {
		args = append(args, "-p", fmt.Sprintf("%d", sc.Port))
	}
	return args, addr.String()
}

// BuildSCPArgs assembles the same option surface for scp, which spells the
// port flag -P instead of -p.
func BuildSCPArgs(sc SessionConfig, knownHostsPath string) []string {
	args := buildCommonArgs(sc, knownHostsPath)
	if sc.Port > 0 {
		args = append(args, "-P", fmt.Sprintf("%d", sc.Port))
	}
	return args
}

// SCPRemote renders the remote side of an scp transfer. The bracketed IPv6
// form is preserved verbatim, which is exactly what scp requires.
func SCPRemote(addr nodes.Address, path string) string {
	return addr.String() + ":" + path
}

func buildCommonArgs(sc SessionConfig, knownHostsPath string) []string {
	args := []string{}

	if sc.BatchMode() {
		args = append(args, "-o", "BatchMode=yes")
	} else {
		args = append(args, "-o", "BatchMode=no")
	}

	switch sc.HostKeyPolicy {
	case config.HostKeyStrict:
		args = append(args, "-o", "StrictHostKeyChecking=yes")
	case config.HostKeyAcceptNew:
		args = append(args, "-o", "StrictHostKeyChecking=accept-new")
	case config.HostKeyOff:
		args = append(args, "-o", "StrictHostKeyChecking=no")
	}

	if knownHostsPath != "" {
		args = append(args, "-o", "UserKnownHostsFile="+knownHostsPath)
	}

	if sc.ConnectTimeout > 0 {
		seconds := int(math.Ceil(sc.ConnectTimeout.Seconds()))
		args = append(args, "-o", fmt.Sprintf("ConnectTimeout=%d", seconds))
	}

	if sc.Auth.KeyPath != "" {
		args = append(args, "-i", sc.Auth.KeyPath, "-o", "IdentitiesOnly=yes")
	}

	return args
}
