package ssh

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrMissingHost indicates no host was provided for a connection.
	ErrMissingHost = errors.New("ssh host is required")

	// ErrSSHAgentUnavailable indicates agent auth was requested but no
	// agent socket is reachable.
	ErrSSHAgentUnavailable = errors.New("ssh agent not available")
)

// CredentialError reports unusable authentication material.
type CredentialError struct {
	Path   string
	Reason string
}

func (e *CredentialError) Error() string {
	if e.Path == "" {
		return "credential error: " + e.Reason
	}
	return fmt.Sprintf("credential error for %s: %s", e.Path, e.Reason)
}

// ExecError wraps command failures with exit details.
type ExecError struct {
	Command  string
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Err      error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("ssh command failed (exit=%d): %s", e.ExitCode, e.Command)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// ConnectError aggregates preflight connectivity failures. Every node is
// probed before any bundle transfer so all unreachable nodes surface at
// once.
type ConnectError struct {
	Failures map[string]error
}

func (e *ConnectError) Error() string {
	hosts := make([]string, 0, len(e.Failures))
	for host := range e.Failures {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	return fmt.Sprintf("ssh connectivity check failed for %d node(s): %s",
		len(hosts), strings.Join(hosts, ", "))
}
