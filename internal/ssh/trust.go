package ssh

import (
	"fmt"
	"os"

	"github.com/kubewright/kubewright/internal/logging"
)

// TrustHandle owns the ephemeral known-hosts file for one operation. The
// handle is created during setup, shared read-only across all nodes, and
// torn down on every exit path via the cleanup stack.
type TrustHandle struct {
	// Path is the working known_hosts file, mode 0600.
	Path string

	persistTo string
}

// SetupSessionTrust creates the working known-hosts file for an operation.
// With no pre-seeded file an empty 0600 temporary file is created; a
// pre-seeded file has its contents copied in (the session config has
// already forced strict checking for that case).
func SetupSessionTrust(sc SessionConfig, operationLabel string) (*TrustHandle, error) {
	file, err := os.CreateTemp("", fmt.Sprintf("kubewright-%s-known-hosts-*", operationLabel))
	if err != nil {
		return nil, fmt.Errorf("create known_hosts file: %w", err)
	}
	path := file.Name()
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("create known_hosts file: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("chmod known_hosts file: %w", err)
	}

	if sc.PreseededKnownHosts != "" {
		data, err := os.ReadFile(sc.PreseededKnownHosts)
		if err != nil {
			os.Remove(path)
			return nil, fmt.Errorf("read pre-seeded known_hosts: %w", err)
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			os.Remove(path)
			return nil, fmt.Errorf("seed known_hosts file: %w", err)
		}
	}

	return &TrustHandle{
		Path:      path,
		persistTo: sc.PersistKnownHostsTo,
	}, nil
}

// Teardown persists the accumulated known-hosts content when requested,
// then deletes the ephemeral file. It is safe to call on every exit path.
func (h *TrustHandle) Teardown() error {
	if h == nil || h.Path == "" {
		return nil
	}

	if h.persistTo != "" {
		data, err := os.ReadFile(h.Path)
		if err == nil {
			if writeErr := os.WriteFile(h.persistTo, data, 0o600); writeErr != nil {
				logging.Warn().Err(writeErr).Str("path", h.persistTo).
					Msg("failed to persist known_hosts")
			}
		}
	}

	err := os.Remove(h.Path)
	h.Path = ""
	return err
}
