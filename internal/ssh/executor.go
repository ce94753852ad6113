// Package ssh provides abstractions for executing commands on remote nodes.
package ssh

import (
	"context"

	"github.com/kubewright/kubewright/internal/nodes"
)

// Executor defines a common interface for running commands on one node.
// Implementations interpret remote exit code 0 as success and anything else
// as failure; semantics of the command itself stay with the caller.
type Executor interface {
	// Exec runs a command and returns its stdout and stderr output.
	Exec(ctx context.Context, cmd string) (stdout, stderr []byte, err error)

	// Upload copies a local file to a remote path.
	Upload(ctx context.Context, localPath, remotePath string) error

	// Download copies a remote file to a local path.
	Download(ctx context.Context, remotePath, localPath string) error

	// Close releases any resources held by the executor.
	Close() error
}

// Factory builds an Executor per node. The session configuration and trust
// handle behind a factory are shared read-only across every node of an
// operation; nothing node-local mutates them after setup.
type Factory interface {
	New(addr nodes.Address) (Executor, error)
}
