package ssh

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kubewright/kubewright/internal/logging"
	"github.com/kubewright/kubewright/internal/nodes"
)

// SystemExecutor runs remote commands through the system ssh and scp
// binaries. The ssh client is treated as a black-box transport: the
// executor assembles a known option surface, runs the binary, and
// interprets the exit code.
type SystemExecutor struct {
	addr           nodes.Address
	session        SessionConfig
	knownHostsPath string
	sshBinary      string
	scpBinary      string
	logger         zerolog.Logger
}

// SystemFactory builds SystemExecutors sharing one session config and one
// known-hosts trust file.
type SystemFactory struct {
	Session SessionConfig
	Trust   *TrustHandle
}

// New returns an executor for the given node.
func (f *SystemFactory) New(addr nodes.Address) (Executor, error) {
	if addr.Host == "" {
		return nil, ErrMissingHost
	}

	knownHostsPath := ""
	if f.Trust != nil {
		knownHostsPath = f.Trust.Path
	}

	return &SystemExecutor{
		addr:           addr,
		session:        f.Session,
		knownHostsPath: knownHostsPath,
		sshBinary:      "ssh",
		scpBinary:      "scp",
		logger:         logging.WithHost(addr.Host),
	}, nil
}

// SetBinaries overrides the ssh and scp binary paths.
func (e *SystemExecutor) SetBinaries(sshPath, scpPath string) {
	if sshPath != "" {
		e.sshBinary = sshPath
	}
	if scpPath != "" {
		e.scpBinary = scpPath
	}
}

// Exec runs a command on the node and returns its stdout and stderr output.
func (e *SystemExecutor) Exec(ctx context.Context, cmd string) ([]byte, []byte, error) {
	args, target := BuildSSHArgs(e.session, e.knownHostsPath, e.addr)
	args = append(args, target, cmd)
	return e.run(ctx, e.sshBinary, args, cmd)
}

// Upload copies a local file to a remote path via scp.
func (e *SystemExecutor) Upload(ctx context.Context, localPath, remotePath string) error {
	args := BuildSCPArgs(e.session, e.knownHostsPath)
	args = append(args, localPath, SCPRemote(e.addr, remotePath))
	_, _, err := e.run(ctx, e.scpBinary, args, "scp upload "+remotePath)
	return err
}

// Download copies a remote file to a local path via scp.
func (e *SystemExecutor) Download(ctx context.Context, remotePath, localPath string) error {
	args := BuildSCPArgs(e.session, e.knownHostsPath)
	args = append(args, SCPRemote(e.addr, remotePath), localPath)
	_, _, err := e.run(ctx, e.scpBinary, args, "scp download "+remotePath)
	return err
}

// Close releases any resources held by the executor.
func (e *SystemExecutor) Close() error {
	return nil
}

func (e *SystemExecutor) run(ctx context.Context, binary string, args []string, label string) ([]byte, []byte, error) {
	if e.session.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.session.CommandTimeout)
		defer cancel()
	}

	e.logger.Debug().
		Str("binary", binary).
		Str("args", strings.Join(logging.RedactArgs(args), " ")).
		Msg("running remote command")

	command := exec.CommandContext(ctx, binary, args...)

	var stdoutBuf bytes.Buffer
	var stderrBuf bytes.Buffer
	command.Stdout = &stdoutBuf
	command.Stderr = &stderrBuf

	err := command.Run()
	stdout := stdoutBuf.Bytes()
	stderr := stderrBuf.Bytes()
	if err != nil {
		return stdout, stderr, wrapExecError(err, label, stdout, stderr)
	}
	return stdout, stderr, nil
}

func wrapExecError(err error, cmd string, stdout, stderr []byte) error {
	if exitErr, ok := err.(*exec.ExitError); ok {
		return &ExecError{
			Command:  cmd,
			ExitCode: exitErr.ExitCode(),
			Stdout:   stdout,
			Stderr:   stderr,
			Err:      err,
		}
	}
	return err
}
