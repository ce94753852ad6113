package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	xssh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/kubewright/kubewright/internal/config"
	"github.com/kubewright/kubewright/internal/logging"
	"github.com/kubewright/kubewright/internal/nodes"
)

// ErrHostKeyRejected indicates a host key that failed verification.
var ErrHostKeyRejected = errors.New("host key rejected")

// NativeExecutor runs remote commands in-process using
// golang.org/x/crypto/ssh, with file transfer over sftp. It honors the same
// session configuration as the system transport.
type NativeExecutor struct {
	addr           nodes.Address
	session        SessionConfig
	knownHostsPath string
	logger         zerolog.Logger

	mu     sync.Mutex
	client *xssh.Client
}

// NativeFactory builds NativeExecutors sharing one session config and one
// known-hosts trust file.
type NativeFactory struct {
	Session SessionConfig
	Trust   *TrustHandle
}

// New returns an executor for the given node. The connection is established
// lazily on first use.
func (f *NativeFactory) New(addr nodes.Address) (Executor, error) {
	if addr.Host == "" {
		return nil, ErrMissingHost
	}

	knownHostsPath := ""
	if f.Trust != nil {
		knownHostsPath = f.Trust.Path
	}

	return &NativeExecutor{
		addr:           addr,
		session:        f.Session,
		knownHostsPath: knownHostsPath,
		logger:         logging.WithHost(addr.Host),
	}, nil
}

// Exec runs a command on the node and returns its stdout and stderr output.
func (e *NativeExecutor) Exec(ctx context.Context, cmd string) ([]byte, []byte, error) {
	if e.session.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.session.CommandTimeout)
		defer cancel()
	}

	client, err := e.getClient()
	if err != nil {
		return nil, nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		return nil, nil, fmt.Errorf("open ssh session: %w", err)
	}
	defer session.Close()

	var stdoutBuf bytes.Buffer
	var stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	e.logger.Debug().Str("cmd", logging.Redact(cmd)).Msg("running remote command")

	if err := session.Start(cmd); err != nil {
		return nil, nil, fmt.Errorf("start remote command: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		stdout := stdoutBuf.Bytes()
		stderr := stderrBuf.Bytes()
		if err != nil {
			return stdout, stderr, wrapWaitError(err, cmd, stdout, stderr)
		}
		return stdout, stderr, nil
	case <-ctx.Done():
		session.Signal(xssh.SIGKILL)
		return stdoutBuf.Bytes(), stderrBuf.Bytes(), ctx.Err()
	}
}

// Upload copies a local file to a remote path via sftp, preserving the
// local file mode.
func (e *NativeExecutor) Upload(ctx context.Context, localPath, remotePath string) error {
	client, err := e.sftpClient()
	if err != nil {
		return err
	}
	defer client.Close()

	local, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open local file: %w", err)
	}
	defer local.Close()

	info, err := local.Stat()
	if err != nil {
		return fmt.Errorf("stat local file: %w", err)
	}

	if dir := filepath.Dir(remotePath); dir != "." && dir != "/" {
		if err := client.MkdirAll(dir); err != nil {
			return fmt.Errorf("create remote directory: %w", err)
		}
	}

	remote, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create remote file: %w", err)
	}
	defer remote.Close()

	if _, err := io.Copy(remote, local); err != nil {
		return fmt.Errorf("copy to remote: %w", err)
	}

	return client.Chmod(remotePath, info.Mode().Perm())
}

// Download copies a remote file to a local path via sftp.
func (e *NativeExecutor) Download(ctx context.Context, remotePath, localPath string) error {
	client, err := e.sftpClient()
	if err != nil {
		return err
	}
	defer client.Close()

	remote, err := client.Open(remotePath)
	if err != nil {
		return fmt.Errorf("open remote file: %w", err)
	}
	defer remote.Close()

	local, err := os.OpenFile(localPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create local file: %w", err)
	}
	defer local.Close()

	if _, err := io.Copy(local, remote); err != nil {
		return fmt.Errorf("copy from remote: %w", err)
	}
	return nil
}

// Close releases the underlying connection.
func (e *NativeExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}

func (e *NativeExecutor) getClient() (*xssh.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client != nil {
		return e.client, nil
	}

	clientConfig, err := e.buildClientConfig()
	if err != nil {
		return nil, err
	}

	target := net.JoinHostPort(e.addr.BareHost(), fmt.Sprintf("%d", e.session.Port))
	client, err := xssh.Dial("tcp", target, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", target, err)
	}

	e.client = client
	return client, nil
}

func (e *NativeExecutor) sftpClient() (*sftp.Client, error) {
	client, err := e.getClient()
	if err != nil {
		return nil, err
	}
	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return nil, fmt.Errorf("open sftp session: %w", err)
	}
	return sftpClient, nil
}

func (e *NativeExecutor) buildClientConfig() (*xssh.ClientConfig, error) {
	authMethods, err := buildAuthMethods(e.session.Auth)
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := buildHostKeyCallback(e.session.HostKeyPolicy, e.knownHostsPath, e.logger)
	if err != nil {
		return nil, err
	}

	return &xssh.ClientConfig{
		User:            e.addr.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         e.session.ConnectTimeout,
	}, nil
}

func buildAuthMethods(auth Auth) ([]xssh.AuthMethod, error) {
	switch auth.Method {
	case AuthKey:
		keyData, err := os.ReadFile(auth.KeyPath)
		if err != nil {
			return nil, &CredentialError{Path: auth.KeyPath, Reason: "private key not readable"}
		}
		signer, err := xssh.ParsePrivateKey(keyData)
		if err != nil {
			return nil, &CredentialError{Path: auth.KeyPath, Reason: "private key not parseable: " + err.Error()}
		}
		return []xssh.AuthMethod{xssh.PublicKeys(signer)}, nil

	case AuthPassword, AuthPasswordFile:
		if auth.Password == "" {
			return nil, &CredentialError{Reason: "native transport requires a password file or key"}
		}
		return []xssh.AuthMethod{xssh.Password(auth.Password)}, nil

	case AuthAgent:
		sock := os.Getenv("SSH_AUTH_SOCK")
		if sock == "" {
			return nil, ErrSSHAgentUnavailable
		}
		conn, err := net.Dial("unix", sock)
		if err != nil {
			return nil, ErrSSHAgentUnavailable
		}
		agentClient := agent.NewClient(conn)
		return []xssh.AuthMethod{xssh.PublicKeysCallback(agentClient.Signers)}, nil

	default:
		return nil, &CredentialError{Reason: "no authentication method configured"}
	}
}

// buildHostKeyCallback maps the host key policy onto a callback. accept-new
// records unknown hosts into the trust file; changed keys always fail.
func buildHostKeyCallback(policy, knownHostsPath string, logger zerolog.Logger) (xssh.HostKeyCallback, error) {
	if policy == config.HostKeyOff {
		return xssh.InsecureIgnoreHostKey(), nil
	}

	if knownHostsPath == "" {
		return nil, fmt.Errorf("known_hosts path is required for host key policy %q", policy)
	}

	baseCallback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts: %w", err)
	}

	if policy == config.HostKeyStrict {
		return baseCallback, nil
	}

	return func(hostname string, remote net.Addr, key xssh.PublicKey) error {
		err := baseCallback(hostname, remote, key)
		if err == nil {
			return nil
		}

		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) && len(keyErr.Want) == 0 {
			if addErr := appendKnownHostsEntry(knownHostsPath, hostname, remote, key); addErr != nil {
				return addErr
			}
			logger.Info().
				Str("host", hostname).
				Str("fingerprint", xssh.FingerprintSHA256(key)).
				Msg("added host key to known_hosts")
			return nil
		}

		// A mismatching key is never accepted automatically.
		return fmt.Errorf("%w: %s", ErrHostKeyRejected, err)
	}, nil
}

func appendKnownHostsEntry(path, hostname string, remote net.Addr, key xssh.PublicKey) error {
	addresses := []string{hostname}
	if remote != nil && remote.String() != hostname {
		addresses = append(addresses, remote.String())
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open known_hosts file: %w", err)
	}
	defer file.Close()

	if _, err := fmt.Fprintln(file, knownhosts.Line(addresses, key)); err != nil {
		return fmt.Errorf("write known_hosts entry: %w", err)
	}
	return nil
}

func wrapWaitError(err error, cmd string, stdout, stderr []byte) error {
	var exitErr *xssh.ExitError
	if errors.As(err, &exitErr) {
		return &ExecError{
			Command:  cmd,
			ExitCode: exitErr.ExitStatus(),
			Stdout:   stdout,
			Stderr:   stderr,
			Err:      err,
		}
	}
	return err
}
