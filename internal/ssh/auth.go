package ssh

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/kubewright/kubewright/internal/logging"
)

// Default key locations probed by AutoDiscoverKey, in preference order.
var defaultKeyNames = []string{
	"id_ed25519",
	"id_rsa",
	"id_ecdsa",
}

// LoadPasswordFile reads a password from a file. The file must exist, be
// non-empty, and have mode exactly 0600; anything looser leaks the password
// to other local users.
func LoadPasswordFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", &CredentialError{Path: path, Reason: "password file not found"}
	}

	if perm := info.Mode().Perm(); perm != 0o600 {
		return "", &CredentialError{Path: path, Reason: "password file mode must be 0600"}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", &CredentialError{Path: path, Reason: "password file not readable"}
	}

	password := strings.TrimRight(string(data), "\r\n")
	if password == "" {
		return "", &CredentialError{Path: path, Reason: "password file is empty"}
	}

	return password, nil
}

// ValidateKeyPermissions warns when a private key is group or world
// readable. The ssh binary refuses such keys outright; the native transport
// would accept them, so the warning keeps both transports honest without
// failing the run.
func ValidateKeyPermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.Mode().Perm()&0o077 != 0 {
		logging.Warn().
			Str("key_path", path).
			Str("mode", info.Mode().Perm().String()).
			Msg("private key is readable by other users")
	}
}

// AutoDiscoverKey probes the default key locations and returns the first
// that exists, or "" when none do.
func AutoDiscoverKey() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return autoDiscoverKeyIn(filepath.Join(home, ".ssh"))
}

func autoDiscoverKeyIn(dir string) string {
	for _, name := range defaultKeyNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// PromptPassword reads a password from the terminal without echoing it.
// The system transport lets the ssh binary prompt on its own; the native
// transport calls this once per session before fanning out to nodes.
func PromptPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", &CredentialError{Reason: "password required but stdin is not a terminal"}
	}
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if len(raw) == 0 {
		return "", &CredentialError{Reason: "empty password"}
	}
	return string(raw), nil
}

// AgentAvailable reports whether an ssh-agent socket is reachable.
func AgentAvailable() bool {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return false
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
