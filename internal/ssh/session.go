package ssh

import (
	"time"

	"github.com/kubewright/kubewright/internal/config"
	"github.com/kubewright/kubewright/internal/logging"
)

// AuthMethod enumerates the mutually exclusive authentication modes.
type AuthMethod int

const (
	// AuthKey authenticates with an explicit private key file.
	AuthKey AuthMethod = iota

	// AuthPassword authenticates with an interactively supplied password.
	AuthPassword

	// AuthPasswordFile authenticates with a password loaded from a file.
	AuthPasswordFile

	// AuthAgent defers authentication to a running ssh-agent.
	AuthAgent
)

// Auth holds the resolved authentication material. Exactly one method is
// active; KeyPath and Password are only meaningful for their methods.
type Auth struct {
	Method   AuthMethod
	KeyPath  string
	Password string
}

// SessionConfig is the session state shared read-only by every node of an
// operation.
type SessionConfig struct {
	Port int

	Auth Auth

	// HostKeyPolicy is one of config.HostKeyStrict, HostKeyAcceptNew,
	// HostKeyOff. A pre-seeded known-hosts file forces strict.
	HostKeyPolicy string

	// PreseededKnownHosts is the operator-supplied known_hosts file, if any.
	PreseededKnownHosts string

	// PersistKnownHostsTo receives the accumulated known_hosts content at
	// teardown when set.
	PersistKnownHostsTo string

	ConnectTimeout time.Duration
	CommandTimeout time.Duration
}

// NewSessionConfig resolves configuration into a SessionConfig: loads the
// password file, auto-discovers a key when nothing was supplied, and pins
// the host key policy.
func NewSessionConfig(sshCfg config.SSHConfig, remoteCfg config.RemoteConfig) (SessionConfig, error) {
	sc := SessionConfig{
		Port:                sshCfg.Port,
		HostKeyPolicy:       sshCfg.HostKeyPolicy,
		PreseededKnownHosts: sshCfg.KnownHostsFile,
		PersistKnownHostsTo: sshCfg.PersistKnownHostsTo,
		ConnectTimeout:      sshCfg.ConnectTimeout,
		CommandTimeout:      remoteCfg.CommandTimeout,
	}

	// A pre-seeded known-hosts file implies the operator already vetted
	// host identity; checking must be strict no matter what was asked for.
	if sc.PreseededKnownHosts != "" {
		sc.HostKeyPolicy = config.HostKeyStrict
	}

	auth, err := resolveAuth(sshCfg)
	if err != nil {
		return SessionConfig{}, err
	}
	sc.Auth = auth

	return sc, nil
}

// resolveAuth picks the single active auth method.
func resolveAuth(sshCfg config.SSHConfig) (Auth, error) {
	logger := logging.Component("ssh")

	if sshCfg.PasswordFile != "" {
		password, err := LoadPasswordFile(sshCfg.PasswordFile)
		if err != nil {
			return Auth{}, err
		}
		return Auth{Method: AuthPasswordFile, Password: password}, nil
	}

	if sshCfg.KeyPath != "" {
		ValidateKeyPermissions(sshCfg.KeyPath)
		return Auth{Method: AuthKey, KeyPath: sshCfg.KeyPath}, nil
	}

	if sshCfg.UseAgent {
		if !AgentAvailable() {
			return Auth{}, ErrSSHAgentUnavailable
		}
		return Auth{Method: AuthAgent}, nil
	}

	if key := AutoDiscoverKey(); key != "" {
		ValidateKeyPermissions(key)
		logger.Debug().Str("key_path", key).Msg("auto-discovered private key")
		return Auth{Method: AuthKey, KeyPath: key}, nil
	}

	if AgentAvailable() {
		logger.Debug().Msg("no key material found, deferring to ssh-agent")
		return Auth{Method: AuthAgent}, nil
	}

	// Last resort: let the ssh binary prompt interactively.
	logger.Debug().Msg("no key material or agent found, deferring to password prompt")
	return Auth{Method: AuthPassword}, nil
}

// BatchMode reports whether non-interactive batch mode can be enabled.
// A password prompt must remain possible when a password is in play, and an
// agent without an explicit key may still need to interact; an explicit key
// re-enables batch mode even alongside an agent.
func (sc SessionConfig) BatchMode() bool {
	switch sc.Auth.Method {
	case AuthPassword, AuthPasswordFile:
		return false
	case AuthAgent:
		return sc.Auth.KeyPath != ""
	default:
		return true
	}
}
