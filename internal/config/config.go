// Package config handles kubewright configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Transport selects how remote commands reach a node.
const (
	TransportSystem = "system" // shell out to the ssh/scp binaries
	TransportNative = "native" // in-process golang.org/x/crypto/ssh
)

// Host key checking policies.
const (
	HostKeyStrict    = "strict"
	HostKeyAcceptNew = "accept-new"
	HostKeyOff       = "off"
)

// Config is the root configuration structure for kubewright. A loaded
// Config is treated as immutable: it is built once by the Loader and passed
// by value into constructors.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// SSH session settings, shared read-only across all nodes of a run.
	SSH SSHConfig `yaml:"ssh" mapstructure:"ssh"`

	// Remote command execution settings
	Remote RemoteConfig `yaml:"remote" mapstructure:"remote"`

	// Diagnostics collection settings
	Diagnostics DiagnosticsConfig `yaml:"diagnostics" mapstructure:"diagnostics"`
}

// GlobalConfig contains global kubewright settings.
type GlobalConfig struct {
	// DataDir is where kubewright stores operation state and diagnostics
	// (default: ~/.local/share/kubewright).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// DefaultUser fills in node entries that carry no user segment.
	DefaultUser string `yaml:"default_user" mapstructure:"default_user"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// SSHConfig contains the session defaults applied to every node.
type SSHConfig struct {
	// Port is the SSH port on every node.
	Port int `yaml:"port" mapstructure:"port"`

	// KeyPath is an explicit private key. Empty means auto-discovery
	// (ed25519, then RSA, then ECDSA) unless a password is configured.
	KeyPath string `yaml:"key_path" mapstructure:"key_path"`

	// PasswordFile holds a password, mode 0600, one line.
	PasswordFile string `yaml:"password_file" mapstructure:"password_file"`

	// UseAgent prefers the running ssh-agent over key files.
	UseAgent bool `yaml:"use_agent" mapstructure:"use_agent"`

	// HostKeyPolicy is strict, accept-new or off.
	HostKeyPolicy string `yaml:"host_key_policy" mapstructure:"host_key_policy"`

	// KnownHostsFile is an operator-provided pre-seeded known_hosts file.
	// Supplying one forces the strict policy.
	KnownHostsFile string `yaml:"known_hosts_file" mapstructure:"known_hosts_file"`

	// PersistKnownHostsTo, when set, receives the accumulated known_hosts
	// content at teardown.
	PersistKnownHostsTo string `yaml:"persist_known_hosts_to" mapstructure:"persist_known_hosts_to"`

	// Transport is system or native.
	Transport string `yaml:"transport" mapstructure:"transport"`

	// ConnectTimeout bounds connection establishment per node.
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
}

// RemoteConfig bounds remote command execution.
type RemoteConfig struct {
	// CommandTimeout bounds a single remote command. Exceeding it fails
	// that node, not the whole run.
	CommandTimeout time.Duration `yaml:"command_timeout" mapstructure:"command_timeout"`

	// PollInterval paces checks of long-running remote steps.
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
}

// DiagnosticsConfig controls failure diagnostics collection.
type DiagnosticsConfig struct {
	// Enabled turns on best-effort log/event collection from failed nodes.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Dir overrides where diagnostics are written
	// (default: <data_dir>/diagnostics).
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".local", "share", "kubewright")

	return &Config{
		Global: GlobalConfig{
			DataDir:     dataDir,
			DefaultUser: "root",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		SSH: SSHConfig{
			Port:           22,
			HostKeyPolicy:  HostKeyAcceptNew,
			Transport:      TransportSystem,
			ConnectTimeout: 15 * time.Second,
		},
		Remote: RemoteConfig{
			CommandTimeout: 15 * time.Minute,
			PollInterval:   5 * time.Second,
		},
		Diagnostics: DiagnosticsConfig{
			Enabled: true,
		},
	}
}

// DiagnosticsDir resolves the directory diagnostics are written to.
func (c *Config) DiagnosticsDir() string {
	if c.Diagnostics.Dir != "" {
		return c.Diagnostics.Dir
	}
	return filepath.Join(c.Global.DataDir, "diagnostics")
}

// StateDir resolves the directory operation state files live in.
func (c *Config) StateDir() string {
	return filepath.Join(c.Global.DataDir, "state")
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Global.DataDir == "" {
		return fmt.Errorf("global.data_dir is required")
	}
	if c.Global.DefaultUser == "" {
		return fmt.Errorf("global.default_user is required")
	}
	if c.SSH.Port <= 0 || c.SSH.Port > 65535 {
		return fmt.Errorf("ssh.port %d is out of range", c.SSH.Port)
	}

	switch c.SSH.HostKeyPolicy {
	case HostKeyStrict, HostKeyAcceptNew, HostKeyOff:
	default:
		return fmt.Errorf("ssh.host_key_policy %q is not one of strict, accept-new, off", c.SSH.HostKeyPolicy)
	}

	switch c.SSH.Transport {
	case TransportSystem, TransportNative:
	default:
		return fmt.Errorf("ssh.transport %q is not one of system, native", c.SSH.Transport)
	}

	if c.Remote.CommandTimeout <= 0 {
		return fmt.Errorf("remote.command_timeout must be positive")
	}
	if c.Remote.PollInterval <= 0 {
		return fmt.Errorf("remote.poll_interval must be positive")
	}

	return nil
}
