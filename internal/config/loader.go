package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading with Viper.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v: viper.New(),
	}
}

// SetConfigFile sets an explicit config file path.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// Viper exposes the underlying viper instance so the CLI can bind flags.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration with proper precedence:
// defaults < config file < env vars < CLI flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	l.setupViper(cfg)

	if err := l.loadConfigFile(); err != nil {
		// Config file is optional, only error if explicitly specified
		if l.configFile != "" {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	expandPaths(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// setupViper configures Viper with defaults and environment bindings.
func (l *Loader) setupViper(cfg *Config) {
	v := l.v

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		v.AddConfigPath(filepath.Join(xdgConfig, "kubewright"))
	}

	homeDir, _ := os.UserHomeDir()
	if homeDir != "" {
		v.AddConfigPath(filepath.Join(homeDir, ".config", "kubewright"))
	}

	v.AddConfigPath(".")

	v.SetEnvPrefix("KUBEWRIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	l.setDefaults(cfg)
}

// setDefaults seeds viper with the DefaultConfig values so partial config
// files merge cleanly.
func (l *Loader) setDefaults(cfg *Config) {
	v := l.v

	v.SetDefault("global.data_dir", cfg.Global.DataDir)
	v.SetDefault("global.default_user", cfg.Global.DefaultUser)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.enable_caller", cfg.Logging.EnableCaller)

	v.SetDefault("ssh.port", cfg.SSH.Port)
	v.SetDefault("ssh.key_path", cfg.SSH.KeyPath)
	v.SetDefault("ssh.password_file", cfg.SSH.PasswordFile)
	v.SetDefault("ssh.use_agent", cfg.SSH.UseAgent)
	v.SetDefault("ssh.host_key_policy", cfg.SSH.HostKeyPolicy)
	v.SetDefault("ssh.known_hosts_file", cfg.SSH.KnownHostsFile)
	v.SetDefault("ssh.persist_known_hosts_to", cfg.SSH.PersistKnownHostsTo)
	v.SetDefault("ssh.transport", cfg.SSH.Transport)
	v.SetDefault("ssh.connect_timeout", cfg.SSH.ConnectTimeout)

	v.SetDefault("remote.command_timeout", cfg.Remote.CommandTimeout)
	v.SetDefault("remote.poll_interval", cfg.Remote.PollInterval)

	v.SetDefault("diagnostics.enabled", cfg.Diagnostics.Enabled)
	v.SetDefault("diagnostics.dir", cfg.Diagnostics.Dir)
}

func (l *Loader) loadConfigFile() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	}
	return l.v.ReadInConfig()
}

// expandTilde expands ~ to the user's home directory.
func expandTilde(path string) string {
	if path == "" {
		return path
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// expandPaths expands ~ in all path-related config fields.
func expandPaths(cfg *Config) {
	cfg.Global.DataDir = expandTilde(cfg.Global.DataDir)
	cfg.SSH.KeyPath = expandTilde(cfg.SSH.KeyPath)
	cfg.SSH.PasswordFile = expandTilde(cfg.SSH.PasswordFile)
	cfg.SSH.KnownHostsFile = expandTilde(cfg.SSH.KnownHostsFile)
	cfg.SSH.PersistKnownHostsTo = expandTilde(cfg.SSH.PersistKnownHostsTo)
	cfg.Diagnostics.Dir = expandTilde(cfg.Diagnostics.Dir)
}
