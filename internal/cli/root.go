// Package cli defines the kubewright command tree.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kubewright/kubewright/internal/config"
	"github.com/kubewright/kubewright/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config

	flagControlPlanes string
	flagWorkers       string
)

var rootCmd = &cobra.Command{
	Use:   "kubewright",
	Short: "Deploy and operate Kubernetes clusters over SSH",
	Long: `kubewright drives kubeadm-based clusters on remote machines over SSH:
deploy, upgrade, backup, restore, certificate renewal and teardown.

Nodes are given as comma-separated [user@]host lists. The first
control-plane entry is the primary (bootstrap) node.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ~/.config/kubewright/config.yaml)")
	pf.StringVar(&flagControlPlanes, "control-planes", "", "comma-separated control-plane nodes, primary first")
	pf.StringVar(&flagWorkers, "workers", "", "comma-separated worker nodes")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("log-format", "", "log format (console, json)")
	pf.String("data-dir", "", "directory for operation state and diagnostics")
	pf.String("default-user", "", "user for node entries without one")
	pf.String("transport", "", "ssh transport (system, native)")
	pf.Int("ssh-port", 0, "ssh port on every node")
	pf.String("ssh-key", "", "ssh private key path")
	pf.String("password-file", "", "file holding the ssh password, mode 0600")
	pf.Bool("use-agent", false, "prefer the running ssh-agent")
	pf.String("host-key-policy", "", "host key policy (strict, accept-new, off)")
	pf.String("known-hosts", "", "pre-seeded known_hosts file (forces strict)")
	pf.String("persist-known-hosts", "", "write collected host keys here on completion")
}

// flagBindings maps persistent flags onto config keys.
var flagBindings = map[string]string{
	"log-level":           "logging.level",
	"log-format":          "logging.format",
	"data-dir":            "global.data_dir",
	"default-user":        "global.default_user",
	"transport":           "ssh.transport",
	"ssh-port":            "ssh.port",
	"ssh-key":             "ssh.key_path",
	"password-file":       "ssh.password_file",
	"use-agent":           "ssh.use_agent",
	"host-key-policy":     "ssh.host_key_policy",
	"known-hosts":         "ssh.known_hosts_file",
	"persist-known-hosts": "ssh.persist_known_hosts_to",
}

func loadConfig(cmd *cobra.Command) error {
	loader := config.NewLoader()
	if cfgFile != "" {
		loader.SetConfigFile(cfgFile)
	}

	v := loader.Viper()
	for flag, key := range flagBindings {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			f = rootCmd.PersistentFlags().Lookup(flag)
		}
		if f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind flag %s: %w", flag, err)
			}
		}
	}

	loaded, err := loader.Load()
	if err != nil {
		return err
	}
	cfg = loaded

	logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		EnableCaller: cfg.Logging.EnableCaller,
	})
	return nil
}

// ExecuteContext runs the command tree. The context is cancelled on
// SIGINT/SIGTERM so operations can run their cleanup stacks.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
