package cli

import (
	"github.com/spf13/cobra"

	"github.com/kubewright/kubewright/internal/ops"
)

var (
	backupOutput    string
	restoreSnapshot string
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot etcd from the primary control plane",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, teardown, err := buildEnv(cmd.Context(), "backup")
		if err != nil {
			return err
		}
		defer teardown()

		return ops.Backup(cmd.Context(), env, ops.BackupOptions{OutputPath: backupOutput})
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore etcd on the primary control plane from a snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, teardown, err := buildEnv(cmd.Context(), "restore")
		if err != nil {
			return err
		}
		defer teardown()

		return ops.Restore(cmd.Context(), env, ops.RestoreOptions{SnapshotPath: restoreSnapshot})
	},
}

func init() {
	backupCmd.Flags().StringVarP(&backupOutput, "output", "o", "", "local snapshot path (default: timestamped file)")
	restoreCmd.Flags().StringVar(&restoreSnapshot, "snapshot", "", "local snapshot file to restore from (required)")
	restoreCmd.MarkFlagRequired("snapshot")
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
}
