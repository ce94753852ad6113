package cli

import (
	"github.com/spf13/cobra"

	"github.com/kubewright/kubewright/internal/ops"
)

var (
	upgradeTarget   string
	upgradeAutoStep bool
	upgradeResume   bool
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Upgrade the cluster to a newer Kubernetes version",
	Long: `Upgrade walks the cluster to the target version one node at a
time: control planes first (primary leading), then workers. Each node is
drained before and uncordoned after its upgrade. A failed node is rolled
back to the version it ran before and the operation stops.

The target may be at most one minor version ahead unless --auto-step is
given, which steps through the latest patch release of every skipped
minor.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, teardown, err := buildEnv(cmd.Context(), "upgrade")
		if err != nil {
			return err
		}
		defer teardown()

		return ops.Upgrade(cmd.Context(), env, ops.UpgradeOptions{
			Target:   upgradeTarget,
			AutoStep: upgradeAutoStep,
			Resume:   upgradeResume,
		})
	},
}

func init() {
	upgradeCmd.Flags().StringVar(&upgradeTarget, "target", "", "Kubernetes version to upgrade to (required)")
	upgradeCmd.Flags().BoolVar(&upgradeAutoStep, "auto-step", false, "allow multi-minor upgrades via intermediate releases")
	upgradeCmd.Flags().BoolVar(&upgradeResume, "resume", false, "resume the most recent interrupted upgrade")
	upgradeCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(upgradeCmd)
}
