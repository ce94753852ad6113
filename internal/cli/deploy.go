package cli

import (
	"github.com/spf13/cobra"

	"github.com/kubewright/kubewright/internal/ops"
)

var (
	deployVersion string
	deployPodCIDR string
	deployResume  bool
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy a new cluster",
	Long: `Deploy bootstraps a cluster: kubeadm init on the primary control
plane, then the remaining control planes join one at a time, then all
workers join in parallel.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, teardown, err := buildEnv(cmd.Context(), "deploy")
		if err != nil {
			return err
		}
		defer teardown()

		return ops.Deploy(cmd.Context(), env, ops.DeployOptions{
			Version: deployVersion,
			PodCIDR: deployPodCIDR,
			Resume:  deployResume,
		})
	},
}

func init() {
	deployCmd.Flags().StringVar(&deployVersion, "version", "", "Kubernetes version to install (required)")
	deployCmd.Flags().StringVar(&deployPodCIDR, "pod-cidr", "", "pod network CIDR (default 10.244.0.0/16)")
	deployCmd.Flags().BoolVar(&deployResume, "resume", false, "resume the most recent interrupted deploy")
	deployCmd.MarkFlagRequired("version")
	rootCmd.AddCommand(deployCmd)
}
