package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kubewright/kubewright/internal/nodes"
)

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "Inspect node lists",
}

var nodesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the --control-planes and --workers lists without connecting",
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagControlPlanes == "" && flagWorkers == "" {
			return fmt.Errorf("nothing to check, pass --control-planes and/or --workers")
		}

		for _, in := range []struct{ flag, csv string }{
			{"control-planes", flagControlPlanes},
			{"workers", flagWorkers},
		} {
			if in.csv == "" {
				continue
			}
			cleaned, n := nodes.Normalize(in.csv)
			if err := nodes.ValidateAll(cleaned, cfg.Global.DefaultUser); err != nil {
				return fmt.Errorf("--%s: %w", in.flag, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d node(s) ok\n", in.flag, n)
		}

		if flagControlPlanes != "" && flagWorkers != "" {
			cps, err := parseNodeFlag(flagControlPlanes)
			if err != nil {
				return err
			}
			workers, err := parseNodeFlag(flagWorkers)
			if err != nil {
				return err
			}
			if err := checkDisjoint(cps, workers); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	nodesCmd.AddCommand(nodesCheckCmd)
	rootCmd.AddCommand(nodesCmd)
}
