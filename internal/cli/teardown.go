package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kubewright/kubewright/internal/ops"
)

var teardownYes bool

var teardownCmd = &cobra.Command{
	Use:   "teardown",
	Short: "Reset every node and dismantle the cluster",
	Long: `Teardown runs kubeadm reset on every node: workers in parallel
first, then control planes in reverse order so the primary goes last.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !teardownYes && !confirm("This resets every node and destroys the cluster. Continue? [y/N] ") {
			return fmt.Errorf("aborted")
		}

		env, teardown, err := buildEnv(cmd.Context(), "teardown")
		if err != nil {
			return err
		}
		defer teardown()

		return ops.Teardown(cmd.Context(), env)
	},
}

var renewCmd = &cobra.Command{
	Use:   "renew-certs",
	Short: "Renew control-plane certificates on every control plane",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, teardown, err := buildEnv(cmd.Context(), "renew-certs")
		if err != nil {
			return err
		}
		defer teardown()

		return ops.RenewCerts(cmd.Context(), env)
	},
}

func confirm(prompt string) bool {
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func init() {
	teardownCmd.Flags().BoolVarP(&teardownYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(teardownCmd)
	rootCmd.AddCommand(renewCmd)
}
