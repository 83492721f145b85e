package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/policy"
	"github.com/ppiankov/toolgate/internal/policydiff"
)

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyHashCmd, policyDiffCmd)
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Policy file operations",
}

var policyHashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Print the hash of the loaded policy",
	Long: "Prints the SHA-256 of the config file bytes. The same hash is stamped\n" +
		"on every audit record, tying each decision to the policy that made it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, hash, err := policy.LoadConfigWithHash(configPath)
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}

var policyDiffCmd = &cobra.Command{
	Use:   "diff <old.yaml> <new.yaml>",
	Short: "Compare two policy files",
	Long: "Shows what changed between two config files, with loosening changes\n" +
		"(new allow-list entries, raised caps, dropped rate limits) listed first.",
	Args: cobra.ExactArgs(2),
	RunE: runPolicyDiff,
}

func runPolicyDiff(cmd *cobra.Command, args []string) error {
	oldCfg, err := policy.LoadConfig(args[0])
	if err != nil {
		return fmt.Errorf("load old policy: %w", err)
	}
	newCfg, err := policy.LoadConfig(args[1])
	if err != nil {
		return fmt.Errorf("load new policy: %w", err)
	}

	changes := policydiff.Diff(oldCfg, newCfg)
	fmt.Print(policydiff.Format(changes))
	return nil
}
