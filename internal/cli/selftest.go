package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/policy"
	"github.com/ppiankov/toolgate/internal/sim"
)

func init() {
	rootCmd.AddCommand(selftestCmd)
}

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Probe the loaded policy with a corpus of known attacks",
	Long: "Runs traversal, injection, and destructive-command probes against the\n" +
		"loaded policy. Every probe must be rejected. Exit code 1 if any probe\n" +
		"gets through; use in CI to gate policy changes.",
	RunE: runSelftest,
}

func runSelftest(cmd *cobra.Command, args []string) error {
	cfg, hash, err := policy.LoadConfigWithHash(configPath)
	if err != nil {
		return err
	}
	pol, err := policy.Build(cfg, hash)
	if err != nil {
		return err
	}

	report := sim.Run(pol)
	fmt.Print(report.Format())

	if !report.OK() {
		os.Exit(1)
	}
	return nil
}
