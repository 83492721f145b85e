package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"al.essio.dev/pkg/shellescape"
	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/guard"
	"github.com/ppiankov/toolgate/internal/policy"
	"github.com/ppiankov/toolgate/internal/runner"
)

var execTimeout int

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().IntVar(&execTimeout, "timeout", 0, "Timeout in seconds (0 for the policy default)")
}

var execCmd = &cobra.Command{
	Use:   "exec [flags] -- <command> [args...]",
	Short: "Run a command through the gateway validator",
	Long: "Validates the command against the allow-list and blocklist before\n" +
		"executing it directly, never through a shell. Exit code 77 means the\n" +
		"policy refused the command; otherwise the child's exit code passes\n" +
		"through.",
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func runExec(cmd *cobra.Command, args []string) error {
	cfg, hash, err := policy.LoadConfigWithHash(configPath)
	if err != nil {
		return err
	}
	pol, err := policy.Build(cfg, hash)
	if err != nil {
		return err
	}

	// Re-quote the argv so the validator sees the same command line a caller
	// of the HTTP surface would send.
	line := shellescape.QuoteCommand(args)

	argv, rej := guard.ValidateCommand(line, pol.Commands)
	if rej == nil {
		var timeoutRej *guard.Rejection
		if _, timeoutRej = pol.Limits.ClampTimeout(execTimeout); timeoutRej != nil {
			rej = timeoutRej
		}
	}
	if rej != nil {
		out, _ := json.MarshalIndent(map[string]any{
			"blocked": true,
			"command": line,
			"kind":    string(rej.Kind),
			"class":   string(rej.Kind.Class()),
			"detail":  rej.Detail,
		}, "", "  ")
		fmt.Fprintln(os.Stderr, string(out))
		os.Exit(exitRefused)
	}

	timeout, _ := pol.Limits.ClampTimeout(execTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := runner.Run(ctx, argv, os.Stdin, timeout, pol.Limits.MaxOutputBytes)
	if err != nil {
		return err
	}

	fmt.Print(res.Stdout)
	if res.Stderr != "" {
		fmt.Fprint(os.Stderr, res.Stderr)
	}
	if res.Killed {
		fmt.Fprintln(os.Stderr, "toolgate: command killed on timeout")
		os.Exit(124)
	}
	if res.ExitCode != 0 {
		os.Exit(res.ExitCode)
	}
	return nil
}
