package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/guard"
	"github.com/ppiankov/toolgate/internal/policy"
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.AddCommand(checkPathCmd, checkCommandCmd, checkIdentifierCmd, checkSchemaCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate a value against the loaded policy without executing anything",
	Long: "Runs one validator and prints the verdict as JSON.\n" +
		"Exit code 0 means valid, 77 means the policy refused it.",
}

var checkPathCmd = &cobra.Command{
	Use:   "path <value>",
	Short: "Validate a filesystem path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheckOne("path", args[0])
	},
}

var checkCommandCmd = &cobra.Command{
	Use:   "command <value>",
	Short: "Validate a command line",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheckOne("command", args[0])
	},
}

var checkIdentifierCmd = &cobra.Command{
	Use:   "identifier <value>",
	Short: "Validate a SQL identifier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheckOne("identifier", args[0])
	},
}

var checkSchemaCmd = &cobra.Command{
	Use:   "schema <value>",
	Short: "Validate a SQL schema name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheckOne("schema", args[0])
	},
}

type checkVerdict struct {
	Valid      bool     `json:"valid"`
	Normalized string   `json:"normalized,omitempty"`
	Argv       []string `json:"argv,omitempty"`
	Kind       string   `json:"kind,omitempty"`
	Class      string   `json:"class,omitempty"`
	Detail     string   `json:"detail,omitempty"`
}

func runCheckOne(check, value string) error {
	cfg, hash, err := policy.LoadConfigWithHash(configPath)
	if err != nil {
		return err
	}
	pol, err := policy.Build(cfg, hash)
	if err != nil {
		return err
	}

	var verdict checkVerdict
	var rej *guard.Rejection

	switch check {
	case "path":
		verdict.Normalized, rej = guard.ValidatePath(value, pol.Paths)
	case "command":
		verdict.Argv, rej = guard.ValidateCommand(value, pol.Commands)
	case "identifier":
		verdict.Normalized, rej = guard.ValidateIdentifier(value, pol.Ident)
	case "schema":
		verdict.Normalized, rej = guard.ValidateSchemaName(value, pol.Ident)
	}

	if rej != nil {
		verdict = checkVerdict{
			Kind:   string(rej.Kind),
			Class:  string(rej.Kind.Class()),
			Detail: rej.Detail,
		}
		out, _ := json.MarshalIndent(verdict, "", "  ")
		fmt.Fprintln(os.Stderr, string(out))
		os.Exit(exitRefused)
	}

	verdict.Valid = true
	out, _ := json.MarshalIndent(verdict, "", "  ")
	fmt.Println(string(out))
	return nil
}
