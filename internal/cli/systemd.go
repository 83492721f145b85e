package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/policy"
	"github.com/ppiankov/toolgate/internal/systemd"
)

func init() {
	rootCmd.AddCommand(systemdCmd)
	systemdCmd.AddCommand(systemdUnitCmd, systemdTemplateCmd, systemdCheckCmd)
}

var systemdCmd = &cobra.Command{
	Use:   "systemd",
	Short: "Systemd unit helpers",
}

var systemdUnitCmd = &cobra.Command{
	Use:   "unit",
	Short: "Print the hardened gateway unit file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := policy.LoadConfig(configPath)
		if err != nil {
			return err
		}
		path := configPath
		if path == "" {
			path = policy.DefaultPath()
		}
		fmt.Print(systemd.ServeUnit(path, cfg.Paths.Roots))
		return nil
	},
}

var systemdTemplateCmd = &cobra.Command{
	Use:   "template",
	Short: "Print the guarded@ template unit file",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(systemd.GuardedTemplate())
	},
}

var systemdCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the installed unit file against its install-time hash",
	Run: func(cmd *cobra.Command, args []string) {
		if msg := systemd.CheckUnitFileIntegrity(); msg != "" {
			fmt.Println("WARNING: " + msg)
			return
		}
		fmt.Println("OK")
	},
}
