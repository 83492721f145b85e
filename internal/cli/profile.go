package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/profile"
)

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileListCmd, profileShowCmd)
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Built-in policy profiles",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List built-in profiles",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range profile.Names() {
			p, err := profile.Get(name)
			if err != nil {
				continue
			}
			fmt.Printf("%-10s %s\n", p.Name, p.Description)
		}
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a profile's policy overlay",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := profile.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Print(string(p.Raw))
		return nil
	},
}
