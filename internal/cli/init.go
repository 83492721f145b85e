package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/toolgate/internal/policy"
	"github.com/ppiankov/toolgate/internal/profile"
	"github.com/ppiankov/toolgate/internal/secrets"
	"github.com/ppiankov/toolgate/internal/systemd"
)

var (
	initProfile        string
	initMode           string
	initInstallSystemd bool
	initForce          bool
)

func init() {
	initCmd.Flags().StringVar(&initProfile, "profile", "",
		"Built-in profile to start from ("+strings.Join(profile.Names(), ", ")+")")
	initCmd.Flags().StringVar(&initMode, "mode", "user", "Config location: user (~/.toolgate) or system (/etc/toolgate)")
	initCmd.Flags().BoolVar(&initInstallSystemd, "install-systemd", false, "Install systemd units (requires root)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config files")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap toolgate configuration",
	Long: `Creates the config directory, a default config, a secret store key,
and the default sandbox root.

User mode (default):  writes to ~/.toolgate/
System mode:          writes to /etc/toolgate/ (requires root)

With --install-systemd: installs toolgate.service and a guarded@ template
so a program can run under enforcement via:
  systemctl enable --now toolgate-guarded@<name>`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	configDir, err := initConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	var created []string

	cfgPath := filepath.Join(configDir, "config.yaml")
	content, err := initConfigContent()
	if err != nil {
		return err
	}
	if wrote, err := writeIfMissing(cfgPath, content); err != nil {
		return err
	} else if wrote {
		created = append(created, cfgPath)
	}

	// Key for the encrypted secret store. Generated up front so enabling the
	// store later is a config edit, not a key ceremony.
	keyPath := filepath.Join(configDir, "secret.key")
	if _, err := os.Stat(keyPath); os.IsNotExist(err) {
		if err := secrets.WriteKeyFile(keyPath); err != nil {
			return fmt.Errorf("write secret key: %w", err)
		}
		created = append(created, keyPath)
	}

	// Default sandbox root.
	cfg, err := policy.LoadConfig(cfgPath)
	if err != nil {
		return err
	}
	for _, root := range cfg.Paths.Roots {
		if err := os.MkdirAll(root, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "warning: cannot create sandbox root %s: %v\n", root, err)
		}
	}

	if initInstallSystemd {
		if runtime.GOOS != "linux" {
			return fmt.Errorf("--install-systemd is only supported on Linux")
		}
		if os.Geteuid() != 0 {
			return fmt.Errorf("--install-systemd requires root; run with sudo")
		}

		servePath := "/etc/systemd/system/toolgate.service"
		if err := os.WriteFile(servePath, []byte(systemd.ServeUnit(cfgPath, cfg.Paths.Roots)), 0o644); err != nil {
			return fmt.Errorf("write systemd unit: %w", err)
		}
		created = append(created, servePath)

		guardedPath := "/etc/systemd/system/toolgate-guarded@.service"
		if err := os.WriteFile(guardedPath, []byte(systemd.GuardedTemplate()), 0o644); err != nil {
			return fmt.Errorf("write systemd template: %w", err)
		}
		created = append(created, guardedPath)

		if err := exec.Command("systemctl", "daemon-reload").Run(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: systemctl daemon-reload failed: %v\n", err)
		}
		if err := systemd.RecordUnitFileHash(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: cannot record unit file hash: %v\n", err)
		}
	}

	fmt.Println("toolgate init complete.")
	fmt.Println()
	if len(created) > 0 {
		fmt.Println("Created:")
		for _, path := range created {
			fmt.Printf("  %s\n", path)
		}
		fmt.Println()
	} else {
		fmt.Println("All files already exist (use --force to overwrite).")
		fmt.Println()
	}

	fmt.Println("Verify the policy:")
	fmt.Println("  toolgate selftest")
	fmt.Println()
	fmt.Println("Run a command under enforcement:")
	fmt.Println("  toolgate exec -- <command>")
	fmt.Println()
	fmt.Println("Start the gateway:")
	fmt.Println("  toolgate serve")

	return nil
}

// initConfigContent returns the config to write: the commented default, or
// the default with a built-in profile applied.
func initConfigContent() (string, error) {
	if initProfile == "" {
		return policy.DefaultConfigYAML(), nil
	}
	prof, err := profile.Get(initProfile)
	if err != nil {
		return "", fmt.Errorf("unknown profile %q (available: %s)", initProfile, strings.Join(profile.Names(), ", "))
	}
	cfg := policy.DefaultConfig()
	if err := prof.Apply(cfg); err != nil {
		return "", fmt.Errorf("apply profile %q: %w", initProfile, err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}
	header := fmt.Sprintf("# toolgate configuration\n# Generated by: toolgate init --profile %s\n\n", initProfile)
	return header + string(data), nil
}

// initConfigDir returns the configuration directory based on mode.
func initConfigDir() (string, error) {
	switch initMode {
	case "system":
		return "/etc/toolgate", nil
	case "user", "":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(home, ".toolgate"), nil
	default:
		return "", fmt.Errorf("unknown mode %q: use 'user' or 'system'", initMode)
	}
}

// writeIfMissing writes content to path unless the file already exists and
// --force was not given. Returns whether the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
