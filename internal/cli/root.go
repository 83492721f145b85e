// Package cli implements the toolgate command line.
package cli

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/policy"
)

// exitRefused is the exit code for a policy refusal, distinct from execution
// failure so scripts can tell "blocked" from "broken".
const exitRefused = 77

var configPath string

var rootCmd = &cobra.Command{
	Use:   "toolgate",
	Short: "Sandboxed tool gateway for untrusted callers",
	Long: "Validates every filesystem, exec, git, SQL, cache, secret, and fetch\n" +
		"request against an allow-list policy before touching the wrapped\n" +
		"capability. Refusals carry a kind and class; nothing runs in a shell.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to config YAML (default: ~/.toolgate/config.yaml)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the process logger from the loaded configuration.
func newLogger(cfg *policy.Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	if lvl, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(lvl)
	}
	if cfg.Log.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}
