package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/mcp"
	"github.com/ppiankov/toolgate/internal/policy"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP tool server on stdio",
	Long: "Runs the gateway as a Model Context Protocol server over stdio.\n" +
		"Exposes the full tool surface: fs, exec, git, sql, cache, secrets, fetch.\n" +
		"Policy refusals are tool errors carrying the same kind/class envelope\n" +
		"as the HTTP surface.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := policy.LoadConfig(configPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	srv, err := mcp.New(mcp.Config{ConfigPath: configPath}, log)
	if err != nil {
		return fmt.Errorf("create MCP server: %w", err)
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}
