package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designgov/internal/mcp"
)

var mcpGrantsPath string

// mcpCmd serves the governance tools to agents over stdio
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve governance tools to agents over MCP stdio",
	Long: `Run an MCP server on stdin/stdout exposing tool_catalog, plan_verify,
audit_query, constitution_rules and escalation_response.

The grants file is reloaded when it changes. Logs go only to the OTEL
output, if enabled, so stdout stays reserved for the protocol.

Examples:
  designgov mcp
  designgov mcp --grants grants.yaml`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpGrantsPath, "grants", "", "grants file (default: grants_file from config)")
}

func runMCP(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, appOptions{quiet: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.close(context.Background()) }()

	var src mcp.GrantSource
	reg, err := a.loadGrants(mcpGrantsPath)
	switch {
	case err == nil:
		if err := reg.Watch(ctx, nil); err != nil {
			a.logger.Warn(ctx, "grants hot reload disabled", zap.Error(err))
		}
		src = reg
	case mcpGrantsPath == "" && a.cfg.GrantsFile == "":
		a.logger.Info(ctx, "no grants file configured; plans are checked without scope")
	default:
		return err
	}

	server, err := mcp.NewServer(&mcp.Config{Name: "designgov", Version: version, Logger: a.logger}, a.store, src)
	if err != nil {
		return err
	}
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
