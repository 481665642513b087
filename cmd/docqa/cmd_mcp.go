package main

import (
	"github.com/spf13/cobra"

	"docqa/internal/logging"
	"docqa/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server over stdio exposing the ask and search tools",
	Long: `Starts an MCP server over stdin/stdout for editor and agent integration.
Logs go to stderr so they do not interfere with the protocol stream.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, _ []string) error {
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := mcpserver.NewServer(a.pipeline, a.retriever, version)
	srv.RequestTimeout = requestTimeout(cfg)
	logging.New("mcp").Info("starting MCP server over stdio")
	return srv.Run(cmd.Context())
}
