package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bert-systems/canvas/internal/cli"
	"github.com/bert-systems/canvas/pkg/adapters/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts a canvas session as an MCP server so AI agents can build and run boards as tools.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")
		simulate, _ := cmd.Flags().GetBool("simulate")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Logs go to stderr so they never corrupt JSON-RPC on stdout.
		app, err := cli.NewApp(ctx, cfg, cli.Options{Simulate: simulate, LogOutput: os.Stderr})
		if err != nil {
			return err
		}
		defer closeApp(app)

		srv := mcp.NewServer(app.Session, mcp.WithLogger(app.Logger.With("component", "mcp")))
		switch transport {
		case "stdio":
			app.Logger.Info("starting canvas mcp server (stdio)")
			return srv.ServeStdio()
		case "sse":
			app.Logger.Info("starting canvas mcp server (sse)", "port", port)
			return srv.ServeSSE(ctx, port)
		default:
			return fmt.Errorf("unknown transport %q, supported: stdio, sse", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8080, "Port to listen on (only for SSE)")
	mcpCmd.Flags().Bool("simulate", false, "Run jobs and node sync in-process instead of calling remote services")
}
