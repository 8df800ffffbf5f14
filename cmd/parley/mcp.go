package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/parleyhq/parley"
	"github.com/parleyhq/parley/pkg/adapters/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the agent as a Model Context Protocol server",
	Long: `Starts the agent as an MCP server so MCP hosts can process turns
and inspect sessions as tools.

Supported transports:
- stdio (default): standard input/output, for local process integration.
- sse: Server-Sent Events over HTTP, for remote hosts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := buildAgent(cmd)
		if err != nil {
			return err
		}
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		srv := mcp.NewServer(agent, "parley", parley.Version)

		switch transport {
		case "stdio":
			// Keep stdout clean for JSON-RPC.
			log.SetOutput(os.Stderr)
			slog.Info("starting MCP server (stdio)")
			return srv.ServeStdio()
		case "sse":
			slog.Info("starting MCP server (sse)", "port", port)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := srv.ServeSSE(ctx, port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			slog.Info("MCP server stopped")
			return nil
		default:
			return errors.New("unknown transport (supported: stdio, sse)")
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("transport", "stdio", "Transport protocol: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8081, "Port to listen on (sse only)")
}
