package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/pkg/adapters/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the agent over HTTP",
	Long: `Starts the agent as an HTTP service: JSON turn processing, SSE
streaming, session management and Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := buildAgent(cmd)
		if err != nil {
			return err
		}
		port, _ := cmd.Flags().GetString("port")

		srv := &http.Server{
			Addr:    ":" + port,
			Handler: httpapi.NewHandler(agent, httpapi.WithLogger(buildLogger(cmd))),
		}

		serverErrors := make(chan error, 1)
		go func() {
			fmt.Printf("Listening on %s\n", srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)
		case sig := <-shutdown:
			fmt.Printf("\nShutting down (%v)...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				if cerr := srv.Close(); cerr != nil {
					return fmt.Errorf("failed to stop server: %w", cerr)
				}
				return fmt.Errorf("graceful shutdown did not complete: %w", err)
			}
			fmt.Println("Server stopped")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
}
