package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tabula/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the editor diagnostics server",
	Long: `Start the HTTP server editors use for live schema feedback.

The server exposes:
  POST /v1/documents                    open a document session
  PUT  /v1/documents/{id}               update content with a version counter
  GET  /v1/documents/{id}/diagnostics   current diagnostics
  GET  /v1/documents/{id}/symbols       indexed symbols
  GET  /v1/documents/{id}/definition    go-to-definition at ?line=&col=
  POST /v1/check                        one-shot validation

Environment variables:
  TABULA_SERVER_HOST   - Bind host (default: 127.0.0.1)
  TABULA_SERVER_PORT   - Bind port (default: 8650)
  TABULA_LOG_LEVEL     - Log level: debug, info, warn, error
  TABULA_LOG_FORMAT    - Log format: json or console

Examples:
  tabula serve
  TABULA_SERVER_PORT=9000 tabula serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.New(cfg, newLogger(cfg)).Run(ctx)
}
