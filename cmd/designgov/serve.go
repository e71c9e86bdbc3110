package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpserver "github.com/fyrsmithlabs/designgov/internal/http"
)

// serveCmd serves the read-only HTTP surface
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the audit log, constitution and metrics over HTTP",
	Long: `Replay the JSONL audit log and serve it read-only:

  GET /health
  GET /api/v1/audit?agent_id=&session_id=&tool=
  GET /api/v1/constitution
  GET /api/v1/tools
  GET /metrics

Examples:
  designgov serve
  DESIGNGOV_SERVER_HTTP_PORT=8080 designgov serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = a.close(context.Background()) }()

	server, err := httpserver.NewServer(a.store, a.logger, httpserver.ConfigFrom(a.cfg.Server))
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error(shutdownCtx, "http shutdown failed", zap.Error(err))
		return err
	}
	return nil
}
