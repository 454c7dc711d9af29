package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"bank-reconciliation-service/cmd/reconciler/config"
	"bank-reconciliation-service/internal/api"
	"bank-reconciliation-service/internal/reconciler"
	"bank-reconciliation-service/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(a *app) *cobra.Command {
	defaults := config.Default()

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve exposes reconciliation over HTTP:

  GET  /health
  POST /api/reconcile                 multipart upload of bank_statement and internal_records
  POST /api/export?format=csv|json    export a report posted as JSON
  POST /api/reports                   save a report under a name
  GET  /api/reports?page=N            list saved reports, newest first
  GET  /api/reports/{id}              fetch a saved report
  GET  /api/reports/{id}/export       export a saved report

Saved reports are kept in the database given by --db.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, a)
		},
	}

	serveCmd.Flags().Int("port", defaults.Server.Port, "port to listen on")
	bindFlag(serveCmd.Flags(), "port", "server.port")

	return serveCmd
}

func runServe(cmd *cobra.Command, a *app) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStorage(ctx, a.config.Storage.Path, a.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	service, err := reconciler.NewService(a.config.ReconcilerConfig(), a.logger)
	if err != nil {
		return err
	}

	server := api.NewServer(a.config.Server, service, store, a.config.ReportConfig(), a.logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Fprintf(cmd.ErrOrStderr(), "Listening on :%d (Ctrl+C to stop)\n", a.config.Server.Port)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return <-errCh
}
