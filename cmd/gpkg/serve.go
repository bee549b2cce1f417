package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jobrunner/gpkgkit/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the GeoPackages of the configured storage read-only over HTTP",
	Long: `Serve the GeoPackages of the configured storage over HTTP.

Local storage is watched for new, changed and removed files. Remote
storage is mirrored into the cache directory on startup, on the sync
interval and on POST /api/v1/sync.`,
	Args: cobra.NoArgs,
	RunE: runServer,
}

func init() {
	serveCmd.Flags().String("host", "127.0.0.1", "server host")
	serveCmd.Flags().Int("port", 8080, "server port")
	serveCmd.Flags().StringSlice("cors", nil, "allowed CORS origins (e.g., https://example.com,*.sub.domain.tld)")

	_ = v.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = v.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = v.BindPFlag("server.cors.allowed_origins", serveCmd.Flags().Lookup("cors"))

	rootCmd.AddCommand(serveCmd)
}

func runServer(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	logger.Info("starting gpkg server",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"storage_type", cfg.Storage.Type,
	)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "address", cfg.Server.Address())
		if err := application.Start(ctx); err != nil {
			serverErr <- err
		}
	}()

	// the root context is cancelled on SIGINT and SIGTERM
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case runErr = <-serverErr:
		logger.Error("server error", "error", runErr)
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	logger.Info("shutting down server")
	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		if runErr == nil {
			runErr = err
		}
	}

	logger.Info("server stopped")
	return runErr
}
