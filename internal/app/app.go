// Package app provides application initialization and wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jobrunner/gpkgkit/internal/adapters/geopackage"
	httpAdapter "github.com/jobrunner/gpkgkit/internal/adapters/http"
	"github.com/jobrunner/gpkgkit/internal/adapters/metrics"
	"github.com/jobrunner/gpkgkit/internal/adapters/storage"
	"github.com/jobrunner/gpkgkit/internal/adapters/watcher"
	"github.com/jobrunner/gpkgkit/internal/application"
	"github.com/jobrunner/gpkgkit/internal/config"
	"github.com/jobrunner/gpkgkit/internal/ports/input"
	"github.com/jobrunner/gpkgkit/internal/ports/output"
)

// App holds the components of the inspection server.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Storage       output.PackageStore
	Repository    *geopackage.Repository
	Registry      *application.PackageRegistry
	SyncService   *application.SyncService
	HealthService *application.HealthService
	HTTPServer    *httpAdapter.Server
	Watcher       *watcher.Watcher
	Metrics       *metrics.Collector
}

// New creates and wires the inspection server. Local storage serves
// cfg.Storage.LocalPath directly; remote storage is mirrored into
// cfg.Storage.CacheDir.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	var collector output.MetricsCollector = &output.NoOpMetrics{}
	if cfg.Metrics.Enabled {
		app.Metrics = metrics.NewCollector(cfg.Metrics.Namespace)
		collector = app.Metrics
	}

	if cfg.Storage.IsRemote() {
		store, err := NewStorage(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("initializing storage: %w", err)
		}
		app.Storage = store
	}

	app.Repository = geopackage.NewRepository(logger, collector,
		geopackage.WithBusyTimeout(cfg.GeoPackage.BusyTimeout),
	)

	app.Registry = application.NewPackageRegistry(
		app.Repository,
		app.Storage,
		collector,
		logger,
		app.DataDir(),
	)

	var syncTrigger input.SyncTrigger
	if app.Storage != nil {
		app.SyncService = application.NewSyncService(app.Registry, cfg.Storage.SyncInterval, logger)
		syncTrigger = app.SyncService
	}

	app.HealthService = application.NewHealthService(app.Registry, app.DataDir(), cfg.Storage.Type)

	app.HTTPServer = httpAdapter.NewServer(
		cfg.Server,
		app.Registry,
		app.HealthService,
		syncTrigger,
		logger,
	)
	if app.Metrics != nil {
		app.HTTPServer.MountMetrics(cfg.Metrics.Path, app.Metrics)
	}

	if !cfg.Storage.IsRemote() && cfg.GeoPackage.Watch {
		w, err := watcher.New(
			watcher.Config{
				Paths:    []string{cfg.Storage.LocalPath},
				Debounce: cfg.GeoPackage.WatchDebounce,
			},
			app.handleFileEvent,
			logger,
		)
		if err != nil {
			logger.Warn("failed to initialize file watcher", "error", err)
		} else {
			app.Watcher = w
		}
	}

	return app, nil
}

// DataDir returns the directory the served packages live in.
func (a *App) DataDir() string {
	if a.Config.Storage.IsRemote() {
		return a.Config.Storage.CacheDir
	}
	return a.Config.Storage.LocalPath
}

// Load registers the packages to serve: the local directory, or a first
// sync from remote storage.
func (a *App) Load(ctx context.Context) error {
	if a.Storage != nil {
		_, err := a.Registry.Sync(ctx)
		return err
	}
	return a.Registry.LoadDir(ctx, a.DataDir())
}

// Start loads the packages, starts the background services and serves
// HTTP until Shutdown.
func (a *App) Start(ctx context.Context) error {
	if err := a.Load(ctx); err != nil {
		a.Logger.Warn("failed to load packages", "error", err)
	}

	if a.Watcher != nil {
		if err := a.Watcher.Start(ctx); err != nil {
			a.Logger.Warn("failed to start file watcher", "error", err)
		}
	}

	if a.SyncService != nil {
		a.SyncService.Start(ctx)
	}

	err := a.HTTPServer.Start()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	if a.Watcher != nil {
		_ = a.Watcher.Stop()
	}

	if a.SyncService != nil {
		a.SyncService.Stop()
	}

	var errs []error
	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		a.Logger.Error("HTTP server shutdown error", "error", err)
		errs = append(errs, err)
	}

	packages, _ := a.Registry.ListPackages(ctx)
	for _, pkg := range packages {
		if err := a.Registry.UnloadPackage(ctx, pkg.ID); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// handleFileEvent applies a settled file change to the registry.
func (a *App) handleFileEvent(ctx context.Context, event watcher.Event) error {
	a.Logger.Info("file event", "path", event.Path, "operation", event.Operation.String())
	return a.Registry.HandleFileChange(ctx, event.Path, event.Operation == watcher.OpDelete)
}

// NewStorage creates the object storage adapter selected by cfg.Type.
func NewStorage(ctx context.Context, cfg config.StorageConfig) (output.PackageStore, error) {
	switch cfg.Type {
	case string(output.StorageTypeLocal):
		return storage.NewLocalStorage(cfg.LocalPath), nil

	case string(output.StorageTypeS3):
		return storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})

	case string(output.StorageTypeAzure):
		return storage.NewAzureStorage(storage.AzureConfig{
			Container:        cfg.Azure.Container,
			AccountName:      cfg.Azure.AccountName,
			AccountKey:       cfg.Azure.AccountKey,
			ConnectionString: cfg.Azure.ConnectionString,
			Prefix:           cfg.Azure.Prefix,
		})

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
