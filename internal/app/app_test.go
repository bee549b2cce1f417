package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jobrunner/gpkgkit/internal/adapters/geopackage"
	"github.com/jobrunner/gpkgkit/internal/adapters/storage"
	"github.com/jobrunner/gpkgkit/internal/config"
	"github.com/jobrunner/gpkgkit/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ShutdownTimeout: time.Second,
			MaxRecords:      100,
		},
		Storage: config.StorageConfig{
			Type:      "local",
			LocalPath: dir,
		},
		GeoPackage: config.GeoPackageConfig{
			BusyTimeout: time.Second,
			JournalMode: "delete",
		},
		Metrics: config.MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "apptest",
		},
		Logging: config.LoggingConfig{Level: "error", Format: "text"},
	}
}

func writePackage(t *testing.T, path string) {
	t.Helper()
	ctx := context.Background()
	s, err := geopackage.Create(ctx, path, geopackage.WithLogger(testLogger()))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close() }()

	def, err := s.CreateLayer(ctx, domain.NewTypeDescriptor("test_table", domain.TextField("name")))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.InsertMany(ctx, def, []domain.Record{{"name": "First"}}); err != nil {
		t.Fatal(err)
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestAppServesLocalDirectory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writePackage(t, filepath.Join(dir, "demo.gpkg"))

	a, err := New(ctx, testConfig(dir), testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if a.Storage != nil || a.SyncService != nil || a.Watcher != nil {
		t.Error("local storage without watch should not create storage, sync or watcher")
	}
	if a.DataDir() != dir {
		t.Errorf("DataDir() = %q, want %q", a.DataDir(), dir)
	}
	if err := a.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	router := a.HTTPServer.Router()

	rec := get(t, router, "/api/v1/packages/demo/layers/test_table/records")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "First") {
		t.Errorf("records: %d %s", rec.Code, rec.Body.String())
	}

	rec = get(t, router, "/health/ready")
	if rec.Code != http.StatusOK {
		t.Errorf("ready: %d %s", rec.Code, rec.Body.String())
	}

	rec = get(t, router, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "apptest_packages_loaded 1") {
		t.Errorf("metrics: %d, packages gauge missing", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil))
	if rec.Code == http.StatusOK {
		t.Error("sync should not be served without remote storage")
	}

	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if a.Registry.PackageCount() != 0 {
		t.Error("Shutdown() should unload every package")
	}
}

func TestAppWithoutMetrics(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Metrics.Enabled = false

	a, err := New(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if a.Metrics != nil {
		t.Error("metrics collector should not be created")
	}
	if rec := get(t, a.HTTPServer.Router(), "/metrics"); rec.Code != http.StatusNotFound {
		t.Errorf("/metrics = %d, want 404", rec.Code)
	}
}

func TestAppWatchesLocalDirectory(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Metrics.Enabled = false
	cfg.GeoPackage.Watch = true
	cfg.GeoPackage.WatchDebounce = 10 * time.Millisecond

	a, err := New(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if a.Watcher == nil {
		t.Error("watcher should be created for local storage")
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNewStorage(t *testing.T) {
	ctx := context.Background()

	s, err := NewStorage(ctx, config.StorageConfig{Type: "local", LocalPath: t.TempDir()})
	if err != nil {
		t.Fatalf("NewStorage(local) error = %v", err)
	}
	if _, ok := s.(*storage.LocalStorage); !ok {
		t.Errorf("NewStorage(local) = %T", s)
	}

	if _, err := NewStorage(ctx, config.StorageConfig{Type: "ftp"}); err == nil {
		t.Error("NewStorage() should reject an unknown type")
	}
}
