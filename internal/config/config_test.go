package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jobrunner/gpkgkit/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(New(), "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.Address() != "127.0.0.1:8080" {
		t.Errorf("Address() = %q", cfg.Server.Address())
	}
	if cfg.Storage.Type != "local" || cfg.Storage.LocalPath != "./data" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.GeoPackage.BusyTimeout != 5*time.Second {
		t.Errorf("BusyTimeout = %v, want 5s", cfg.GeoPackage.BusyTimeout)
	}
	if cfg.GeoPackage.JournalMode != "delete" {
		t.Errorf("JournalMode = %q, want delete", cfg.GeoPackage.JournalMode)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" || cfg.Metrics.Namespace != "gpkg" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gpkg.yaml")
	content := `
server:
  port: 9000
  max_records: 50
  cors:
    allowed_origins: ["*.example.com"]
storage:
  type: s3
  cache_dir: /var/cache/gpkg
  sync_interval: 5m
  s3:
    bucket: maps
    region: eu-central-1
geopackage:
  busy_timeout: 250ms
  journal_mode: wal
logging:
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(New(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9000 || cfg.Server.MaxRecords != 50 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if !cfg.Server.CORS.Enabled() || cfg.Server.CORS.AllowedOrigins[0] != "*.example.com" {
		t.Errorf("CORS = %+v", cfg.Server.CORS)
	}
	if !cfg.Storage.IsRemote() || cfg.Storage.S3.Bucket != "maps" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Storage.SyncInterval != 5*time.Minute {
		t.Errorf("SyncInterval = %v, want 5m", cfg.Storage.SyncInterval)
	}
	if cfg.GeoPackage.BusyTimeout != 250*time.Millisecond || cfg.GeoPackage.JournalMode != "wal" {
		t.Errorf("GeoPackage = %+v", cfg.GeoPackage)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("GPKG_SERVER_PORT", "9191")
	t.Setenv("GPKG_GEOPACKAGE_JOURNAL_MODE", "truncate")

	cfg, err := Load(New(), "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("Server.Port = %d, want 9191", cfg.Server.Port)
	}
	if cfg.GeoPackage.JournalMode != "truncate" {
		t.Errorf("JournalMode = %q, want truncate", cfg.GeoPackage.JournalMode)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("Load() should fail for an explicit file that does not exist")
	}
}

func TestLoadInvalid(t *testing.T) {
	t.Setenv("GPKG_STORAGE_TYPE", "ftp")

	_, err := Load(New(), "")
	var cfgErr *domain.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Load() error = %v, want ConfigError", err)
	}
	if cfgErr.Field != "storage.type" {
		t.Errorf("Field = %q, want storage.type", cfgErr.Field)
	}
}

func validConfig() Config {
	return Config{
		Server:     ServerConfig{Port: 8080, MaxRecords: 100},
		Storage:    StorageConfig{Type: "local", LocalPath: "./data", CacheDir: "./cache"},
		GeoPackage: GeoPackageConfig{BusyTimeout: time.Second, JournalMode: "delete"},
		Logging:    LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "port zero", mutate: func(c *Config) { c.Server.Port = 0 }, field: "server.port"},
		{name: "port too high", mutate: func(c *Config) { c.Server.Port = 70000 }, field: "server.port"},
		{name: "max records", mutate: func(c *Config) { c.Server.MaxRecords = 0 }, field: "server.max_records"},
		{name: "negative busy timeout", mutate: func(c *Config) { c.GeoPackage.BusyTimeout = -1 }, field: "geopackage.busy_timeout"},
		{name: "journal mode", mutate: func(c *Config) { c.GeoPackage.JournalMode = "fast" }, field: "geopackage.journal_mode"},
		{name: "journal mode upper case", mutate: func(c *Config) { c.GeoPackage.JournalMode = "WAL" }},
		{name: "log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, field: "logging.format"},
		{name: "local path", mutate: func(c *Config) { c.Storage.LocalPath = "" }, field: "storage.local_path"},
		{
			name: "s3 without bucket",
			mutate: func(c *Config) {
				c.Storage.Type = "s3"
				c.Storage.S3.Region = "eu-west-1"
			},
			field: "storage.s3.bucket",
		},
		{
			name:   "s3 without region",
			mutate: func(c *Config) { c.Storage.Type = "s3"; c.Storage.S3.Bucket = "b" },
			field:  "storage.s3.region",
		},
		{
			name:   "azure without container",
			mutate: func(c *Config) { c.Storage.Type = "azure" },
			field:  "storage.azure.container",
		},
		{
			name:   "azure without credentials",
			mutate: func(c *Config) { c.Storage.Type = "azure"; c.Storage.Azure.Container = "maps" },
			field:  "storage.azure",
		},
		{
			name: "remote without cache",
			mutate: func(c *Config) {
				c.Storage.Type = "azure"
				c.Storage.Azure.Container = "maps"
				c.Storage.Azure.ConnectionString = "UseDevelopmentStorage=true"
				c.Storage.CacheDir = ""
			},
			field: "storage.cache_dir",
		},
		{name: "negative sync interval", mutate: func(c *Config) { c.Storage.SyncInterval = -time.Second }, field: "storage.sync_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.field == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			var cfgErr *domain.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() error = %v, want ConfigError", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", cfgErr.Field, tt.field)
			}
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Error("ConfigError should unwrap to ErrInvalidInput")
			}
		})
	}
}
