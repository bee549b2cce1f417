// Package config provides configuration management using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jobrunner/gpkgkit/internal/domain"
)

// EnvPrefix prefixes every environment variable read by the configuration,
// e.g. GPKG_SERVER_PORT.
const EnvPrefix = "GPKG"

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	GeoPackage GeoPackageConfig `mapstructure:"geopackage"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds configuration of the inspection HTTP server.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxRecords      int           `mapstructure:"max_records"` // upper bound for ?limit=
	CORS            CORSConfig    `mapstructure:"cors"`
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"` // e.g., ["https://example.com", "*.sub.domain.tld"]
}

// Enabled returns true if CORS is configured with at least one allowed origin.
func (c *CORSConfig) Enabled() bool {
	return len(c.AllowedOrigins) > 0
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	Type         string        `mapstructure:"type"` // local, s3, azure
	LocalPath    string        `mapstructure:"local_path"`
	CacheDir     string        `mapstructure:"cache_dir"`     // download target for remote packages
	SyncInterval time.Duration `mapstructure:"sync_interval"` // 0 disables scheduled sync
	S3           S3Config      `mapstructure:"s3"`
	Azure        AzureConfig   `mapstructure:"azure"`
}

// IsRemote reports whether packages live in a remote object store.
func (c *StorageConfig) IsRemote() bool {
	return c.Type == "s3" || c.Type == "azure"
}

// S3Config holds AWS S3 configuration.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	Container        string `mapstructure:"container"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
	Prefix           string `mapstructure:"prefix"`
}

// GeoPackageConfig holds settings of the SQLite connection behind each
// session.
type GeoPackageConfig struct {
	BusyTimeout   time.Duration `mapstructure:"busy_timeout"`
	JournalMode   string        `mapstructure:"journal_mode"` // delete, truncate, persist, memory, wal, off
	Watch         bool          `mapstructure:"watch"`        // reload served files on change
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// Defaults sets the default configuration values on v.
func Defaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_records", 1000)
	v.SetDefault("server.cors.allowed_origins", []string{})

	// Storage defaults
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./data")
	v.SetDefault("storage.cache_dir", "./cache")
	v.SetDefault("storage.sync_interval", time.Duration(0))

	// GeoPackage defaults
	v.SetDefault("geopackage.busy_timeout", 5*time.Second)
	v.SetDefault("geopackage.journal_mode", "delete")
	v.SetDefault("geopackage.watch", true)
	v.SetDefault("geopackage.watch_debounce", 500*time.Millisecond)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "gpkg")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// New returns a Viper instance with defaults and environment binding in
// place. Command line flags are bound to it before Load is called.
func New() *viper.Viper {
	v := viper.New()
	Defaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file and unmarshals v into a validated
// Config. An empty configPath searches config.yaml in the usual places.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/gpkgkit")
	}

	// the config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var journalModes = map[string]bool{
	"delete":   true,
	"truncate": true,
	"persist":  true,
	"memory":   true,
	"wal":      true,
	"off":      true,
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return &domain.ConfigError{Field: "server.port", Message: fmt.Sprintf("invalid port %d", c.Server.Port)}
	}
	if c.Server.MaxRecords < 1 {
		return &domain.ConfigError{Field: "server.max_records", Message: "must be positive"}
	}

	if c.GeoPackage.BusyTimeout < 0 {
		return &domain.ConfigError{Field: "geopackage.busy_timeout", Message: "must not be negative"}
	}
	if !journalModes[strings.ToLower(c.GeoPackage.JournalMode)] {
		return &domain.ConfigError{
			Field:   "geopackage.journal_mode",
			Message: fmt.Sprintf("unknown journal mode %q", c.GeoPackage.JournalMode),
		}
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return &domain.ConfigError{Field: "logging.format", Message: fmt.Sprintf("unknown format %q", c.Logging.Format)}
	}

	return c.Storage.validate()
}

func (c *StorageConfig) validate() error {
	switch c.Type {
	case "local":
		if c.LocalPath == "" {
			return &domain.ConfigError{Field: "storage.local_path", Message: "local storage path is required"}
		}
	case "s3":
		if c.S3.Bucket == "" {
			return &domain.ConfigError{Field: "storage.s3.bucket", Message: "S3 bucket is required"}
		}
		if c.S3.Region == "" {
			return &domain.ConfigError{Field: "storage.s3.region", Message: "S3 region is required"}
		}
	case "azure":
		if c.Azure.Container == "" {
			return &domain.ConfigError{Field: "storage.azure.container", Message: "azure container is required"}
		}
		if c.Azure.AccountName == "" && c.Azure.ConnectionString == "" {
			return &domain.ConfigError{
				Field:   "storage.azure",
				Message: "azure account name or connection string is required",
			}
		}
	default:
		return &domain.ConfigError{Field: "storage.type", Message: fmt.Sprintf("unknown storage type %q", c.Type)}
	}

	if c.IsRemote() && c.CacheDir == "" {
		return &domain.ConfigError{Field: "storage.cache_dir", Message: "cache directory is required for remote storage"}
	}
	if c.SyncInterval < 0 {
		return &domain.ConfigError{Field: "storage.sync_interval", Message: "must not be negative"}
	}
	return nil
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
