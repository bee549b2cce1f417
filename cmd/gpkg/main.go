// Package main provides the gpkg command line tool for creating, editing,
// publishing and serving GeoPackage files.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jobrunner/gpkgkit/internal/adapters/geopackage"
	"github.com/jobrunner/gpkgkit/internal/config"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var (
	cfgFile string
	v       = config.New()
	cfg     *config.Config
	logger  = slog.Default()
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gpkg",
	Short: "gpkg - GeoPackage toolkit",
	Long: `gpkg creates, edits and inspects OGC GeoPackage files.

It writes the mandatory catalog tables, declares attribute and feature
layers from YAML schema files, imports and dumps records, publishes files
to object storage and serves a read-only inspection API.

Storage backends: local directory, AWS S3, Azure Blob Storage.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "gpkg %s\n", version)
		fmt.Fprintf(w, "  Commit:     %s\n", commit)
		fmt.Fprintf(w, "  Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (json, text)")
	rootCmd.PersistentFlags().Duration("busy-timeout", 5*time.Second, "how long to wait for a locked database")
	rootCmd.PersistentFlags().String("journal-mode", "delete", "SQLite journal mode for files opened for writing")
	rootCmd.PersistentFlags().String("storage-type", "local", "storage type (local, s3, azure)")
	rootCmd.PersistentFlags().String("storage-path", "./data", "local storage path")

	_ = v.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = v.BindPFlag("geopackage.busy_timeout", rootCmd.PersistentFlags().Lookup("busy-timeout"))
	_ = v.BindPFlag("geopackage.journal_mode", rootCmd.PersistentFlags().Lookup("journal-mode"))
	_ = v.BindPFlag("storage.type", rootCmd.PersistentFlags().Lookup("storage-type"))
	_ = v.BindPFlag("storage.local_path", rootCmd.PersistentFlags().Lookup("storage-path"))

	rootCmd.AddCommand(versionCmd)
}

// loadConfig runs before every command: flags, environment and the config
// file are merged into cfg and the logger is built from it.
func loadConfig(_ *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(v, cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger = setupLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)
	return nil
}

func setupLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// sessionOptions returns the connection settings for files the CLI opens
// for writing.
func sessionOptions() []geopackage.Option {
	opts := []geopackage.Option{geopackage.WithLogger(logger)}
	if cfg != nil {
		opts = append(opts,
			geopackage.WithBusyTimeout(cfg.GeoPackage.BusyTimeout),
			geopackage.WithJournalMode(cfg.GeoPackage.JournalMode),
		)
	}
	return opts
}

// withSession opens path, runs fn and closes the session. A close error is
// returned when fn succeeded.
func withSession(ctx context.Context, path string, fn func(*geopackage.Session) error) (err error) {
	s, err := geopackage.Open(ctx, path, sessionOptions()...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(s)
}
