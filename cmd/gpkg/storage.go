package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jobrunner/gpkgkit/internal/adapters/geopackage"
	"github.com/jobrunner/gpkgkit/internal/app"
	"github.com/jobrunner/gpkgkit/internal/application"
	"github.com/jobrunner/gpkgkit/internal/ports/output"
)

var publishCmd = &cobra.Command{
	Use:   "publish <file>",
	Short: "Upload a GeoPackage to the configured storage",
	Long: `Upload a GeoPackage to the configured storage backend.

The file is opened and checked before anything is uploaded. The object key
defaults to the file name.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("key")
		svc, err := newPublishService(cmd.Context())
		if err != nil {
			return err
		}
		pkg, err := svc.Publish(cmd.Context(), args[0], key)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "published %s (%d layers)\n", pkg.Name, pkg.LayerCount())
		return nil
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <key>",
	Short: "Download a GeoPackage from the configured storage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest, _ := cmd.Flags().GetString("dest")
		if dest == "" {
			dest = filepath.Base(filepath.FromSlash(args[0]))
		}
		svc, err := newPublishService(cmd.Context())
		if err != nil {
			return err
		}
		pkg, err := svc.Fetch(cmd.Context(), args[0], dest)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "fetched %s to %s (%d layers)\n", args[0], dest, pkg.LayerCount())
		return nil
	},
}

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "List the GeoPackages held by the configured storage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, err := newPublishService(cmd.Context())
		if err != nil {
			return err
		}
		packages, err := svc.List(cmd.Context())
		if err != nil {
			return err
		}
		return printPackages(cmd.OutOrStdout(), packages)
	},
}

func init() {
	publishCmd.Flags().String("key", "", "object key (default: file name)")
	fetchCmd.Flags().String("dest", "", "destination file (default: base name of key)")

	rootCmd.AddCommand(publishCmd, fetchCmd, remoteCmd)
}

func newPublishService(ctx context.Context) (*application.PublishService, error) {
	store, err := app.NewStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	metrics := &output.NoOpMetrics{}
	repo := geopackage.NewRepository(logger, metrics, geopackage.WithBusyTimeout(cfg.GeoPackage.BusyTimeout))
	return application.NewPublishService(repo, store, metrics, logger), nil
}

func printPackages(w io.Writer, packages []output.RemotePackage) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSIZE\tMODIFIED")
	for _, obj := range packages {
		modified := "-"
		if !obj.ModTime.IsZero() {
			modified = obj.ModTime.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", obj.Key, obj.Size, modified)
	}
	return tw.Flush()
}
