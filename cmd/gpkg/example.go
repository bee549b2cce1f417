package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jobrunner/gpkgkit/internal/adapters/geopackage"
	"github.com/jobrunner/gpkgkit/internal/domain"
	"github.com/jobrunner/gpkgkit/internal/geom"
)

const defaultExampleFile = "geopackage.gpkg"

// The two layers written by "example create" and read back by
// "example query".
var (
	testTable = domain.NewTypeDescriptor("test_table",
		domain.IntegerField("field1"),
		domain.TextField("field2"),
		domain.RealField("field3"),
	)
	pointLayer = domain.NewTypeDescriptor("point_layer",
		domain.TextField("name"),
		domain.GeometryField("geom", geom.PointZSubtype),
	)
)

var exampleCmd = &cobra.Command{
	Use:   "example",
	Short: "Write or read the demo GeoPackage",
}

var exampleCreateCmd = &cobra.Command{
	Use:   "create [file]",
	Short: "Create the demo GeoPackage with an attribute and a PointZ layer",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := exampleFile(args)
		if err := createExample(cmd.Context(), path, sessionOptions()...); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", path)
		return nil
	},
}

var exampleQueryCmd = &cobra.Command{
	Use:   "query [file]",
	Short: "Print the layer srs and the records of the demo GeoPackage",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return queryExample(cmd.Context(), exampleFile(args), cmd.OutOrStdout(), sessionOptions()...)
	},
}

func init() {
	exampleCmd.AddCommand(exampleCreateCmd, exampleQueryCmd)
	rootCmd.AddCommand(exampleCmd)
}

func exampleFile(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return defaultExampleFile
}

// createExample replaces path with a GeoPackage holding test_table and
// point_layer, the latter in ETRS89 / UTM 32N.
func createExample(ctx context.Context, path string, opts ...geopackage.Option) (err error) {
	s, err := geopackage.Create(ctx, path, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()

	utm := domain.ETRS89UTM32N()
	utm.Description = "ETRS_1989_UTM_Zone_32N"
	if err := s.NewSRS(ctx, utm); err != nil {
		return err
	}

	tables, err := s.CreateLayer(ctx, testTable)
	if err != nil {
		return err
	}
	points, err := s.CreateLayer(ctx, pointLayer)
	if err != nil {
		return err
	}
	if err := s.UpdateLayerSRSID(ctx, pointLayer.Layer, utm.ID); err != nil {
		return err
	}

	err = s.InsertMany(ctx, tables, []domain.Record{
		{"field1": int64(1), "field2": "First", "field3": 1.1},
		{"field1": int64(2), "field2": "Second", "field3": 2.2},
		{"field1": int64(3), "field2": "Third", "field3": 3.3},
	})
	if err != nil {
		return err
	}

	return s.InsertMany(ctx, points, []domain.Record{
		{"name": "Point A", "geom": geom.NewPointZ(400000.0, 5500000.0, 100.0)},
		{"name": "Point B", "geom": geom.NewPointZ(400100.0, 5500100.0, 150.0)},
		{"name": "Point C", "geom": geom.NewPointZ(400200.0, 5500200.0, 200.0)},
	})
}

// queryExample opens path, binds the demo descriptors to the stored layers
// and prints what it finds.
func queryExample(ctx context.Context, path string, w io.Writer, opts ...geopackage.Option) (err error) {
	s, err := geopackage.Open(ctx, path, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()

	id, ok, err := s.GetLayerSRSID(ctx, pointLayer.Layer)
	switch {
	case err != nil:
		return err
	case ok:
		fmt.Fprintf(w, "SRS ID of point_layer: %d\n", id)
	default:
		fmt.Fprintln(w, "Layer point_layer does not have an SRS ID.")
	}

	tables, err := s.ResolveLayer(ctx, testTable)
	if err != nil {
		return err
	}
	for rec, err := range s.GetAll(ctx, tables) {
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Record - field1: %d, field2: %s, field3: %v\n", rec.Int("field1"), rec.String("field2"), rec.Float("field3"))
	}

	points, err := s.ResolveLayer(ctx, pointLayer)
	if err != nil {
		return err
	}
	for rec, err := range s.GetAll(ctx, points) {
		if err != nil {
			return err
		}
		p, ok := rec.Geometry("geom").(geom.Point)
		if !ok {
			return fmt.Errorf("point_layer record %q has no point", rec.String("name"))
		}
		fmt.Fprintf(w, "Record - name: %s, geom: (%.1f, %.1f, %.1f)\n", rec.String("name"), p.X, p.Y, p.Z)
	}
	return nil
}
