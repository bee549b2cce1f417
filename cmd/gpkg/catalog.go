package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jobrunner/gpkgkit/internal/adapters/geopackage"
	"github.com/jobrunner/gpkgkit/internal/domain"
)

var initCmd = &cobra.Command{
	Use:   "init <file>",
	Short: "Create an empty GeoPackage, replacing any existing file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := geopackage.Create(cmd.Context(), args[0], sessionOptions()...)
		if err != nil {
			return err
		}
		if err := s.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", args[0])
		return nil
	},
}

var srsCmd = &cobra.Command{
	Use:   "srs",
	Short: "Manage spatial reference systems",
}

var srsAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Register a spatial reference system",
	Args:  cobra.ExactArgs(1),
	RunE:  runSRSAdd,
}

var srsListCmd = &cobra.Command{
	Use:   "list <file>",
	Short: "List spatial reference systems",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), args[0], func(s *geopackage.Session) error {
			systems, err := s.SpatialRefSystems(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tAUTHORITY")
			for _, srs := range systems {
				fmt.Fprintf(tw, "%d\t%s\t%s:%d\n", srs.ID, srs.Name, srs.Organization, srs.OrganizationCoordSysID)
			}
			return tw.Flush()
		})
	},
}

var layerCmd = &cobra.Command{
	Use:   "layer",
	Short: "Declare and inspect layers",
}

var layerCreateCmd = &cobra.Command{
	Use:   "create <file>",
	Short: "Declare a layer from a YAML schema file",
	Args:  cobra.ExactArgs(1),
	RunE:  runLayerCreate,
}

var layerListCmd = &cobra.Command{
	Use:   "list <file>",
	Short: "List the layers in gpkg_contents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), args[0], func(s *geopackage.Session) error {
			layers, err := s.Layers(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tKIND\tGEOMETRY\tSRS\tRECORDS")
			for _, l := range layers {
				geometry, srs := "-", "-"
				if l.HasGeometry() {
					geometry = l.GeometryColumn + " " + l.GeometryType.String()
				}
				if l.SRSID != nil {
					srs = strconv.Itoa(*l.SRSID)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", l.Name, l.Kind, geometry, srs, l.RecordCount)
			}
			return tw.Flush()
		})
	},
}

var layerSRSCmd = &cobra.Command{
	Use:   "srs <file> <layer> [srs-id]",
	Short: "Show or set the spatial reference system of a layer",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runLayerSRS,
}

var layerDescribeCmd = &cobra.Command{
	Use:   "describe <file> <layer>",
	Short: "Print the schema of a layer in the format accepted by layer create",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), args[0], func(s *geopackage.Session) error {
			desc, err := s.DescribeLayer(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			var srsID *int
			if id, ok, err := s.GetLayerSRSID(cmd.Context(), args[1]); err != nil {
				return err
			} else if ok {
				srsID = &id
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(layerFileOf(desc, srsID)); err != nil {
				return err
			}
			return enc.Close()
		})
	},
}

func init() {
	srsAddCmd.Flags().Int("id", 0, "srs_id to register")
	srsAddCmd.Flags().String("name", "", "srs_name")
	srsAddCmd.Flags().String("organization", "EPSG", "defining organization")
	srsAddCmd.Flags().Int("code", 0, "organization code (default: the srs id)")
	srsAddCmd.Flags().String("definition", "", "WKT definition")
	srsAddCmd.Flags().String("description", "", "description")
	srsAddCmd.Flags().String("preset", "", "register a known system instead (etrs89-utm32n)")
	srsCmd.AddCommand(srsAddCmd, srsListCmd)

	layerCreateCmd.Flags().String("schema", "", "YAML schema file (required)")
	_ = layerCreateCmd.MarkFlagRequired("schema")
	layerCmd.AddCommand(layerCreateCmd, layerListCmd, layerSRSCmd, layerDescribeCmd)

	rootCmd.AddCommand(initCmd, srsCmd, layerCmd)
}

// presets are the systems srs add can register by name.
var presets = map[string]func() domain.SpatialRefSys{
	"etrs89-utm32n": domain.ETRS89UTM32N,
}

func runSRSAdd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	var srs domain.SpatialRefSys
	if preset, _ := flags.GetString("preset"); preset != "" {
		build, ok := presets[preset]
		if !ok {
			return &domain.ValidationError{Field: "preset", Value: preset, Message: "unknown preset"}
		}
		srs = build()
	} else {
		srs.ID, _ = flags.GetInt("id")
		srs.Name, _ = flags.GetString("name")
		srs.Organization, _ = flags.GetString("organization")
		srs.OrganizationCoordSysID, _ = flags.GetInt("code")
		srs.Definition, _ = flags.GetString("definition")
		srs.Description, _ = flags.GetString("description")
		if !flags.Changed("code") {
			srs.OrganizationCoordSysID = srs.ID
		}
	}

	return withSession(cmd.Context(), args[0], func(s *geopackage.Session) error {
		if err := s.NewSRS(cmd.Context(), srs); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "registered srs %d (%s)\n", srs.ID, srs)
		return nil
	})
}

func runLayerCreate(cmd *cobra.Command, args []string) error {
	schemaPath, _ := cmd.Flags().GetString("schema")

	var lf layerFile
	if err := readYAML(schemaPath, &lf); err != nil {
		return err
	}
	desc, err := lf.descriptor()
	if err != nil {
		return err
	}

	return withSession(cmd.Context(), args[0], func(s *geopackage.Session) error {
		if _, err := s.CreateLayer(cmd.Context(), desc); err != nil {
			return err
		}
		if lf.SRSID != nil {
			if err := s.UpdateLayerSRSID(cmd.Context(), desc.Layer, *lf.SRSID); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s layer %s\n", desc.Kind(), desc.Layer)
		return nil
	})
}

func runLayerSRS(cmd *cobra.Command, args []string) error {
	path, layer := args[0], args[1]

	return withSession(cmd.Context(), path, func(s *geopackage.Session) error {
		if len(args) == 3 {
			id, err := strconv.Atoi(args[2])
			if err != nil {
				return &domain.ValidationError{Field: "srs-id", Value: args[2], Message: "must be an integer"}
			}
			if err := s.UpdateLayerSRSID(cmd.Context(), layer, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "srs of %s set to %d\n", layer, id)
			return nil
		}

		id, ok, err := s.GetLayerSRSID(cmd.Context(), layer)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(cmd.OutOrStdout(), "layer %s has no srs\n", layer)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	})
}
