package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jobrunner/gpkgkit/internal/domain"
	"github.com/jobrunner/gpkgkit/internal/geom"
)

// layerFile is the YAML form of a layer declaration:
//
//	layer: point_layer
//	srs_id: 25832
//	fields:
//	  - {name: name, type: text}
//	  - {name: geom, type: geometry, geometry: PointZ}
type layerFile struct {
	Layer       string      `yaml:"layer"`
	Description string      `yaml:"description,omitempty"`
	SRSID       *int        `yaml:"srs_id,omitempty"`
	Fields      []fieldFile `yaml:"fields"`
}

type fieldFile struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Geometry string `yaml:"geometry,omitempty"`
	Nullable bool   `yaml:"nullable,omitempty"`
}

// recordsFile is the YAML form of a batch of records. Geometry values are
// coordinate arrays nested to the depth of their type.
type recordsFile struct {
	Records []map[string]interface{} `yaml:"records"`
}

func readYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// descriptor converts the file into a TypeDescriptor.
func (l layerFile) descriptor() (domain.TypeDescriptor, error) {
	fields := make([]domain.FieldDescriptor, 0, len(l.Fields))
	for _, f := range l.Fields {
		t, err := domain.ParseFieldType(f.Type)
		if err != nil {
			return domain.TypeDescriptor{}, &domain.DeclarationError{Layer: l.Layer, Field: f.Name, Message: err.Error()}
		}

		fd := domain.FieldDescriptor{Name: f.Name, Type: t, Nullable: f.Nullable}
		if t == domain.FieldGeometry {
			st, err := geom.ParseSubtype(f.Geometry)
			if err != nil {
				return domain.TypeDescriptor{}, &domain.DeclarationError{Layer: l.Layer, Field: f.Name, Message: err.Error()}
			}
			fd.Geometry = st
		}
		fields = append(fields, fd)
	}

	desc := domain.NewTypeDescriptor(l.Layer, fields...)
	desc.Description = l.Description
	return desc, nil
}

// layerFileOf is the inverse of descriptor, used by "layer describe".
func layerFileOf(desc domain.TypeDescriptor, srsID *int) layerFile {
	l := layerFile{Layer: desc.Layer, Description: desc.Description, SRSID: srsID}
	for _, f := range desc.Fields {
		ff := fieldFile{Name: f.Name, Type: f.Type.String(), Nullable: f.Nullable}
		if f.IsGeometry() {
			ff.Geometry = f.Geometry.String()
		}
		l.Fields = append(l.Fields, ff)
	}
	return l
}

// toRecord converts one decoded YAML mapping into a record for desc.
// Unknown keys are kept so the record mapper can reject them.
func toRecord(desc domain.TypeDescriptor, raw map[string]interface{}) (domain.Record, error) {
	rec := make(domain.Record, len(raw))
	for k, v := range raw {
		rec[k] = v
	}

	for _, f := range desc.Fields {
		v, ok := raw[f.Name]
		if !ok || v == nil {
			continue
		}
		switch f.Type {
		case domain.FieldGeometry:
			g, err := parseGeometry(f.Geometry, v)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			rec[f.Name] = g
		case domain.FieldBlob:
			if s, ok := v.(string); ok {
				rec[f.Name] = []byte(s)
			}
		}
	}
	return rec, nil
}

// parseGeometry builds a geometry of subtype st from nested coordinate
// arrays: [x, y, ...] for points, a list of those for line strings and a
// list of rings for polygons.
func parseGeometry(st geom.Subtype, v interface{}) (geom.Geometry, error) {
	switch st.Type {
	case geom.TypePoint:
		c, err := parseCoord(st.Dims, v)
		if err != nil {
			return nil, err
		}
		return geom.Point{X: c.X, Y: c.Y, Z: c.Z, M: c.M, Dims: st.Dims}, nil
	case geom.TypeLineString:
		cs, err := parseCoords(st.Dims, v)
		if err != nil {
			return nil, err
		}
		return geom.LineString{Dims: st.Dims, Coords: cs}, nil
	case geom.TypePolygon:
		list, ok := v.([]interface{})
		if !ok {
			return nil, fmt.Errorf("polygon must be a list of rings, got %T", v)
		}
		rings := make([][]geom.Coord, len(list))
		for i, r := range list {
			cs, err := parseCoords(st.Dims, r)
			if err != nil {
				return nil, fmt.Errorf("ring %d: %w", i, err)
			}
			rings[i] = cs
		}
		return geom.Polygon{Dims: st.Dims, Rings: rings}, nil
	}
	return nil, fmt.Errorf("unsupported geometry subtype %s", st)
}

func parseCoords(l geom.Layout, v interface{}) ([]geom.Coord, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a list of coordinates, got %T", v)
	}
	cs := make([]geom.Coord, len(list))
	for i, item := range list {
		c, err := parseCoord(l, item)
		if err != nil {
			return nil, fmt.Errorf("coordinate %d: %w", i, err)
		}
		cs[i] = c
	}
	return cs, nil
}

func parseCoord(l geom.Layout, v interface{}) (geom.Coord, error) {
	list, ok := v.([]interface{})
	if !ok {
		return geom.Coord{}, fmt.Errorf("expected a coordinate array, got %T", v)
	}
	if len(list) != l.Stride() {
		return geom.Coord{}, fmt.Errorf("%s coordinate needs %d values, got %d", l, l.Stride(), len(list))
	}

	vals := make([]float64, len(list))
	for i, item := range list {
		switch n := item.(type) {
		case int:
			vals[i] = float64(n)
		case float64:
			vals[i] = n
		default:
			return geom.Coord{}, fmt.Errorf("ordinate %d is %T, not a number", i, item)
		}
	}

	c := geom.Coord{X: vals[0], Y: vals[1]}
	switch l {
	case geom.XYZ:
		c.Z = vals[2]
	case geom.XYM:
		c.M = vals[2]
	case geom.XYZM:
		c.Z, c.M = vals[2], vals[3]
	}
	return c, nil
}

// recordNode renders rec as a YAML mapping in descriptor order with
// geometries as WKT.
func recordNode(desc domain.TypeDescriptor, rec domain.Record) (*yaml.Node, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range desc.Fields {
		var val yaml.Node
		if err := val.Encode(displayValue(rec[f.Name])); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, strNode(f.Name), &val)
	}
	return node, nil
}

func strNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

// displayValue renders geometries as WKT and blobs as strings.
func displayValue(v interface{}) interface{} {
	switch x := v.(type) {
	case geom.Geometry:
		return fmt.Sprint(x)
	case []byte:
		return string(x)
	}
	return v
}

// recordMap is the JSON form of rec.
func recordMap(rec domain.Record) map[string]interface{} {
	out := make(map[string]interface{}, len(rec))
	for k, v := range rec {
		out[k] = displayValue(v)
	}
	return out
}
