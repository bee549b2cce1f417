package domain

import (
	"fmt"
	"strings"

	"github.com/jobrunner/gpkgkit/internal/geom"
)

// DataKind is the gpkg_contents.data_type of a layer.
type DataKind string

// Layer kinds.
const (
	KindFeatures   DataKind = "features"
	KindAttributes DataKind = "attributes"
)

// FieldType is the storage type of a layer field.
type FieldType int

// Field types.
const (
	FieldInteger FieldType = iota + 1
	FieldReal
	FieldText
	FieldBlob
	FieldBoolean
	FieldGeometry
)

// String returns the field type name.
func (t FieldType) String() string {
	switch t {
	case FieldInteger:
		return "integer"
	case FieldReal:
		return "real"
	case FieldText:
		return "text"
	case FieldBlob:
		return "blob"
	case FieldBoolean:
		return "boolean"
	case FieldGeometry:
		return "geometry"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

// ParseFieldType parses a field type name as used in schema files.
func ParseFieldType(s string) (FieldType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "integer", "int", "int64":
		return FieldInteger, nil
	case "real", "double", "float", "float64":
		return FieldReal, nil
	case "text", "string":
		return FieldText, nil
	case "blob", "bytes":
		return FieldBlob, nil
	case "boolean", "bool":
		return FieldBoolean, nil
	case "geometry":
		return FieldGeometry, nil
	}
	return 0, fmt.Errorf("unknown field type %q", s)
}

// FieldDescriptor describes one field of a record shape.
type FieldDescriptor struct {
	Name     string
	Type     FieldType
	Geometry geom.Subtype // set only when Type is FieldGeometry
	Nullable bool
}

// IntegerField declares a 64-bit integer field.
func IntegerField(name string) FieldDescriptor {
	return FieldDescriptor{Name: name, Type: FieldInteger}
}

// RealField declares a 64-bit floating point field.
func RealField(name string) FieldDescriptor {
	return FieldDescriptor{Name: name, Type: FieldReal}
}

// TextField declares a text field.
func TextField(name string) FieldDescriptor {
	return FieldDescriptor{Name: name, Type: FieldText}
}

// BlobField declares a binary field.
func BlobField(name string) FieldDescriptor {
	return FieldDescriptor{Name: name, Type: FieldBlob}
}

// BooleanField declares a boolean field.
func BooleanField(name string) FieldDescriptor {
	return FieldDescriptor{Name: name, Type: FieldBoolean}
}

// GeometryField declares the geometry field of a feature layer.
func GeometryField(name string, subtype geom.Subtype) FieldDescriptor {
	return FieldDescriptor{Name: name, Type: FieldGeometry, Geometry: subtype}
}

// AsNullable returns a copy of f that accepts NULL values.
func (f FieldDescriptor) AsNullable() FieldDescriptor {
	f.Nullable = true
	return f
}

// IsGeometry reports whether f is the geometry field.
func (f FieldDescriptor) IsGeometry() bool {
	return f.Type == FieldGeometry
}

// SQLType returns the GeoPackage column type.
func (f FieldDescriptor) SQLType() string {
	switch f.Type {
	case FieldInteger:
		return "INTEGER"
	case FieldReal:
		return "DOUBLE"
	case FieldText:
		return "TEXT"
	case FieldBlob:
		return "BLOB"
	case FieldBoolean:
		return "BOOLEAN"
	case FieldGeometry:
		return f.Geometry.TypeName()
	}
	return ""
}

// TypeDescriptor is the ordered description of one record shape, built
// once per layer by the caller.
type TypeDescriptor struct {
	Layer       string
	Description string
	Fields      []FieldDescriptor
}

// NewTypeDescriptor creates a descriptor for the named layer.
func NewTypeDescriptor(layer string, fields ...FieldDescriptor) TypeDescriptor {
	return TypeDescriptor{Layer: layer, Fields: fields}
}

// GeometryField returns the geometry field, if any.
func (d TypeDescriptor) GeometryField() (FieldDescriptor, bool) {
	for _, f := range d.Fields {
		if f.IsGeometry() {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// Kind returns features for descriptors with a geometry field, attributes
// otherwise.
func (d TypeDescriptor) Kind() DataKind {
	if _, ok := d.GeometryField(); ok {
		return KindFeatures
	}
	return KindAttributes
}

// FIDColumn is the primary key column every layer table carries.
const FIDColumn = "fid"

var reservedPrefixes = []string{"gpkg_", "sqlite_", "rtree_"}

// Validate checks the descriptor. Failures are *DeclarationError.
func (d TypeDescriptor) Validate() error {
	if strings.TrimSpace(d.Layer) == "" {
		return &DeclarationError{Layer: d.Layer, Message: "layer name is required"}
	}
	lower := strings.ToLower(d.Layer)
	for _, p := range reservedPrefixes {
		if strings.HasPrefix(lower, p) {
			return &DeclarationError{Layer: d.Layer, Message: fmt.Sprintf("layer name must not start with %q", p)}
		}
	}
	if len(d.Fields) == 0 {
		return &DeclarationError{Layer: d.Layer, Message: "at least one field is required"}
	}

	seen := make(map[string]bool, len(d.Fields))
	geometries := 0
	for _, f := range d.Fields {
		name := strings.ToLower(f.Name)
		switch {
		case strings.TrimSpace(f.Name) == "":
			return &DeclarationError{Layer: d.Layer, Message: "field name is required"}
		case name == FIDColumn:
			return &DeclarationError{Layer: d.Layer, Field: f.Name, Message: "fid is reserved for the primary key"}
		case seen[name]:
			return &DeclarationError{Layer: d.Layer, Field: f.Name, Message: "duplicate field name"}
		}
		seen[name] = true

		switch f.Type {
		case FieldInteger, FieldReal, FieldText, FieldBlob, FieldBoolean:
		case FieldGeometry:
			geometries++
			if !f.Geometry.Valid() {
				return &DeclarationError{Layer: d.Layer, Field: f.Name, Message: "unsupported geometry subtype " + f.Geometry.String()}
			}
		default:
			return &DeclarationError{Layer: d.Layer, Field: f.Name, Message: "unsupported field type " + f.Type.String()}
		}
	}
	if geometries > 1 {
		return &DeclarationError{Layer: d.Layer, Message: fmt.Sprintf("%d geometry fields declared, at most one is allowed", geometries)}
	}
	return nil
}
