package geom

import (
	"fmt"
	"strings"
)

// Subtype is the declared geometry type of a column: a base type plus a
// coordinate layout, e.g. PointZ.
type Subtype struct {
	Type Type
	Dims Layout
}

// Common subtypes.
var (
	PointSubtype      = Subtype{Type: TypePoint, Dims: XY}
	PointZSubtype     = Subtype{Type: TypePoint, Dims: XYZ}
	PointMSubtype     = Subtype{Type: TypePoint, Dims: XYM}
	PointZMSubtype    = Subtype{Type: TypePoint, Dims: XYZM}
	LineStringSubtype = Subtype{Type: TypeLineString, Dims: XY}
	PolygonSubtype    = Subtype{Type: TypePolygon, Dims: XY}
)

// SubtypeOf returns the subtype of a geometry value.
func SubtypeOf(g Geometry) Subtype {
	return Subtype{Type: g.Type(), Dims: g.Layout()}
}

// Valid reports whether the subtype is supported.
func (s Subtype) Valid() bool {
	return s.Type.valid() && s.Dims.Valid()
}

// TypeName returns the geometry_type_name stored in gpkg_geometry_columns.
func (s Subtype) TypeName() string {
	return s.Type.String()
}

// ZFlag returns the gpkg_geometry_columns.z value (0 prohibited, 1 mandatory).
func (s Subtype) ZFlag() int {
	if s.Dims.HasZ() {
		return 1
	}
	return 0
}

// MFlag returns the gpkg_geometry_columns.m value.
func (s Subtype) MFlag() int {
	if s.Dims.HasM() {
		return 1
	}
	return 0
}

// String returns the subtype name, e.g. "PointZ".
func (s Subtype) String() string {
	var base string
	switch s.Type {
	case TypePoint:
		base = "Point"
	case TypeLineString:
		base = "LineString"
	case TypePolygon:
		base = "Polygon"
	default:
		return fmt.Sprintf("Subtype(%d,%s)", uint32(s.Type), s.Dims)
	}
	switch s.Dims {
	case XYZ:
		return base + "Z"
	case XYM:
		return base + "M"
	case XYZM:
		return base + "ZM"
	}
	return base
}

// ParseSubtype parses names such as "Point", "PointZ", "LineStringZM" or
// "POLYGONM". Matching is case-insensitive.
func ParseSubtype(name string) (Subtype, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for _, base := range []struct {
		prefix string
		typ    Type
	}{
		{"LINESTRING", TypeLineString},
		{"POLYGON", TypePolygon},
		{"POINT", TypePoint},
	} {
		if !strings.HasPrefix(upper, base.prefix) {
			continue
		}
		switch strings.TrimSpace(upper[len(base.prefix):]) {
		case "":
			return Subtype{Type: base.typ, Dims: XY}, nil
		case "Z":
			return Subtype{Type: base.typ, Dims: XYZ}, nil
		case "M":
			return Subtype{Type: base.typ, Dims: XYM}, nil
		case "ZM":
			return Subtype{Type: base.typ, Dims: XYZM}, nil
		}
	}
	return Subtype{}, fmt.Errorf("unknown geometry subtype %q", name)
}

// SubtypeFromColumn rebuilds a subtype from the gpkg_geometry_columns fields.
// z and m values of 2 (optional) are treated as present.
func SubtypeFromColumn(typeName string, z, m int) (Subtype, error) {
	base, err := ParseSubtype(typeName)
	if err != nil {
		return Subtype{}, err
	}
	base.Dims = layoutFromFlags(z != 0, m != 0)
	return base, nil
}
