// Package geom provides geometry value types and the GeoPackage binary
// geometry codec (envelope header + ISO WKB body).
package geom

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Layout describes which ordinates a coordinate carries.
type Layout uint8

// Coordinate layouts.
const (
	XY Layout = iota
	XYZ
	XYM
	XYZM
)

// Stride returns the number of ordinates per coordinate.
func (l Layout) Stride() int {
	switch l {
	case XYZ, XYM:
		return 3
	case XYZM:
		return 4
	default:
		return 2
	}
}

// HasZ reports whether the layout carries a Z ordinate.
func (l Layout) HasZ() bool { return l == XYZ || l == XYZM }

// HasM reports whether the layout carries an M ordinate.
func (l Layout) HasM() bool { return l == XYM || l == XYZM }

// Valid reports whether l is one of the known layouts.
func (l Layout) Valid() bool { return l <= XYZM }

// String returns the layout name.
func (l Layout) String() string {
	switch l {
	case XY:
		return "XY"
	case XYZ:
		return "XYZ"
	case XYM:
		return "XYM"
	case XYZM:
		return "XYZM"
	default:
		return fmt.Sprintf("Layout(%d)", uint8(l))
	}
}

// layoutFromFlags maps z/m presence to a layout.
func layoutFromFlags(z, m bool) Layout {
	switch {
	case z && m:
		return XYZM
	case z:
		return XYZ
	case m:
		return XYM
	default:
		return XY
	}
}

// Type is the ISO WKB base geometry type code.
type Type uint32

// Supported geometry types.
const (
	TypePoint      Type = 1
	TypeLineString Type = 2
	TypePolygon    Type = 3
)

// String returns the GeoPackage geometry type name (as stored in
// gpkg_geometry_columns.geometry_type_name).
func (t Type) String() string {
	switch t {
	case TypePoint:
		return "POINT"
	case TypeLineString:
		return "LINESTRING"
	case TypePolygon:
		return "POLYGON"
	default:
		return fmt.Sprintf("TYPE(%d)", uint32(t))
	}
}

func (t Type) valid() bool {
	return t == TypePoint || t == TypeLineString || t == TypePolygon
}

// Geometry is implemented by every geometry value.
type Geometry interface {
	Type() Type
	Layout() Layout
	IsEmpty() bool
	Envelope() Envelope
}

// Coord is a single position. Z and M are only meaningful when the owning
// geometry's layout carries them.
type Coord struct {
	X, Y, Z, M float64
}

// Point is a single position geometry.
type Point struct {
	X, Y, Z, M float64
	Dims       Layout
}

// NewPoint creates a two-dimensional point.
func NewPoint(x, y float64) Point {
	return Point{X: x, Y: y, Dims: XY}
}

// NewPointZ creates a three-dimensional point.
func NewPointZ(x, y, z float64) Point {
	return Point{X: x, Y: y, Z: z, Dims: XYZ}
}

// NewPointM creates a measured two-dimensional point.
func NewPointM(x, y, m float64) Point {
	return Point{X: x, Y: y, M: m, Dims: XYM}
}

// NewPointZM creates a measured three-dimensional point.
func NewPointZM(x, y, z, m float64) Point {
	return Point{X: x, Y: y, Z: z, M: m, Dims: XYZM}
}

// EmptyPoint returns the empty point for a layout. Empty points carry NaN
// ordinates.
func EmptyPoint(l Layout) Point {
	nan := math.NaN()
	return Point{X: nan, Y: nan, Z: nan, M: nan, Dims: l}
}

// Type implements Geometry.
func (p Point) Type() Type { return TypePoint }

// Layout implements Geometry.
func (p Point) Layout() Layout { return p.Dims }

// IsEmpty implements Geometry.
func (p Point) IsEmpty() bool { return math.IsNaN(p.X) && math.IsNaN(p.Y) }

// Envelope implements Geometry.
func (p Point) Envelope() Envelope {
	if p.IsEmpty() {
		return Envelope{Dims: p.Dims, Empty: true}
	}
	return envelopeOf(p.Dims, []Coord{p.Coord()})
}

// Coord returns the point's position.
func (p Point) Coord() Coord {
	return Coord{X: p.X, Y: p.Y, Z: p.Z, M: p.M}
}

// String returns a WKT-like representation.
func (p Point) String() string {
	if p.IsEmpty() {
		return "POINT" + wktSuffix(p.Dims) + " EMPTY"
	}
	return "POINT" + wktSuffix(p.Dims) + "(" + formatCoord(p.Dims, p.Coord()) + ")"
}

// LineString is an ordered sequence of positions.
type LineString struct {
	Dims   Layout
	Coords []Coord
}

// Type implements Geometry.
func (l LineString) Type() Type { return TypeLineString }

// Layout implements Geometry.
func (l LineString) Layout() Layout { return l.Dims }

// IsEmpty implements Geometry.
func (l LineString) IsEmpty() bool { return len(l.Coords) == 0 }

// Envelope implements Geometry.
func (l LineString) Envelope() Envelope {
	if l.IsEmpty() {
		return Envelope{Dims: l.Dims, Empty: true}
	}
	return envelopeOf(l.Dims, l.Coords)
}

// String returns a WKT-like representation.
func (l LineString) String() string {
	if l.IsEmpty() {
		return "LINESTRING" + wktSuffix(l.Dims) + " EMPTY"
	}
	return "LINESTRING" + wktSuffix(l.Dims) + "(" + formatCoords(l.Dims, l.Coords) + ")"
}

// Polygon is a set of rings; the first ring is the exterior.
type Polygon struct {
	Dims  Layout
	Rings [][]Coord
}

// Type implements Geometry.
func (p Polygon) Type() Type { return TypePolygon }

// Layout implements Geometry.
func (p Polygon) Layout() Layout { return p.Dims }

// IsEmpty implements Geometry.
func (p Polygon) IsEmpty() bool { return len(p.Rings) == 0 }

// Envelope implements Geometry. Only the exterior ring contributes.
func (p Polygon) Envelope() Envelope {
	if p.IsEmpty() || len(p.Rings[0]) == 0 {
		return Envelope{Dims: p.Dims, Empty: true}
	}
	return envelopeOf(p.Dims, p.Rings[0])
}

// String returns a WKT-like representation.
func (p Polygon) String() string {
	if p.IsEmpty() {
		return "POLYGON" + wktSuffix(p.Dims) + " EMPTY"
	}
	rings := make([]string, len(p.Rings))
	for i, r := range p.Rings {
		rings[i] = "(" + formatCoords(p.Dims, r) + ")"
	}
	return "POLYGON" + wktSuffix(p.Dims) + "(" + strings.Join(rings, ", ") + ")"
}

// IsNil reports whether g is nil or a nil pointer geometry.
func IsNil(g Geometry) bool {
	switch v := g.(type) {
	case nil:
		return true
	case *Point:
		return v == nil
	case *LineString:
		return v == nil
	case *Polygon:
		return v == nil
	}
	return false
}

// deref returns the value form of a pointer geometry.
func deref(g Geometry) Geometry {
	switch v := g.(type) {
	case *Point:
		return *v
	case *LineString:
		return *v
	case *Polygon:
		return *v
	}
	return g
}

// Equal reports whether two geometries carry bit-identical ordinates.
// NaN ordinates compare equal to NaN. A pointer geometry equals its value.
func Equal(a, b Geometry) bool {
	if IsNil(a) || IsNil(b) {
		return IsNil(a) && IsNil(b)
	}
	a, b = deref(a), deref(b)
	if a.Type() != b.Type() || a.Layout() != b.Layout() {
		return false
	}
	l := a.Layout()
	switch av := a.(type) {
	case Point:
		bv, ok := b.(Point)
		return ok && coordEqual(l, av.Coord(), bv.Coord())
	case LineString:
		bv, ok := b.(LineString)
		return ok && coordsEqual(l, av.Coords, bv.Coords)
	case Polygon:
		bv, ok := b.(Polygon)
		if !ok || len(av.Rings) != len(bv.Rings) {
			return false
		}
		for i := range av.Rings {
			if !coordsEqual(l, av.Rings[i], bv.Rings[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func coordsEqual(l Layout, a, b []Coord) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !coordEqual(l, a[i], b[i]) {
			return false
		}
	}
	return true
}

func coordEqual(l Layout, a, b Coord) bool {
	same := func(x, y float64) bool { return math.Float64bits(x) == math.Float64bits(y) }
	if !same(a.X, b.X) || !same(a.Y, b.Y) {
		return false
	}
	if l.HasZ() && !same(a.Z, b.Z) {
		return false
	}
	if l.HasM() && !same(a.M, b.M) {
		return false
	}
	return true
}

func wktSuffix(l Layout) string {
	switch l {
	case XYZ:
		return " Z"
	case XYM:
		return " M"
	case XYZM:
		return " ZM"
	default:
		return ""
	}
}

func formatCoord(l Layout, c Coord) string {
	s := formatOrdinate(c.X) + " " + formatOrdinate(c.Y)
	if l.HasZ() {
		s += " " + formatOrdinate(c.Z)
	}
	if l.HasM() {
		s += " " + formatOrdinate(c.M)
	}
	return s
}

// formatOrdinate avoids exponent notation for projected coordinates.
func formatOrdinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatCoords(l Layout, cs []Coord) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = formatCoord(l, c)
	}
	return strings.Join(parts, ", ")
}
