package geom

import (
	"encoding/binary"
	"math"
)

// GeoPackage binary header constants.
const (
	magic0  byte = 'G'
	magic1  byte = 'P'
	Version byte = 0

	flagLittleEndian byte = 0x01
	flagEnvelopeMask byte = 0x0E
	flagEmpty        byte = 0x10
	flagExtended     byte = 0x20
	flagReserved     byte = 0xC0

	// fixed header: magic(2) + version(1) + flags(1) + srs_id(4)
	fixedHeaderSize = 8
)

// WKB byte order markers.
const (
	wkbBigEndian    byte = 0
	wkbLittleEndian byte = 1
)

// ByteOrder selects the byte order used when encoding.
type ByteOrder uint8

// Byte orders.
const (
	LittleEndian ByteOrder = iota
	BigEndian
)

func (o ByteOrder) binary() binary.AppendByteOrder {
	if o == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Header is the decoded GeoPackage binary header.
type Header struct {
	Version  byte
	Order    ByteOrder
	SRSID    int32
	Envelope *Envelope // nil when the header carries no envelope
	Empty    bool
	Size     int // header length in bytes; the WKB body starts here
}

// Encode encodes g in little-endian GeoPackage binary form with the given
// srs id. The envelope is computed from g's own coordinates.
func Encode(srsID int32, g Geometry) ([]byte, error) {
	return EncodeWithOrder(srsID, g, LittleEndian)
}

// EncodeWithOrder encodes g using the given byte order for the header and
// the WKB body.
func EncodeWithOrder(srsID int32, g Geometry, order ByteOrder) ([]byte, error) {
	if IsNil(g) {
		return nil, ErrNilGeometry
	}
	if !g.Layout().Valid() {
		return nil, ErrInvalidLayout
	}
	if !g.Type().valid() {
		return nil, ErrUnknownGeometry
	}

	w := &writer{order: order.binary()}

	flags := byte(0)
	if order == LittleEndian {
		flags |= flagLittleEndian
	}
	empty := g.IsEmpty()
	var env Envelope
	if empty {
		flags |= flagEmpty
	} else {
		env = g.Envelope()
		flags |= envelopeCode(g.Layout()) << 1
	}

	w.buf = append(w.buf, magic0, magic1, Version, flags)
	w.u32(uint32(srsID))
	if !empty {
		for _, v := range env.values() {
			w.f64(v)
		}
	}

	if err := w.geometry(g, order); err != nil {
		return nil, err
	}
	return w.buf, nil
}

type writer struct {
	buf   []byte
	order binary.AppendByteOrder
}

func (w *writer) u32(v uint32) { w.buf = w.order.AppendUint32(w.buf, v) }

func (w *writer) f64(v float64) { w.buf = w.order.AppendUint64(w.buf, math.Float64bits(v)) }

func (w *writer) coord(l Layout, c Coord) {
	w.f64(c.X)
	w.f64(c.Y)
	if l.HasZ() {
		w.f64(c.Z)
	}
	if l.HasM() {
		w.f64(c.M)
	}
}

func (w *writer) coords(l Layout, cs []Coord) {
	w.u32(uint32(len(cs)))
	for _, c := range cs {
		w.coord(l, c)
	}
}

// geometry writes an ISO WKB body.
func (w *writer) geometry(g Geometry, order ByteOrder) error {
	if order == LittleEndian {
		w.buf = append(w.buf, wkbLittleEndian)
	} else {
		w.buf = append(w.buf, wkbBigEndian)
	}
	l := g.Layout()
	w.u32(wkbTypeCode(g.Type(), l))

	switch v := g.(type) {
	case Point:
		w.coord(l, v.Coord())
	case *Point:
		w.coord(l, v.Coord())
	case LineString:
		w.coords(l, v.Coords)
	case *LineString:
		w.coords(l, v.Coords)
	case Polygon:
		w.rings(l, v.Rings)
	case *Polygon:
		w.rings(l, v.Rings)
	default:
		return ErrUnknownGeometry
	}
	return nil
}

func (w *writer) rings(l Layout, rings [][]Coord) {
	w.u32(uint32(len(rings)))
	for _, r := range rings {
		w.coords(l, r)
	}
}

func wkbTypeCode(t Type, l Layout) uint32 {
	code := uint32(t)
	switch l {
	case XYZ:
		code += 1000
	case XYM:
		code += 2000
	case XYZM:
		code += 3000
	}
	return code
}

// DecodeHeader parses only the GeoPackage binary header.
func DecodeHeader(b []byte) (Header, error) {
	r := &reader{b: b}

	if len(b) < 2 {
		if len(b) == 1 && b[0] != magic0 {
			return Header{}, formatErr(BadMagic, 0, "expected 'GP'")
		}
		return Header{}, formatErr(Truncated, 0, "need 2 magic bytes, have %d", len(b))
	}
	if b[0] != magic0 || b[1] != magic1 {
		return Header{}, formatErr(BadMagic, 0, "expected 'GP', got %q", b[:2])
	}
	r.off = 2

	version, err := r.readByte("version")
	if err != nil {
		return Header{}, err
	}
	if version != Version {
		return Header{}, formatErr(UnsupportedVersion, 2, "version %d", version)
	}

	flags, err := r.readByte("flags")
	if err != nil {
		return Header{}, err
	}
	if flags&flagExtended != 0 {
		return Header{}, formatErr(BadFlags, 3, "extended geometry binary is not supported")
	}
	if flags&flagReserved != 0 {
		return Header{}, formatErr(BadFlags, 3, "reserved flag bits set (0x%02x)", flags)
	}

	h := Header{Version: version, Order: BigEndian, Empty: flags&flagEmpty != 0}
	r.order = binary.BigEndian
	if flags&flagLittleEndian != 0 {
		h.Order = LittleEndian
		r.order = binary.LittleEndian
	}

	srs, err := r.u32("srs_id")
	if err != nil {
		return Header{}, err
	}
	h.SRSID = int32(srs)

	code := (flags & flagEnvelopeMask) >> 1
	if code != 0 {
		l, ok := envelopeLayout(code)
		if !ok {
			return Header{}, formatErr(BadFlags, 3, "reserved envelope indicator %d", code)
		}
		n := 4 + 2*(l.Stride()-2)
		vals := make([]float64, n)
		for i := range vals {
			if vals[i], err = r.f64("envelope"); err != nil {
				return Header{}, err
			}
		}
		env := envelopeFromValues(l, vals)
		h.Envelope = &env
	}

	h.Size = r.off
	return h, nil
}

// Decode parses GeoPackage binary geometry bytes. Malformed input returns a
// *FormatError.
func Decode(b []byte) (Geometry, error) {
	g, _, err := DecodeWithHeader(b)
	return g, err
}

// DecodeWithHeader parses the header and the geometry body.
func DecodeWithHeader(b []byte) (Geometry, Header, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return nil, Header{}, err
	}

	r := &reader{b: b, off: h.Size}
	g, err := r.geometry()
	if err != nil {
		return nil, Header{}, err
	}

	if h.Envelope != nil && h.Envelope.Dims != g.Layout() {
		return nil, Header{}, formatErr(DimensionMismatch, 3,
			"header envelope is %s but geometry body is %s", h.Envelope.Dims, g.Layout())
	}
	return g, h, nil
}

type reader struct {
	b     []byte
	off   int
	order binary.ByteOrder
}

func (r *reader) need(n int, what string) error {
	if len(r.b)-r.off < n {
		return formatErr(Truncated, r.off, "%s needs %d bytes, %d left", what, n, len(r.b)-r.off)
	}
	return nil
}

func (r *reader) readByte(what string) (byte, error) {
	if err := r.need(1, what); err != nil {
		return 0, err
	}
	v := r.b[r.off]
	r.off++
	return v, nil
}

func (r *reader) u32(what string) (uint32, error) {
	if err := r.need(4, what); err != nil {
		return 0, err
	}
	v := r.order.Uint32(r.b[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) f64(what string) (float64, error) {
	if err := r.need(8, what); err != nil {
		return 0, err
	}
	v := math.Float64frombits(r.order.Uint64(r.b[r.off:]))
	r.off += 8
	return v, nil
}

func (r *reader) coord(l Layout) (Coord, error) {
	var c Coord
	var err error
	if c.X, err = r.f64("x ordinate"); err != nil {
		return c, err
	}
	if c.Y, err = r.f64("y ordinate"); err != nil {
		return c, err
	}
	if l.HasZ() {
		if c.Z, err = r.f64("z ordinate"); err != nil {
			return c, err
		}
	}
	if l.HasM() {
		if c.M, err = r.f64("m ordinate"); err != nil {
			return c, err
		}
	}
	return c, nil
}

// count reads an element count and checks that the remaining input can hold
// count elements of at least minSize bytes each.
func (r *reader) count(what string, minSize int) (int, error) {
	start := r.off
	n, err := r.u32(what)
	if err != nil {
		return 0, err
	}
	if uint64(n)*uint64(minSize) > uint64(len(r.b)-r.off) {
		return 0, formatErr(Truncated, start, "%s of %d does not fit in %d remaining bytes", what, n, len(r.b)-r.off)
	}
	return int(n), nil
}

func (r *reader) coords(l Layout) ([]Coord, error) {
	n, err := r.count("point count", 8*l.Stride())
	if err != nil {
		return nil, err
	}
	cs := make([]Coord, n)
	for i := range cs {
		if cs[i], err = r.coord(l); err != nil {
			return nil, err
		}
	}
	return cs, nil
}

// geometry reads an ISO WKB body.
func (r *reader) geometry() (Geometry, error) {
	start := r.off
	bo, err := r.readByte("wkb byte order")
	if err != nil {
		return nil, err
	}
	switch bo {
	case wkbLittleEndian:
		r.order = binary.LittleEndian
	case wkbBigEndian:
		r.order = binary.BigEndian
	default:
		return nil, formatErr(BadFlags, start, "invalid wkb byte order %d", bo)
	}

	code, err := r.u32("wkb type")
	if err != nil {
		return nil, err
	}
	t := Type(code % 1000)
	var l Layout
	switch code / 1000 {
	case 0:
		l = XY
	case 1:
		l = XYZ
	case 2:
		l = XYM
	case 3:
		l = XYZM
	default:
		return nil, formatErr(UnsupportedType, start+1, "wkb type %d", code)
	}

	switch t {
	case TypePoint:
		c, err := r.coord(l)
		if err != nil {
			return nil, err
		}
		return Point{X: c.X, Y: c.Y, Z: c.Z, M: c.M, Dims: l}, nil
	case TypeLineString:
		cs, err := r.coords(l)
		if err != nil {
			return nil, err
		}
		return LineString{Dims: l, Coords: cs}, nil
	case TypePolygon:
		n, err := r.count("ring count", 4)
		if err != nil {
			return nil, err
		}
		rings := make([][]Coord, n)
		for i := range rings {
			if rings[i], err = r.coords(l); err != nil {
				return nil, err
			}
		}
		return Polygon{Dims: l, Rings: rings}, nil
	}
	return nil, formatErr(UnsupportedType, start+1, "wkb type %d", code)
}
