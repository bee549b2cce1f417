package geom

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		geom Geometry
	}{
		{name: "point", geom: NewPoint(7.1, 50.7)},
		{name: "point z", geom: NewPointZ(400000.0, 5500000.0, 100.0)},
		{name: "point m", geom: NewPointM(1, 2, 3)},
		{name: "point zm", geom: NewPointZM(1, 2, 3, 4)},
		{name: "point z tiny values", geom: NewPointZ(math.SmallestNonzeroFloat64, -0.1, math.MaxFloat64)},
		{name: "point z negative zero", geom: NewPointZ(math.Copysign(0, -1), 0, 1e-300)},
		{name: "empty point", geom: EmptyPoint(XYZ)},
		{
			name: "linestring z",
			geom: LineString{Dims: XYZ, Coords: []Coord{{X: 0, Y: 0, Z: 1}, {X: 10, Y: -5, Z: 3}, {X: 2, Y: 8, Z: -1}}},
		},
		{name: "empty linestring", geom: LineString{Dims: XY}},
		{
			name: "polygon with hole",
			geom: Polygon{Dims: XY, Rings: [][]Coord{
				{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}, {X: 0, Y: 0}},
				{{X: 2, Y: 2}, {X: 3, Y: 2}, {X: 3, Y: 3}, {X: 2, Y: 2}},
			}},
		},
	}

	for _, tt := range tests {
		for _, order := range []ByteOrder{LittleEndian, BigEndian} {
			t.Run(tt.name, func(t *testing.T) {
				b, err := EncodeWithOrder(25832, tt.geom, order)
				if err != nil {
					t.Fatalf("EncodeWithOrder() error = %v", err)
				}

				got, h, err := DecodeWithHeader(b)
				if err != nil {
					t.Fatalf("DecodeWithHeader() error = %v", err)
				}
				if !Equal(got, tt.geom) {
					t.Errorf("round trip = %v, want %v", got, tt.geom)
				}
				if h.SRSID != 25832 {
					t.Errorf("SRSID = %d, want 25832", h.SRSID)
				}
				if h.Order != order {
					t.Errorf("Order = %v, want %v", h.Order, order)
				}
				if h.Empty != tt.geom.IsEmpty() {
					t.Errorf("Empty = %v, want %v", h.Empty, tt.geom.IsEmpty())
				}
			})
		}
	}
}

func TestEncodePointZLayout(t *testing.T) {
	p := NewPointZ(400000.0, 5500000.0, 100.0)
	b, err := Encode(25832, p)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	// header(8) + XYZ envelope(48) + wkb byte order(1) + type(4) + xyz(24)
	if want := fixedHeaderSize + 48 + 1 + 4 + 24; len(b) != want {
		t.Fatalf("len = %d, want %d", len(b), want)
	}
	if !bytes.Equal(b[:2], []byte("GP")) {
		t.Errorf("magic = %q, want GP", b[:2])
	}
	if b[2] != 0 {
		t.Errorf("version = %d, want 0", b[2])
	}
	// little endian (bit 0) + envelope code 2 (XYZ) in bits 1-3
	if b[3] != 0x05 {
		t.Errorf("flags = 0x%02x, want 0x05", b[3])
	}
	if srs := binary.LittleEndian.Uint32(b[4:8]); srs != 25832 {
		t.Errorf("srs_id = %d, want 25832", srs)
	}

	wantEnv := []float64{400000, 400000, 5500000, 5500000, 100, 100}
	for i, want := range wantEnv {
		got := math.Float64frombits(binary.LittleEndian.Uint64(b[8+i*8:]))
		if got != want {
			t.Errorf("envelope[%d] = %v, want %v", i, got, want)
		}
	}

	body := b[56:]
	if body[0] != wkbLittleEndian {
		t.Errorf("wkb byte order = %d, want 1", body[0])
	}
	if code := binary.LittleEndian.Uint32(body[1:5]); code != 1001 {
		t.Errorf("wkb type = %d, want 1001", code)
	}
}

func TestEncodeEmptyOmitsEnvelope(t *testing.T) {
	b, err := Encode(0, EmptyPoint(XY))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if b[3]&flagEmpty == 0 {
		t.Error("empty flag not set")
	}
	if b[3]&flagEnvelopeMask != 0 {
		t.Errorf("envelope code = %d, want 0", (b[3]&flagEnvelopeMask)>>1)
	}
}

func TestEncodeErrors(t *testing.T) {
	if _, err := Encode(0, nil); !errors.Is(err, ErrNilGeometry) {
		t.Errorf("Encode(nil) error = %v, want ErrNilGeometry", err)
	}
	if _, err := Encode(0, (*LineString)(nil)); !errors.Is(err, ErrNilGeometry) {
		t.Errorf("Encode(nil pointer) error = %v, want ErrNilGeometry", err)
	}
	if _, err := Encode(0, Point{Dims: Layout(9)}); !errors.Is(err, ErrInvalidLayout) {
		t.Errorf("Encode(bad layout) error = %v, want ErrInvalidLayout", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	valid, err := Encode(4326, NewPointZ(1, 2, 3))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	clone := func() []byte { return append([]byte(nil), valid...) }

	badMagic := clone()
	badMagic[0] = 'X'

	badVersion := clone()
	badVersion[2] = 1

	// declare an XY envelope over an XYZ body
	mismatch := clone()
	mismatch[3] = (mismatch[3] &^ flagEnvelopeMask) | envelopeCode(XY)<<1
	mismatch = append(mismatch[:8+32], mismatch[8+48:]...)

	reservedEnvelope := clone()
	reservedEnvelope[3] = (reservedEnvelope[3] &^ flagEnvelopeMask) | 7<<1

	extended := clone()
	extended[3] |= flagExtended

	badType := clone()
	binary.LittleEndian.PutUint32(badType[57:], 7)

	tests := []struct {
		name  string
		input []byte
		kind  FormatErrorKind
		is    error
	}{
		{name: "empty input", input: nil, kind: Truncated, is: ErrTruncated},
		{name: "bad magic", input: badMagic, kind: BadMagic, is: ErrBadMagic},
		{name: "unsupported version", input: badVersion, kind: UnsupportedVersion, is: ErrUnsupportedVersion},
		{name: "dimension mismatch", input: mismatch, kind: DimensionMismatch, is: ErrDimensionMismatch},
		{name: "header cut short", input: valid[:6], kind: Truncated, is: ErrTruncated},
		{name: "envelope cut short", input: valid[:20], kind: Truncated, is: ErrTruncated},
		{name: "body cut short", input: valid[:len(valid)-5], kind: Truncated, is: ErrTruncated},
		{name: "missing z ordinate", input: valid[:len(valid)-8], kind: Truncated, is: ErrTruncated},
		{name: "reserved envelope code", input: reservedEnvelope, kind: BadFlags, is: ErrBadFlags},
		{name: "extended binary", input: extended, kind: BadFlags, is: ErrBadFlags},
		{name: "unknown wkb type", input: badType, kind: UnsupportedType, is: ErrUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Decode(tt.input)
			if err == nil {
				t.Fatalf("Decode() = %v, want error", g)
			}
			if g != nil {
				t.Errorf("Decode() returned geometry %v alongside error", g)
			}

			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("error %v is not a *FormatError", err)
			}
			if fe.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", fe.Kind, tt.kind)
			}
			if !errors.Is(err, tt.is) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.is)
			}
			if !errors.Is(err, ErrFormat) {
				t.Error("FormatError should unwrap to ErrFormat")
			}
		})
	}
}

func TestDecodeHugeCountIsTruncated(t *testing.T) {
	b, err := Encode(0, LineString{Dims: XY, Coords: []Coord{{X: 1, Y: 1}}})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	// point count sits after header(8) + XY envelope(32) + order(1) + type(4)
	binary.LittleEndian.PutUint32(b[45:], math.MaxUint32)

	_, err = Decode(b)
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("Decode() error = %v, want ErrTruncated", err)
	}
}

func TestDecodeMixedByteOrder(t *testing.T) {
	// little-endian header, big-endian wkb body
	b := []byte{'G', 'P', 0, flagLittleEndian}
	b = binary.LittleEndian.AppendUint32(b, 4326)
	b = append(b, wkbBigEndian)
	b = binary.BigEndian.AppendUint32(b, 1)
	b = binary.BigEndian.AppendUint64(b, math.Float64bits(7.5))
	b = binary.BigEndian.AppendUint64(b, math.Float64bits(-3.25))

	g, h, err := DecodeWithHeader(b)
	if err != nil {
		t.Fatalf("DecodeWithHeader() error = %v", err)
	}
	if h.Envelope != nil {
		t.Errorf("Envelope = %+v, want nil", h.Envelope)
	}
	want := NewPoint(7.5, -3.25)
	if g != want {
		t.Errorf("geometry = %v, want %v", g, want)
	}
}

func TestDecodeHeaderEnvelope(t *testing.T) {
	ls := LineString{Dims: XYM, Coords: []Coord{{X: 1, Y: 9, M: 5}, {X: -4, Y: 3, M: 11}}}
	b, err := Encode(3857, ls)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	h, err := DecodeHeader(b)
	if err != nil {
		t.Fatalf("DecodeHeader() error = %v", err)
	}
	if h.Envelope == nil {
		t.Fatal("Envelope is nil")
	}
	want := Envelope{MinX: -4, MaxX: 1, MinY: 3, MaxY: 9, MinM: 5, MaxM: 11, Dims: XYM}
	if *h.Envelope != want {
		t.Errorf("Envelope = %+v, want %+v", *h.Envelope, want)
	}
	if h.Size != fixedHeaderSize+48 {
		t.Errorf("Size = %d, want %d", h.Size, fixedHeaderSize+48)
	}
}
