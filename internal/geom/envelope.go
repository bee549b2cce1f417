package geom

import "math"

// Envelope is an axis-aligned bounding extent. Z and M bounds are only
// meaningful when Dims carries them.
type Envelope struct {
	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64
	MinM, MaxM float64
	Dims       Layout
	Empty      bool
}

// Extend returns the union of two envelopes. The result keeps e's layout.
func (e Envelope) Extend(o Envelope) Envelope {
	if o.Empty {
		return e
	}
	if e.Empty {
		o.Dims = e.Dims
		return o
	}
	e.MinX, e.MaxX = math.Min(e.MinX, o.MinX), math.Max(e.MaxX, o.MaxX)
	e.MinY, e.MaxY = math.Min(e.MinY, o.MinY), math.Max(e.MaxY, o.MaxY)
	if e.Dims.HasZ() && o.Dims.HasZ() {
		e.MinZ, e.MaxZ = math.Min(e.MinZ, o.MinZ), math.Max(e.MaxZ, o.MaxZ)
	}
	if e.Dims.HasM() && o.Dims.HasM() {
		e.MinM, e.MaxM = math.Min(e.MinM, o.MinM), math.Max(e.MaxM, o.MaxM)
	}
	return e
}

// envelopeCode returns the flag-byte envelope contents indicator for a
// layout: 1 XY, 2 XYZ, 3 XYM, 4 XYZM.
func envelopeCode(l Layout) byte {
	switch l {
	case XYZ:
		return 2
	case XYM:
		return 3
	case XYZM:
		return 4
	default:
		return 1
	}
}

// envelopeLayout is the inverse of envelopeCode. ok is false for code 0
// (no envelope) and for reserved codes.
func envelopeLayout(code byte) (l Layout, ok bool) {
	switch code {
	case 1:
		return XY, true
	case 2:
		return XYZ, true
	case 3:
		return XYM, true
	case 4:
		return XYZM, true
	}
	return XY, false
}

func envelopeOf(l Layout, cs []Coord) Envelope {
	e := Envelope{Dims: l}
	for i, c := range cs {
		if i == 0 {
			e.MinX, e.MaxX = c.X, c.X
			e.MinY, e.MaxY = c.Y, c.Y
			e.MinZ, e.MaxZ = c.Z, c.Z
			e.MinM, e.MaxM = c.M, c.M
			continue
		}
		e.MinX, e.MaxX = math.Min(e.MinX, c.X), math.Max(e.MaxX, c.X)
		e.MinY, e.MaxY = math.Min(e.MinY, c.Y), math.Max(e.MaxY, c.Y)
		e.MinZ, e.MaxZ = math.Min(e.MinZ, c.Z), math.Max(e.MaxZ, c.Z)
		e.MinM, e.MaxM = math.Min(e.MinM, c.M), math.Max(e.MaxM, c.M)
	}
	if !l.HasZ() {
		e.MinZ, e.MaxZ = 0, 0
	}
	if !l.HasM() {
		e.MinM, e.MaxM = 0, 0
	}
	return e
}

// values returns the envelope in GeoPackage header order.
func (e Envelope) values() []float64 {
	v := []float64{e.MinX, e.MaxX, e.MinY, e.MaxY}
	if e.Dims.HasZ() {
		v = append(v, e.MinZ, e.MaxZ)
	}
	if e.Dims.HasM() {
		v = append(v, e.MinM, e.MaxM)
	}
	return v
}

func envelopeFromValues(l Layout, v []float64) Envelope {
	e := Envelope{Dims: l, MinX: v[0], MaxX: v[1], MinY: v[2], MaxY: v[3]}
	i := 4
	if l.HasZ() {
		e.MinZ, e.MaxZ = v[i], v[i+1]
		i += 2
	}
	if l.HasM() {
		e.MinM, e.MaxM = v[i], v[i+1]
	}
	return e
}
