package domain

import "github.com/jobrunner/gpkgkit/internal/geom"

// Record is one row of a layer, keyed by field name. Values are int64,
// float64, string, []byte, bool, geom.Geometry or nil.
type Record map[string]interface{}

// Get returns a value by field name.
func (r Record) Get(key string) (interface{}, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r[key]
	return v, ok
}

// String returns a field as string.
func (r Record) String(key string) string {
	if v, ok := r.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Int returns a field as int64.
func (r Record) Int(key string) int64 {
	if v, ok := r.Get(key); ok {
		switch i := v.(type) {
		case int:
			return int64(i)
		case int32:
			return int64(i)
		case int64:
			return i
		}
	}
	return 0
}

// Float returns a field as float64.
func (r Record) Float(key string) float64 {
	if v, ok := r.Get(key); ok {
		switch f := v.(type) {
		case float64:
			return f
		case float32:
			return float64(f)
		case int64:
			return float64(f)
		}
	}
	return 0
}

// Bool returns a field as bool.
func (r Record) Bool(key string) bool {
	if v, ok := r.Get(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

// Geometry returns a field as geometry, or nil.
func (r Record) Geometry(key string) geom.Geometry {
	if v, ok := r.Get(key); ok {
		if g, ok := v.(geom.Geometry); ok {
			return g
		}
	}
	return nil
}
