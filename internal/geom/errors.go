package geom

import (
	"errors"
	"fmt"
)

// ErrFormat is the base error for malformed geometry bytes.
var ErrFormat = errors.New("geometry format")

// Per-kind sentinels; every *FormatError unwraps to one of these.
var (
	ErrBadMagic           = fmt.Errorf("bad magic: %w", ErrFormat)
	ErrUnsupportedVersion = fmt.Errorf("unsupported version: %w", ErrFormat)
	ErrDimensionMismatch  = fmt.Errorf("dimension mismatch: %w", ErrFormat)
	ErrTruncated          = fmt.Errorf("truncated: %w", ErrFormat)
	ErrBadFlags           = fmt.Errorf("bad flags: %w", ErrFormat)
	ErrUnsupportedType    = fmt.Errorf("unsupported geometry type: %w", ErrFormat)
)

// Errors returned by the encoder.
var (
	ErrNilGeometry     = errors.New("geom: nil geometry")
	ErrInvalidLayout   = errors.New("geom: invalid coordinate layout")
	ErrUnknownGeometry = errors.New("geom: unknown geometry value")
)

// FormatErrorKind classifies a decoding failure.
type FormatErrorKind int

// Decoding failure kinds.
const (
	BadMagic FormatErrorKind = iota + 1
	UnsupportedVersion
	DimensionMismatch
	Truncated
	BadFlags
	UnsupportedType
)

// String returns the kind name.
func (k FormatErrorKind) String() string {
	switch k {
	case BadMagic:
		return "BadMagic"
	case UnsupportedVersion:
		return "UnsupportedVersion"
	case DimensionMismatch:
		return "DimensionMismatch"
	case Truncated:
		return "Truncated"
	case BadFlags:
		return "BadFlags"
	case UnsupportedType:
		return "UnsupportedType"
	default:
		return fmt.Sprintf("FormatErrorKind(%d)", int(k))
	}
}

// FormatError reports malformed GeoPackage geometry bytes.
type FormatError struct {
	Kind   FormatErrorKind
	Offset int    // byte offset where decoding failed
	Msg    string // detail
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	return fmt.Sprintf("geometry format error (%s) at offset %d: %s", e.Kind, e.Offset, e.Msg)
}

// Unwrap returns the sentinel for the error kind.
func (e *FormatError) Unwrap() error {
	switch e.Kind {
	case BadMagic:
		return ErrBadMagic
	case UnsupportedVersion:
		return ErrUnsupportedVersion
	case DimensionMismatch:
		return ErrDimensionMismatch
	case Truncated:
		return ErrTruncated
	case BadFlags:
		return ErrBadFlags
	case UnsupportedType:
		return ErrUnsupportedType
	}
	return ErrFormat
}

func formatErr(kind FormatErrorKind, off int, format string, args ...any) *FormatError {
	return &FormatError{Kind: kind, Offset: off, Msg: fmt.Sprintf(format, args...)}
}
