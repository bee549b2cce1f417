package domain

import (
	"errors"
	"fmt"
)

// Base error types (sentinel errors).
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("already exists")
	ErrUnavailable  = errors.New("unavailable")
)

// Specific errors.
var (
	ErrIO              = errors.New("geopackage: i/o error")
	ErrNotAGeoPackage  = fmt.Errorf("geopackage: missing mandatory catalog tables: %w", ErrInvalidInput)
	ErrDuplicateID     = fmt.Errorf("spatial reference system id: %w", ErrConflict)
	ErrDuplicateLayer  = fmt.Errorf("layer: %w", ErrConflict)
	ErrUnknownSRS      = fmt.Errorf("spatial reference system: %w", ErrNotFound)
	ErrUnknownLayer    = fmt.Errorf("layer: %w", ErrNotFound)
	ErrDeclaration     = fmt.Errorf("layer declaration: %w", ErrInvalidInput)
	ErrStorage         = errors.New("geopackage: storage error")
	ErrSessionClosed   = fmt.Errorf("geopackage: session closed: %w", ErrUnavailable)
	ErrBusy            = fmt.Errorf("geopackage: connection held by an open scan: %w", ErrUnavailable)
	ErrPackageNotFound = fmt.Errorf("geopackage: %w", ErrNotFound)

	ErrStorageUnavailable = fmt.Errorf("object storage not configured: %w", ErrUnavailable)
	ErrRateLimited        = fmt.Errorf("rate limit exceeded: %w", ErrUnavailable)
)

// ValidationError represents a detailed validation error.
type ValidationError struct {
	Field   string      // Field that failed validation
	Value   interface{} // The invalid value
	Message string      // Human-readable message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v)", e.Field, e.Message, e.Value)
}

// Unwrap returns the underlying error type.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// IOError reports a failure to create, open or close a GeoPackage file.
type IOError struct {
	Operation string // create, open, close
	Path      string // file path
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *IOError) Error() string {
	return fmt.Sprintf("i/o error during %s of %s: %v", e.Operation, e.Path, e.Err)
}

// Unwrap returns the underlying errors.
func (e *IOError) Unwrap() []error {
	return []error{ErrIO, e.Err}
}

// StorageError represents a failure reported by the underlying store.
type StorageError struct {
	Operation string // Operation that failed (insert, scan, etc.)
	Key       string // Table or object key
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage error during %s for %s: %v",
			e.Operation, e.Key, e.Err)
	}
	return fmt.Sprintf("storage error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying errors.
func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

// CatalogError reports a catalog consistency violation.
type CatalogError struct {
	Kind  error  // One of ErrDuplicateID, ErrDuplicateLayer, ErrUnknownSRS, ErrUnknownLayer
	Layer string // Layer name, if any
	SRSID *int   // SRS id, if any
}

// Error implements the error interface.
func (e *CatalogError) Error() string {
	switch {
	case e.Layer != "" && e.SRSID != nil:
		return fmt.Sprintf("catalog error for layer %q, srs %d: %v", e.Layer, *e.SRSID, e.Kind)
	case e.Layer != "":
		return fmt.Sprintf("catalog error for layer %q: %v", e.Layer, e.Kind)
	case e.SRSID != nil:
		return fmt.Sprintf("catalog error for srs %d: %v", *e.SRSID, e.Kind)
	}
	return fmt.Sprintf("catalog error: %v", e.Kind)
}

// Unwrap returns the error kind.
func (e *CatalogError) Unwrap() error {
	return e.Kind
}

// DeclarationError represents an invalid layer declaration.
type DeclarationError struct {
	Layer   string // Layer name
	Field   string // Offending field, if any
	Message string // Human-readable message
}

// Error implements the error interface.
func (e *DeclarationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid declaration of layer %q, field %q: %s", e.Layer, e.Field, e.Message)
	}
	return fmt.Sprintf("invalid declaration of layer %q: %s", e.Layer, e.Message)
}

// Unwrap returns the underlying error type.
func (e *DeclarationError) Unwrap() error {
	return ErrDeclaration
}

// RecordError reports a record value that does not fit its layer.
type RecordError struct {
	Layer   string      // Layer name
	Index   int         // Position of the record in the batch
	Field   string      // Offending field
	Value   interface{} // The invalid value
	Message string      // Human-readable message
}

// Error implements the error interface.
func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d of layer %q, field %q: %s (value: %v)",
		e.Index, e.Layer, e.Field, e.Message, e.Value)
}

// Unwrap returns the underlying error type.
func (e *RecordError) Unwrap() error {
	return ErrInvalidInput
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string // Configuration field
	Message string // Error message
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying error type.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidInput
}

// UnknownLayer returns a CatalogError for a missing layer.
func UnknownLayer(layer string) error {
	return &CatalogError{Kind: ErrUnknownLayer, Layer: layer}
}

// DuplicateLayer returns a CatalogError for an existing layer.
func DuplicateLayer(layer string) error {
	return &CatalogError{Kind: ErrDuplicateLayer, Layer: layer}
}

// UnknownSRS returns a CatalogError for a missing spatial reference system.
func UnknownSRS(id int) error {
	return &CatalogError{Kind: ErrUnknownSRS, SRSID: &id}
}

// DuplicateSRS returns a CatalogError for an existing spatial reference system.
func DuplicateSRS(id int) error {
	return &CatalogError{Kind: ErrDuplicateID, SRSID: &id}
}
