package domain

import (
	"errors"
	"testing"
)

func TestValidationError(t *testing.T) {
	err := &ValidationError{
		Field:   "srs_name",
		Value:   "",
		Message: "name is required",
	}

	// Test Error() output
	if got := err.Error(); got == "" {
		t.Error("Error() should not return empty string")
	}

	// Test Unwrap()
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("ValidationError should unwrap to ErrInvalidInput")
	}
}

func TestStorageError(t *testing.T) {
	tests := []struct {
		name string
		err  *StorageError
	}{
		{
			name: "with key",
			err: &StorageError{
				Operation: "insert",
				Key:       "point_layer",
				Err:       errors.New("disk I/O error"),
			},
		},
		{
			name: "without key",
			err: &StorageError{
				Operation: "begin",
				Err:       errors.New("database is locked"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got == "" {
				t.Error("Error() should not return empty string")
			}
			if !errors.Is(tt.err, tt.err.Err) {
				t.Error("Unwrap should return the underlying error")
			}
			if !errors.Is(tt.err, ErrStorage) {
				t.Error("StorageError should unwrap to ErrStorage")
			}
		})
	}
}

func TestIOError(t *testing.T) {
	cause := errors.New("permission denied")
	err := &IOError{Operation: "create", Path: "/ro/file.gpkg", Err: cause}

	if !errors.Is(err, ErrIO) {
		t.Error("IOError should unwrap to ErrIO")
	}
	if !errors.Is(err, cause) {
		t.Error("IOError should unwrap to its cause")
	}
}

func TestCatalogError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
		base error
	}{
		{"unknown layer", UnknownLayer("roads"), ErrUnknownLayer, ErrNotFound},
		{"duplicate layer", DuplicateLayer("roads"), ErrDuplicateLayer, ErrConflict},
		{"unknown srs", UnknownSRS(25832), ErrUnknownSRS, ErrNotFound},
		{"duplicate srs", DuplicateSRS(25832), ErrDuplicateID, ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.kind) {
				t.Errorf("%v should wrap %v", tt.err, tt.kind)
			}
			if !errors.Is(tt.err, tt.base) {
				t.Errorf("%v should wrap %v", tt.err, tt.base)
			}
			var ce *CatalogError
			if !errors.As(tt.err, &ce) {
				t.Fatalf("%v is not a *CatalogError", tt.err)
			}
			if ce.Error() == "" {
				t.Error("Error() should not return empty string")
			}
		})
	}

	if errors.Is(UnknownLayer("roads"), ErrUnknownSRS) {
		t.Error("UnknownLayer must not match ErrUnknownSRS")
	}
}

func TestDeclarationError(t *testing.T) {
	err := &DeclarationError{Layer: "points", Field: "geom2", Message: "duplicate geometry"}

	if got := err.Error(); got == "" {
		t.Error("Error() should not return empty string")
	}
	if !errors.Is(err, ErrDeclaration) {
		t.Error("DeclarationError should unwrap to ErrDeclaration")
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("DeclarationError should unwrap to ErrInvalidInput")
	}
}

func TestRecordError(t *testing.T) {
	err := &RecordError{Layer: "points", Index: 2, Field: "name", Value: 42, Message: "expected text"}

	if got := err.Error(); got == "" {
		t.Error("Error() should not return empty string")
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("RecordError should unwrap to ErrInvalidInput")
	}
}

func TestConfigError(t *testing.T) {
	err := &ConfigError{
		Field:   "storage.local_path",
		Message: "path not found",
	}

	if got := err.Error(); got == "" {
		t.Error("Error() should not return empty string")
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("ConfigError should unwrap to ErrInvalidInput")
	}
}

func TestSentinelErrors(t *testing.T) {
	// Test that specific errors wrap base errors correctly
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"ErrNotAGeoPackage", ErrNotAGeoPackage, ErrInvalidInput},
		{"ErrDuplicateID", ErrDuplicateID, ErrConflict},
		{"ErrDuplicateLayer", ErrDuplicateLayer, ErrConflict},
		{"ErrUnknownSRS", ErrUnknownSRS, ErrNotFound},
		{"ErrUnknownLayer", ErrUnknownLayer, ErrNotFound},
		{"ErrDeclaration", ErrDeclaration, ErrInvalidInput},
		{"ErrSessionClosed", ErrSessionClosed, ErrUnavailable},
		{"ErrBusy", ErrBusy, ErrUnavailable},
		{"ErrPackageNotFound", ErrPackageNotFound, ErrNotFound},
		{"ErrStorageUnavailable", ErrStorageUnavailable, ErrUnavailable},
		{"ErrRateLimited", ErrRateLimited, ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.wantErr) {
				t.Errorf("%s should wrap %v", tt.name, tt.wantErr)
			}
		})
	}
}
