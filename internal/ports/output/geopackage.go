// Package output defines the secondary/driven ports of the application.
package output

import (
	"context"
	"iter"

	"github.com/jobrunner/gpkgkit/internal/domain"
)

// GeoPackageRepository defines the secondary port for read-only access to
// a set of GeoPackage files.
type GeoPackageRepository interface {
	// Open opens a GeoPackage file and returns its metadata.
	Open(ctx context.Context, path string) (*domain.GeoPackage, error)

	// Inspect reads the catalog of a GeoPackage file without keeping it
	// open. It fails with domain.ErrNotAGeoPackage for other files.
	Inspect(ctx context.Context, path string) (*domain.GeoPackage, error)

	// Close closes a GeoPackage connection.
	Close(ctx context.Context, packageID string) error

	// GetLayers returns all layers in a GeoPackage.
	GetLayers(ctx context.Context, packageID string) ([]domain.Layer, error)

	// Describe returns the record shape of a layer.
	Describe(ctx context.Context, packageID, layer string) (domain.TypeDescriptor, error)

	// Records streams the records of a layer. A limit <= 0 means no limit.
	Records(ctx context.Context, packageID, layer string, limit int) iter.Seq2[domain.Record, error]
}
