package output

import (
	"context"
	"time"
)

// PackageStore is the remote home of published GeoPackage files. Keys are
// slash separated and relative to the store's configured prefix; only
// objects with the .gpkg extension are visible.
type PackageStore interface {
	// List returns the GeoPackages held by the store.
	List(ctx context.Context) ([]RemotePackage, error)

	// Download writes the package stored under key to dest. dest is
	// replaced atomically so a reader never sees a partial file.
	Download(ctx context.Context, key string, dest string) error

	// Upload publishes the local file src under key, replacing any
	// previous version.
	Upload(ctx context.Context, src string, key string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
}

// RemotePackage describes one GeoPackage held by a PackageStore.
type RemotePackage struct {
	Key     string
	Size    int64
	ModTime time.Time // zero when the backend does not report it
	ETag    string    // backend version tag, empty for local storage
}

// StorageType names a PackageStore backend in configuration.
type StorageType string

// Supported backends.
const (
	StorageTypeS3    StorageType = "s3"
	StorageTypeAzure StorageType = "azure"
	StorageTypeLocal StorageType = "local"
)
