// Package input defines the primary/driving ports of the application.
package input

import (
	"context"
	"iter"

	"github.com/jobrunner/gpkgkit/internal/domain"
)

// PackageBrowser defines the primary port for read-only browsing of the
// served GeoPackages.
type PackageBrowser interface {
	// ListPackages returns all registered GeoPackages.
	ListPackages(ctx context.Context) ([]domain.GeoPackage, error)

	// GetPackage returns a specific GeoPackage by ID.
	GetPackage(ctx context.Context, id string) (*domain.GeoPackage, error)

	// GetLayer returns one layer of a package.
	GetLayer(ctx context.Context, packageID, layer string) (*domain.Layer, error)

	// DescribeLayer returns the field layout of a layer.
	DescribeLayer(ctx context.Context, packageID, layer string) (domain.TypeDescriptor, error)

	// Records streams up to limit records of a layer.
	Records(ctx context.Context, packageID, layer string, limit int) iter.Seq2[domain.Record, error]
}

// SyncTrigger defines the primary port for on-demand storage sync.
type SyncTrigger interface {
	TriggerSync(ctx context.Context) (domain.SyncResult, error)
}

// HealthChecker defines the primary port for health checks.
type HealthChecker interface {
	// IsHealthy returns true if the service is healthy.
	IsHealthy(ctx context.Context) bool

	// IsReady returns true if the service is ready to accept requests.
	IsReady(ctx context.Context) bool

	// GetHealthDetails returns detailed health information.
	GetHealthDetails(ctx context.Context) HealthDetails
}

// HealthDetails contains detailed health information.
type HealthDetails struct {
	Healthy        bool              // Overall health status
	Ready          bool              // Ready to accept requests
	PackagesLoaded int               // Number of loaded packages
	PackagesReady  int               // Number of ready packages
	Components     map[string]string // Component statuses
}
