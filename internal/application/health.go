package application

import (
	"context"
	"os"

	"github.com/jobrunner/gpkgkit/internal/domain"
	"github.com/jobrunner/gpkgkit/internal/ports/input"
)

// HealthService reports liveness and readiness of the inspection server.
type HealthService struct {
	registry *PackageRegistry
	dataDir  string
	storage  string
}

// NewHealthService creates a new health service. dataDir is the directory
// packages are served from; storage names the configured backend.
func NewHealthService(registry *PackageRegistry, dataDir, storage string) *HealthService {
	return &HealthService{
		registry: registry,
		dataDir:  dataDir,
		storage:  storage,
	}
}

// IsHealthy returns true if the service is healthy.
func (s *HealthService) IsHealthy(_ context.Context) bool {
	return true
}

// IsReady reports whether every registered package can be browsed and the
// data directory is reachable.
func (s *HealthService) IsReady(ctx context.Context) bool {
	if !s.dataDirOK() {
		return false
	}
	loaded, ready := s.counts(ctx)
	return loaded == ready
}

// GetHealthDetails returns detailed health information.
func (s *HealthService) GetHealthDetails(ctx context.Context) input.HealthDetails {
	loaded, ready := s.counts(ctx)

	components := map[string]string{
		"registry": "ok",
		"data_dir": "ok",
	}
	if !s.dataDirOK() {
		components["data_dir"] = "unavailable"
	}
	if s.storage != "" {
		components["storage"] = s.storage
	}

	return input.HealthDetails{
		Healthy:        s.IsHealthy(ctx),
		Ready:          s.IsReady(ctx),
		PackagesLoaded: loaded,
		PackagesReady:  ready,
		Components:     components,
	}
}

func (s *HealthService) counts(ctx context.Context) (loaded, ready int) {
	packages, _ := s.registry.ListPackages(ctx)
	for _, pkg := range packages {
		if status, err := s.registry.GetPackageStatus(ctx, pkg.ID); err == nil && status == domain.StatusReady {
			ready++
		}
	}
	return len(packages), ready
}

func (s *HealthService) dataDirOK() bool {
	if s.dataDir == "" {
		return true
	}
	info, err := os.Stat(s.dataDir)
	return err == nil && info.IsDir()
}

var _ input.HealthChecker = (*HealthService)(nil)
