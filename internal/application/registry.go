// Package application contains the application services.
package application

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jobrunner/gpkgkit/internal/domain"
	"github.com/jobrunner/gpkgkit/internal/ports/input"
	"github.com/jobrunner/gpkgkit/internal/ports/output"
)

// PackageRegistry tracks the GeoPackages served for browsing.
type PackageRegistry struct {
	mu        sync.RWMutex
	packages  map[string]*packageEntry
	repo      output.GeoPackageRepository
	storage   output.PackageStore
	metrics   output.MetricsCollector
	logger    *slog.Logger
	localPath string
}

type packageEntry struct {
	Package *domain.GeoPackage
	Status  domain.GeoPackageStatus
}

// NewPackageRegistry creates a new package registry. Remote packages are
// cached below localPath; storage may be nil when only local files are
// served.
func NewPackageRegistry(
	repo output.GeoPackageRepository,
	storage output.PackageStore,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	localPath string,
) *PackageRegistry {
	return &PackageRegistry{
		packages:  make(map[string]*packageEntry),
		repo:      repo,
		storage:   storage,
		metrics:   metrics,
		logger:    logger,
		localPath: localPath,
	}
}

// LoadPackage opens the GeoPackage at path and registers it.
func (r *PackageRegistry) LoadPackage(ctx context.Context, path string) error {
	r.logger.Info("loading package", "path", path)

	pkg, err := r.repo.Open(ctx, path)
	if err != nil {
		r.logger.Error("failed to open package", "path", path, "error", err)
		return err
	}

	r.mu.Lock()
	r.packages[pkg.ID] = &packageEntry{Package: pkg, Status: domain.StatusReady}
	r.mu.Unlock()

	r.updateMetrics()
	r.logger.Info("package loaded", "id", pkg.ID, "layers", pkg.LayerCount())
	return nil
}

// ReloadPackage closes and reopens the package stored at path, picking up
// layers and records written since it was loaded.
func (r *PackageRegistry) ReloadPackage(ctx context.Context, path string) error {
	id := derivePackageID(path)
	if r.IsLoaded(id) {
		if err := r.UnloadPackage(ctx, id); err != nil {
			return err
		}
	}
	return r.LoadPackage(ctx, path)
}

// UnloadPackage closes a GeoPackage and forgets it.
func (r *PackageRegistry) UnloadPackage(ctx context.Context, packageID string) error {
	r.logger.Info("unloading package", "id", packageID)

	r.mu.Lock()
	if entry, ok := r.packages[packageID]; ok {
		entry.Status = domain.StatusUnloading
	}
	r.mu.Unlock()

	err := r.repo.Close(ctx, packageID)

	r.mu.Lock()
	delete(r.packages, packageID)
	r.mu.Unlock()

	r.updateMetrics()
	if err != nil {
		r.logger.Error("failed to close package", "id", packageID, "error", err)
	}
	return err
}

// ListPackages returns all registered GeoPackages ordered by ID.
func (r *PackageRegistry) ListPackages(_ context.Context) ([]domain.GeoPackage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	packages := make([]domain.GeoPackage, 0, len(r.packages))
	for _, entry := range r.packages {
		packages = append(packages, *entry.Package)
	}
	sort.Slice(packages, func(i, j int) bool { return packages[i].ID < packages[j].ID })

	return packages, nil
}

// GetPackage returns a specific GeoPackage by ID.
func (r *PackageRegistry) GetPackage(_ context.Context, id string) (*domain.GeoPackage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.packages[id]
	if !ok {
		return nil, domain.ErrPackageNotFound
	}

	return entry.Package, nil
}

// GetPackageStatus returns the status of a GeoPackage.
func (r *PackageRegistry) GetPackageStatus(_ context.Context, id string) (domain.GeoPackageStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.packages[id]
	if !ok {
		return "", domain.ErrPackageNotFound
	}

	return entry.Status, nil
}

// GetLayer returns one layer of a registered package.
func (r *PackageRegistry) GetLayer(ctx context.Context, packageID, layer string) (*domain.Layer, error) {
	pkg, err := r.GetPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}
	l, ok := pkg.GetLayer(layer)
	if !ok {
		return nil, domain.UnknownLayer(layer)
	}
	return l, nil
}

// DescribeLayer returns the field layout of a layer.
func (r *PackageRegistry) DescribeLayer(ctx context.Context, packageID, layer string) (domain.TypeDescriptor, error) {
	if _, err := r.GetLayer(ctx, packageID, layer); err != nil {
		return domain.TypeDescriptor{}, err
	}
	return r.repo.Describe(ctx, packageID, layer)
}

// Records streams up to limit records of a layer.
func (r *PackageRegistry) Records(ctx context.Context, packageID, layer string, limit int) iter.Seq2[domain.Record, error] {
	if _, err := r.GetLayer(ctx, packageID, layer); err != nil {
		return func(yield func(domain.Record, error) bool) { yield(nil, err) }
	}
	return r.repo.Records(ctx, packageID, layer, limit)
}

// IsReady reports whether a package can be browsed.
func (r *PackageRegistry) IsReady(packageID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.packages[packageID]
	return ok && entry.Status == domain.StatusReady
}

// IsLoaded returns true if a package with the given ID is already loaded.
func (r *PackageRegistry) IsLoaded(packageID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.packages[packageID]
	return ok
}

// PackageCount returns the number of loaded packages.
func (r *PackageRegistry) PackageCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.packages)
}

func (r *PackageRegistry) updateMetrics() {
	r.metrics.SetPackagesLoaded(r.PackageCount())
}

// LoadDir loads every GeoPackage directly below dir. Files that fail to
// open are logged and skipped.
func (r *PackageRegistry) LoadDir(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".gpkg") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		_ = r.LoadPackage(ctx, filepath.Join(dir, e.Name()))
	}
	return nil
}

// HandleFileChange applies a change of the file at path: removed files are
// unloaded, anything else is (re)loaded.
func (r *PackageRegistry) HandleFileChange(ctx context.Context, path string, removed bool) error {
	id := derivePackageID(path)
	if !removed {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			removed = true
		}
	}

	if removed {
		if !r.IsLoaded(id) {
			return nil
		}
		return r.UnloadPackage(ctx, id)
	}
	return r.ReloadPackage(ctx, path)
}

// SyncStats contains statistics from a sync operation.
type SyncStats struct {
	Added   int
	Removed int
}

// Sync mirrors remote storage into the local cache: new packages are
// downloaded and loaded, packages gone from storage are unloaded and their
// cached file deleted.
func (r *PackageRegistry) Sync(ctx context.Context) (SyncStats, error) {
	if r.storage == nil {
		return SyncStats{}, domain.ErrStorageUnavailable
	}
	r.logger.Info("syncing packages from storage")

	objects, err := r.storage.List(ctx)
	if err != nil {
		return SyncStats{}, err
	}

	remote := make(map[string]string) // packageID -> object key
	for _, obj := range objects {
		remote[derivePackageID(obj.Key)] = obj.Key
	}

	var stats SyncStats

	for packageID, key := range remote {
		if r.IsLoaded(packageID) {
			r.logger.Debug("package already loaded, skipping", "id", packageID)
			continue
		}

		localPath := filepath.Join(r.localPath, filepath.FromSlash(key))
		if err := r.storage.Download(ctx, key, localPath); err != nil {
			r.logger.Error("failed to download package", "key", key, "error", err)
			continue
		}
		if err := r.LoadPackage(ctx, localPath); err != nil {
			continue
		}

		stats.Added++
		r.logger.Info("new package synced", "id", packageID)
	}

	for _, packageID := range r.missingFrom(remote) {
		r.logger.Info("removing package not in remote storage", "id", packageID)

		localPath := r.packagePath(packageID)
		if err := r.UnloadPackage(ctx, packageID); err != nil {
			continue
		}
		if localPath != "" {
			if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
				r.logger.Warn("failed to delete local cache file", "path", localPath, "error", err)
			}
		}
		stats.Removed++
	}

	r.logger.Info("sync completed", "added", stats.Added, "removed", stats.Removed, "total", r.PackageCount())
	return stats, nil
}

// missingFrom returns the loaded package IDs absent from remote.
func (r *PackageRegistry) missingFrom(remote map[string]string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for packageID := range r.packages {
		if _, ok := remote[packageID]; !ok {
			ids = append(ids, packageID)
		}
	}
	return ids
}

func (r *PackageRegistry) packagePath(packageID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry, ok := r.packages[packageID]; ok && entry.Package != nil {
		return entry.Package.Path
	}
	return ""
}

// derivePackageID extracts a package ID from a file path or object key.
func derivePackageID(path string) string {
	base := filepath.Base(filepath.FromSlash(path))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

var _ input.PackageBrowser = (*PackageRegistry)(nil)
