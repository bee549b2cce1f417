package application

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jobrunner/gpkgkit/internal/domain"
	"github.com/jobrunner/gpkgkit/internal/ports/output"
)

// PublishService moves GeoPackage files between the local disk and object
// storage. Every file is checked to be a readable GeoPackage before it is
// uploaded and after it is downloaded.
type PublishService struct {
	repo    output.GeoPackageRepository
	storage output.PackageStore
	metrics output.MetricsCollector
	logger  *slog.Logger
}

// NewPublishService creates a new publish service.
func NewPublishService(
	repo output.GeoPackageRepository,
	storage output.PackageStore,
	metrics output.MetricsCollector,
	logger *slog.Logger,
) *PublishService {
	return &PublishService{
		repo:    repo,
		storage: storage,
		metrics: metrics,
		logger:  logger,
	}
}

// Publish uploads the GeoPackage at src under key. An empty key uses the
// file name.
func (s *PublishService) Publish(ctx context.Context, src, key string) (*domain.GeoPackage, error) {
	if key == "" {
		key = filepath.Base(src)
	}
	key, err := objectKey(key)
	if err != nil {
		return nil, err
	}

	pkg, err := s.repo.Inspect(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("refusing to publish %s: %w", src, err)
	}

	err = s.observe("upload", func() error { return s.storage.Upload(ctx, src, key) })
	if err != nil {
		return nil, &domain.StorageError{Operation: "upload", Key: key, Err: err}
	}

	s.logger.Info("package published", "key", key, "layers", pkg.LayerCount(), "size", pkg.Size)
	return pkg, nil
}

// Fetch downloads key to dest and checks the result. A download that is
// not a GeoPackage is removed again.
func (s *PublishService) Fetch(ctx context.Context, key, dest string) (*domain.GeoPackage, error) {
	key, err := objectKey(key)
	if err != nil {
		return nil, err
	}

	ok, err := s.storage.Exists(ctx, key)
	if err != nil {
		return nil, &domain.StorageError{Operation: "exists", Key: key, Err: err}
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, domain.ErrPackageNotFound)
	}

	err = s.observe("download", func() error { return s.storage.Download(ctx, key, dest) })
	if err != nil {
		return nil, &domain.StorageError{Operation: "download", Key: key, Err: err}
	}

	pkg, err := s.repo.Inspect(ctx, dest)
	if err != nil {
		_ = os.Remove(dest)
		return nil, fmt.Errorf("fetched %s: %w", key, err)
	}

	s.logger.Info("package fetched", "key", key, "path", dest, "layers", pkg.LayerCount())
	return pkg, nil
}

// List returns the GeoPackages held by the storage.
func (s *PublishService) List(ctx context.Context) ([]output.RemotePackage, error) {
	var objects []output.RemotePackage
	err := s.observe("list", func() error {
		var err error
		objects, err = s.storage.List(ctx)
		return err
	})
	if err != nil {
		return nil, &domain.StorageError{Operation: "list", Err: err}
	}
	return objects, nil
}

func (s *PublishService) observe(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	s.metrics.IncStorageOperations(operation, err == nil)
	s.metrics.ObserveStorageDuration(operation, time.Since(start))
	return err
}

// objectKey normalizes a storage key and checks that it names a GeoPackage.
func objectKey(key string) (string, error) {
	clean := path.Clean("/" + filepath.ToSlash(key))[1:]
	if clean == "" || !strings.HasSuffix(strings.ToLower(clean), ".gpkg") {
		return "", &domain.ValidationError{
			Field:   "key",
			Value:   key,
			Message: "must name a .gpkg object",
		}
	}
	return clean, nil
}
