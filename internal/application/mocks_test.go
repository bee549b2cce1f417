package application

import (
	"context"
	"iter"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jobrunner/gpkgkit/internal/domain"
	"github.com/jobrunner/gpkgkit/internal/ports/output"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockRepository implements output.GeoPackageRepository for testing.
type mockRepository struct {
	mu       sync.Mutex
	packages map[string]*domain.GeoPackage // keyed by path
	records  map[string][]domain.Record    // keyed by package:layer
	openErr  error
	closeErr error
	opened   []string
	closed   []string
}

func (m *mockRepository) Open(_ context.Context, path string) (*domain.GeoPackage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.openErr != nil {
		return nil, m.openErr
	}
	m.opened = append(m.opened, path)
	if pkg, ok := m.packages[path]; ok {
		return pkg, nil
	}
	id := derivePackageID(path)
	return &domain.GeoPackage{ID: id, Name: id, Path: path}, nil
}

func (m *mockRepository) Inspect(ctx context.Context, path string) (*domain.GeoPackage, error) {
	pkg, err := m.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.opened = m.opened[:len(m.opened)-1]
	m.mu.Unlock()
	return pkg, nil
}

func (m *mockRepository) Close(_ context.Context, packageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = append(m.closed, packageID)
	return m.closeErr
}

func (m *mockRepository) GetLayers(_ context.Context, packageID string) ([]domain.Layer, error) {
	for _, pkg := range m.packages {
		if pkg.ID == packageID {
			return pkg.Layers, nil
		}
	}
	return nil, domain.ErrPackageNotFound
}

func (m *mockRepository) Describe(_ context.Context, _, layer string) (domain.TypeDescriptor, error) {
	return domain.NewTypeDescriptor(layer, domain.TextField("name")), nil
}

func (m *mockRepository) Records(_ context.Context, packageID, layer string, limit int) iter.Seq2[domain.Record, error] {
	return func(yield func(domain.Record, error) bool) {
		for i, rec := range m.records[packageID+":"+layer] {
			if limit > 0 && i >= limit {
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// mockStorage implements output.PackageStore for testing.
type mockStorage struct {
	mu          sync.Mutex
	objects     []output.RemotePackage
	downloadErr error
	uploadErr   error
	listErr     error
	missing     bool
	downloaded  []string
	uploaded    map[string]string // key -> src
}

func (m *mockStorage) List(_ context.Context) ([]output.RemotePackage, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.objects, nil
}

func (m *mockStorage) Download(_ context.Context, key, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.downloadErr != nil {
		return m.downloadErr
	}
	m.downloaded = append(m.downloaded, key)
	return nil
}

func (m *mockStorage) Upload(_ context.Context, src, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploadErr != nil {
		return m.uploadErr
	}
	if m.uploaded == nil {
		m.uploaded = make(map[string]string)
	}
	m.uploaded[key] = src
	return nil
}

func (m *mockStorage) Exists(_ context.Context, _ string) (bool, error) {
	return !m.missing, nil
}

// recordingMetrics captures the storage calls made through the
// MetricsCollector port.
type recordingMetrics struct {
	output.NoOpMetrics
	mu       sync.Mutex
	storage  map[string]int // "operation:success|error" -> count
	packages int
}

func (m *recordingMetrics) IncStorageOperations(operation string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage == nil {
		m.storage = make(map[string]int)
	}
	status := "error"
	if success {
		status = "success"
	}
	m.storage[operation+":"+status]++
}

func (m *recordingMetrics) ObserveStorageDuration(_ string, _ time.Duration) {}

func (m *recordingMetrics) SetPackagesLoaded(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packages = count
}
