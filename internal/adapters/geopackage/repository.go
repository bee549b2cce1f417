package geopackage

import (
	"context"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jobrunner/gpkgkit/internal/domain"
	"github.com/jobrunner/gpkgkit/internal/ports/output"
)

// Repository implements the GeoPackageRepository port on top of read-only
// sessions, one per package.
type Repository struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	packages map[string]*domain.GeoPackage
	opts     []Option
}

// entry serializes use of one session.
type entry struct {
	mu      sync.Mutex
	session *Session
}

// NewRepository creates a new GeoPackage repository. Packages are always
// opened read-only; opts may tune the underlying connection.
func NewRepository(logger *slog.Logger, metrics output.MetricsCollector, opts ...Option) *Repository {
	base := []Option{WithLogger(logger), WithMetrics(metrics)}
	return &Repository{
		entries:  make(map[string]*entry),
		packages: make(map[string]*domain.GeoPackage),
		opts:     append(append(base, opts...), WithReadOnly()),
	}
}

// Open opens a GeoPackage file and returns its metadata.
func (r *Repository) Open(ctx context.Context, path string) (*domain.GeoPackage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Derive package ID from filename
	packageID := DerivePackageID(path)

	// Check if already open
	if pkg, ok := r.packages[packageID]; ok {
		return pkg, nil
	}

	s, pkg, err := r.load(ctx, path)
	if err != nil {
		return nil, err
	}

	r.entries[packageID] = &entry{session: s}
	r.packages[packageID] = pkg
	return pkg, nil
}

// Inspect reads the catalog of the file at path and closes it again.
func (r *Repository) Inspect(ctx context.Context, path string) (*domain.GeoPackage, error) {
	s, pkg, err := r.load(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := s.Close(); err != nil {
		return nil, err
	}
	return pkg, nil
}

func (r *Repository) load(ctx context.Context, path string) (*Session, *domain.GeoPackage, error) {
	s, err := Open(ctx, path, r.opts...)
	if err != nil {
		return nil, nil, err
	}

	layers, err := s.Layers(ctx)
	if err != nil {
		_ = s.Close()
		return nil, nil, err
	}

	packageID := DerivePackageID(path)
	pkg := &domain.GeoPackage{
		ID:       packageID,
		Name:     packageID,
		Path:     path,
		Layers:   layers,
		LoadedAt: time.Now(),
	}
	if info, err := os.Stat(path); err == nil {
		pkg.Size = info.Size()
	}
	return s, pkg, nil
}

// Close closes a GeoPackage connection.
func (r *Repository) Close(_ context.Context, packageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[packageID]
	if !ok {
		return nil
	}

	e.mu.Lock()
	err := e.session.Close()
	e.mu.Unlock()

	delete(r.entries, packageID)
	delete(r.packages, packageID)
	return err
}

// GetLayers returns all layers in a GeoPackage.
func (r *Repository) GetLayers(_ context.Context, packageID string) ([]domain.Layer, error) {
	r.mu.RLock()
	pkg, ok := r.packages[packageID]
	r.mu.RUnlock()

	if !ok {
		return nil, domain.ErrPackageNotFound
	}

	return pkg.Layers, nil
}

// Describe returns the record shape of a layer.
func (r *Repository) Describe(ctx context.Context, packageID, layer string) (domain.TypeDescriptor, error) {
	e, err := r.entry(packageID)
	if err != nil {
		return domain.TypeDescriptor{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.DescribeLayer(ctx, layer)
}

// Records streams up to limit records of a layer. The package stays
// locked while the caller ranges over the sequence.
func (r *Repository) Records(ctx context.Context, packageID, layer string, limit int) iter.Seq2[domain.Record, error] {
	return func(yield func(domain.Record, error) bool) {
		e, err := r.entry(packageID)
		if err != nil {
			yield(nil, err)
			return
		}
		e.mu.Lock()
		defer e.mu.Unlock()

		desc, err := e.session.DescribeLayer(ctx, layer)
		if err != nil {
			yield(nil, err)
			return
		}
		def := newTableDefinition(desc)
		for rec, err := range e.session.GetN(ctx, def, limit) {
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

// Packages returns the open packages.
func (r *Repository) Packages() []*domain.GeoPackage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.GeoPackage, 0, len(r.packages))
	for _, p := range r.packages {
		out = append(out, p)
	}
	return out
}

func (r *Repository) entry(packageID string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[packageID]
	if !ok {
		return nil, domain.ErrPackageNotFound
	}
	return e, nil
}

// DerivePackageID derives a package ID from the file path.
// It extracts the filename without extension as the package identifier.
func DerivePackageID(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext)
}

var _ output.GeoPackageRepository = (*Repository)(nil)
