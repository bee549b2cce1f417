// Package storage provides object storage adapters for publishing and
// fetching GeoPackage files.
package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jobrunner/gpkgkit/internal/ports/output"
)

// Extension is the file extension of GeoPackage files.
const Extension = ".gpkg"

// IsGeoPackage reports whether name carries the GeoPackage extension.
func IsGeoPackage(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), Extension)
}

// LocalStorage implements PackageStore on a local directory.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local storage adapter.
func NewLocalStorage(basePath string) *LocalStorage {
	return &LocalStorage{basePath: basePath}
}

// List returns all GeoPackage files below the base directory.
func (s *LocalStorage) List(ctx context.Context) ([]output.RemotePackage, error) {
	var packages []output.RemotePackage

	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !IsGeoPackage(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}

		packages = append(packages, output.RemotePackage{
			Key:     filepath.ToSlash(relPath),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return packages, nil
}

// Download copies the object to dest. It is a no-op when dest is the
// object itself.
func (s *LocalStorage) Download(ctx context.Context, key string, dest string) error {
	src := s.FullPath(key)
	if filepath.Clean(src) == filepath.Clean(dest) {
		return nil
	}
	return copyFile(ctx, src, dest)
}

// Upload copies src into the base directory under key.
func (s *LocalStorage) Upload(ctx context.Context, src string, key string) error {
	dest := s.FullPath(key)
	if filepath.Clean(src) == filepath.Clean(dest) {
		return nil
	}
	return copyFile(ctx, src, dest)
}

// Exists checks if a file exists.
func (s *LocalStorage) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(s.FullPath(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// FullPath returns the full path for a key.
func (s *LocalStorage) FullPath(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(key))
}

// copyFile writes src to a temporary file next to dest and renames it into
// place, so readers never observe a partially written GeoPackage.
func copyFile(ctx context.Context, src, dest string) error {
	in, err := os.Open(src) //#nosec G304 -- src is a caller supplied local path
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	return writeAtomic(ctx, dest, in)
}

// writeAtomic streams r into dest through a temporary sibling file.
func writeAtomic(ctx context.Context, dest string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, ctxReader{ctx: ctx, r: r}); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, dest)
}

// ctxReader stops a copy once its context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
