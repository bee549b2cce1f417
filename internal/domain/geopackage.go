package domain

import (
	"time"

	"github.com/jobrunner/gpkgkit/internal/geom"
)

// GeoPackage describes a GeoPackage file known to the package registry.
type GeoPackage struct {
	ID       string    // Unique identifier (derived from filename)
	Name     string    // Display name
	Path     string    // File path
	Size     int64     // File size in bytes
	Layers   []Layer   // Layers registered in gpkg_contents
	LoadedAt time.Time // Load timestamp
}

// LayerCount returns the number of layers.
func (g *GeoPackage) LayerCount() int {
	return len(g.Layers)
}

// GetLayer returns a layer by name.
func (g *GeoPackage) GetLayer(name string) (*Layer, bool) {
	for i := range g.Layers {
		if g.Layers[i].Name == name {
			return &g.Layers[i], true
		}
	}
	return nil, false
}

// Layer is a catalogued table, as listed by gpkg_contents.
type Layer struct {
	Name           string         // gpkg_contents.table_name
	Kind           DataKind       // features or attributes
	Description    string         // gpkg_contents.description
	GeometryColumn string         // empty for attribute layers
	GeometryType   geom.Subtype   // declared geometry subtype
	SRSID          *int           // gpkg_contents.srs_id, nil when unset
	LastChange     string         // gpkg_contents.last_change
	Extent         *geom.Envelope // bounding box (optional)
	RecordCount    int64          // number of rows
}

// HasGeometry reports whether the layer is a features layer with a
// geometry column.
func (l *Layer) HasGeometry() bool {
	return l.GeometryColumn != ""
}

// GeoPackageStatus represents the status of a GeoPackage in the registry.
type GeoPackageStatus string

const (
	StatusLoading   GeoPackageStatus = "loading"
	StatusReady     GeoPackageStatus = "ready"
	StatusError     GeoPackageStatus = "error"
	StatusUnloading GeoPackageStatus = "unloading"
)
