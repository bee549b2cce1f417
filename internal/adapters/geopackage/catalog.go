package geopackage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jobrunner/gpkgkit/internal/adapters/sqlite"
	"github.com/jobrunner/gpkgkit/internal/domain"
	"github.com/jobrunner/gpkgkit/internal/geom"
	"github.com/jobrunner/gpkgkit/internal/ports/output"
)

// GeoPackage file identification.
const (
	ApplicationID = 0x47504B47 // "GPKG"
	UserVersion   = 10400      // GeoPackage 1.4.0
)

// Catalog table DDL, as published with the GeoPackage 1.4 encoding standard.
const (
	createSpatialRefSys = `CREATE TABLE gpkg_spatial_ref_sys (
  srs_name TEXT NOT NULL,
  srs_id INTEGER PRIMARY KEY,
  organization TEXT NOT NULL,
  organization_coordsys_id INTEGER NOT NULL,
  definition TEXT NOT NULL,
  description TEXT
)`

	createContents = `CREATE TABLE gpkg_contents (
  table_name TEXT NOT NULL PRIMARY KEY,
  data_type TEXT NOT NULL,
  identifier TEXT UNIQUE,
  description TEXT DEFAULT '',
  last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
  min_x DOUBLE,
  min_y DOUBLE,
  max_x DOUBLE,
  max_y DOUBLE,
  srs_id INTEGER,
  CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
)`

	createGeometryColumns = `CREATE TABLE gpkg_geometry_columns (
  table_name TEXT NOT NULL,
  column_name TEXT NOT NULL,
  geometry_type_name TEXT NOT NULL,
  srs_id INTEGER NOT NULL,
  z TINYINT NOT NULL,
  m TINYINT NOT NULL,
  CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
  CONSTRAINT uk_gc_table_name UNIQUE (table_name),
  CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
  CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys (srs_id)
)`
)

const lastChangeNow = `strftime('%Y-%m-%dT%H:%M:%fZ','now')`

// catalogTables are the tables a file must carry to be opened.
var catalogTables = []string{"gpkg_spatial_ref_sys", "gpkg_contents", "gpkg_geometry_columns"}

// initCatalog creates the catalog tables and seeds the mandatory SRS rows.
func initCatalog(ctx context.Context, ex output.Execer) error {
	for _, ddl := range []string{createSpatialRefSys, createContents, createGeometryColumns} {
		if _, err := ex.ExecContext(ctx, ddl); err != nil {
			return &domain.StorageError{Operation: "create catalog", Err: err}
		}
	}
	for _, srs := range domain.BuiltinSRS() {
		if err := registerSRS(ctx, ex, srs); err != nil {
			return err
		}
	}
	return nil
}

// validateCatalog checks that all mandatory catalog tables exist.
func validateCatalog(ctx context.Context, ex output.Execer) error {
	var n int
	err := ex.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN (?, ?, ?)`,
		catalogTables[0], catalogTables[1], catalogTables[2],
	).Scan(&n)
	if err != nil {
		if sqlite.IsNotADatabase(err) {
			return domain.ErrNotAGeoPackage
		}
		return &domain.StorageError{Operation: "validate catalog", Err: err}
	}
	if n != len(catalogTables) {
		return domain.ErrNotAGeoPackage
	}
	return nil
}

func srsExists(ctx context.Context, ex output.Execer, id int) (bool, error) {
	return exists(ctx, ex, `SELECT 1 FROM gpkg_spatial_ref_sys WHERE srs_id = ?`, id)
}

func layerExists(ctx context.Context, ex output.Execer, name string) (bool, error) {
	return exists(ctx, ex, `SELECT 1 FROM gpkg_contents WHERE table_name = ?`, name)
}

func tableExists(ctx context.Context, ex output.Execer, name string) (bool, error) {
	return exists(ctx, ex, `SELECT 1 FROM sqlite_master WHERE name = ? COLLATE NOCASE`, name)
}

func exists(ctx context.Context, ex output.Execer, query string, arg any) (bool, error) {
	var one int
	err := ex.QueryRowContext(ctx, query, arg).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, &domain.StorageError{Operation: "lookup", Key: fmt.Sprint(arg), Err: err}
	}
	return true, nil
}

// registerSRS inserts one spatial reference system row.
func registerSRS(ctx context.Context, ex output.Execer, srs domain.SpatialRefSys) error {
	if err := srs.Validate(); err != nil {
		return err
	}
	found, err := srsExists(ctx, ex, srs.ID)
	if err != nil {
		return err
	}
	if found {
		return domain.DuplicateSRS(srs.ID)
	}

	_, err = ex.ExecContext(ctx,
		`INSERT INTO gpkg_spatial_ref_sys
		 (srs_name, srs_id, organization, organization_coordsys_id, definition, description)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		srs.Name, srs.ID, srs.Organization, srs.OrganizationCoordSysID, srs.Definition,
		nullString(srs.Description),
	)
	if err != nil {
		if sqlite.IsUniqueViolation(err) {
			return domain.DuplicateSRS(srs.ID)
		}
		return &domain.StorageError{Operation: "insert srs", Key: fmt.Sprint(srs.ID), Err: err}
	}
	return nil
}

// registerLayerContents inserts the gpkg_contents row of a layer.
func registerLayerContents(ctx context.Context, ex output.Execer, name string, kind domain.DataKind, description string, srsID *int) error {
	found, err := layerExists(ctx, ex, name)
	if err != nil {
		return err
	}
	if found {
		return domain.DuplicateLayer(name)
	}
	if srsID != nil {
		if err := requireSRS(ctx, ex, *srsID); err != nil {
			return err
		}
	}

	_, err = ex.ExecContext(ctx,
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, description, srs_id)
		 VALUES (?, ?, ?, ?, ?)`,
		name, string(kind), name, description, nullInt(srsID),
	)
	if err != nil {
		if sqlite.IsUniqueViolation(err) {
			return domain.DuplicateLayer(name)
		}
		return &domain.StorageError{Operation: "insert contents", Key: name, Err: err}
	}
	return nil
}

// registerGeometryColumn inserts the gpkg_geometry_columns row of a layer.
// An unset srs is stored as 0, the undefined geographic SRS.
func registerGeometryColumn(ctx context.Context, ex output.Execer, layer, column string, subtype geom.Subtype, srsID *int) error {
	found, err := layerExists(ctx, ex, layer)
	if err != nil {
		return err
	}
	if !found {
		return domain.UnknownLayer(layer)
	}

	stored := domain.SRSUndefinedGeographic
	if srsID != nil {
		if err := requireSRS(ctx, ex, *srsID); err != nil {
			return err
		}
		stored = *srsID
	}

	_, err = ex.ExecContext(ctx,
		`INSERT INTO gpkg_geometry_columns (table_name, column_name, geometry_type_name, srs_id, z, m)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		layer, column, subtype.TypeName(), stored, subtype.ZFlag(), subtype.MFlag(),
	)
	if err != nil {
		if sqlite.IsUniqueViolation(err) {
			return domain.DuplicateLayer(layer)
		}
		return &domain.StorageError{Operation: "insert geometry column", Key: layer, Err: err}
	}
	return nil
}

// setLayerSRS updates the contents row and the geometry column row, if any.
func setLayerSRS(ctx context.Context, ex output.Execer, layer string, srsID int) error {
	found, err := layerExists(ctx, ex, layer)
	if err != nil {
		return err
	}
	if !found {
		return domain.UnknownLayer(layer)
	}
	if err := requireSRS(ctx, ex, srsID); err != nil {
		return err
	}

	if _, err := ex.ExecContext(ctx,
		`UPDATE gpkg_contents SET srs_id = ?, last_change = `+lastChangeNow+` WHERE table_name = ?`,
		srsID, layer,
	); err != nil {
		return &domain.StorageError{Operation: "update contents srs", Key: layer, Err: err}
	}
	if _, err := ex.ExecContext(ctx,
		`UPDATE gpkg_geometry_columns SET srs_id = ? WHERE table_name = ?`,
		srsID, layer,
	); err != nil {
		return &domain.StorageError{Operation: "update geometry column srs", Key: layer, Err: err}
	}
	return nil
}

// getLayerSRS returns the srs assigned to a geometry-bearing layer. ok is
// false when the layer has no geometry column or no srs set.
func getLayerSRS(ctx context.Context, ex output.Execer, layer string) (id int, ok bool, err error) {
	var (
		contentsSRS sql.NullInt64
		column      sql.NullString
	)
	err = ex.QueryRowContext(ctx,
		`SELECT c.srs_id, g.column_name
		 FROM gpkg_contents c
		 LEFT JOIN gpkg_geometry_columns g ON g.table_name = c.table_name
		 WHERE c.table_name = ?`,
		layer,
	).Scan(&contentsSRS, &column)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, domain.UnknownLayer(layer)
	case err != nil:
		return 0, false, &domain.StorageError{Operation: "get layer srs", Key: layer, Err: err}
	}
	if !column.Valid || !contentsSRS.Valid {
		return 0, false, nil
	}
	return int(contentsSRS.Int64), true, nil
}

func requireSRS(ctx context.Context, ex output.Execer, id int) error {
	found, err := srsExists(ctx, ex, id)
	if err != nil {
		return err
	}
	if !found {
		return domain.UnknownSRS(id)
	}
	return nil
}

// getSRS returns one spatial reference system row.
func getSRS(ctx context.Context, ex output.Execer, id int) (domain.SpatialRefSys, error) {
	var (
		s    domain.SpatialRefSys
		desc sql.NullString
	)
	err := ex.QueryRowContext(ctx,
		`SELECT srs_id, srs_name, organization, organization_coordsys_id, definition, description
		 FROM gpkg_spatial_ref_sys WHERE srs_id = ?`,
		id,
	).Scan(&s.ID, &s.Name, &s.Organization, &s.OrganizationCoordSysID, &s.Definition, &desc)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.SpatialRefSys{}, domain.UnknownSRS(id)
	case err != nil:
		return domain.SpatialRefSys{}, &domain.StorageError{Operation: "get srs", Key: fmt.Sprint(id), Err: err}
	}
	s.Description = desc.String
	return s, nil
}

// listSRS returns all spatial reference systems ordered by id.
func listSRS(ctx context.Context, ex output.Execer) ([]domain.SpatialRefSys, error) {
	rows, err := ex.QueryContext(ctx,
		`SELECT srs_id, srs_name, organization, organization_coordsys_id, definition, description
		 FROM gpkg_spatial_ref_sys ORDER BY srs_id`)
	if err != nil {
		return nil, &domain.StorageError{Operation: "list srs", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var out []domain.SpatialRefSys
	for rows.Next() {
		var (
			s    domain.SpatialRefSys
			desc sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Name, &s.Organization, &s.OrganizationCoordSysID, &s.Definition, &desc); err != nil {
			return nil, &domain.StorageError{Operation: "scan srs", Err: err}
		}
		s.Description = desc.String
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Operation: "list srs", Err: err}
	}
	return out, nil
}

// listLayers reads gpkg_contents joined with gpkg_geometry_columns.
// Record counts are filled in by the caller.
func listLayers(ctx context.Context, ex output.Execer) ([]domain.Layer, error) {
	rows, err := ex.QueryContext(ctx, `
		SELECT
			c.table_name,
			c.data_type,
			COALESCE(c.description, ''),
			COALESCE(c.last_change, ''),
			c.srs_id,
			c.min_x, c.min_y, c.max_x, c.max_y,
			g.column_name,
			g.geometry_type_name,
			g.z,
			g.m
		FROM gpkg_contents c
		LEFT JOIN gpkg_geometry_columns g ON c.table_name = g.table_name
		ORDER BY c.table_name
	`)
	if err != nil {
		return nil, &domain.StorageError{Operation: "list layers", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var layers []domain.Layer
	for rows.Next() {
		var (
			l                      domain.Layer
			kind                   string
			srs                    sql.NullInt64
			minX, minY, maxX, maxY sql.NullFloat64
			column, typeName       sql.NullString
			z, m                   sql.NullInt64
		)
		err := rows.Scan(
			&l.Name, &kind, &l.Description, &l.LastChange, &srs,
			&minX, &minY, &maxX, &maxY,
			&column, &typeName, &z, &m,
		)
		if err != nil {
			return nil, &domain.StorageError{Operation: "scan layer", Err: err}
		}
		l.Kind = domain.DataKind(kind)
		if srs.Valid {
			id := int(srs.Int64)
			l.SRSID = &id
		}
		if minX.Valid && minY.Valid && maxX.Valid && maxY.Valid {
			l.Extent = &geom.Envelope{
				MinX: minX.Float64, MaxX: maxX.Float64,
				MinY: minY.Float64, MaxY: maxY.Float64,
			}
		}
		if column.Valid {
			l.GeometryColumn = column.String
			// Unknown geometry type names from foreign writers leave the zero subtype.
			l.GeometryType, _ = geom.SubtypeFromColumn(typeName.String, int(z.Int64), int(m.Int64))
		}
		layers = append(layers, l)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Operation: "list layers", Err: err}
	}
	return layers, nil
}

// geometryColumn returns the geometry column row of a layer. ok is false
// for attribute layers.
func geometryColumn(ctx context.Context, ex output.Execer, layer string) (column string, subtype geom.Subtype, ok bool, err error) {
	var (
		typeName string
		z, m     int
	)
	err = ex.QueryRowContext(ctx,
		`SELECT column_name, geometry_type_name, z, m FROM gpkg_geometry_columns WHERE table_name = ?`,
		layer,
	).Scan(&column, &typeName, &z, &m)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", geom.Subtype{}, false, nil
	case err != nil:
		return "", geom.Subtype{}, false, &domain.StorageError{Operation: "get geometry column", Key: layer, Err: err}
	}
	subtype, err = geom.SubtypeFromColumn(typeName, z, m)
	if err != nil {
		return "", geom.Subtype{}, false, &domain.DeclarationError{Layer: layer, Field: column, Message: err.Error()}
	}
	return column, subtype, true, nil
}

// updateExtent grows the contents bounding box of a layer by env.
func updateExtent(ctx context.Context, ex output.Execer, layer string, env geom.Envelope) error {
	if env.Empty {
		return nil
	}
	_, err := ex.ExecContext(ctx, `
		UPDATE gpkg_contents SET
			min_x = CASE WHEN min_x IS NULL OR ? < min_x THEN ? ELSE min_x END,
			min_y = CASE WHEN min_y IS NULL OR ? < min_y THEN ? ELSE min_y END,
			max_x = CASE WHEN max_x IS NULL OR ? > max_x THEN ? ELSE max_x END,
			max_y = CASE WHEN max_y IS NULL OR ? > max_y THEN ? ELSE max_y END,
			last_change = `+lastChangeNow+`
		WHERE table_name = ?`,
		env.MinX, env.MinX, env.MinY, env.MinY,
		env.MaxX, env.MaxX, env.MaxY, env.MaxY,
		layer,
	)
	if err != nil {
		return &domain.StorageError{Operation: "update extent", Key: layer, Err: err}
	}
	return nil
}

// touchLayer bumps last_change after a write to an attributes layer.
func touchLayer(ctx context.Context, ex output.Execer, layer string) error {
	_, err := ex.ExecContext(ctx,
		`UPDATE gpkg_contents SET last_change = `+lastChangeNow+` WHERE table_name = ?`, layer)
	if err != nil {
		return &domain.StorageError{Operation: "touch layer", Key: layer, Err: err}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
