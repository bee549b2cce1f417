package geopackage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jobrunner/gpkgkit/internal/domain"
	"github.com/jobrunner/gpkgkit/internal/geom"
	"github.com/jobrunner/gpkgkit/internal/ports/output"
)

// TableDefinition is a layer bound to its table. It carries the column
// order and the statements the record mapper uses, so the mapping is
// derived once per layer.
type TableDefinition struct {
	desc      domain.TypeDescriptor
	geomIndex int // index into desc.Fields, -1 for attribute layers

	insertSQL string
	selectSQL string
	countSQL  string
}

func newTableDefinition(desc domain.TypeDescriptor) *TableDefinition {
	def := &TableDefinition{desc: desc, geomIndex: -1}

	cols := make([]string, len(desc.Fields))
	marks := make([]string, len(desc.Fields))
	for i, f := range desc.Fields {
		cols[i] = quoteIdent(f.Name)
		marks[i] = "?"
		if f.IsGeometry() {
			def.geomIndex = i
		}
	}
	table := quoteIdent(desc.Layer)
	columns := strings.Join(cols, ", ")

	def.insertSQL = "INSERT INTO " + table + " (" + columns + ") VALUES (" + strings.Join(marks, ", ") + ")"
	def.selectSQL = "SELECT " + columns + " FROM " + table
	def.countSQL = "SELECT COUNT(*) FROM " + table
	return def
}

// Layer returns the layer name.
func (d *TableDefinition) Layer() string { return d.desc.Layer }

// Kind returns the layer's data kind.
func (d *TableDefinition) Kind() domain.DataKind { return d.desc.Kind() }

// Descriptor returns a copy of the record shape.
func (d *TableDefinition) Descriptor() domain.TypeDescriptor {
	out := d.desc
	out.Fields = append([]domain.FieldDescriptor(nil), d.desc.Fields...)
	return out
}

// Fields returns the fields in column order.
func (d *TableDefinition) Fields() []domain.FieldDescriptor {
	return append([]domain.FieldDescriptor(nil), d.desc.Fields...)
}

// GeometryField returns the geometry field, if any.
func (d *TableDefinition) GeometryField() (domain.FieldDescriptor, bool) {
	if d.geomIndex < 0 {
		return domain.FieldDescriptor{}, false
	}
	return d.desc.Fields[d.geomIndex], true
}

// createTableSQL returns the table-definition statement for desc.
func createTableSQL(desc domain.TypeDescriptor) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(quoteIdent(desc.Layer))
	b.WriteString(" (\n  ")
	b.WriteString(quoteIdent(domain.FIDColumn))
	b.WriteString(" INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL")
	for _, f := range desc.Fields {
		b.WriteString(",\n  ")
		b.WriteString(quoteIdent(f.Name))
		b.WriteString(" ")
		b.WriteString(f.SQLType())
		if !f.Nullable {
			b.WriteString(" NOT NULL")
		}
	}
	b.WriteString("\n)")
	return b.String()
}

// declareLayer creates the table of a layer and registers it in the
// catalogs. The caller provides the transaction.
func declareLayer(ctx context.Context, ex output.Execer, desc domain.TypeDescriptor) (*TableDefinition, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	found, err := layerExists(ctx, ex, desc.Layer)
	if err != nil {
		return nil, err
	}
	if !found {
		// Tables outside the catalog still occupy the name.
		found, err = tableExists(ctx, ex, desc.Layer)
		if err != nil {
			return nil, err
		}
	}
	if found {
		return nil, domain.DuplicateLayer(desc.Layer)
	}

	if _, err := ex.ExecContext(ctx, createTableSQL(desc)); err != nil {
		return nil, &domain.StorageError{Operation: "create table", Key: desc.Layer, Err: err}
	}
	if err := registerLayerContents(ctx, ex, desc.Layer, desc.Kind(), desc.Description, nil); err != nil {
		return nil, err
	}
	if g, ok := desc.GeometryField(); ok {
		if err := registerGeometryColumn(ctx, ex, desc.Layer, g.Name, g.Geometry, nil); err != nil {
			return nil, err
		}
	}
	return newTableDefinition(desc), nil
}

// column is one row of PRAGMA table_info.
type column struct {
	name    string
	sqlType string
	notNull bool
	pk      bool
}

func tableColumns(ctx context.Context, ex output.Execer, table string) ([]column, error) {
	rows, err := ex.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(table)+")")
	if err != nil {
		return nil, &domain.StorageError{Operation: "table info", Key: table, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var cols []column
	for rows.Next() {
		var (
			cid       int
			c         column
			notNull   int
			dflt      any
			pkOrdinal int
		)
		if err := rows.Scan(&cid, &c.name, &c.sqlType, &notNull, &dflt, &pkOrdinal); err != nil {
			return nil, &domain.StorageError{Operation: "table info", Key: table, Err: err}
		}
		c.notNull = notNull != 0
		c.pk = pkOrdinal > 0
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Operation: "table info", Key: table, Err: err}
	}
	return cols, nil
}

// geometryTypeNames are the column types of the GeoPackage geometry type
// list. Several contain "INT", so they must be ruled out before affinity.
var geometryTypeNames = map[string]bool{
	"GEOMETRY":           true,
	"POINT":              true,
	"LINESTRING":         true,
	"POLYGON":            true,
	"MULTIPOINT":         true,
	"MULTILINESTRING":    true,
	"MULTIPOLYGON":       true,
	"GEOMETRYCOLLECTION": true,
	"CIRCULARSTRING":     true,
	"COMPOUNDCURVE":      true,
	"CURVEPOLYGON":       true,
	"MULTICURVE":         true,
	"MULTISURFACE":       true,
	"CURVE":              true,
	"SURFACE":            true,
}

// fieldTypeOf maps a declared column type to a field type using SQLite's
// affinity rules for anything the GeoPackage type list does not name.
func fieldTypeOf(sqlType string) (domain.FieldType, bool) {
	t := strings.ToUpper(strings.TrimSpace(sqlType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i]) // TEXT(32)
	}
	switch t {
	case "BOOLEAN":
		return domain.FieldBoolean, true
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT":
		return domain.FieldInteger, true
	case "FLOAT", "DOUBLE", "REAL":
		return domain.FieldReal, true
	case "TEXT", "DATE", "DATETIME":
		return domain.FieldText, true
	case "BLOB":
		return domain.FieldBlob, true
	}
	if geometryTypeNames[t] {
		return 0, false
	}
	switch {
	case strings.Contains(t, "INT"):
		return domain.FieldInteger, true
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		return domain.FieldText, true
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"):
		return domain.FieldReal, true
	}
	return 0, false
}

// describeLayer rebuilds the record shape of a catalogued layer from its
// table and catalog rows. The integer primary key is not part of it.
func describeLayer(ctx context.Context, ex output.Execer, layer string) (domain.TypeDescriptor, error) {
	var description string
	err := ex.QueryRowContext(ctx,
		`SELECT COALESCE(description, '') FROM gpkg_contents WHERE table_name = ?`, layer,
	).Scan(&description)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.TypeDescriptor{}, domain.UnknownLayer(layer)
	case err != nil:
		return domain.TypeDescriptor{}, &domain.StorageError{Operation: "describe layer", Key: layer, Err: err}
	}

	geomColumn, subtype, hasGeom, err := geometryColumn(ctx, ex, layer)
	if err != nil {
		return domain.TypeDescriptor{}, err
	}

	cols, err := tableColumns(ctx, ex, layer)
	if err != nil {
		return domain.TypeDescriptor{}, err
	}
	if len(cols) == 0 {
		return domain.TypeDescriptor{}, &domain.DeclarationError{Layer: layer, Message: "catalogued table does not exist"}
	}

	desc := domain.TypeDescriptor{Layer: layer, Description: description}
	for _, c := range cols {
		if c.pk {
			if ft, _ := fieldTypeOf(c.sqlType); ft == domain.FieldInteger {
				continue
			}
		}
		if hasGeom && strings.EqualFold(c.name, geomColumn) {
			f := domain.GeometryField(c.name, subtype)
			f.Nullable = !c.notNull
			desc.Fields = append(desc.Fields, f)
			continue
		}
		ft, ok := fieldTypeOf(c.sqlType)
		if !ok {
			return domain.TypeDescriptor{}, &domain.DeclarationError{
				Layer: layer, Field: c.name, Message: fmt.Sprintf("unsupported column type %q", c.sqlType),
			}
		}
		desc.Fields = append(desc.Fields, domain.FieldDescriptor{Name: c.name, Type: ft, Nullable: !c.notNull})
	}
	return desc, nil
}

// resolveLayer binds desc to an existing layer. Every declared field must
// exist with a matching type; the stored table may carry extra nullable
// columns.
func resolveLayer(ctx context.Context, ex output.Execer, desc domain.TypeDescriptor) (*TableDefinition, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	stored, err := describeLayer(ctx, ex, desc.Layer)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]domain.FieldDescriptor, len(stored.Fields))
	for _, f := range stored.Fields {
		byName[strings.ToLower(f.Name)] = f
	}
	for _, f := range desc.Fields {
		s, ok := byName[strings.ToLower(f.Name)]
		if !ok {
			return nil, &domain.DeclarationError{Layer: desc.Layer, Field: f.Name, Message: "no such column"}
		}
		if s.Type != f.Type {
			return nil, &domain.DeclarationError{
				Layer: desc.Layer, Field: f.Name,
				Message: fmt.Sprintf("declared %s, stored %s", f.Type, s.Type),
			}
		}
		if f.IsGeometry() && s.Geometry != f.Geometry {
			return nil, &domain.DeclarationError{
				Layer: desc.Layer, Field: f.Name,
				Message: fmt.Sprintf("declared %s, stored %s", f.Geometry, s.Geometry),
			}
		}
		delete(byName, strings.ToLower(f.Name))
	}
	for _, s := range byName {
		if !s.Nullable {
			return nil, &domain.DeclarationError{Layer: desc.Layer, Field: s.Name, Message: "required column is not declared"}
		}
	}

	if desc.Description == "" {
		desc.Description = stored.Description
	}
	return newTableDefinition(desc), nil
}

// quoteIdent quotes an SQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// subtypeMatches reports whether a geometry value fits a column subtype.
func subtypeMatches(want geom.Subtype, g geom.Geometry) bool {
	return g.Type() == want.Type && g.Layout() == want.Dims
}
