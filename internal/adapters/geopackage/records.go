package geopackage

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"time"

	"github.com/jobrunner/gpkgkit/internal/domain"
	"github.com/jobrunner/gpkgkit/internal/geom"
	"github.com/jobrunner/gpkgkit/internal/ports/output"
)

// insertMany writes records through one prepared statement. The caller
// owns the transaction. It returns the union of the written geometries'
// envelopes.
func insertMany(ctx context.Context, ex output.Execer, def *TableDefinition, srsID int32, records []domain.Record) (geom.Envelope, error) {
	env := geom.Envelope{Empty: true}
	if g, ok := def.GeometryField(); ok {
		env.Dims = g.Geometry.Dims
	}
	if len(records) == 0 {
		return env, nil
	}

	fields := def.desc.Fields
	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f.Name] = true
	}

	stmt, err := ex.PrepareContext(ctx, def.insertSQL)
	if err != nil {
		return env, &domain.StorageError{Operation: "prepare insert", Key: def.Layer(), Err: err}
	}
	defer func() { _ = stmt.Close() }()

	args := make([]any, len(fields))
	for i, rec := range records {
		for name, v := range rec {
			if !known[name] {
				return env, &domain.RecordError{Layer: def.Layer(), Index: i, Field: name, Value: v, Message: "unknown field"}
			}
		}
		for j, f := range fields {
			v, err := bindValue(f, rec[f.Name], srsID)
			if err != nil {
				return env, &domain.RecordError{Layer: def.Layer(), Index: i, Field: f.Name, Value: rec[f.Name], Message: err.Error()}
			}
			args[j] = v
			if g, ok := rec[f.Name].(geom.Geometry); ok && f.IsGeometry() {
				env = env.Extend(g.Envelope())
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return env, &domain.StorageError{Operation: "insert", Key: fmt.Sprintf("%s[%d]", def.Layer(), i), Err: err}
		}
	}
	return env, nil
}

// bindValue converts a record value to the value bound for its column.
func bindValue(f domain.FieldDescriptor, v any, srsID int32) (any, error) {
	if g, ok := v.(geom.Geometry); ok && geom.IsNil(g) {
		v = nil
	}
	if v == nil {
		if f.Nullable {
			return nil, nil
		}
		return nil, fmt.Errorf("value is required")
	}

	switch f.Type {
	case domain.FieldInteger:
		if i, ok := toInt64(v); ok {
			return i, nil
		}
		return nil, fmt.Errorf("expected integer, got %T", v)
	case domain.FieldReal:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		}
		if i, ok := toInt64(v); ok {
			return float64(i), nil
		}
		return nil, fmt.Errorf("expected real, got %T", v)
	case domain.FieldText:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("expected text, got %T", v)
	case domain.FieldBlob:
		if b, ok := v.([]byte); ok {
			return b, nil
		}
		return nil, fmt.Errorf("expected blob, got %T", v)
	case domain.FieldBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("expected boolean, got %T", v)
	case domain.FieldGeometry:
		g, ok := v.(geom.Geometry)
		if !ok {
			return nil, fmt.Errorf("expected geometry, got %T", v)
		}
		if !subtypeMatches(f.Geometry, g) {
			return nil, fmt.Errorf("expected %s, got %s", f.Geometry, geom.SubtypeOf(g))
		}
		return geom.Encode(srsID, g)
	}
	return nil, fmt.Errorf("unsupported field type %s", f.Type)
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint:
		if uint64(x) <= math.MaxInt64 {
			return int64(x), true
		}
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x), true
		}
	}
	return 0, false
}

// scanRecords streams the rows of a layer in storage order. A limit <= 0
// scans the whole table. A row that fails to decode ends the sequence
// with its error.
func scanRecords(ctx context.Context, ex output.Execer, def *TableDefinition, limit int) iter.Seq2[domain.Record, error] {
	return func(yield func(domain.Record, error) bool) {
		query, args := def.selectSQL, []any(nil)
		if limit > 0 {
			query += " LIMIT ?"
			args = append(args, limit)
		}

		rows, err := ex.QueryContext(ctx, query, args...)
		if err != nil {
			yield(nil, &domain.StorageError{Operation: "scan", Key: def.Layer(), Err: err})
			return
		}
		defer func() { _ = rows.Close() }()

		fields := def.desc.Fields
		raw := make([]any, len(fields))
		dest := make([]any, len(fields))
		for i := range raw {
			dest[i] = &raw[i]
		}

		for n := 0; rows.Next(); n++ {
			if err := rows.Scan(dest...); err != nil {
				yield(nil, &domain.StorageError{Operation: "scan", Key: def.Layer(), Err: err})
				return
			}
			rec := make(domain.Record, len(fields))
			for i, f := range fields {
				v, err := columnValue(f, raw[i])
				if err != nil {
					var fe *geom.FormatError
					if !errors.As(err, &fe) {
						err = &domain.RecordError{Layer: def.Layer(), Index: n, Field: f.Name, Value: raw[i], Message: err.Error()}
					}
					yield(nil, err)
					return
				}
				rec[f.Name] = v
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, &domain.StorageError{Operation: "scan", Key: def.Layer(), Err: err})
		}
	}
}

// columnValue converts a scanned cell to the record value for f.
// Geometry failures are returned as *geom.FormatError.
func columnValue(f domain.FieldDescriptor, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}

	switch f.Type {
	case domain.FieldInteger:
		switch x := raw.(type) {
		case int64:
			return x, nil
		case bool:
			if x {
				return int64(1), nil
			}
			return int64(0), nil
		}
	case domain.FieldReal:
		switch x := raw.(type) {
		case float64:
			return x, nil
		case int64:
			return float64(x), nil
		}
	case domain.FieldText:
		switch x := raw.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		case time.Time:
			return x.UTC().Format(time.RFC3339Nano), nil
		}
	case domain.FieldBlob:
		switch x := raw.(type) {
		case []byte:
			return x, nil
		case string:
			return []byte(x), nil
		}
	case domain.FieldBoolean:
		switch x := raw.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		}
	case domain.FieldGeometry:
		b, ok := raw.([]byte)
		if !ok {
			return nil, &geom.FormatError{Kind: geom.UnsupportedType, Msg: fmt.Sprintf("geometry cell holds %T", raw)}
		}
		g, err := geom.Decode(b)
		if err != nil {
			return nil, err
		}
		if g.Layout() != f.Geometry.Dims {
			return nil, &geom.FormatError{
				Kind: geom.DimensionMismatch,
				Msg:  fmt.Sprintf("column %s is %s, stored geometry is %s", f.Name, f.Geometry.Dims, g.Layout()),
			}
		}
		if g.Type() != f.Geometry.Type {
			return nil, &geom.FormatError{
				Kind: geom.UnsupportedType,
				Msg:  fmt.Sprintf("column %s is %s, stored geometry is %s", f.Name, f.Geometry.Type, g.Type()),
			}
		}
		return g, nil
	}
	return nil, fmt.Errorf("%s column holds %T", f.Type, raw)
}

func countRecords(ctx context.Context, ex output.Execer, def *TableDefinition) (int64, error) {
	var n int64
	if err := ex.QueryRowContext(ctx, def.countSQL).Scan(&n); err != nil {
		return 0, &domain.StorageError{Operation: "count", Key: def.Layer(), Err: err}
	}
	return n, nil
}
