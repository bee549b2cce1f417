// Package geopackage provides typed read/write access to GeoPackage files:
// catalog maintenance, layer declaration, record mapping and the session
// that ties them to one open file.
package geopackage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"time"

	"github.com/jobrunner/gpkgkit/internal/adapters/sqlite"
	"github.com/jobrunner/gpkgkit/internal/domain"
	"github.com/jobrunner/gpkgkit/internal/ports/output"
)

// Session is one open GeoPackage file. It owns a single connection and
// the catalog state of the file. A Session is not safe for concurrent use.
type Session struct {
	path    string
	db      output.Store
	logger  *slog.Logger
	metrics output.MetricsCollector
	closed  bool
	scans   int // open GetAll/GetN loops
}

type options struct {
	logger      *slog.Logger
	metrics     output.MetricsCollector
	busyTimeout time.Duration
	journalMode string
	readOnly    bool
}

// Option configures a Session.
type Option func(*options)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m output.MetricsCollector) Option {
	return func(o *options) { o.metrics = m }
}

// WithBusyTimeout sets how long a statement waits on a locked file.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) { o.busyTimeout = d }
}

// WithJournalMode sets the SQLite journal mode (DELETE, WAL, ...).
func WithJournalMode(mode string) Option {
	return func(o *options) { o.journalMode = mode }
}

// WithReadOnly makes Open use a read-only connection. Create ignores it.
func WithReadOnly() Option {
	return func(o *options) { o.readOnly = true }
}

func buildOptions(opts []Option) options {
	o := options{
		logger:  slog.Default(),
		metrics: &output.NoOpMetrics{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Create creates a fresh GeoPackage at path, truncating any existing file,
// and writes the catalog tables with their mandatory rows.
func Create(ctx context.Context, path string, opts ...Option) (*Session, error) {
	o := buildOptions(opts)
	start := time.Now()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644) //#nosec G302 G304 -- caller-chosen output file
	if err != nil {
		return nil, &domain.IOError{Operation: "create", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return nil, &domain.IOError{Operation: "create", Path: path, Err: err}
	}
	// A stale journal would be replayed over the truncated file.
	for _, suffix := range []string{"-journal", "-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, &domain.IOError{Operation: "create", Path: path + suffix, Err: err}
		}
	}

	db, err := sqlite.Open(ctx, path, sqlite.Options{
		Mode:        sqlite.ReadWrite,
		BusyTimeout: o.busyTimeout,
		JournalMode: o.journalMode,
	})
	if err != nil {
		return nil, &domain.IOError{Operation: "create", Path: path, Err: err}
	}

	s := newSession(path, db, o)
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		for _, pragma := range []string{
			fmt.Sprintf("PRAGMA application_id = %d", ApplicationID),
			fmt.Sprintf("PRAGMA user_version = %d", UserVersion),
		} {
			if _, err := tx.ExecContext(ctx, pragma); err != nil {
				return &domain.StorageError{Operation: "set header", Err: err}
			}
		}
		return initCatalog(ctx, tx)
	})
	s.observe("create", start, err)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	s.logger.Info("geopackage created", "path", path)
	return s, nil
}

// Open opens an existing GeoPackage. Files without the mandatory catalog
// tables fail with domain.ErrNotAGeoPackage.
func Open(ctx context.Context, path string, opts ...Option) (*Session, error) {
	o := buildOptions(opts)
	start := time.Now()

	if _, err := os.Stat(path); err != nil {
		return nil, &domain.IOError{Operation: "open", Path: path, Err: err}
	}

	mode := sqlite.ReadWrite
	if o.readOnly {
		mode = sqlite.ReadOnly
	}
	db, err := sqlite.Open(ctx, path, sqlite.Options{
		Mode:        mode,
		BusyTimeout: o.busyTimeout,
		JournalMode: o.journalMode,
	})
	if err != nil {
		if sqlite.IsNotADatabase(err) {
			return nil, fmt.Errorf("%s: %w", path, domain.ErrNotAGeoPackage)
		}
		return nil, &domain.IOError{Operation: "open", Path: path, Err: err}
	}

	s := newSession(path, db, o)
	err = validateCatalog(ctx, db)
	s.observe("open", start, err)
	if err != nil {
		_ = db.Close()
		if errors.Is(err, domain.ErrNotAGeoPackage) {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return nil, err
	}

	s.logger.Info("geopackage opened", "path", path)
	return s, nil
}

func newSession(path string, db output.Store, o options) *Session {
	return &Session{
		path:    path,
		db:      db,
		logger:  o.logger.With("geopackage", path),
		metrics: o.metrics,
	}
}

// Path returns the file path of the session.
func (s *Session) Path() string { return s.path }

// Close releases the connection. Every later call, including Close, fails
// with domain.ErrSessionClosed.
func (s *Session) Close() error {
	if s.closed {
		return domain.ErrSessionClosed
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return &domain.IOError{Operation: "close", Path: s.path, Err: err}
	}
	s.logger.Info("geopackage closed")
	return nil
}

// NewSRS registers a spatial reference system.
func (s *Session) NewSRS(ctx context.Context, srs domain.SpatialRefSys) (err error) {
	start := time.Now()
	defer func() { s.observe("new_srs", start, err) }()
	if err = s.check(); err != nil {
		return err
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		return registerSRS(ctx, tx, srs)
	})
	if err == nil {
		s.logger.Debug("srs registered", "srs_id", srs.ID, "name", srs.Name)
	}
	return err
}

// SpatialRefSys returns one registered spatial reference system.
func (s *Session) SpatialRefSys(ctx context.Context, id int) (domain.SpatialRefSys, error) {
	if err := s.check(); err != nil {
		return domain.SpatialRefSys{}, err
	}
	return getSRS(ctx, s.db, id)
}

// SpatialRefSystems lists the registered spatial reference systems.
func (s *Session) SpatialRefSystems(ctx context.Context) ([]domain.SpatialRefSys, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return listSRS(ctx, s.db)
}

// CreateLayer creates the table for desc and registers it in the catalogs
// in one transaction.
func (s *Session) CreateLayer(ctx context.Context, desc domain.TypeDescriptor) (def *TableDefinition, err error) {
	start := time.Now()
	defer func() { s.observe("create_layer", start, err) }()
	if err = s.check(); err != nil {
		return nil, err
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		def, err = declareLayer(ctx, tx, desc)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("layer created", "layer", desc.Layer, "kind", def.Kind(), "fields", len(desc.Fields))
	return def, nil
}

// ResolveLayer binds desc to an existing layer.
func (s *Session) ResolveLayer(ctx context.Context, desc domain.TypeDescriptor) (*TableDefinition, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return resolveLayer(ctx, s.db, desc)
}

// DescribeLayer reconstructs the record shape of a stored layer.
func (s *Session) DescribeLayer(ctx context.Context, layer string) (domain.TypeDescriptor, error) {
	if err := s.check(); err != nil {
		return domain.TypeDescriptor{}, err
	}
	return describeLayer(ctx, s.db, layer)
}

// UpdateLayerSRSID assigns a spatial reference system to a layer. The srs
// is not checked against the layer's geometry type.
func (s *Session) UpdateLayerSRSID(ctx context.Context, layer string, srsID int) (err error) {
	start := time.Now()
	defer func() { s.observe("update_layer_srs", start, err) }()
	if err = s.check(); err != nil {
		return err
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		return setLayerSRS(ctx, tx, layer, srsID)
	})
	if err == nil {
		s.logger.Debug("layer srs updated", "layer", layer, "srs_id", srsID)
	}
	return err
}

// GetLayerSRSID returns the srs of a layer. ok is false when the layer has
// no geometry column or no srs assigned yet.
func (s *Session) GetLayerSRSID(ctx context.Context, layer string) (id int, ok bool, err error) {
	if err = s.check(); err != nil {
		return 0, false, err
	}
	return getLayerSRS(ctx, s.db, layer)
}

// InsertMany writes records in one transaction: either all of them are
// stored or none are. Geometries are encoded with the layer's srs, or 0
// while none is assigned.
func (s *Session) InsertMany(ctx context.Context, def *TableDefinition, records []domain.Record) (err error) {
	start := time.Now()
	defer func() { s.observe("insert_many", start, err) }()
	if err = s.check(); err != nil {
		return err
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		srsID, ok, err := getLayerSRS(ctx, tx, def.Layer())
		if err != nil {
			return err
		}
		if !ok {
			srsID = domain.SRSUndefinedGeographic
		}

		env, err := insertMany(ctx, tx, def, int32(srsID), records) //#nosec G115 -- srs ids are int32 on disk
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		if def.Kind() == domain.KindFeatures {
			return updateExtent(ctx, tx, def.Layer(), env)
		}
		return touchLayer(ctx, tx, def.Layer())
	})
	if err != nil {
		return err
	}
	s.metrics.AddRecordsWritten(def.Layer(), len(records))
	s.logger.Debug("records inserted", "layer", def.Layer(), "count", len(records))
	return nil
}

// GetAll streams every record of a layer in storage order. The scan holds
// the session's connection until the loop ends, so other calls on the
// session made inside the loop fail with domain.ErrBusy. A row that fails
// to decode yields its error and ends the sequence.
func (s *Session) GetAll(ctx context.Context, def *TableDefinition) iter.Seq2[domain.Record, error] {
	return s.scan(ctx, def, 0)
}

// GetN streams at most limit records of a layer.
func (s *Session) GetN(ctx context.Context, def *TableDefinition, limit int) iter.Seq2[domain.Record, error] {
	return s.scan(ctx, def, limit)
}

func (s *Session) scan(ctx context.Context, def *TableDefinition, limit int) iter.Seq2[domain.Record, error] {
	return func(yield func(domain.Record, error) bool) {
		if err := s.check(); err != nil {
			yield(nil, err)
			return
		}
		s.scans++
		defer func() { s.scans-- }()

		n := 0
		defer func() { s.metrics.AddRecordsRead(def.Layer(), n) }()
		for rec, err := range scanRecords(ctx, s.db, def, limit) {
			if err != nil {
				s.metrics.IncOperationCount("get_all", false)
				yield(nil, err)
				return
			}
			n++
			if !yield(rec, nil) {
				return
			}
		}
		s.metrics.IncOperationCount("get_all", true)
	}
}

// Count returns the number of records in a layer.
func (s *Session) Count(ctx context.Context, def *TableDefinition) (int64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	return countRecords(ctx, s.db, def)
}

// Layers lists the catalogued layers with their record counts.
func (s *Session) Layers(ctx context.Context) ([]domain.Layer, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	layers, err := listLayers(ctx, s.db)
	if err != nil {
		return nil, err
	}
	for i := range layers {
		var n int64
		q := "SELECT COUNT(*) FROM " + quoteIdent(layers[i].Name)
		if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
			s.logger.Warn("failed to count layer records", "layer", layers[i].Name, "error", err)
			continue
		}
		layers[i].RecordCount = n
	}
	return layers, nil
}

// check fails calls on a closed session and calls made while a scan holds
// the only connection.
func (s *Session) check() error {
	if s.closed {
		return domain.ErrSessionClosed
	}
	if s.scans > 0 {
		return &domain.StorageError{Operation: "query", Key: s.path, Err: domain.ErrBusy}
	}
	return nil
}

// withTx runs fn in a transaction. Any error rolls back; commit happens
// only when fn succeeds.
func (s *Session) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.StorageError{Operation: "begin", Err: err}
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Warn("rollback failed", "error", rbErr)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return &domain.StorageError{Operation: "commit", Err: err}
	}
	return nil
}

func (s *Session) observe(op string, start time.Time, err error) {
	s.metrics.IncOperationCount(op, err == nil)
	s.metrics.ObserveOperationDuration(op, time.Since(start))
}
