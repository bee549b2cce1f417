// Package sqlite binds the embedded store to mattn/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// DriverName is the database/sql driver registered by this package.
const DriverName = "sqlite3_gpkg"

// Every connection enforces foreign keys; the catalog tables rely on them.
func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			_, err := conn.Exec("PRAGMA foreign_keys = ON", nil)
			return err
		},
	})
}

// Mode controls how the file is opened.
type Mode int

// Open modes.
const (
	// ReadWriteCreate creates the file if it does not exist.
	ReadWriteCreate Mode = iota
	// ReadWrite requires an existing file.
	ReadWrite
	// ReadOnly opens an existing file without write access.
	ReadOnly
)

// Options configures a connection.
type Options struct {
	Mode        Mode
	BusyTimeout time.Duration // 0 leaves the driver default
	JournalMode string        // e.g. DELETE, WAL; empty leaves the file's mode
}

// DSN builds the data source name for path as a file: URI with the path
// percent-encoded.
func DSN(path string, opts Options) string {
	q := url.Values{}
	switch opts.Mode {
	case ReadWrite:
		q.Set("mode", "rw")
	case ReadOnly:
		q.Set("mode", "ro")
	default:
		q.Set("mode", "rwc")
	}
	if opts.BusyTimeout > 0 {
		q.Set("_busy_timeout", fmt.Sprint(opts.BusyTimeout.Milliseconds()))
	}
	if opts.JournalMode != "" {
		q.Set("_journal_mode", strings.ToUpper(opts.JournalMode))
	}
	// SQLite decodes %xx in URI paths and stops the path at ? or #.
	return "file:" + (&url.URL{Path: path}).EscapedPath() + "?" + q.Encode()
}

// Open opens the file at path on a single connection and verifies that it
// can be reached.
func Open(ctx context.Context, path string, opts Options) (*sql.DB, error) {
	db, err := sql.Open(DriverName, DSN(path, opts))
	if err != nil {
		return nil, err
	}

	// One file, one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func IsUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) || se.Code != sqlite3.ErrConstraint {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// IsForeignKeyViolation reports whether err is a FOREIGN KEY constraint
// failure.
func IsForeignKeyViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

// IsNotADatabase reports whether the opened file is not an SQLite database.
func IsNotADatabase(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrNotADB
}
