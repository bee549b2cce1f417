package output

import (
	"context"
	"database/sql"
)

// Execer is the statement surface shared by a connection and a transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Store is the embedded relational engine backing one GeoPackage file.
// *sql.DB satisfies it.
type Store interface {
	Execer

	// BeginTx starts a transaction on the store.
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)

	// Close releases the underlying connection.
	Close() error
}
