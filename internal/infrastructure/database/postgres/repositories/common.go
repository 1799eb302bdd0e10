package repositories

import (
	"context"
	"database/sql"
	"errors"
)

// queryExecutor is satisfied by *sql.DB and *sql.Tx.
type queryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// noRows reports a single-row lookup that matched nothing. Reference lookups
// treat it as "absent", entity lookups as not-found.
func noRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
