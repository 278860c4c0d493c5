package postgres

import (
	"context"
	"database/sql"
)

// DBTX is the common surface of *sqlx.DB and *sqlx.Tx. Repositories are
// built against it so the same code runs on a plain connection or inside
// a transaction, which is what the registry commit path and the
// transactional test helpers rely on.
type DBTX interface {
	// Core query methods
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row

	// sqlx extended methods
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error

	// Named query support
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}
