package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"hermes/internal/adapters/config"
	"hermes/pkg/errors"
)

// connectTimeout bounds the initial dial and ping.
const connectTimeout = 10 * time.Second

// Client wraps sqlx.DB for the accounting ledger database.
type Client struct {
	db *sqlx.DB
}

// NewClient connects to the ledger database and configures the pool.
// sqlx.ConnectContext pings before returning, so a bad DSN fails here
// rather than on the first fill.
func NewClient(cfg config.PostgresConfig) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to postgres")
	}

	// The ledger is touched once per fill and once per stop tick, so the
	// pool stays small and idle connections are recycled quickly.
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxConns / 2)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	return &Client{db: db}, nil
}

// DB returns the underlying sqlx.DB instance
func (c *Client) DB() *sqlx.DB {
	return c.db
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// Health checks database connectivity
func (c *Client) Health(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return errors.Wrap(err, "postgres health check failed")
	}
	return nil
}
