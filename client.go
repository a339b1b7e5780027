package ygggo_sql

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// Connector opens raw clients. It is the only boundary between the pool and
// whatever speaks the wire protocol.
type Connector interface {
	Connect(ctx context.Context) (Client, error)
}

// Client is one exclusive session with the database.
type Client interface {
	Query(ctx context.Context, query string, args []any) (Rows, error)
	Ping(ctx context.Context) error
	Close() error
}

// SQLConnector opens clients as dedicated connections of a *sql.DB.
type SQLConnector struct {
	db *sql.DB
}

// NewSQLConnector wraps db. Idle connections are left to the Connection's
// own pool, so the database/sql idle cache is switched off.
func NewSQLConnector(db *sql.DB) *SQLConnector {
	db.SetMaxIdleConns(0)
	return &SQLConnector{db: db}
}

// DB returns the wrapped handle.
func (c *SQLConnector) DB() *sql.DB { return c.db }

// Connect implements Connector.
func (c *SQLConnector) Connect(ctx context.Context) (Client, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &sqlClient{conn: conn}, nil
}

type sqlClient struct {
	conn *sql.Conn
}

func (c *sqlClient) Query(ctx context.Context, query string, args []any) (Rows, error) {
	rs, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &sqlRows{rs: rs}, nil
}

func (c *sqlClient) Ping(ctx context.Context) error { return c.conn.PingContext(ctx) }

func (c *sqlClient) Close() error { return c.conn.Close() }

// sqlRows maps each *sql.Rows row into a Record.
type sqlRows struct {
	rs *sql.Rows
}

func (r *sqlRows) Next() bool { return r.rs.Next() }

func (r *sqlRows) Record() (Record, error) {
	rec := make(map[string]any)
	if err := sqlx.MapScan(r.rs, rec); err != nil {
		return nil, err
	}
	return Record(rec).normalize(), nil
}

func (r *sqlRows) Err() error { return r.rs.Err() }

func (r *sqlRows) Close() error { return r.rs.Close() }
