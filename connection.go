package ygggo_sql

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Connection owns a pool of clients for one database and executes rendered
// statements on behalf of query builders. It is safe for concurrent use.
type Connection struct {
	cfg     Config
	dialect Dialect
	pool    *pool
	events  *events

	logger         atomic.Pointer[slog.Logger]
	loggingEnabled atomic.Bool

	// db is set when the Connection opened the *sql.DB itself.
	db *sql.DB

	closeOnce sync.Once
	closeErr  error
}

// Open resolves cfg, opens the database/sql driver for its engine and
// returns a Connection whose clients are connections of that handle.
func Open(ctx context.Context, cfg Config) (*Connection, error) {
	resolved, err := ResolveConfig(cfg)
	if err != nil {
		return nil, err
	}
	dsn, err := dsnFromConfig(resolved)
	if err != nil {
		return nil, err
	}
	name := driverName(resolved.Driver)
	var db *sql.DB
	if resolved.Telemetry.Enabled {
		db, err = otelsql.Open(name, dsn, otelsql.WithAttributes(attribute.String("db.system", name)))
	} else {
		db, err = sql.Open(name, dsn)
	}
	if err != nil {
		return nil, &ConnectionError{Op: "open", Err: err}
	}
	db.SetMaxOpenConns(resolved.MaxClients)

	c, err := NewConnection(ctx, resolved, NewSQLConnector(db))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	c.db = db
	return c, nil
}

// NewConnection builds a Connection over an arbitrary Connector. cfg is
// merged over the defaults for its engine and validated, then MinClients
// clients are opened.
func NewConnection(ctx context.Context, cfg Config, connector Connector) (*Connection, error) {
	resolved, err := ResolveConfig(cfg)
	if err != nil {
		return nil, err
	}
	d, err := DialectFor(resolved.Driver)
	if err != nil {
		return nil, &ConfigError{Field: "driver", Reason: err.Error()}
	}
	c := &Connection{cfg: resolved, dialect: d}
	c.logger.Store(defaultLogger)
	c.events = newEvents(c.logger.Load)
	c.Subscribe(newConnectionLogger(c))
	if resolved.Telemetry.Enabled {
		c.Subscribe(NewTracingObserver(nil, d.Name()))
	}
	if resolved.Telemetry.Metrics {
		mo, err := NewMetricsObserver(nil)
		if err != nil {
			return nil, err
		}
		c.Subscribe(mo)
	}

	c.pool = newPool(resolved, connector, c.events)
	if err := c.pool.start(ctx); err != nil {
		_ = c.pool.close(ctx)
		return nil, err
	}
	return c, nil
}

// Config returns the resolved configuration.
func (c *Connection) Config() Config { return c.cfg }

// Dialect returns the dialect of the configured engine.
func (c *Connection) Dialect() Dialect { return c.dialect }

// On registers h for events of type t.
func (c *Connection) On(t EventType, h EventHandler) { c.events.on(t, h) }

// Subscribe registers o for every event.
func (c *Connection) Subscribe(o Observer) { c.events.subscribe(o) }

// Stats returns a snapshot of the pool.
func (c *Connection) Stats() PoolStats { return c.pool.stats() }

// Table starts a query on name bound to this connection, its dialect and
// its table prefix.
func (c *Connection) Table(name string) *QueryBuilder {
	return NewQueryBuilder(c, c.dialect).WithPrefix(c.cfg.Prefix).From(name)
}

// Builder starts a query on table with mixins composed over it. With no
// mixins the stock set is used.
func (c *Connection) Builder(table string, mixins ...Mixin) Builder {
	if len(mixins) == 0 {
		mixins = StockMixins()
	}
	return Compose(c.Table(table), mixins...)
}

// lease acquires a client and reports the acquire, or the failure.
func (c *Connection) lease(ctx context.Context) (*pooledClient, error) {
	pc, err := c.pool.acquire(ctx)
	if err != nil {
		c.events.emit(ctx, Event{Type: EventError, Err: err})
		return nil, err
	}
	c.events.emit(ctx, Event{Type: EventAcquire, ClientID: pc.id})
	return pc, nil
}

func (c *Connection) release(ctx context.Context, pc *pooledClient, err error) {
	c.pool.release(ctx, pc, err != nil && isBroken(err))
	c.events.emit(ctx, Event{Type: EventRelease, ClientID: pc.id})
}

// Send executes query on a leased client and returns every row. The client
// is released on both the success and the failure path. Execution failures
// are returned as *QueryError and are never retried.
func (c *Connection) Send(ctx context.Context, query string, args []any) ([]Record, error) {
	pc, err := c.lease(ctx)
	if err != nil {
		return nil, err
	}
	ev := Event{ClientID: pc.id, QueryID: uuid.NewString(), Query: query, Args: args}
	c.emitAs(ctx, EventQueryBefore, ev)

	start := time.Now()
	recs, err := collect(ctx, pc.client, query, args)
	ev.Duration = time.Since(start)
	ev.Err = err
	c.emitAs(ctx, EventQueryAfter, ev)

	if err != nil {
		c.emitAs(ctx, EventError, ev)
		c.release(ctx, pc, err)
		return nil, newQueryError(query, args, err)
	}
	c.release(ctx, pc, nil)
	return recs, nil
}

func (c *Connection) emitAs(ctx context.Context, t EventType, e Event) {
	e.Type = t
	e.Time = time.Time{}
	c.events.emit(ctx, e)
}

func collect(ctx context.Context, cl Client, query string, args []any) ([]Record, error) {
	rows, err := cl.Query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	var recs []Record
	for rows.Next() {
		rec, err := rows.Record()
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	return recs, rows.Close()
}

// Stream executes query and returns its rows without buffering them. The
// client stays leased until the returned Rows is closed; query-after and
// release fire on Close.
func (c *Connection) Stream(ctx context.Context, query string, args []any) (Rows, error) {
	pc, err := c.lease(ctx)
	if err != nil {
		return nil, err
	}
	ev := Event{ClientID: pc.id, QueryID: uuid.NewString(), Query: query, Args: args}
	c.emitAs(ctx, EventQueryBefore, ev)

	start := time.Now()
	rows, err := pc.client.Query(ctx, query, args)
	if err != nil {
		ev.Duration, ev.Err = time.Since(start), err
		c.emitAs(ctx, EventQueryAfter, ev)
		c.emitAs(ctx, EventError, ev)
		c.release(ctx, pc, err)
		return nil, newQueryError(query, args, err)
	}
	return &leasedRows{Rows: rows, conn: c, ctx: ctx, pc: pc, ev: ev, start: start}, nil
}

// leasedRows holds a client lease for the lifetime of a stream.
type leasedRows struct {
	Rows
	conn  *Connection
	ctx   context.Context
	pc    *pooledClient
	ev    Event
	start time.Time
	once  sync.Once
}

func (r *leasedRows) Err() error {
	if err := r.Rows.Err(); err != nil {
		return newQueryError(r.ev.Query, r.ev.Args, err)
	}
	return nil
}

func (r *leasedRows) Close() error {
	var err error
	r.once.Do(func() {
		iterErr := r.Rows.Err()
		err = r.Rows.Close()
		ev := r.ev
		ev.Duration = time.Since(r.start)
		ev.Err = iterErr
		if ev.Err == nil {
			ev.Err = err
		}
		r.conn.emitAs(r.ctx, EventQueryAfter, ev)
		if ev.Err != nil {
			r.conn.emitAs(r.ctx, EventError, ev)
		}
		r.conn.release(r.ctx, r.pc, ev.Err)
	})
	return err
}

// Ping checks that a client can reach the database.
func (c *Connection) Ping(ctx context.Context) error {
	pc, err := c.lease(ctx)
	if err != nil {
		return err
	}
	err = pc.client.Ping(ctx)
	if err != nil {
		c.events.emit(ctx, Event{Type: EventError, ClientID: pc.id, Err: err})
		err = &ConnectionError{Op: "ping", Err: err}
	}
	c.release(ctx, pc, err)
	return err
}

// Close disconnects every idle client and, when the Connection opened the
// database handle, closes it. Later calls return the first result.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		var result *multierror.Error
		if err := c.pool.close(context.Background()); err != nil {
			result = multierror.Append(result, err)
		}
		if c.db != nil {
			if err := c.db.Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}
		c.closeErr = result.ErrorOrNil()
	})
	return c.closeErr
}
