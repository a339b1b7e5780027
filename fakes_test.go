package ygggo_sql

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"sync"
	"time"
)

// fakeSender records every statement and answers from a function.
type fakeSender struct {
	mu    sync.Mutex
	calls []Statement
	fn    func(query string, args []any) ([]Record, error)
}

func (f *fakeSender) Send(_ context.Context, query string, args []any) ([]Record, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Statement{SQL: query, Args: args})
	f.mu.Unlock()
	if f.fn == nil {
		return nil, nil
	}
	return f.fn(query, args)
}

func (f *fakeSender) Calls() []Statement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Statement(nil), f.calls...)
}

// fakeStreamer is a fakeSender that also streams, tracking open cursors.
type fakeStreamer struct {
	fakeSender
	open   int
	closed int
}

func (f *fakeStreamer) Stream(ctx context.Context, query string, args []any) (Rows, error) {
	recs, err := f.Send(ctx, query, args)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.open++
	f.mu.Unlock()
	return &trackedRows{Rows: newSliceRows(recs), owner: f}, nil
}

func (f *fakeStreamer) Open() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open - f.closed
}

type trackedRows struct {
	Rows
	owner *fakeStreamer
	once  sync.Once
}

func (r *trackedRows) Close() error {
	r.once.Do(func() {
		r.owner.mu.Lock()
		r.owner.closed++
		r.owner.mu.Unlock()
	})
	return r.Rows.Close()
}

// numberedRecords returns n records {"id": 1..n}.
func numberedRecords(n int) []Record {
	out := make([]Record, n)
	for i := range out {
		out[i] = Record{"id": int64(i + 1)}
	}
	return out
}

var limitOffset = regexp.MustCompile(`LIMIT (\d+)(?: OFFSET (\d+))?`)

// pagedTable serves LIMIT/OFFSET windows over data.
func pagedTable(data []Record) func(string, []any) ([]Record, error) {
	return func(query string, _ []any) ([]Record, error) {
		m := limitOffset.FindStringSubmatch(query)
		if m == nil {
			return data, nil
		}
		limit, _ := strconv.Atoi(m[1])
		offset := 0
		if m[2] != "" {
			offset, _ = strconv.Atoi(m[2])
		}
		if offset >= len(data) {
			return nil, nil
		}
		end := offset + limit
		if end > len(data) {
			end = len(data)
		}
		return data[offset:end], nil
	}
}

// fakeConnector hands out fakeClients.
type fakeConnector struct {
	mu       sync.Mutex
	clients  []*fakeClient
	failures int   // fail this many Connect calls first
	err      error // error returned by failing Connect calls
	attempts int

	query    func(query string, args []any) ([]Record, error)
	closeErr error
}

func (c *fakeConnector) Connect(ctx context.Context) (Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.failures > 0 {
		c.failures--
		if c.err != nil {
			return nil, c.err
		}
		return nil, errors.New("connection refused")
	}
	cl := &fakeClient{id: len(c.clients) + 1, owner: c, closeErr: c.closeErr}
	c.clients = append(c.clients, cl)
	return cl, nil
}

func (c *fakeConnector) Clients() []*fakeClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeClient(nil), c.clients...)
}

type fakeClient struct {
	id       int
	owner    *fakeConnector
	closeErr error

	mu      sync.Mutex
	closed  bool
	queries []string
	pingErr error
}

func (c *fakeClient) Query(_ context.Context, query string, args []any) (Rows, error) {
	c.mu.Lock()
	c.queries = append(c.queries, query)
	c.mu.Unlock()
	c.owner.mu.Lock()
	fn := c.owner.query
	c.owner.mu.Unlock()
	if fn == nil {
		return newSliceRows(nil), nil
	}
	recs, err := fn(query, args)
	if err != nil {
		return nil, err
	}
	return newSliceRows(recs), nil
}

func (c *fakeClient) Ping(context.Context) error { return c.pingErr }

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("client %d already closed", c.id)
	}
	c.closed = true
	return c.closeErr
}

func (c *fakeClient) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// eventLog collects event names in order.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) HandleEvent(_ context.Context, e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type.String()
	}
	return out
}

func (l *eventLog) Count(t EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (l *eventLog) Reset() {
	l.mu.Lock()
	l.events = nil
	l.mu.Unlock()
}

// testConfig is a connection config with no warm-up and a short lease wait.
func testConfig() Config {
	return Config{
		Driver:            EngineSQLite,
		Database:          "fake.db",
		MaxClients:        2,
		TimeoutConnection: time.Second,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// badConn is a driver error that invalidates the client.
var badConn = fmt.Errorf("read: %w", driver.ErrBadConn)
