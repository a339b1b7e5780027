package ygggo_sql

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/semaphore"
)

// PoolStats is a snapshot of the client pool.
type PoolStats struct {
	Open       int // clients currently connected
	Idle       int // connected clients waiting for a lease
	Leased     int // clients owned by an in-flight Send or Stream
	MaxClients int
	MinClients int
}

// pooledClient is a connected Client plus the bookkeeping the pool needs.
type pooledClient struct {
	id        string
	client    Client
	idleSince time.Time
}

// pool hands out exclusive leases on clients. Leases are bounded by a
// weighted semaphore sized MaxClients; idle clients are reused LIFO.
type pool struct {
	connector Connector
	events    *events
	sem       *semaphore.Weighted

	minClients   int
	maxClients   int
	leaseTimeout time.Duration
	idleTimeout  time.Duration
	retries      int
	retryPolicy  RetryPolicy

	mu     sync.Mutex
	idle   []*pooledClient
	open   int
	leased int
	closed bool

	stop chan struct{}
	done chan struct{}
}

func newPool(cfg Config, c Connector, ev *events) *pool {
	return &pool{
		connector:    c,
		events:       ev,
		sem:          semaphore.NewWeighted(int64(cfg.MaxClients)),
		minClients:   cfg.MinClients,
		maxClients:   cfg.MaxClients,
		leaseTimeout: cfg.TimeoutConnection,
		idleTimeout:  cfg.TimeoutIdle,
		retries:      cfg.ConnectRetries,
		retryPolicy:  cfg.Retry,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// start opens MinClients clients and launches the idle reaper.
// A failed warm-up leaves the pool running; the caller closes it.
func (p *pool) start(ctx context.Context) error {
	if p.idleTimeout > 0 {
		go p.reap()
	} else {
		close(p.done)
	}
	for i := 0; i < p.minClients; i++ {
		pc, err := p.connect(ctx)
		if err != nil {
			return err
		}
		p.mu.Lock()
		pc.idleSince = time.Now()
		p.idle = append(p.idle, pc)
		p.mu.Unlock()
	}
	return nil
}

// acquire leases a client, waiting at most leaseTimeout for a free slot.
func (p *pool) acquire(ctx context.Context) (*pooledClient, error) {
	if p.isClosed() {
		return nil, &ConnectionError{Op: "lease", Err: ErrPoolClosed}
	}
	waitCtx := ctx
	if p.leaseTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.leaseTimeout)
		defer cancel()
	}
	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, &ConnectionError{Op: "lease", Err: ctx.Err()}
		}
		return nil, &ConnectionError{Op: "lease", Err: ErrLeaseTimeout}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, &ConnectionError{Op: "lease", Err: ErrPoolClosed}
	}
	if n := len(p.idle); n > 0 {
		pc := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.leased++
		p.mu.Unlock()
		return pc, nil
	}
	p.mu.Unlock()

	pc, err := p.connect(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	p.mu.Lock()
	p.leased++
	p.mu.Unlock()
	return pc, nil
}

// release returns pc to the idle set, or disconnects it when it is broken
// or the pool has been closed.
func (p *pool) release(ctx context.Context, pc *pooledClient, broken bool) {
	p.mu.Lock()
	p.leased--
	discard := broken || p.closed
	if !discard {
		pc.idleSince = time.Now()
		p.idle = append(p.idle, pc)
	}
	p.mu.Unlock()
	p.sem.Release(1)

	if discard {
		if broken {
			p.events.emit(ctx, Event{Type: EventRemove, ClientID: pc.id})
		}
		_ = p.disconnect(ctx, pc)
	}
}

// connect opens one client, retrying transient failures. Each attempt is
// bounded by leaseTimeout.
func (p *pool) connect(ctx context.Context) (*pooledClient, error) {
	var client Client
	op := func() error {
		p.events.emit(ctx, Event{Type: EventConnecting})
		attemptCtx := ctx
		if p.leaseTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.leaseTimeout)
			defer cancel()
		}
		start := time.Now()
		c, err := p.connector.Connect(attemptCtx)
		if err != nil {
			p.events.emit(ctx, Event{Type: EventConnectFail, Duration: time.Since(start), Err: err})
			return err
		}
		client = c
		return nil
	}
	if err := retryConnect(ctx, p.retries, p.retryPolicy, op); err != nil {
		return nil, &ConnectionError{Op: "connect", Err: err}
	}

	pc := &pooledClient{id: uuid.NewString(), client: client}
	p.mu.Lock()
	p.open++
	p.mu.Unlock()
	p.events.emit(ctx, Event{Type: EventConnect, ClientID: pc.id})
	return pc, nil
}

func (p *pool) disconnect(ctx context.Context, pc *pooledClient) error {
	p.events.emit(ctx, Event{Type: EventDisconnecting, ClientID: pc.id})
	err := pc.client.Close()
	p.mu.Lock()
	p.open--
	p.mu.Unlock()
	if err != nil {
		p.events.emit(ctx, Event{Type: EventDisconnectFail, ClientID: pc.id, Err: err})
		return &ConnectionError{Op: "disconnect", Err: err}
	}
	p.events.emit(ctx, Event{Type: EventDisconnect, ClientID: pc.id})
	return nil
}

// reap periodically evicts clients idle longer than idleTimeout while more
// than minClients are open.
func (p *pool) reap() {
	defer close(p.done)
	interval := p.idleTimeout / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-t.C:
			p.evictIdle(context.Background(), time.Now())
		}
	}
}

func (p *pool) evictIdle(ctx context.Context, now time.Time) int {
	p.mu.Lock()
	var victims []*pooledClient
	kept := p.idle[:0]
	open := p.open
	// idle is LIFO, so the oldest clients sit at the front.
	for _, pc := range p.idle {
		if open > p.minClients && now.Sub(pc.idleSince) >= p.idleTimeout {
			victims = append(victims, pc)
			open--
			continue
		}
		kept = append(kept, pc)
	}
	p.idle = kept
	p.mu.Unlock()

	for _, pc := range victims {
		p.events.emit(ctx, Event{Type: EventRemove, ClientID: pc.id})
		_ = p.disconnect(ctx, pc)
	}
	return len(victims)
}

func (p *pool) stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Open:       p.open,
		Idle:       len(p.idle),
		Leased:     p.leased,
		MaxClients: p.maxClients,
		MinClients: p.minClients,
	}
}

func (p *pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// close disconnects every idle client. Leased clients are disconnected as
// they are released. Disconnect failures are aggregated.
func (p *pool) close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	close(p.stop)
	<-p.done

	var result *multierror.Error
	for _, pc := range idle {
		if err := p.disconnect(ctx, pc); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// isBroken reports whether err means the client can no longer be used:
// a bad or invalid driver connection, or a transport failure. Context
// cancellation is the caller's doing and keeps the client.
func isBroken(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
