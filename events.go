package ygggo_sql

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// EventType identifies a point in the connection lifecycle.
type EventType int

const (
	EventConnecting EventType = iota
	EventConnect
	EventConnectFail
	EventAcquire
	EventQueryBefore
	EventQueryAfter
	EventRelease
	EventError
	EventDisconnecting
	EventDisconnect
	EventDisconnectFail
	EventRemove
)

func (t EventType) String() string {
	switch t {
	case EventConnecting:
		return "connecting"
	case EventConnect:
		return "connect"
	case EventConnectFail:
		return "connect-fail"
	case EventAcquire:
		return "acquire"
	case EventQueryBefore:
		return "query-before"
	case EventQueryAfter:
		return "query-after"
	case EventRelease:
		return "release"
	case EventError:
		return "error"
	case EventDisconnecting:
		return "disconnecting"
	case EventDisconnect:
		return "disconnect"
	case EventDisconnectFail:
		return "disconnect-fail"
	case EventRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Event describes one lifecycle occurrence. Fields not relevant to Type are
// left zero: ClientID is empty before a client exists, Query fields are set
// only around a statement.
type Event struct {
	Type     EventType
	Time     time.Time
	ClientID string
	QueryID  string
	Query    string
	Args     []any
	Duration time.Duration
	Err      error
}

// EventHandler receives events of the type it was registered for.
type EventHandler func(ctx context.Context, e Event)

// Observer receives every event.
type Observer interface {
	HandleEvent(ctx context.Context, e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, e Event)

func (f ObserverFunc) HandleEvent(ctx context.Context, e Event) { f(ctx, e) }

// events is the handler registry of a Connection. Dispatch is synchronous;
// a panicking handler is recovered and logged and does not affect the
// operation that emitted the event.
type events struct {
	mu        sync.RWMutex
	handlers  map[EventType][]EventHandler
	observers []Observer
	logger    func() *slog.Logger
}

func newEvents(logger func() *slog.Logger) *events {
	return &events{handlers: make(map[EventType][]EventHandler), logger: logger}
}

func (ev *events) on(t EventType, h EventHandler) {
	if h == nil {
		return
	}
	ev.mu.Lock()
	ev.handlers[t] = append(ev.handlers[t], h)
	ev.mu.Unlock()
}

func (ev *events) subscribe(o Observer) {
	if o == nil {
		return
	}
	ev.mu.Lock()
	ev.observers = append(ev.observers, o)
	ev.mu.Unlock()
}

func (ev *events) emit(ctx context.Context, e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	ev.mu.RLock()
	hs := append([]EventHandler(nil), ev.handlers[e.Type]...)
	obs := append([]Observer(nil), ev.observers...)
	ev.mu.RUnlock()

	for _, h := range hs {
		ev.call(ctx, e, h)
	}
	for _, o := range obs {
		ev.call(ctx, e, o.HandleEvent)
	}
}

func (ev *events) call(ctx context.Context, e Event, h EventHandler) {
	defer func() {
		if r := recover(); r != nil && ev.logger != nil {
			if l := ev.logger(); l != nil {
				l.LogAttrs(ctx, slog.LevelError, "event handler panicked",
					slog.String("event", e.Type.String()),
					slog.String("panic", fmt.Sprint(r)),
				)
			}
		}
	}()
	h(ctx, e)
}
