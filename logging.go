package ygggo_sql

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"time"

	mysql "github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

var (
	defaultLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
)

// EnableLogging enables or disables structured logging for this connection.
func (c *Connection) EnableLogging(enabled bool) {
	if c == nil {
		return
	}
	c.loggingEnabled.Store(enabled)
}

// SetLogger sets a custom logger for this connection. A nil logger restores
// the default JSON logger.
func (c *Connection) SetLogger(logger *slog.Logger) {
	if c == nil {
		return
	}
	if logger == nil {
		logger = defaultLogger
	}
	c.logger.Store(logger)
}

// LoggingObserver writes lifecycle events as structured log records.
// Statement text is attached only when the logger has debug enabled.
type LoggingObserver struct {
	logger        func() *slog.Logger
	enabled       func() bool
	slowThreshold time.Duration
}

// NewLoggingObserver returns an always-on observer writing to logger.
// Queries slower than slowThreshold are logged at warn level; zero disables
// the check.
func NewLoggingObserver(logger *slog.Logger, slowThreshold time.Duration) *LoggingObserver {
	if logger == nil {
		logger = defaultLogger
	}
	return &LoggingObserver{
		logger:        func() *slog.Logger { return logger },
		enabled:       func() bool { return true },
		slowThreshold: slowThreshold,
	}
}

// newConnectionLogger follows the connection's logger and on/off switch.
func newConnectionLogger(c *Connection) *LoggingObserver {
	return &LoggingObserver{
		logger:        c.logger.Load,
		enabled:       c.loggingEnabled.Load,
		slowThreshold: c.cfg.SlowQueryThreshold,
	}
}

// HandleEvent implements Observer.
func (o *LoggingObserver) HandleEvent(ctx context.Context, e Event) {
	if !o.enabled() {
		return
	}
	logger := o.logger()
	if logger == nil {
		return
	}
	switch e.Type {
	case EventQueryAfter:
		o.logQuery(ctx, logger, e)
	case EventError:
		// Statement failures were already logged with query-after.
		if e.QueryID == "" {
			logger.LogAttrs(ctx, slog.LevelError, "database connection event", eventAttrs(e)...)
		}
	case EventConnect, EventConnectFail, EventDisconnect, EventDisconnectFail, EventRemove:
		o.logConnection(ctx, logger, e)
	default:
		logger.LogAttrs(ctx, slog.LevelDebug, "database connection event", eventAttrs(e)...)
	}
}

// logQuery logs statement execution with structured fields.
func (o *LoggingObserver) logQuery(ctx context.Context, logger *slog.Logger, e Event) {
	attrs := eventAttrs(e)
	if logger.Enabled(ctx, slog.LevelDebug) {
		attrs = append(attrs, slog.String("query", e.Query))
	}

	if o.slowThreshold > 0 && e.Duration > o.slowThreshold {
		logger.LogAttrs(ctx, slog.LevelWarn, "slow query detected", attrs...)
		return
	}
	level := slog.LevelInfo
	if e.Err != nil {
		level = slog.LevelError
	}
	logger.LogAttrs(ctx, level, "database query executed", attrs...)
}

// logConnection logs client lifecycle events.
func (o *LoggingObserver) logConnection(ctx context.Context, logger *slog.Logger, e Event) {
	level := slog.LevelDebug
	if e.Err != nil {
		level = slog.LevelError
	}
	logger.LogAttrs(ctx, level, "database connection event", eventAttrs(e)...)
}

func eventAttrs(e Event) []slog.Attr {
	attrs := []slog.Attr{slog.String("event", e.Type.String())}
	if e.ClientID != "" {
		attrs = append(attrs, slog.String("client_id", e.ClientID))
	}
	if e.QueryID != "" {
		attrs = append(attrs, slog.String("query_id", e.QueryID))
	}
	if e.Duration > 0 {
		attrs = append(attrs, slog.Float64("duration_ms", float64(e.Duration.Nanoseconds())/1e6))
	}
	if len(e.Args) > 0 {
		attrs = append(attrs, slog.Int("arg_count", len(e.Args)))
	}
	if e.Err != nil {
		attrs = append(attrs,
			slog.String("status", "error"),
			slog.String("error", e.Err.Error()),
		)
		if code, ok := errorCode(e.Err); ok {
			attrs = append(attrs, slog.String("error_code", code))
		}
	} else {
		attrs = append(attrs, slog.String("status", "success"))
	}
	return attrs
}

// errorCode extracts the engine error code from a driver error.
func errorCode(err error) (string, bool) {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return strconv.Itoa(int(me.Number)), true
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return string(pe.Code), true
	}
	return "", false
}
