package ygggo_sql

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	mysql "github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

var (
	ErrPoolClosed       = errors.New("ygggo_sql: connection closed")
	ErrLeaseTimeout     = errors.New("ygggo_sql: timed out waiting for a pooled client")
	ErrUnknownOperator  = errors.New("ygggo_sql: unknown operator")
	ErrUnknownPart      = errors.New("ygggo_sql: unknown part")
	ErrUnknownDialect   = errors.New("ygggo_sql: unknown dialect")
	ErrNoTable          = errors.New("ygggo_sql: no table selected")
	ErrInvalidChunkSize = errors.New("ygggo_sql: chunk size must be positive")
	ErrInvalidArgument  = errors.New("ygggo_sql: invalid argument")
)

// ConnectionError reports a failure to lease, connect or disconnect a client.
type ConnectionError struct {
	Op  string // "lease", "connect", "disconnect", "ping"
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("ygggo_sql: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryError reports a failed statement. The rendered SQL and bindings are
// kept for diagnostics but are left out of Error().
type QueryError struct {
	sql  string
	args []any
	Err  error
}

func newQueryError(query string, args []any, err error) *QueryError {
	cp := make([]any, len(args))
	copy(cp, args)
	return &QueryError{sql: query, args: cp, Err: err}
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("ygggo_sql: query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// SQL returns the statement text that failed.
func (e *QueryError) SQL() string { return e.sql }

// Bindings returns the values bound to the failed statement.
func (e *QueryError) Bindings() []any {
	out := make([]any, len(e.args))
	copy(out, e.args)
	return out
}

// ConfigError reports an invalid merged configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("ygggo_sql: invalid config %s: %s", e.Field, e.Reason)
}

// ErrorClass groups driver errors by how callers should react.
type ErrorClass int

const (
	ErrClassUnknown ErrorClass = iota
	ErrClassRetryable
	ErrClassConflict
	ErrClassReadonly
	ErrClassConstraint
	ErrClassAuth
)

func (c ErrorClass) String() string {
	switch c {
	case ErrClassRetryable:
		return "retryable"
	case ErrClassConflict:
		return "conflict"
	case ErrClassReadonly:
		return "readonly"
	case ErrClassConstraint:
		return "constraint"
	case ErrClassAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Classify maps MySQL and PostgreSQL driver errors to an ErrorClass.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrClassUnknown
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case 1040, 1205, 1213: // too many connections, lock wait timeout, deadlock
			return ErrClassRetryable
		case 1290: // read-only
			return ErrClassReadonly
		case 1022, 1062:
			return ErrClassConflict
		case 1048, 1451, 1452, 3819:
			return ErrClassConstraint
		case 1044, 1045:
			return ErrClassAuth
		}
		return ErrClassUnknown
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		switch pe.Code {
		case "40001", "40P01", "53300", "57P03":
			return ErrClassRetryable
		case "25006":
			return ErrClassReadonly
		case "23505":
			return ErrClassConflict
		case "23502", "23503", "23514":
			return ErrClassConstraint
		case "28000", "28P01":
			return ErrClassAuth
		}
		return ErrClassUnknown
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return ErrClassRetryable
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ErrClassRetryable
	}
	return ErrClassUnknown
}
