package ygggo_sql

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/lib/pq"
)

// Dialect renders identifiers, placeholders and operators for one engine.
// It holds no per-query state: everything a render pass accumulates lives
// in the Sink passed to Value.
type Dialect interface {
	Name() string
	// Alias quotes an identifier or alias. Dotted names are quoted per
	// segment and "*" is left bare.
	Alias(name string) string
	// Value pushes v into sink and returns the placeholder standing for it.
	Value(sink *Sink, v any) string
	// Operator translates an abstract comparison token.
	Operator(token string) (string, error)
}

// Engine names understood by DialectFor and Config.Driver.
const (
	EngineMySQL    = "mysql"
	EnginePostgres = "postgres"
	EngineSQLite   = "sqlite"
)

// baseOperators is the abstract operator vocabulary shared by every dialect.
var baseOperators = map[string]string{
	"=":           "=",
	"!=":          "<>",
	"<>":          "<>",
	">":           ">",
	">=":          ">=",
	"<":           "<",
	"<=":          "<=",
	"like":        "LIKE",
	"not like":    "NOT LIKE",
	"in":          "IN",
	"not in":      "NOT IN",
	"is":          "IS",
	"is not":      "IS NOT",
	"between":     "BETWEEN",
	"not between": "NOT BETWEEN",
}

// operatorSet resolves tokens against baseOperators plus engine remaps.
type operatorSet map[string]string

func newOperatorSet(remap map[string]string) operatorSet {
	ops := make(operatorSet, len(baseOperators)+len(remap))
	for k, v := range baseOperators {
		ops[k] = v
	}
	for k, v := range remap {
		ops[k] = v
	}
	return ops
}

func (o operatorSet) lookup(token string) (string, error) {
	key := strings.ToLower(strings.Join(strings.Fields(token), " "))
	if op, ok := o[key]; ok {
		return op, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOperator, token)
}

// quoteSegments applies quote to each dot-separated segment of name.
func quoteSegments(name string, quote func(string) string) string {
	name = strings.TrimSpace(name)
	if name == "" || name == "*" {
		return name
	}
	segs := strings.Split(name, ".")
	for i, s := range segs {
		if s == "*" {
			continue
		}
		segs[i] = quote(s)
	}
	return strings.Join(segs, ".")
}

type mysqlDialect struct{ ops operatorSet }

// MySQL quotes with backticks and binds with positional "?" markers.
var MySQL Dialect = &mysqlDialect{ops: newOperatorSet(map[string]string{
	"ilike":      "LIKE",
	"not ilike":  "NOT LIKE",
	"regexp":     "REGEXP",
	"not regexp": "NOT REGEXP",
})}

func (d *mysqlDialect) Name() string { return EngineMySQL }

func (d *mysqlDialect) Alias(name string) string {
	return quoteSegments(name, func(s string) string {
		return "`" + strings.ReplaceAll(s, "`", "``") + "`"
	})
}

func (d *mysqlDialect) Value(sink *Sink, v any) string {
	sink.Push(v)
	return "?"
}

func (d *mysqlDialect) Operator(token string) (string, error) { return d.ops.lookup(token) }

type postgresDialect struct{ ops operatorSet }

// Postgres quotes with double quotes and binds with numbered "$n" markers.
var Postgres Dialect = &postgresDialect{ops: newOperatorSet(map[string]string{
	"ilike":      "ILIKE",
	"not ilike":  "NOT ILIKE",
	"regexp":     "~",
	"not regexp": "!~",
})}

func (d *postgresDialect) Name() string { return EnginePostgres }

func (d *postgresDialect) Alias(name string) string {
	return quoteSegments(name, pq.QuoteIdentifier)
}

func (d *postgresDialect) Value(sink *Sink, v any) string {
	return "$" + strconv.Itoa(sink.Push(v))
}

func (d *postgresDialect) Operator(token string) (string, error) { return d.ops.lookup(token) }

type sqliteDialect struct{ ops operatorSet }

// SQLite quotes with double quotes and binds with positional "?" markers.
var SQLite Dialect = &sqliteDialect{ops: newOperatorSet(map[string]string{
	"ilike":      "LIKE",
	"not ilike":  "NOT LIKE",
	"regexp":     "REGEXP",
	"not regexp": "NOT REGEXP",
})}

func (d *sqliteDialect) Name() string { return EngineSQLite }

func (d *sqliteDialect) Alias(name string) string {
	return quoteSegments(name, func(s string) string {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	})
}

func (d *sqliteDialect) Value(sink *Sink, v any) string {
	sink.Push(v)
	return "?"
}

func (d *sqliteDialect) Operator(token string) (string, error) { return d.ops.lookup(token) }

var (
	dialectsMu sync.RWMutex
	dialects   = map[string]Dialect{
		EngineMySQL:    MySQL,
		EnginePostgres: Postgres,
		"postgresql":   Postgres,
		EngineSQLite:   SQLite,
	}
)

// RegisterDialect makes d available to DialectFor under name.
func RegisterDialect(name string, d Dialect) {
	dialectsMu.Lock()
	defer dialectsMu.Unlock()
	dialects[strings.ToLower(name)] = d
}

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, error) {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	if d, ok := dialects[strings.ToLower(name)]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, name)
}
