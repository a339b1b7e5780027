package ygggo_sql

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Sender executes a rendered statement and returns every row. Connection
// is the production Sender; anything that can run SQL may stand in for it.
type Sender interface {
	Send(ctx context.Context, query string, args []any) ([]Record, error)
}

// Streamer is implemented by senders that can hand rows out one at a time
// while holding the underlying client.
type Streamer interface {
	Stream(ctx context.Context, query string, args []any) (Rows, error)
}

// QueryBuilder provides a fluent interface for building SELECT statements.
// State lives in a map keyed by Part; a part missing from the map is unset.
// A QueryBuilder must not be shared between goroutines.
type QueryBuilder struct {
	sender    Sender
	dialect   Dialect
	prefix    string
	parts     map[Part]any
	renderers map[Part]Renderer

	// top is the outermost mixin layer; Reset enters the chain there.
	top Builder
}

type condKind int

const (
	condBasic condKind = iota
	condIn
	condNull
	condBetween
	condRaw
	condSub
)

// condition is one WHERE or HAVING predicate with its own bound values.
type condition struct {
	conj   string
	kind   condKind
	column string
	op     string
	raw    string
	not    bool
	sub    *QueryBuilder
	clause *Clause
	err    error
}

type column struct {
	expr  string
	alias string
	raw   bool
}

type join struct {
	kind  string
	table string
	alias string
	sub   *QueryBuilder
	left  string
	op    string
	right string
}

type order struct {
	column string
	dir    string
}

type union struct {
	all   bool
	query *QueryBuilder
}

// NewQueryBuilder creates a builder executing through s and rendering with d.
func NewQueryBuilder(s Sender, d Dialect) *QueryBuilder {
	if d == nil {
		d = MySQL
	}
	return &QueryBuilder{
		sender:    s,
		dialect:   d,
		parts:     make(map[Part]any),
		renderers: defaultRenderers(),
	}
}

// Base implements Builder.
func (qb *QueryBuilder) Base() *QueryBuilder { return qb }

// Unwrap implements Builder; the base has nothing beneath it.
func (qb *QueryBuilder) Unwrap() Builder { return nil }

// Dialect returns the dialect used for rendering.
func (qb *QueryBuilder) Dialect() Dialect { return qb.dialect }

// Sender returns the executor bound to this builder.
func (qb *QueryBuilder) Sender() Sender { return qb.sender }

// Has reports whether part is set.
func (qb *QueryBuilder) Has(p Part) bool {
	_, ok := qb.parts[p]
	return ok
}

// PartValue returns the raw payload stored for p.
func (qb *QueryBuilder) PartValue(p Part) (any, bool) {
	v, ok := qb.parts[p]
	return v, ok
}

// WithPrefix sets the prefix prepended to every table name.
func (qb *QueryBuilder) WithPrefix(prefix string) *QueryBuilder {
	qb.prefix = prefix
	return qb
}

// From sets the target table. "name AS alias" also sets the alias.
func (qb *QueryBuilder) From(table string) *QueryBuilder {
	name, alias := splitAlias(table)
	qb.parts[PartTable] = name
	if alias != "" {
		qb.parts[PartTableAlias] = alias
	}
	return qb
}

// As aliases the target table.
func (qb *QueryBuilder) As(alias string) *QueryBuilder {
	qb.parts[PartTableAlias] = alias
	return qb
}

// Select adds columns to the projection. "col AS alias" is accepted.
func (qb *QueryBuilder) Select(columns ...string) *QueryBuilder {
	cols, _ := qb.parts[PartColumns].([]column)
	for _, c := range columns {
		name, alias := splitAlias(c)
		cols = append(cols, column{expr: name, alias: alias})
	}
	qb.parts[PartColumns] = cols
	return qb
}

// SelectRaw adds an unquoted expression to the projection.
func (qb *QueryBuilder) SelectRaw(expr, alias string) *QueryBuilder {
	cols, _ := qb.parts[PartColumns].([]column)
	qb.parts[PartColumns] = append(cols, column{expr: expr, alias: alias, raw: true})
	return qb
}

// Distinct marks the statement SELECT DISTINCT.
func (qb *QueryBuilder) Distinct() *QueryBuilder {
	qb.parts[PartDistinct] = true
	return qb
}

// Where adds an AND predicate. A nil value with "=" or "!=" becomes IS
// [NOT] NULL, "in" and "between" expand slice values, and a *QueryBuilder
// value is rendered as a sub-query.
func (qb *QueryBuilder) Where(col, op string, value any) *QueryBuilder {
	qb.addCondition(PartWhere, newCondition("AND", col, op, value))
	return qb
}

// OrWhere adds an OR predicate.
func (qb *QueryBuilder) OrWhere(col, op string, value any) *QueryBuilder {
	qb.addCondition(PartWhere, newCondition("OR", col, op, value))
	return qb
}

// WhereIn adds "col IN (...)". An empty list matches nothing.
func (qb *QueryBuilder) WhereIn(col string, values ...any) *QueryBuilder {
	qb.addCondition(PartWhere, &condition{conj: "AND", kind: condIn, column: col, clause: NewClause(values...)})
	return qb
}

// WhereNotIn adds "col NOT IN (...)". An empty list matches everything.
func (qb *QueryBuilder) WhereNotIn(col string, values ...any) *QueryBuilder {
	qb.addCondition(PartWhere, &condition{conj: "AND", kind: condIn, not: true, column: col, clause: NewClause(values...)})
	return qb
}

// WhereNull adds "col IS NULL".
func (qb *QueryBuilder) WhereNull(col string) *QueryBuilder {
	qb.addCondition(PartWhere, &condition{conj: "AND", kind: condNull, column: col})
	return qb
}

// WhereNotNull adds "col IS NOT NULL".
func (qb *QueryBuilder) WhereNotNull(col string) *QueryBuilder {
	qb.addCondition(PartWhere, &condition{conj: "AND", kind: condNull, not: true, column: col})
	return qb
}

// WhereBetween adds "col BETWEEN lo AND hi".
func (qb *QueryBuilder) WhereBetween(col string, lo, hi any) *QueryBuilder {
	qb.addCondition(PartWhere, &condition{conj: "AND", kind: condBetween, column: col, clause: NewClause(lo, hi)})
	return qb
}

// WhereRaw adds a raw predicate. Each "?" in expr is replaced by the
// dialect placeholder for the matching arg; "??" is a literal question mark.
func (qb *QueryBuilder) WhereRaw(expr string, args ...any) *QueryBuilder {
	qb.addCondition(PartWhere, &condition{conj: "AND", kind: condRaw, raw: expr, clause: NewClause(args...)})
	return qb
}

func (qb *QueryBuilder) addCondition(p Part, c *condition) {
	conds, _ := qb.parts[p].([]*condition)
	qb.parts[p] = append(conds, c)
}

func newCondition(conj, col, op string, value any) *condition {
	c := &condition{conj: conj, column: col, op: op}
	token := strings.ToLower(strings.Join(strings.Fields(op), " "))
	if sub, ok := value.(*QueryBuilder); ok {
		c.kind, c.sub = condSub, sub
		return c
	}
	switch token {
	case "in", "not in":
		vals, ok := toSlice(value)
		if !ok {
			vals = []any{value}
		}
		c.kind, c.not, c.clause = condIn, token == "not in", NewClause(vals...)
		return c
	case "between", "not between":
		vals, ok := toSlice(value)
		if !ok || len(vals) != 2 {
			c.err = fmt.Errorf("%w: %s needs exactly two values for %q", ErrInvalidArgument, op, col)
			return c
		}
		c.kind, c.not, c.clause = condBetween, token == "not between", NewClause(vals...)
		return c
	}
	if value == nil {
		switch token {
		case "=", "is":
			c.kind = condNull
			return c
		case "!=", "<>", "is not":
			c.kind, c.not = condNull, true
			return c
		}
	}
	c.kind, c.clause = condBasic, NewClause(value)
	return c
}

func toSlice(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// Join adds an INNER JOIN. table may carry "AS alias".
func (qb *QueryBuilder) Join(table, left, op, right string) *QueryBuilder {
	return qb.addJoin("INNER", table, left, op, right)
}

// LeftJoin adds a LEFT JOIN.
func (qb *QueryBuilder) LeftJoin(table, left, op, right string) *QueryBuilder {
	return qb.addJoin("LEFT", table, left, op, right)
}

// RightJoin adds a RIGHT JOIN.
func (qb *QueryBuilder) RightJoin(table, left, op, right string) *QueryBuilder {
	return qb.addJoin("RIGHT", table, left, op, right)
}

// JoinSub joins a sub-query under alias.
func (qb *QueryBuilder) JoinSub(sub *QueryBuilder, alias, left, op, right string) *QueryBuilder {
	joins, _ := qb.parts[PartJoin].([]*join)
	qb.parts[PartJoin] = append(joins, &join{kind: "INNER", sub: sub, alias: alias, left: left, op: op, right: right})
	return qb
}

func (qb *QueryBuilder) addJoin(kind, table, left, op, right string) *QueryBuilder {
	name, alias := splitAlias(table)
	joins, _ := qb.parts[PartJoin].([]*join)
	qb.parts[PartJoin] = append(joins, &join{kind: kind, table: name, alias: alias, left: left, op: op, right: right})
	return qb
}

// GroupBy adds GROUP BY columns.
func (qb *QueryBuilder) GroupBy(columns ...string) *QueryBuilder {
	cols, _ := qb.parts[PartGroup].([]string)
	qb.parts[PartGroup] = append(cols, columns...)
	return qb
}

// OrderBy adds an ORDER BY column; dir is "asc" or "desc" (empty means asc).
func (qb *QueryBuilder) OrderBy(col, dir string) *QueryBuilder {
	orders, _ := qb.parts[PartOrder].([]order)
	qb.parts[PartOrder] = append(orders, order{column: col, dir: dir})
	return qb
}

// Limit sets the LIMIT for the query.
func (qb *QueryBuilder) Limit(n int) *QueryBuilder {
	qb.parts[PartLimit] = n
	return qb
}

// Offset sets the OFFSET for the query.
func (qb *QueryBuilder) Offset(n int) *QueryBuilder {
	qb.parts[PartOffset] = n
	return qb
}

// Union appends "UNION q".
func (qb *QueryBuilder) Union(q *QueryBuilder) *QueryBuilder {
	unions, _ := qb.parts[PartUnion].([]union)
	qb.parts[PartUnion] = append(unions, union{query: q})
	return qb
}

// UnionAll appends "UNION ALL q".
func (qb *QueryBuilder) UnionAll(q *QueryBuilder) *QueryBuilder {
	unions, _ := qb.parts[PartUnion].([]union)
	qb.parts[PartUnion] = append(unions, union{all: true, query: q})
	return qb
}

// Reset clears the named parts, or every part when none is named. It
// enters the mixin chain at the outermost layer so wrapped resets run.
func (qb *QueryBuilder) Reset(parts ...Part) *QueryBuilder {
	if qb.top != nil {
		qb.top.ResetParts(parts...)
	} else {
		qb.ResetParts(parts...)
	}
	return qb
}

// ResetParts is the base reset at the end of the mixin chain.
func (qb *QueryBuilder) ResetParts(parts ...Part) {
	if len(parts) == 0 {
		qb.parts = make(map[Part]any)
		return
	}
	for _, p := range parts {
		delete(qb.parts, p)
	}
}

// Clone returns an independent copy of the builder state. Installed
// renderers are shared; the mixin chain is not carried over.
func (qb *QueryBuilder) Clone() *QueryBuilder {
	c := &QueryBuilder{
		sender:    qb.sender,
		dialect:   qb.dialect,
		prefix:    qb.prefix,
		parts:     make(map[Part]any, len(qb.parts)),
		renderers: make(map[Part]Renderer, len(qb.renderers)),
	}
	for p, v := range qb.parts {
		switch t := v.(type) {
		case []column:
			c.parts[p] = append([]column(nil), t...)
		case []*condition:
			c.parts[p] = append([]*condition(nil), t...)
		case []*join:
			c.parts[p] = append([]*join(nil), t...)
		case []order:
			c.parts[p] = append([]order(nil), t...)
		case []union:
			c.parts[p] = append([]union(nil), t...)
		case []string:
			c.parts[p] = append([]string(nil), t...)
		default:
			c.parts[p] = v
		}
	}
	for p, r := range qb.renderers {
		c.renderers[p] = r
	}
	return c
}

// Render renders the statement and collects its bindings.
func (qb *QueryBuilder) Render() (Statement, error) {
	rc := qb.newContext(&Sink{}, qb.prefix)
	text, err := qb.render(rc)
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: text, Args: rc.sink.Values()}, nil
}

// Get executes the query and returns every row.
func (qb *QueryBuilder) Get(ctx context.Context) ([]Record, error) {
	st, err := qb.Render()
	if err != nil {
		return nil, err
	}
	return qb.send(ctx, st)
}

func (qb *QueryBuilder) send(ctx context.Context, st Statement) ([]Record, error) {
	if qb.sender == nil {
		return nil, fmt.Errorf("%w: builder has no sender", ErrInvalidArgument)
	}
	recs, err := qb.sender.Send(ctx, st.SQL, st.Args)
	if err != nil {
		return nil, asQueryError(st, err)
	}
	return recs, nil
}

// Cursor executes the query and returns a row stream. The stream holds the
// underlying client until it is closed.
func (qb *QueryBuilder) Cursor(ctx context.Context) (Rows, error) {
	st, err := qb.Render()
	if err != nil {
		return nil, err
	}
	if s, ok := qb.sender.(Streamer); ok {
		rows, err := s.Stream(ctx, st.SQL, st.Args)
		if err != nil {
			return nil, asQueryError(st, err)
		}
		return rows, nil
	}
	recs, err := qb.Get(ctx)
	if err != nil {
		return nil, err
	}
	return newSliceRows(recs), nil
}

// Count returns the number of rows the query yields, ignoring its ordering
// and paging. DISTINCT, GROUP BY and UNION queries are counted as a derived
// table so each distinct row, group or union row counts once.
func (qb *QueryBuilder) Count(ctx context.Context) (int64, error) {
	c := qb.Clone()
	c.ResetParts(PartOrder, PartLimit, PartOffset)
	st, err := c.countStatement()
	if err != nil {
		return 0, err
	}
	recs, err := c.send(ctx, st)
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, nil
	}
	return toInt64(recs[0]["aggregate"])
}

func (qb *QueryBuilder) countStatement() (Statement, error) {
	if !qb.Has(PartDistinct) && !qb.Has(PartGroup) && !qb.Has(PartUnion) {
		qb.ResetParts(PartColumns)
		qb.SelectRaw("COUNT(*)", "aggregate")
		return qb.Render()
	}
	inner, err := qb.Render()
	if err != nil {
		return Statement{}, err
	}
	d := qb.dialect
	return Statement{
		SQL:  "SELECT COUNT(*) AS " + d.Alias("aggregate") + " FROM (" + inner.SQL + ") AS " + d.Alias("counted"),
		Args: inner.Args,
	}, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("%w: unexpected count type %T", ErrInvalidArgument, v)
}

// asQueryError keeps connection and query errors as they are and wraps
// anything else so the failed statement stays attached.
func asQueryError(st Statement, err error) error {
	var qe *QueryError
	var ce *ConnectionError
	if errors.As(err, &qe) || errors.As(err, &ce) {
		return err
	}
	return newQueryError(st.SQL, st.Args, err)
}

// splitAlias splits "name AS alias" (case-insensitive).
func splitAlias(s string) (string, string) {
	fields := strings.Fields(s)
	if len(fields) == 3 && strings.EqualFold(fields[1], "as") {
		return fields[0], fields[2]
	}
	return strings.TrimSpace(s), ""
}
