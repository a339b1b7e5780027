package ygggo_sql

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Renderer turns one part of qb into a SQL fragment, pushing any literal
// values through rc.Value. An unset part renders "".
type Renderer func(rc *RenderContext, qb *QueryBuilder) (string, error)

// RenderContext is the state shared by every renderer of one render pass.
type RenderContext struct {
	dialect Dialect
	prefix  string
	sink    *Sink
	aliases map[string]bool
}

func (qb *QueryBuilder) newContext(sink *Sink, prefix string) *RenderContext {
	rc := &RenderContext{dialect: qb.dialect, prefix: prefix, sink: sink, aliases: map[string]bool{}}
	if a, ok := qb.parts[PartTableAlias].(string); ok && a != "" {
		rc.aliases[a] = true
	}
	joins, _ := qb.parts[PartJoin].([]*join)
	for _, j := range joins {
		if j.alias != "" {
			rc.aliases[j.alias] = true
		}
	}
	return rc
}

// Dialect returns the dialect of the pass.
func (rc *RenderContext) Dialect() Dialect { return rc.dialect }

// Value binds v and returns its placeholder.
func (rc *RenderContext) Value(v any) string { return rc.dialect.Value(rc.sink, v) }

// Operator resolves an abstract operator token.
func (rc *RenderContext) Operator(token string) (string, error) { return rc.dialect.Operator(token) }

// Ident quotes a plain identifier or alias.
func (rc *RenderContext) Ident(name string) string { return rc.dialect.Alias(name) }

// Table quotes a table name with the prefix applied to its last segment.
func (rc *RenderContext) Table(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return rc.dialect.Alias(name[:i+1] + rc.prefix + name[i+1:])
	}
	return rc.dialect.Alias(rc.prefix + name)
}

// Column quotes a column reference. A qualifier naming a table rather than
// a declared alias receives the table prefix.
func (rc *RenderContext) Column(name string) string {
	segs := strings.Split(strings.TrimSpace(name), ".")
	if len(segs) >= 2 && rc.prefix != "" {
		q := len(segs) - 2
		if !rc.aliases[segs[q]] {
			segs[q] = rc.prefix + segs[q]
		}
	}
	return rc.dialect.Alias(strings.Join(segs, "."))
}

// Sub renders q as a nested SELECT sharing this pass's sink and prefix.
func (rc *RenderContext) Sub(q *QueryBuilder) (string, error) {
	child := q.newContext(rc.sink, rc.prefix)
	child.dialect = rc.dialect
	return q.render(child)
}

// Install sets the renderer for p and returns the one it replaces, so a
// wrapping renderer can delegate to the previous implementation.
func (qb *QueryBuilder) Install(p Part, r Renderer) Renderer {
	prev := qb.renderers[p]
	if r == nil {
		delete(qb.renderers, p)
	} else {
		qb.renderers[p] = r
	}
	return prev
}

func defaultRenderers() map[Part]Renderer {
	return map[Part]Renderer{
		PartDistinct:   renderDistinct,
		PartColumns:    renderColumns,
		PartTable:      renderTable,
		PartTableAlias: renderTableAlias,
		PartJoin:       renderJoins,
		PartWhere:      renderWhere,
		PartGroup:      renderGroup,
		PartOrder:      renderOrderBy,
		PartUnion:      renderUnions,
		PartLimit:      renderLimit,
		PartOffset:     renderOffset,
	}
}

func (qb *QueryBuilder) render(rc *RenderContext) (string, error) {
	if unknown := qb.unknownRenderers(); len(unknown) > 0 {
		return "", fmt.Errorf("%w: %v", ErrUnknownPart, unknown)
	}
	if name, _ := qb.parts[PartTable].(string); name == "" {
		return "", ErrNoTable
	}
	frags := make([]string, 0, len(renderSequence)+1)
	frags = append(frags, "SELECT")
	for _, p := range renderSequence {
		r, ok := qb.renderers[p]
		if !ok {
			continue
		}
		frag, err := r(rc, qb)
		if err != nil {
			return "", fmt.Errorf("render %s: %w", p, err)
		}
		if frag != "" {
			frags = append(frags, frag)
		}
	}
	return strings.Join(frags, " "), nil
}

func (qb *QueryBuilder) unknownRenderers() []int {
	var out []int
	for p := range qb.renderers {
		if !p.Valid() {
			out = append(out, int(p))
		}
	}
	sort.Ints(out)
	return out
}

func renderDistinct(_ *RenderContext, qb *QueryBuilder) (string, error) {
	if d, _ := qb.parts[PartDistinct].(bool); d {
		return "DISTINCT", nil
	}
	return "", nil
}

func renderColumns(rc *RenderContext, qb *QueryBuilder) (string, error) {
	cols, _ := qb.parts[PartColumns].([]column)
	if len(cols) == 0 {
		return "*", nil
	}
	out := make([]string, len(cols))
	for i, c := range cols {
		expr := c.expr
		if !c.raw {
			expr = rc.Column(c.expr)
		}
		if c.alias != "" {
			expr += " AS " + rc.Ident(c.alias)
		}
		out[i] = expr
	}
	return strings.Join(out, ", "), nil
}

func renderTable(rc *RenderContext, qb *QueryBuilder) (string, error) {
	name, _ := qb.parts[PartTable].(string)
	return "FROM " + rc.Table(name), nil
}

func renderTableAlias(rc *RenderContext, qb *QueryBuilder) (string, error) {
	if a, _ := qb.parts[PartTableAlias].(string); a != "" {
		return "AS " + rc.Ident(a), nil
	}
	return "", nil
}

func renderJoins(rc *RenderContext, qb *QueryBuilder) (string, error) {
	joins, _ := qb.parts[PartJoin].([]*join)
	out := make([]string, 0, len(joins))
	for _, j := range joins {
		var target string
		if j.sub != nil {
			sub, err := rc.Sub(j.sub)
			if err != nil {
				return "", err
			}
			target = "(" + sub + ") AS " + rc.Ident(j.alias)
		} else {
			target = rc.Table(j.table)
			if j.alias != "" {
				target += " AS " + rc.Ident(j.alias)
			}
		}
		op, err := rc.Operator(j.op)
		if err != nil {
			return "", err
		}
		out = append(out, fmt.Sprintf("%s JOIN %s ON %s %s %s", j.kind, target, rc.Column(j.left), op, rc.Column(j.right)))
	}
	return strings.Join(out, " "), nil
}

func renderWhere(rc *RenderContext, qb *QueryBuilder) (string, error) {
	conds, _ := qb.parts[PartWhere].([]*condition)
	return renderConditions(rc, "WHERE", conds)
}

// renderConditions renders a WHERE or HAVING predicate list under keyword.
func renderConditions(rc *RenderContext, keyword string, conds []*condition) (string, error) {
	if len(conds) == 0 {
		return "", nil
	}
	var b strings.Builder
	b.WriteString(keyword)
	for i, c := range conds {
		frag, err := c.render(rc)
		if err != nil {
			return "", err
		}
		if i > 0 {
			b.WriteString(" " + c.conj)
		}
		b.WriteString(" " + frag)
	}
	return b.String(), nil
}

func (c *condition) render(rc *RenderContext) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	switch c.kind {
	case condNull:
		if c.not {
			return rc.Column(c.column) + " IS NOT NULL", nil
		}
		return rc.Column(c.column) + " IS NULL", nil
	case condIn:
		vals := c.clause.Bound()
		if len(vals) == 0 {
			if c.not {
				return "1 = 1", nil
			}
			return "1 = 0", nil
		}
		marks := make([]string, len(vals))
		for i, v := range vals {
			marks[i] = rc.Value(v)
		}
		op := "IN"
		if c.not {
			op = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", rc.Column(c.column), op, strings.Join(marks, ", ")), nil
	case condBetween:
		vals := c.clause.Bound()
		op := "BETWEEN"
		if c.not {
			op = "NOT BETWEEN"
		}
		col := rc.Column(c.column)
		lo := rc.Value(vals[0])
		hi := rc.Value(vals[1])
		return fmt.Sprintf("%s %s %s AND %s", col, op, lo, hi), nil
	case condRaw:
		return renderRaw(rc, c.raw, c.clause.Bound())
	case condSub:
		op, err := rc.Operator(c.op)
		if err != nil {
			return "", err
		}
		sub, err := rc.Sub(c.sub)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s (%s)", rc.Column(c.column), op, sub), nil
	default:
		op, err := rc.Operator(c.op)
		if err != nil {
			return "", err
		}
		vals := c.clause.Bound()
		return fmt.Sprintf("%s %s %s", rc.Column(c.column), op, rc.Value(vals[0])), nil
	}
}

// renderRaw replaces each "?" in expr with a dialect placeholder.
func renderRaw(rc *RenderContext, expr string, args []any) (string, error) {
	var b strings.Builder
	n := 0
	for i := 0; i < len(expr); i++ {
		if expr[i] != '?' {
			b.WriteByte(expr[i])
			continue
		}
		if i+1 < len(expr) && expr[i+1] == '?' {
			b.WriteByte('?')
			i++
			continue
		}
		if n >= len(args) {
			return "", fmt.Errorf("%w: raw expression has more markers than args", ErrInvalidArgument)
		}
		b.WriteString(rc.Value(args[n]))
		n++
	}
	if n != len(args) {
		return "", fmt.Errorf("%w: raw expression has %d markers, got %d args", ErrInvalidArgument, n, len(args))
	}
	return b.String(), nil
}

func renderGroup(rc *RenderContext, qb *QueryBuilder) (string, error) {
	cols, _ := qb.parts[PartGroup].([]string)
	if len(cols) == 0 {
		return "", nil
	}
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = rc.Column(c)
	}
	return "GROUP BY " + strings.Join(out, ", "), nil
}

func renderOrderBy(rc *RenderContext, qb *QueryBuilder) (string, error) {
	orders, _ := qb.parts[PartOrder].([]order)
	if len(orders) == 0 {
		return "", nil
	}
	out := make([]string, len(orders))
	for i, o := range orders {
		switch strings.ToLower(strings.TrimSpace(o.dir)) {
		case "", "asc":
			out[i] = rc.Column(o.column) + " ASC"
		case "desc":
			out[i] = rc.Column(o.column) + " DESC"
		default:
			return "", fmt.Errorf("%w: order direction %q", ErrInvalidArgument, o.dir)
		}
	}
	return "ORDER BY " + strings.Join(out, ", "), nil
}

func renderUnions(rc *RenderContext, qb *QueryBuilder) (string, error) {
	unions, _ := qb.parts[PartUnion].([]union)
	out := make([]string, 0, len(unions))
	for _, u := range unions {
		sub, err := rc.Sub(u.query)
		if err != nil {
			return "", err
		}
		if u.query.Has(PartOrder) || u.query.Has(PartLimit) || u.query.Has(PartOffset) {
			sub = "(" + sub + ")"
		}
		kw := "UNION "
		if u.all {
			kw = "UNION ALL "
		}
		out = append(out, kw+sub)
	}
	return strings.Join(out, " "), nil
}

func renderLimit(_ *RenderContext, qb *QueryBuilder) (string, error) {
	n, ok := qb.parts[PartLimit].(int)
	if !ok {
		return "", nil
	}
	if n < 0 {
		return "", fmt.Errorf("%w: negative limit %d", ErrInvalidArgument, n)
	}
	return "LIMIT " + strconv.Itoa(n), nil
}

func renderOffset(_ *RenderContext, qb *QueryBuilder) (string, error) {
	n, ok := qb.parts[PartOffset].(int)
	if !ok {
		return "", nil
	}
	if n < 0 {
		return "", fmt.Errorf("%w: negative offset %d", ErrInvalidArgument, n)
	}
	return "OFFSET " + strconv.Itoa(n), nil
}
