package ygggo_sql

// Clause is an ordered, append-only list of bound values belonging to one
// query fragment. It performs no escaping; values reach the database only
// through dialect placeholders.
type Clause struct {
	values []any
}

// NewClause returns a clause holding values.
func NewClause(values ...any) *Clause {
	return (&Clause{}).Bind(values...)
}

// Bind appends values and returns the clause.
func (c *Clause) Bind(values ...any) *Clause {
	c.values = append(c.values, values...)
	return c
}

// Bound returns a snapshot of the bound values in insertion order.
func (c *Clause) Bound() []any {
	if c == nil || len(c.values) == 0 {
		return nil
	}
	out := make([]any, len(c.values))
	copy(out, c.values)
	return out
}

// Len returns the number of bound values.
func (c *Clause) Len() int {
	if c == nil {
		return 0
	}
	return len(c.values)
}

// Sink collects bound values during one render pass. The position returned
// by Push is the 1-based index of the value, which numbered-placeholder
// dialects use as their token.
type Sink struct {
	values []any
}

// Push appends v and returns its 1-based position.
func (s *Sink) Push(v any) int {
	s.values = append(s.values, v)
	return len(s.values)
}

// Len returns the number of collected values.
func (s *Sink) Len() int { return len(s.values) }

// Values returns a copy of the collected values.
func (s *Sink) Values() []any {
	out := make([]any, len(s.values))
	copy(out, s.values)
	return out
}
