package ygggo_sql

// HavingBuilder adds HAVING predicates. They are stored under PartHaving in
// the base parts map, so Clone copies them and a base reset clears them; the
// layer installs the renderer for that part.
type HavingBuilder struct {
	Builder
}

// WithHaving returns the HAVING mixin.
func WithHaving() Mixin {
	return func(inner Builder) Builder {
		h := &HavingBuilder{Builder: inner}
		prev := inner.Base().Install(PartHaving, nil)
		inner.Base().Install(PartHaving, func(rc *RenderContext, qb *QueryBuilder) (string, error) {
			frag, err := renderHaving(rc, qb)
			if err != nil || frag != "" || prev == nil {
				return frag, err
			}
			return prev(rc, qb)
		})
		return h
	}
}

// renderHaving reads the predicates of the builder being rendered, which is
// a clone when the statement came from Clone.
func renderHaving(rc *RenderContext, qb *QueryBuilder) (string, error) {
	conds, _ := qb.parts[PartHaving].([]*condition)
	return renderConditions(rc, "HAVING", conds)
}

// Unwrap implements Builder.
func (h *HavingBuilder) Unwrap() Builder { return h.Builder }

// Having adds an AND predicate on an aggregate or grouped column.
func (h *HavingBuilder) Having(col, op string, value any) *HavingBuilder {
	h.Base().addCondition(PartHaving, newCondition("AND", col, op, value))
	return h
}

// OrHaving adds an OR predicate.
func (h *HavingBuilder) OrHaving(col, op string, value any) *HavingBuilder {
	h.Base().addCondition(PartHaving, newCondition("OR", col, op, value))
	return h
}

// HavingRaw adds a raw predicate; "?" markers bind args in order.
func (h *HavingBuilder) HavingRaw(expr string, args ...any) *HavingBuilder {
	h.Base().addCondition(PartHaving, &condition{conj: "AND", kind: condRaw, raw: expr, clause: NewClause(args...)})
	return h
}

// Conditions returns the number of HAVING predicates currently set.
func (h *HavingBuilder) Conditions() int {
	conds, _ := h.Base().parts[PartHaving].([]*condition)
	return len(conds)
}

// ResetParts drops the HAVING predicates on a global or HAVING reset, then
// calls through to the wrapped layer.
func (h *HavingBuilder) ResetParts(parts ...Part) {
	drop := len(parts) == 0
	for _, p := range parts {
		if p == PartHaving {
			drop = true
		}
	}
	if drop {
		delete(h.Base().parts, PartHaving)
	}
	h.Builder.ResetParts(parts...)
}
