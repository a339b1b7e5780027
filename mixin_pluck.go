package ygggo_sql

import "context"

// PluckBuilder projects one field out of every row.
type PluckBuilder struct {
	Builder
}

// WithPluck returns the pluck mixin.
func WithPluck() Mixin {
	return func(inner Builder) Builder { return &PluckBuilder{Builder: inner} }
}

// Unwrap implements Builder.
func (p *PluckBuilder) Unwrap() Builder { return p.Builder }

// Pluck runs the query and returns field from each row in order. A row
// without the field contributes nil.
func (p *PluckBuilder) Pluck(ctx context.Context, field string) ([]any, error) {
	recs, err := p.Base().Get(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(recs))
	for i, r := range recs {
		out[i], _ = r.GetAttribute(field)
	}
	return out, nil
}
