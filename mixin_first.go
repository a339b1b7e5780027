package ygggo_sql

import "context"

// FirstBuilder fetches a single row.
type FirstBuilder struct {
	Builder
}

// WithFirst returns the first-row mixin.
func WithFirst() Mixin {
	return func(inner Builder) Builder { return &FirstBuilder{Builder: inner} }
}

// Unwrap implements Builder.
func (f *FirstBuilder) Unwrap() Builder { return f.Builder }

// First runs the query with LIMIT 1 on a clone and returns the first row.
// The boolean is false when the query matched nothing; an empty result is
// not an error. The cursor is closed before First returns.
func (f *FirstBuilder) First(ctx context.Context) (Record, bool, error) {
	rows, err := f.Base().Clone().Limit(1).Cursor(ctx)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, false, rows.Err()
	}
	rec, err := rows.Record()
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}
