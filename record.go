package ygggo_sql

// Record is one result row keyed by column name.
type Record map[string]any

// GetAttribute returns the value of column name and whether it was present.
func (r Record) GetAttribute(name string) (any, bool) {
	v, ok := r[name]
	return v, ok
}

// normalize turns driver []byte values into strings so records compare
// the same way regardless of the engine's text protocol.
func (r Record) normalize() Record {
	for k, v := range r {
		if b, ok := v.([]byte); ok {
			r[k] = string(b)
		}
	}
	return r
}

// Rows is a forward-only row stream produced by a Client.
type Rows interface {
	Next() bool
	Record() (Record, error)
	Err() error
	Close() error
}

// Statement is the immutable result of one render pass.
type Statement struct {
	SQL  string
	Args []any
}

// sliceRows adapts an in-memory result to Rows.
type sliceRows struct {
	recs []Record
	i    int
	cur  Record
}

func newSliceRows(recs []Record) *sliceRows { return &sliceRows{recs: recs} }

func (s *sliceRows) Next() bool {
	if s.i >= len(s.recs) {
		s.cur = nil
		return false
	}
	s.cur = s.recs[s.i]
	s.i++
	return true
}

func (s *sliceRows) Record() (Record, error) { return s.cur, nil }
func (s *sliceRows) Err() error              { return nil }

func (s *sliceRows) Close() error {
	s.recs, s.cur = nil, nil
	return nil
}
