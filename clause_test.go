package ygggo_sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClause_BindAndSnapshot(t *testing.T) {
	c := NewClause(1, "a")
	c.Bind(true)
	assert.Equal(t, 3, c.Len())

	snap := c.Bound()
	assert.Equal(t, []any{1, "a", true}, snap)

	snap[0] = 99
	assert.Equal(t, 1, c.Bound()[0], "Bound must return a copy")

	var nilClause *Clause
	assert.Nil(t, nilClause.Bound())
	assert.Zero(t, nilClause.Len())
}

func TestSink_PushPositions(t *testing.T) {
	var s Sink
	assert.Equal(t, 1, s.Push("x"))
	assert.Equal(t, 2, s.Push(nil))
	assert.Equal(t, 2, s.Len())

	vals := s.Values()
	vals[0] = "changed"
	assert.Equal(t, []any{"x", nil}, s.Values())
}
