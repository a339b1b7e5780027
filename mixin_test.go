package ygggo_sql

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompose_FindLayers(t *testing.T) {
	b := Compose(NewQueryBuilder(nil, MySQL).From("orders"), StockMixins()...)

	_, ok := Find[*HavingBuilder](b)
	assert.True(t, ok)
	_, ok = Find[*FirstBuilder](b)
	assert.True(t, ok)
	_, ok = Find[*PluckBuilder](b)
	assert.True(t, ok)
	_, ok = Find[*ChunkBuilder](b)
	assert.True(t, ok)
	base, ok := Find[*QueryBuilder](b)
	require.True(t, ok)
	assert.Same(t, b.Base(), base)

	only := Compose(NewQueryBuilder(nil, MySQL).From("orders"), WithFirst())
	_, ok = Find[*HavingBuilder](only)
	assert.False(t, ok)
}

func TestHaving_RendersAfterGroupWithSharedNumbering(t *testing.T) {
	b := Compose(NewQueryBuilder(nil, Postgres).From("orders"), WithHaving())
	h, ok := Find[*HavingBuilder](b)
	require.True(t, ok)

	h.Base().Select("customer_id").SelectRaw("COUNT(*)", "n").Where("status", "=", "paid").GroupBy("customer_id")
	h.Having("customer_id", ">", 10).HavingRaw("COUNT(*) > ?", 2)

	st, err := h.Base().Render()
	require.NoError(t, err)
	assert.Equal(t, `SELECT "customer_id", COUNT(*) AS "n" FROM "orders" WHERE "status" = $1 GROUP BY "customer_id" HAVING "customer_id" > $2 AND COUNT(*) > $3`, st.SQL)
	assert.Equal(t, []any{"paid", 10, 2}, st.Args)

	h.OrHaving("customer_id", "<", 3)
	st, err = h.Base().Render()
	require.NoError(t, err)
	assert.Contains(t, st.SQL, `OR "customer_id" < $4`)
}

func TestHaving_GlobalResetClearsLayerState(t *testing.T) {
	b := Compose(NewQueryBuilder(nil, MySQL).From("orders"), WithHaving(), WithFirst())
	h, _ := Find[*HavingBuilder](b)
	h.Base().GroupBy("customer_id")
	h.Having("total", ">", 100)

	h.Base().Reset()

	assert.Zero(t, h.Conditions())
	for _, p := range Parts() {
		assert.False(t, h.Base().Has(p))
	}
}

func TestHaving_TargetedResets(t *testing.T) {
	b := Compose(NewQueryBuilder(nil, MySQL).From("orders"), WithHaving())
	h, _ := Find[*HavingBuilder](b)
	h.Base().Where("a", "=", 1).GroupBy("g")
	h.Having("g", ">", 1)

	h.Base().Reset(PartWhere)
	assert.Equal(t, 1, h.Conditions())
	assert.False(t, h.Base().Has(PartWhere))

	h.Base().Reset(PartHaving)
	assert.Zero(t, h.Conditions())
	assert.True(t, h.Base().Has(PartGroup))

	st, err := h.Base().Render()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `orders` GROUP BY `g`", st.SQL)
}

func TestHaving_CloneIsIndependent(t *testing.T) {
	b := Compose(NewQueryBuilder(nil, MySQL).From("orders"), WithHaving())
	h, _ := Find[*HavingBuilder](b)
	h.Base().GroupBy("c")
	h.Having("m", "<", 9)

	clone := h.Base().Clone()
	h.Having("n", ">", 5)

	st, err := clone.Render()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `orders` GROUP BY `c` HAVING `m` < ?", st.SQL)
	assert.Equal(t, []any{9}, st.Args)

	st, err = h.Base().Render()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `orders` GROUP BY `c` HAVING `m` < ? AND `n` > ?", st.SQL)
	assert.Equal(t, []any{9, 5}, st.Args)
}

func TestHaving_ResetOnCloneClearsHaving(t *testing.T) {
	b := Compose(NewQueryBuilder(nil, MySQL).From("orders"), WithHaving())
	h, _ := Find[*HavingBuilder](b)
	h.Base().GroupBy("c")
	h.Having("n", ">", 5)

	clone := h.Base().Clone()
	clone.Reset()
	clone.From("orders")

	st, err := clone.Render()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `orders`", st.SQL)
	assert.Empty(t, st.Args)

	clone.Reset(PartHaving)
	assert.Equal(t, 1, h.Conditions(), "the original keeps its predicates")
}

func TestFirst_ReturnsFirstRowOnClone(t *testing.T) {
	s := &fakeSender{fn: func(string, []any) ([]Record, error) { return numberedRecords(1), nil }}
	b := Compose(NewQueryBuilder(s, MySQL).From("users").Where("active", "=", true), WithFirst())
	f, _ := Find[*FirstBuilder](b)

	rec, ok, err := f.First(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), rec["id"])

	assert.Equal(t, "SELECT * FROM `users` WHERE `active` = ? LIMIT 1", s.Calls()[0].SQL)
	assert.False(t, f.Base().Has(PartLimit), "First must not leave LIMIT on the builder")
}

func TestFirst_EmptyResultIsNotAnError(t *testing.T) {
	s := &fakeStreamer{}
	b := Compose(NewQueryBuilder(s, MySQL).From("users"), WithFirst())
	f, _ := Find[*FirstBuilder](b)

	rec, ok, err := f.First(context.Background())
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, rec)
	assert.Zero(t, s.Open(), "cursor must be closed")
}

func TestFirst_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	s := &fakeSender{fn: func(string, []any) ([]Record, error) { return nil, boom }}
	b := Compose(NewQueryBuilder(s, MySQL).From("users"), WithFirst())
	f, _ := Find[*FirstBuilder](b)

	_, ok, err := f.First(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)
}

func TestPluck_MissingFieldYieldsNil(t *testing.T) {
	s := &fakeSender{fn: func(string, []any) ([]Record, error) {
		return []Record{{"name": "ann"}, {"other": 1}, {"name": "bo"}}, nil
	}}
	b := Compose(NewQueryBuilder(s, MySQL).From("users"), WithPluck())
	p, _ := Find[*PluckBuilder](b)

	names, err := p.Pluck(context.Background(), "name")
	require.NoError(t, err)
	assert.Equal(t, []any{"ann", nil, "bo"}, names)

	empty := &fakeSender{}
	p2, _ := Find[*PluckBuilder](Compose(NewQueryBuilder(empty, MySQL).From("users"), WithPluck()))
	names, err = p2.Pluck(context.Background(), "name")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func collectBatches(t *testing.T, ch *Chunks) [][]Record {
	t.Helper()
	var out [][]Record
	for ch.Next() {
		out = append(out, ch.Batch())
	}
	require.NoError(t, ch.Err())
	return out
}

func TestChunk_PagesWithOffsets(t *testing.T) {
	s := &fakeSender{fn: pagedTable(numberedRecords(7))}
	b := Compose(NewQueryBuilder(s, MySQL).From("users").OrderBy("id", "asc"), WithChunk())
	c, _ := Find[*ChunkBuilder](b)

	ch, err := c.Chunk(context.Background(), 3)
	require.NoError(t, err)
	batches := collectBatches(t, ch)

	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 3)
	assert.Len(t, batches[1], 3)
	assert.Len(t, batches[2], 1)

	calls := s.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "SELECT * FROM `users` ORDER BY `id` ASC LIMIT 3 OFFSET 0", calls[0].SQL)
	assert.Equal(t, "SELECT * FROM `users` ORDER BY `id` ASC LIMIT 3 OFFSET 3", calls[1].SQL)
	assert.Equal(t, "SELECT * FROM `users` ORDER BY `id` ASC LIMIT 3 OFFSET 6", calls[2].SQL)
}

func TestChunk_ExactMultipleYieldsNoEmptyBatch(t *testing.T) {
	s := &fakeSender{fn: pagedTable(numberedRecords(6))}
	c, _ := Find[*ChunkBuilder](Compose(NewQueryBuilder(s, MySQL).From("users"), WithChunk()))

	ch, err := c.Chunk(context.Background(), 3)
	require.NoError(t, err)
	batches := collectBatches(t, ch)
	assert.Len(t, batches, 2)
}

func TestChunk_HonorsCallerLimitAndOffset(t *testing.T) {
	s := &fakeSender{fn: pagedTable(numberedRecords(20))}
	c, _ := Find[*ChunkBuilder](Compose(NewQueryBuilder(s, MySQL).From("users").Limit(5).Offset(2), WithChunk()))

	ch, err := c.Chunk(context.Background(), 2)
	require.NoError(t, err)
	var ids []any
	for _, batch := range collectBatches(t, ch) {
		for _, r := range batch {
			ids = append(ids, r["id"])
		}
	}
	assert.Equal(t, []any{int64(3), int64(4), int64(5), int64(6), int64(7)}, ids)
	assert.Equal(t, "SELECT * FROM `users` LIMIT 1 OFFSET 6", s.Calls()[2].SQL)
}

func TestChunk_StreamsWhenAvailable(t *testing.T) {
	s := &fakeStreamer{}
	s.fn = func(string, []any) ([]Record, error) { return numberedRecords(5), nil }
	c, _ := Find[*ChunkBuilder](Compose(NewQueryBuilder(s, MySQL).From("users"), WithChunk()))

	ch, err := c.Chunk(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Open())

	batches := collectBatches(t, ch)
	require.Len(t, batches, 3)
	assert.Len(t, batches[2], 1)
	assert.Len(t, s.Calls(), 1, "a stream is issued once")
	assert.Zero(t, s.Open(), "exhausted iterator releases the cursor")
}

func TestChunk_EarlyCloseReleasesCursor(t *testing.T) {
	s := &fakeStreamer{}
	s.fn = func(string, []any) ([]Record, error) { return numberedRecords(10), nil }
	c, _ := Find[*ChunkBuilder](Compose(NewQueryBuilder(s, MySQL).From("users"), WithChunk()))

	ch, err := c.Chunk(context.Background(), 3)
	require.NoError(t, err)
	require.True(t, ch.Next())
	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())

	assert.Zero(t, s.Open())
	assert.False(t, ch.Next())
	assert.Nil(t, ch.Batch())
}

func TestChunk_RejectsBadSize(t *testing.T) {
	c, _ := Find[*ChunkBuilder](Compose(NewQueryBuilder(&fakeSender{}, MySQL).From("users"), WithChunk()))
	_, err := c.Chunk(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidChunkSize)
}

func TestEach_StopsOnErrorAndPanic(t *testing.T) {
	s := &fakeStreamer{}
	s.fn = func(string, []any) ([]Record, error) { return numberedRecords(9), nil }
	c, _ := Find[*ChunkBuilder](Compose(NewQueryBuilder(s, MySQL).From("users"), WithChunk()))

	stop := errors.New("stop")
	seen := 0
	err := c.Each(context.Background(), 2, func(batch []Record) error {
		seen++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, seen)
	assert.Zero(t, s.Open())

	assert.Panics(t, func() {
		_ = c.Each(context.Background(), 2, func([]Record) error { panic("consumer failed") })
	})
	assert.Zero(t, s.Open(), "panicking consumer still releases the cursor")

	total := 0
	require.NoError(t, c.Each(context.Background(), 4, func(batch []Record) error {
		total += len(batch)
		return nil
	}))
	assert.Equal(t, 9, total)
}
