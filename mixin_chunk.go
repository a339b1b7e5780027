package ygggo_sql

import (
	"context"
	"fmt"
)

// ChunkBuilder iterates a result in fixed-size batches.
type ChunkBuilder struct {
	Builder
}

// WithChunk returns the chunk mixin.
func WithChunk() Mixin {
	return func(inner Builder) Builder { return &ChunkBuilder{Builder: inner} }
}

// Unwrap implements Builder.
func (c *ChunkBuilder) Unwrap() Builder { return c.Builder }

// Chunks is a single-pass iterator over batches of at most size rows. It
// holds one batch at a time. Close releases the cursor or pooled client
// behind it and is safe to call more than once.
type Chunks struct {
	ctx  context.Context
	size int

	// stream mode
	rows Rows

	// paging mode
	query     *QueryBuilder
	offset    int
	remaining int // -1 when the caller set no limit

	batch []Record
	err   error
	done  bool
}

// Chunk starts a batched iteration of the query. When the sender streams,
// one cursor is held for the whole iteration; otherwise the query is
// re-issued per batch with an advancing OFFSET inside the caller's own
// LIMIT and OFFSET.
func (c *ChunkBuilder) Chunk(ctx context.Context, size int) (*Chunks, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, size)
	}
	base := c.Base()
	ch := &Chunks{ctx: ctx, size: size, remaining: -1}
	if _, ok := base.Sender().(Streamer); ok {
		rows, err := base.Clone().Cursor(ctx)
		if err != nil {
			return nil, err
		}
		ch.rows = rows
		return ch, nil
	}
	q := base.Clone()
	if v, ok := q.PartValue(PartOffset); ok {
		ch.offset, _ = v.(int)
	}
	if v, ok := q.PartValue(PartLimit); ok {
		ch.remaining, _ = v.(int)
	}
	if _, err := q.Render(); err != nil {
		return nil, err
	}
	ch.query = q
	return ch, nil
}

// Next loads the next batch. It returns false when the result is exhausted
// or an error occurred; the iterator closes itself in both cases.
func (ch *Chunks) Next() bool {
	if ch.done {
		return false
	}
	ch.batch = nil
	if ch.rows != nil {
		ch.nextFromStream()
	} else {
		ch.nextPage()
	}
	if len(ch.batch) == 0 {
		ch.Close()
		return false
	}
	return true
}

func (ch *Chunks) nextFromStream() {
	batch := make([]Record, 0, ch.size)
	for len(batch) < ch.size && ch.rows.Next() {
		rec, err := ch.rows.Record()
		if err != nil {
			ch.err = err
			return
		}
		batch = append(batch, rec)
	}
	if err := ch.rows.Err(); err != nil {
		ch.err = err
		return
	}
	ch.batch = batch
}

func (ch *Chunks) nextPage() {
	if ch.remaining == 0 {
		return
	}
	limit := ch.size
	if ch.remaining > 0 && ch.remaining < limit {
		limit = ch.remaining
	}
	page, err := ch.query.Clone().Limit(limit).Offset(ch.offset).Get(ch.ctx)
	if err != nil {
		ch.err = err
		return
	}
	ch.offset += len(page)
	if ch.remaining > 0 {
		ch.remaining -= len(page)
	}
	if len(page) < limit {
		ch.remaining = 0
	}
	ch.batch = page
}

// Batch returns the batch loaded by the last successful Next.
func (ch *Chunks) Batch() []Record { return ch.batch }

// Err returns the error that stopped iteration, if any.
func (ch *Chunks) Err() error { return ch.err }

// Close ends the iteration early and releases the underlying cursor.
func (ch *Chunks) Close() error {
	if ch.done {
		return nil
	}
	ch.done = true
	ch.batch = nil
	if ch.rows != nil {
		err := ch.rows.Close()
		ch.rows = nil
		return err
	}
	return nil
}

// Each calls fn for every batch until fn returns an error or the result is
// exhausted. The iterator is closed on every exit path, panics included.
func (c *ChunkBuilder) Each(ctx context.Context, size int, fn func(batch []Record) error) error {
	ch, err := c.Chunk(ctx, size)
	if err != nil {
		return err
	}
	defer ch.Close()
	for ch.Next() {
		if err := fn(ch.Batch()); err != nil {
			return err
		}
	}
	return ch.Err()
}
