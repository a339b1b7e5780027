package ygggo_sql

// Builder is the surface every capability layer wraps. Layers embed the
// Builder they wrap, override what they extend and delegate the rest.
type Builder interface {
	// Base returns the QueryBuilder at the bottom of the chain.
	Base() *QueryBuilder
	// ResetParts clears parts; layers that keep per-part state wrap it and
	// must call through to the layer below.
	ResetParts(parts ...Part)
	// Unwrap returns the wrapped layer, or nil at the base.
	Unwrap() Builder
}

// Mixin wraps a Builder with one capability.
type Mixin func(Builder) Builder

// Compose applies mixins in order, each wrapping the result of the previous
// one, and routes the base's Reset through the outermost layer.
func Compose(b Builder, mixins ...Mixin) Builder {
	cur := b
	for _, m := range mixins {
		if m == nil {
			continue
		}
		cur = m(cur)
	}
	cur.Base().top = cur
	return cur
}

// Find walks the chain from b downward and returns the first layer of type T.
func Find[T Builder](b Builder) (T, bool) {
	for cur := b; cur != nil; cur = cur.Unwrap() {
		if t, ok := cur.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}

// StockMixins returns the HAVING, first, pluck and chunk capabilities.
func StockMixins() []Mixin {
	return []Mixin{WithHaving(), WithFirst(), WithPluck(), WithChunk()}
}
