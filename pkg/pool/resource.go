package pool

import "sync/atomic"

// Resource is an exclusively held pooled value. Release it exactly once;
// further calls are no-ops.
type Resource[T any] struct {
	pool     *Pool[T]
	e        *entry[T]
	broken   atomic.Bool
	released atomic.Bool
}

// Value returns the pooled value.
func (r *Resource[T]) Value() T {
	return r.e.value
}

// MarkBroken flags the value for destruction on release.
func (r *Resource[T]) MarkBroken() {
	r.broken.Store(true)
}

// Broken reports whether MarkBroken was called.
func (r *Resource[T]) Broken() bool {
	return r.broken.Load()
}

// Release returns the value to the pool, or destroys it when broken.
func (r *Resource[T]) Release() {
	if !r.released.CompareAndSwap(false, true) {
		return
	}
	r.pool.put(r.e, r.broken.Load())
}
