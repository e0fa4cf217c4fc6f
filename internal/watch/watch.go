// Package watch provides a minimal "watch channel" primitive: a single
// current value plus the ability to wait for it to change. It generalizes
// the teacher's atomic.Pointer-backed global snapshot
// (infrastructure/telemetry/trafficstats.globalCollector) into a reusable
// type, because spec.md §5 calls for several independent watch channels
// (interfaces, peer_addresses, overrides, external_address) with the same
// send-replace semantics: a writer always publishes a complete snapshot, and
// readers either poll the latest value or block until the next one lands.
package watch

import (
	"context"
	"sync"
	"sync/atomic"
)

// Watch holds the latest published value of T and lets readers wait for the
// next publication. The zero value is not usable; use New.
type Watch[T any] struct {
	current atomic.Pointer[T]

	mu      sync.Mutex
	changed chan struct{}
}

// New constructs a Watch already holding initial.
func New[T any](initial T) *Watch[T] {
	w := &Watch[T]{changed: make(chan struct{})}
	w.current.Store(&initial)
	return w
}

// Get returns the latest published value.
func (w *Watch[T]) Get() T {
	return *w.current.Load()
}

// Set publishes a new value and wakes every goroutine blocked in Await.
func (w *Watch[T]) Set(v T) {
	w.current.Store(&v)

	w.mu.Lock()
	closed := w.changed
	w.changed = make(chan struct{})
	w.mu.Unlock()
	close(closed)
}

// Modify reads the current value, applies fn, and publishes the result. It
// is the "send-modify" counterpart to Set's "send-replace".
func (w *Watch[T]) Modify(fn func(T) T) {
	w.Set(fn(w.Get()))
}

// Await blocks until the next publication after this call, or ctx is
// cancelled, then returns the latest value.
func (w *Watch[T]) Await(ctx context.Context) (T, error) {
	w.mu.Lock()
	ch := w.changed
	w.mu.Unlock()

	select {
	case <-ch:
		return w.Get(), nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
