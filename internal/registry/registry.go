// Package registry holds the copy-on-write registry of live local deques,
// published as an immutable snapshot so a dispatcher picking a steal victim
// never blocks behind a worker joining or leaving.
package registry

import (
	"sync/atomic"

	"github.com/go-foundations/dispatch/internal/deque"
)

// Registry is a compare-and-swap-published list of every worker's local
// deque, indexed by worker ordinal.
type Registry struct {
	snapshot atomic.Pointer[[]*deque.Local]
}

// New returns an empty registry.
func New() *Registry {
	r := &Registry{}
	empty := make([]*deque.Local, 0)
	r.snapshot.Store(&empty)
	return r
}

// Register publishes a new snapshot with d appended, returning its index.
func (r *Registry) Register(d *deque.Local) int {
	for {
		old := r.snapshot.Load()
		next := make([]*deque.Local, len(*old), len(*old)+1)
		copy(next, *old)
		next = append(next, d)
		if r.snapshot.CompareAndSwap(old, &next) {
			return len(next) - 1
		}
	}
}

// Unregister publishes a new snapshot with the deque at index replaced by
// nil, preserving every other worker's index. A nil slot is skipped by
// Snapshot's consumers.
func (r *Registry) Unregister(index int) {
	for {
		old := r.snapshot.Load()
		if index < 0 || index >= len(*old) {
			return
		}
		next := make([]*deque.Local, len(*old))
		copy(next, *old)
		next[index] = nil
		if r.snapshot.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Snapshot returns the current published slice. It is never mutated in
// place; callers may read it freely without locking. Some entries may be
// nil for retired workers.
func (r *Registry) Snapshot() []*deque.Local {
	return *r.snapshot.Load()
}

// Len returns the number of registered slots, including retired (nil) ones.
func (r *Registry) Len() int {
	return len(*r.snapshot.Load())
}
