// Package deque implements the per-worker local work-stealing deque: a
// Chase-Lev style growable ring buffer, LIFO for the owner and FIFO for
// thieves, guarded by a cheap fast path and a "foreign lock" slow path.
package deque

import (
	"math"
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"

	"github.com/go-foundations/dispatch/internal/work"
)

const initialCapacity = 32

// overflowSentinel marks the tail value that forces a rebase before the
// next push: the largest representable index, reserved so "tail ==
// overflowSentinel" is never a legitimate in-use value.
const overflowSentinel = math.MaxUint64

type pad [64]byte

// Local is a single worker's local deque: the worker pushes and pops from
// the tail (LIFO, lock-free fast path), other workers steal from the head
// (FIFO, always under the foreign lock).
type Local struct {
	_    pad
	tail atomix.Uint64
	_    pad
	head atomix.Uint64
	_    pad

	mu     sync.Mutex // foreign lock: growth, overflow rebase, contended pop, theft, find-and-remove
	buffer []work.Item
	mask   uint64

	// OnGrow and OnRebase are optional observability hooks, invoked from
	// inside the locked growth/rebase sections. Nil is a valid no-op; the
	// owning dispatcher always sets them, and its logger decides whether
	// anything is written.
	OnGrow   func(newCapacity int)
	OnRebase func()
}

// New returns an empty local deque with the default initial capacity.
func New() *Local {
	return &Local{
		buffer: make([]work.Item, initialCapacity),
		mask:   initialCapacity - 1,
	}
}

// Push appends an item at the tail. Owner-only; never called concurrently
// with itself.
func (d *Local) Push(item work.Item) {
	tail := d.tail.LoadAcquire()
	if tail == overflowSentinel {
		d.mu.Lock()
		if d.tail.LoadAcquire() == overflowSentinel {
			d.rebaseLocked()
		}
		d.mu.Unlock()
		tail = d.tail.LoadAcquire()
	}

	head := d.head.LoadAcquire()

	// Fast path: at least two free slots, no contention with a thief at
	// the head end is possible, publish without the lock.
	if tail < head+d.mask {
		d.buffer[tail&d.mask] = item
		d.tail.StoreRelease(tail + 1)
		return
	}

	d.mu.Lock()
	head = d.head.LoadAcquire()
	tail = d.tail.LoadAcquire()
	if tail-head >= d.mask {
		d.growLocked()
		tail = d.tail.LoadAcquire()
	}
	d.buffer[tail&d.mask] = item
	d.tail.StoreRelease(tail + 1)
	d.mu.Unlock()
}

// Pop removes and returns the most recently pushed item. Owner-only.
func (d *Local) Pop() (work.Item, bool) {
	for {
		tail := d.tail.LoadAcquire()
		head := d.head.LoadAcquire()
		if tail <= head {
			return nil, false
		}
		newTail := tail - 1
		// Atomic RMW acts as a full fence: the following head re-read must
		// not be reordered ahead of this store.
		d.tail.AddAcqRel(^uint64(0))

		head = d.head.LoadAcquire()
		if head <= newTail {
			idx := newTail & d.mask
			item := d.buffer[idx]
			if item == nil {
				// A hole left by find-and-remove: nothing to return at this
				// slot, but tail has already moved past it. Try the next one.
				continue
			}
			d.buffer[idx] = nil
			return item, true
		}

		// Zero or one item left: contended with a possible thief.
		d.mu.Lock()
		head = d.head.LoadAcquire()
		if head <= newTail {
			idx := newTail & d.mask
			item := d.buffer[idx]
			d.buffer[idx] = nil
			d.mu.Unlock()
			if item == nil {
				continue
			}
			return item, true
		}
		d.tail.StoreRelease(tail)
		d.mu.Unlock()
		return nil, false
	}
}

// Steal removes and returns the oldest item for a non-owner goroutine. The
// second return is whether an item was taken; the third is whether the
// attempt was abandoned because the foreign lock was contended (a "missed
// steal", reported to the dispatcher for amplification, not retried here).
func (d *Local) Steal() (item work.Item, ok bool, missed bool) {
	tail := d.tail.LoadAcquire()
	head := d.head.LoadAcquire()
	if tail <= head {
		return nil, false, false
	}
	if !d.mu.TryLock() {
		return nil, false, true
	}
	defer d.mu.Unlock()

	sw := spin.Wait{}
	for {
		headOld := d.head.AddAcqRel(1) - 1
		tail = d.tail.LoadAcquire()
		if headOld < tail {
			idx := headOld & d.mask
			item := d.buffer[idx]
			if item == nil {
				sw.Once()
				continue
			}
			d.buffer[idx] = nil
			return item, true, false
		}
		d.head.StoreRelease(headOld)
		return nil, false, false
	}
}

// FindAndRemove removes target if it is still present, matching by
// identity (==). Owner-only. Used to cancel a pending local item before it
// is stolen or dispatched.
func (d *Local) FindAndRemove(target work.Item) bool {
	tail := d.tail.LoadAcquire()
	head := d.head.LoadAcquire()
	if tail <= head {
		return false
	}

	// Fast path: the tail-adjacent slot is a plain pop.
	if d.buffer[(tail-1)&d.mask] == target {
		item, ok := d.Pop()
		return ok && item == target
	}

	if tail-head < 2 {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	head = d.head.LoadAcquire()
	tail = d.tail.LoadAcquire()
	for i := tail - 2; i >= head; i-- {
		idx := i & d.mask
		if d.buffer[idx] == target {
			d.buffer[idx] = nil
			switch {
			case i == head:
				d.head.StoreRelease(head + 1)
			case i == tail-1:
				d.tail.StoreRelease(tail - 1)
			}
			return true
		}
		if i == head {
			break
		}
	}
	return false
}

// Len returns a best-effort size estimate: exact for the owner goroutine,
// approximate if read concurrently with theft.
func (d *Local) Len() int {
	tail := d.tail.LoadAcquire()
	head := d.head.LoadAcquire()
	if tail <= head {
		return 0
	}
	return int(tail - head)
}

// Snapshot returns the items currently between head and tail, best-effort
// and without the lock: entries may be nil (a hole) or may already be gone
// by the time the caller inspects them. Used only for enumeration.
func (d *Local) Snapshot() []work.Item {
	tail := d.tail.LoadAcquire()
	head := d.head.LoadAcquire()
	if tail <= head {
		return nil
	}
	out := make([]work.Item, 0, tail-head)
	for i := head; i < tail; i++ {
		out = append(out, d.buffer[i&d.mask])
	}
	return out
}

// DrainAll pops every remaining item via the normal Pop path, for worker
// retirement: the caller hands these to the main shared queue.
func (d *Local) DrainAll() []work.Item {
	var out []work.Item
	for {
		item, ok := d.Pop()
		if !ok {
			return out
		}
		out = append(out, item)
	}
}

// growLocked doubles capacity and rebases head/tail to 0/count, preserving
// order. Caller holds mu.
func (d *Local) growLocked() {
	head := d.head.LoadAcquire()
	tail := d.tail.LoadAcquire()
	count := tail - head

	newCap := uint64(len(d.buffer)) * 2
	newBuf := make([]work.Item, newCap)
	for i := uint64(0); i < count; i++ {
		newBuf[i] = d.buffer[(head+i)&d.mask]
	}

	d.buffer = newBuf
	d.mask = newCap - 1
	d.head.StoreRelease(0)
	d.tail.StoreRelease(count)

	if d.OnGrow != nil {
		d.OnGrow(int(newCap))
	}
}

// rebaseLocked masks both indices down by a multiple of capacity, an O(1)
// operation that leaves every item's physical slot unchanged since i&mask
// is invariant under subtracting multiples of capacity. Caller holds mu.
func (d *Local) rebaseLocked() {
	head := d.head.LoadAcquire()
	count := d.tail.LoadAcquire() - head
	newHead := head & d.mask
	d.head.StoreRelease(newHead)
	d.tail.StoreRelease(newHead + count)

	if d.OnRebase != nil {
		d.OnRebase()
	}
}
