// Package assign implements the assignment table binding workers to one
// of the assignable global queues, so that under heavy processor counts
// contention spreads across more than one shared queue.
package assign

import "sync"

// softCap is the number of workers a single assignable queue is meant to
// carry before the table starts preferring another queue; it is a soft
// cap, not a hard invariant — see the module's design notes on the
// soft-cap-overflow decision.
const softCap = 16

// Count returns how many assignable queues a processor count should get:
// zero below 33 processors (one shared queue is plenty), otherwise enough
// queues that each carries at most softCap workers.
func Count(processors int) int {
	if processors <= 32 {
		return 0
	}
	return (processors + softCap - 1) / softCap
}

// Table tracks, for each worker that asks, which assignable queue index it
// is bound to, and how many workers are currently bound to each queue.
type Table struct {
	mu       sync.Mutex
	counts   []int
	assigned map[int]int
}

// New returns a table sized for the given number of assignable queues.
func New(queues int) *Table {
	return &Table{
		counts:   make([]int, queues),
		assigned: make(map[int]int),
	}
}

// Queues returns the number of assignable queues this table manages.
func (t *Table) Queues() int {
	return len(t.counts)
}

// Assign binds workerID to a queue index: the first queue still under the
// soft cap, or if every queue is at or over cap, the least-loaded queue
// (ties resolve to the lowest index). Blocks only on internal contention.
func (t *Table) Assign(workerID int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := t.pickLocked()
	t.counts[idx]++
	t.assigned[workerID] = idx
	return idx
}

// TryReassign attempts, without blocking, to move workerID to whichever
// queue Assign would currently pick, binding it if it has no assignment
// yet. Returns false only when the table's internal lock is contended.
func (t *Table) TryReassign(workerID int) (int, bool) {
	if !t.mu.TryLock() {
		return 0, false
	}
	defer t.mu.Unlock()

	old, had := t.assigned[workerID]
	idx := t.pickLocked()
	if had && idx == old {
		return old, true
	}
	if had {
		t.counts[old]--
	}
	t.counts[idx]++
	t.assigned[workerID] = idx
	return idx, true
}

// Unassign releases workerID's binding, if any.
func (t *Table) Unassign(workerID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx, ok := t.assigned[workerID]; ok {
		t.counts[idx]--
		delete(t.assigned, workerID)
	}
}

// Load returns the current worker count bound to queue idx.
func (t *Table) Load(idx int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[idx]
}

func (t *Table) pickLocked() int {
	for i, c := range t.counts {
		if c < softCap {
			return i
		}
	}
	best := 0
	for i, c := range t.counts {
		if c < t.counts[best] {
			best = i
		}
	}
	return best
}
