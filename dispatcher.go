package dispatch

import (
	"context"
	"math/rand"
	"time"

	"code.hybscloud.com/atomix"

	"github.com/go-foundations/dispatch/internal/deque"
)

// Dispatcher is one worker's view of the core: its own local deque, its
// assignment (if any), and the priority-ordered dispatch loop.
type Dispatcher struct {
	id            int
	core          *Core
	local         *deque.Local
	registryIndex int
	queueIndex    int // -1 if unassigned
	completions   int64

	highPriorityMode atomix.Bool
	rng              *rand.Rand
}

// NewDispatcher registers a fresh local deque for worker id, binds it to
// an assignable queue if the core has any, and releases the thread-request
// latch: the request that woke this worker is satisfied as soon as it
// enters the dispatcher, before it dequeues anything, so an enqueue that
// lands a moment later is guaranteed to re-arm it rather than be lost.
func NewDispatcher(core *Core, id int) *Dispatcher {
	local := deque.New()
	d := &Dispatcher{
		id:            id,
		core:          core,
		local:         local,
		registryIndex: core.registry.Register(local),
		queueIndex:    -1,
		rng:           rand.New(rand.NewSource(int64(id) + 1)),
	}

	local.OnGrow = func(newCapacity int) { core.log.localDequeGrew(id, newCapacity) }
	local.OnRebase = func() { core.log.localDequeRebased(id) }

	if len(core.assignable) > 0 {
		d.queueIndex = core.assignTable.Assign(id)
		core.log.assignmentChanged(id, d.queueIndex)
	}
	core.latch.Release()
	return d
}

// Local returns the dispatcher's own local deque, for Core.Enqueue /
// Core.LocalFindAndPop calls made from within this worker's goroutine.
func (d *Dispatcher) Local() *deque.Local { return d.local }

// Run drives the dispatch loop until ctx is cancelled or the worker
// retires, because no work remains anywhere or the controller vetoed
// continuing.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			d.retire()
			return
		}
		if d.DispatchOnce(ctx) == Retired {
			d.retire()
			return
		}
	}
}

// DispatchOnce runs the quantum-bounded dispatch loop: it dequeues and
// executes items from, in order, (a) the worker's own local deque or the
// gated high-priority queue (whichever the alternation flag favors this
// entry), (b) the worker's assigned global queue, (c) the main global
// queue, (d) other assignable queues in random rotation, and (e) other
// workers' local deques in random rotation (theft). It returns
// QuantumExpired once the time budget elapses and the controller says to
// yield, or once ctx is cancelled after an item, Retired once every source above comes up empty or the controller
// vetoes continuing after a completion.
func (d *Dispatcher) DispatchOnce(ctx context.Context) DispatchOutcome {
	deadline := time.Now().Add(d.core.cfg.quantum)

	// The alternation flag is read and flipped exactly once per dispatcher
	// entry, never re-examined mid-quantum.
	normalFirst := d.core.dispatchNormalFirst.LoadAcquire()
	d.core.dispatchNormalFirst.StoreRelease(!normalFirst)

	for {
		item, missedSteal := d.nextItem(normalFirst)
		if item == nil {
			if missedSteal {
				// A theft attempt lost the foreign lock rather than finding
				// the deque empty: amplify by asking for another worker,
				// since the one we wanted to steal from is still busy.
				d.core.latch.Arm()
			}
			return Retired
		}

		if !d.execute(item) {
			// The controller vetoed continuing: drain and stop now rather
			// than falling through to the quantum check below.
			return Retired
		}

		if ctx.Err() != nil {
			return QuantumExpired
		}

		if time.Now().After(deadline) {
			if d.core.ctrl.ShouldYield() {
				return QuantumExpired
			}
			d.tryReassign()
			deadline = time.Now().Add(d.core.cfg.quantum)
		}
	}
}

// execute runs item exactly once and reports the controller's retire
// verdict: false means the caller must stop dispatching immediately.
func (d *Dispatcher) execute(item WorkItem) (keepGoing bool) {
	keepGoing = true
	defer func() {
		if r := recover(); r != nil {
			d.core.log.itemPanicked(d.id, r)
			panic(r)
		}
	}()
	item.Execute()
	recordCompletion()
	d.completions++
	keepGoing = d.core.ctrl.NotifyCompletion(d.completions, time.Now().UnixNano())
	return
}

// tryReassign is the quantum-boundary rebalancing step: skipped entirely
// for an unassigned worker or one already bound to queue 0, since there is
// nowhere earlier to move to.
func (d *Dispatcher) tryReassign() {
	if d.queueIndex <= 0 {
		return
	}
	if idx, ok := d.core.assignTable.TryReassign(d.id); ok && idx != d.queueIndex {
		d.queueIndex = idx
		d.core.log.assignmentChanged(d.id, idx)
	}
}

func (d *Dispatcher) nextItem(normalFirst bool) (item WorkItem, missedSteal bool) {
	if normalFirst {
		if it, ok := d.local.Pop(); ok {
			return it, false
		}
		if it, ok := d.tryHighPriority(); ok {
			return it, false
		}
	} else {
		if it, ok := d.tryHighPriority(); ok {
			return it, false
		}
		if it, ok := d.local.Pop(); ok {
			return it, false
		}
	}

	if d.queueIndex >= 0 {
		if it, ok := d.core.assignable[d.queueIndex].TryDequeue(); ok {
			return it, false
		}
	}
	if it, ok := d.core.main.TryDequeue(); ok {
		return it, false
	}
	if it, ok := d.tryOtherAssignable(); ok {
		return it, false
	}
	return d.trySteal()
}

// tryHighPriority implements the gated check: a worker only looks at the
// high-priority queue after winning the shared 1->0 CAS that claims
// "checking is this worker's job right now," then stays in that mode
// (a per-worker bit) until the queue looks empty, at which point it
// clears its own bit and lets the flag be claimed again.
func (d *Dispatcher) tryHighPriority() (WorkItem, bool) {
	if !d.highPriorityMode.LoadAcquire() {
		if !d.core.mayHaveHighPriorityWork.CompareAndSwapAcqRel(true, false) {
			return nil, false
		}
		d.highPriorityMode.StoreRelease(true)
	}

	item, ok := d.core.highPriority.TryDequeue()
	if !ok {
		d.highPriorityMode.StoreRelease(false)
		return nil, false
	}
	// More may remain: re-raise the flag so another worker (or this one,
	// next entry) notices without waiting for a fresh EnqueueHighPriority.
	d.core.mayHaveHighPriorityWork.StoreRelease(true)
	return item, true
}

func (d *Dispatcher) tryOtherAssignable() (WorkItem, bool) {
	n := len(d.core.assignable)
	if n == 0 {
		return nil, false
	}
	start := d.rng.Intn(n)
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if idx == d.queueIndex {
			continue
		}
		if it, ok := d.core.assignable[idx].TryDequeue(); ok {
			return it, true
		}
	}
	return nil, false
}

func (d *Dispatcher) trySteal() (WorkItem, bool) {
	victims := d.core.registry.Snapshot()
	n := len(victims)
	if n <= 1 {
		return nil, false
	}

	start := d.rng.Intn(n)
	missed := false
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		v := victims[idx]
		if v == nil || v == d.local {
			continue
		}
		item, ok, m := v.Steal()
		if ok {
			recordSteal()
			return item, false
		}
		if m {
			missed = true
			recordMissedSteal()
		}
	}
	return nil, missed
}

// retire drains any remaining local items to the main queue, releases
// this worker's queue assignment, and removes it from the steal registry.
func (d *Dispatcher) retire() {
	for _, item := range d.local.DrainAll() {
		d.core.main.Enqueue(item)
	}
	d.highPriorityMode.StoreRelease(false)
	if d.queueIndex >= 0 {
		d.core.assignTable.Unassign(d.id)
	}
	d.core.registry.Unregister(d.registryIndex)
	d.core.log.workerRetired(d.id)
}
