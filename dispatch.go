// Package dispatch implements a worker-thread dispatch core: per-worker
// local deques, a tiered set of shared queues, an assignment table that
// spreads contention across more than one shared queue at high processor
// counts, and a priority-ordered dispatch loop. Thread-count control,
// registered waits/timers, I/O completion, callback wrapping, and the
// submission surface above this core are modeled as a single Controller
// collaborator and are not implemented here.
package dispatch

import (
	"iter"
	"runtime"
	"time"

	"code.hybscloud.com/atomix"

	"github.com/go-foundations/dispatch/internal/assign"
	"github.com/go-foundations/dispatch/internal/deque"
	"github.com/go-foundations/dispatch/internal/queue"
	"github.com/go-foundations/dispatch/internal/registry"
	"github.com/go-foundations/dispatch/internal/work"
)

// WorkItem is an opaque unit of dispatchable work, executed exactly once
// by whichever worker dequeues it.
type WorkItem = work.Item

// WorkItemFunc adapts a plain function to WorkItem.
type WorkItemFunc = work.Func

// Controller is the set of process-wide collaborators the core consumes
// but does not implement.
type Controller interface {
	// RequestWorker asks for one additional worker to be scheduled; the
	// core calls this at most once per ThreadRequestLatch arm/release cycle.
	RequestWorker()
	// NotifyCompletion is called once per executed work item, with the
	// calling worker's own rolling completion count and the current tick
	// (nanosecond timestamp) at the moment of completion. It returns the
	// controller's retire verdict: false means the worker must stop
	// dispatching now, draining its local deque back to the main queue.
	NotifyCompletion(completions int64, tickNow int64) bool
	// ShouldYield reports whether the calling worker should return control
	// (e.g. a higher-level scheduler wants the OS thread back). It is
	// consulted only once a quantum has expired; when it reports false the
	// worker rebalances, starts a fresh quantum and keeps dispatching.
	ShouldYield() bool
	// WorkerTrackingEnabled reports whether the core should pay the cost of
	// tracking per-worker state beyond what dispatch itself needs.
	WorkerTrackingEnabled() bool
	// LoggingEnabled reports whether structured debug logging should run;
	// checked before each log event (growth, rebase, assignment change,
	// retirement, item panic), never on the push/pop/steal fast path.
	LoggingEnabled() bool
	// ProcessorCount reports the number of logical processors available.
	// NewCore consults it only when the configured processor count is not
	// positive; by default the assignment table is sized from
	// runtime.GOMAXPROCS(0) or from WithProcessors.
	ProcessorCount() int
}

// DispatchOutcome reports why a dispatcher's quantum-bounded loop returned.
type DispatchOutcome int

const (
	// QuantumExpired means the worker's time budget ran out and ShouldYield
	// reported true, or the context was cancelled, while work was still
	// being dispatched.
	QuantumExpired DispatchOutcome = iota
	// Retired means every source the dispatcher checked came up empty, or
	// the controller vetoed continuing after a completion: the worker
	// should drain its local deque to the main queue and retire.
	Retired
)

func (o DispatchOutcome) String() string {
	switch o {
	case QuantumExpired:
		return "quantum-expired"
	case Retired:
		return "retired"
	default:
		return "unknown"
	}
}

// defaultQuantum is the per-dispatch time budget before a worker checks
// back in with its controller.
const defaultQuantum = 30 * time.Millisecond

// Config holds the tunables a Core is constructed with.
type Config struct {
	quantum    time.Duration
	processors int
}

// Option configures a Config via the functional-options pattern.
type Option func(*Config)

// WithQuantum overrides the default dispatch quantum.
func WithQuantum(d time.Duration) Option {
	return func(c *Config) { c.quantum = d }
}

// WithProcessors overrides the default processor-count probe, primarily
// for tests that want deterministic assignment-table sizing.
func WithProcessors(n int) Option {
	return func(c *Config) { c.processors = n }
}

// DefaultConfig returns the configuration a Core uses with no options.
func DefaultConfig() Config {
	return Config{
		quantum:    defaultQuantum,
		processors: runtime.GOMAXPROCS(0),
	}
}

func newConfig(opts ...Option) Config {
	c := DefaultConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Core is the process-wide work-queue aggregate: the main and
// high-priority shared queues, the assignable queues and their assignment
// table, and the registry of every worker's local deque.
type Core struct {
	cfg  Config
	ctrl Controller

	main         *queue.Shared
	highPriority *queue.Shared
	assignable   []*queue.Shared
	assignTable  *assign.Table

	registry *registry.Registry

	mayHaveHighPriorityWork atomix.Bool
	dispatchNormalFirst     atomix.Bool

	latch *ThreadRequestLatch
	log   *logger
}

// NewCore builds the process-wide aggregate. ctrl must not be nil.
func NewCore(ctrl Controller, opts ...Option) *Core {
	cfg := newConfig(opts...)
	if cfg.processors <= 0 {
		cfg.processors = ctrl.ProcessorCount()
	}

	numAssignable := assign.Count(cfg.processors)
	assignable := make([]*queue.Shared, numAssignable)
	for i := range assignable {
		assignable[i] = queue.New()
	}

	c := &Core{
		cfg:          cfg,
		ctrl:         ctrl,
		main:         queue.New(),
		highPriority: queue.New(),
		assignable:   assignable,
		assignTable:  assign.New(numAssignable),
		registry:     registry.New(),
		log:          newLogger(ctrl),
	}
	c.latch = newThreadRequestLatch(ctrl)
	c.dispatchNormalFirst.StoreRelaxed(true)
	return c
}

// Enqueue adds item to the work graph. When owner is non-nil (the calling
// goroutine is itself a dispatcher worker), the item goes to that worker's
// own local deque; otherwise it goes to the main shared queue. Either way,
// the thread-request latch is armed so an idle worker gets woken.
func (c *Core) Enqueue(item WorkItem, owner *deque.Local) {
	if owner != nil {
		owner.Push(item)
	} else {
		c.main.Enqueue(item)
	}
	c.latch.Arm()
}

// EnqueueHighPriority adds item to the gated high-priority queue and
// raises the may-have-high-priority-work flag so dispatchers notice it on
// their next check.
func (c *Core) EnqueueHighPriority(item WorkItem) {
	c.highPriority.Enqueue(item)
	c.mayHaveHighPriorityWork.StoreRelease(true)
	c.latch.Arm()
}

// LocalFindAndPop cancels item if it is still sitting in owner's local
// deque, returning whether it was found and removed. owner is typically
// the calling dispatcher's own deque.
func (c *Core) LocalFindAndPop(item WorkItem, owner *deque.Local) bool {
	if owner == nil {
		return false
	}
	return owner.FindAndRemove(item)
}

// PendingBreakdown is Core.PendingCount's per-role view.
type PendingBreakdown struct {
	Local      int
	High       int
	Main       int
	Assignable []int
}

// Total returns the sum across every role.
func (b PendingBreakdown) Total() int {
	total := b.Local + b.High + b.Main
	for _, n := range b.Assignable {
		total += n
	}
	return total
}

// PendingCount returns a point-in-time estimate of pending work, broken
// down by role in addition to the aggregate spec asks for.
func (c *Core) PendingCount() PendingBreakdown {
	b := PendingBreakdown{
		High:       c.highPriority.Count(),
		Main:       c.main.Count(),
		Assignable: make([]int, len(c.assignable)),
	}
	for i, s := range c.assignable {
		b.Assignable[i] = s.Count()
	}
	for _, d := range c.registry.Snapshot() {
		if d != nil {
			b.Local += d.Len()
		}
	}
	return b
}

// EnumerateItems returns a lazy, best-effort view of items currently
// sitting in local deques. Shared queues are FAA ring buffers with no
// peek-without-consume operation, so they are not represented here;
// local deques are the primary place work sits momentarily before
// dispatch, which is what this is for (diagnostics, not exactness).
func (c *Core) EnumerateItems() iter.Seq[WorkItem] {
	return func(yield func(WorkItem) bool) {
		for _, d := range c.registry.Snapshot() {
			if d == nil {
				continue
			}
			for _, item := range d.Snapshot() {
				if item == nil {
					continue
				}
				if !yield(item) {
					return
				}
			}
		}
	}
}
