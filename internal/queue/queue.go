// Package queue implements the shared, unbounded, multi-producer
// multi-consumer work queue as a growable chain of bounded lfq.MPMC
// segments: each segment is a tight FAA-based ring buffer, and the chain
// itself grows only when a segment is actually exhausted.
package queue

import (
	"sync"
	"sync/atomic"

	"code.hybscloud.com/lfq"

	"github.com/go-foundations/dispatch/internal/work"
)

const initialSegmentCapacity = 256

type segment struct {
	q    *lfq.MPMC[work.Item]
	next atomic.Pointer[segment]
}

// Shared is an unbounded MPMC FIFO-ish queue: non-blocking enqueue, a
// try-dequeue that never parks, and a cheap size estimate.
type Shared struct {
	head   atomic.Pointer[segment]
	tail   atomic.Pointer[segment]
	growMu sync.Mutex // serializes chain growth only, never the hot path
	count  atomic.Int64
}

// New returns an empty Shared queue with one initial segment.
func New() *Shared {
	seg := &segment{q: lfq.NewMPMC[work.Item](initialSegmentCapacity)}
	s := &Shared{}
	s.head.Store(seg)
	s.tail.Store(seg)
	return s
}

// Enqueue adds item, growing the segment chain if the current tail segment
// is full. Never blocks.
func (s *Shared) Enqueue(item work.Item) {
	for {
		tail := s.tail.Load()
		if err := tail.q.Enqueue(&item); err == nil {
			s.count.Add(1)
			return
		}

		s.growMu.Lock()
		if s.tail.Load() == tail {
			next := &segment{q: lfq.NewMPMC[work.Item](tail.q.Cap() * 2)}
			tail.q.Drain() // no more enqueues will land here
			tail.next.Store(next)
			s.tail.Store(next)
		}
		s.growMu.Unlock()
	}
}

// TryDequeue removes and returns the oldest item if one is available
// without blocking, advancing past exhausted segments as needed.
func (s *Shared) TryDequeue() (work.Item, bool) {
	for {
		head := s.head.Load()
		item, err := head.q.Dequeue()
		if err == nil {
			s.count.Add(-1)
			return item, true
		}

		next := head.next.Load()
		if next == nil {
			return nil, false
		}
		s.growMu.Lock()
		if s.head.Load() == head {
			s.head.Store(next)
		}
		s.growMu.Unlock()
	}
}

// Count returns an approximate size: accurate absent concurrent mutation,
// otherwise a point-in-time estimate, as spec.md's "count estimate" calls for.
func (s *Shared) Count() int {
	n := s.count.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}
