package dispatch

import "code.hybscloud.com/atomix"

// ThreadRequestLatch coalesces concurrent "wake another worker" signals
// into a single Controller.RequestWorker() call: whichever caller wins the
// 0->1 compare-and-swap makes the request, every other concurrent caller
// observes the latch already armed and does nothing further.
type ThreadRequestLatch struct {
	armed atomix.Uint32
	ctrl  Controller
}

func newThreadRequestLatch(ctrl Controller) *ThreadRequestLatch {
	return &ThreadRequestLatch{ctrl: ctrl}
}

// Arm requests a worker if the latch was not already armed.
func (l *ThreadRequestLatch) Arm() {
	if l.armed.CompareAndSwapAcqRel(0, 1) {
		l.ctrl.RequestWorker()
	}
}

// Release clears the latch, with a full fence, so a future Arm can request
// another worker. Called exactly once per dispatcher entry, before the
// worker dequeues anything: the request that woke it is satisfied as soon
// as it commits to running, so any enqueue arriving after that point is
// guaranteed to see the latch clear and re-arm it rather than be lost.
func (l *ThreadRequestLatch) Release() {
	l.armed.StoreRelease(0)
}
