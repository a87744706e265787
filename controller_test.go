package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
)

// fakeController is a minimal Controller used across this package's tests.
// RequestWorker spawns a real Dispatcher goroutine, mirroring how a thread
// pool manager would inject a worker in response to the latch.
type fakeController struct {
	core       *Core
	ctx        context.Context
	wg         sync.WaitGroup
	processors int
	logging    bool
	// spawn controls whether RequestWorker actually starts a dispatcher
	// goroutine. Tests that only check queue routing, not execution, leave
	// this false so nothing races against their own assertions.
	spawn bool

	// retireAfter, if non-zero, makes NotifyCompletion veto continuing once
	// a worker's own rolling completion count reaches it. Zero means never
	// veto.
	retireAfter int64

	nextID    atomic.Int64
	completed atomic.Int64
	requests  atomic.Int64
}

func (c *fakeController) RequestWorker() {
	c.requests.Add(1)
	if !c.spawn {
		return
	}
	id := int(c.nextID.Add(1))
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		NewDispatcher(c.core, id).Run(c.ctx)
	}()
}

func (c *fakeController) NotifyCompletion(completions int64, tickNow int64) bool {
	c.completed.Add(1)
	if c.retireAfter != 0 && completions >= c.retireAfter {
		return false
	}
	return true
}
func (c *fakeController) ShouldYield() bool           { return false }
func (c *fakeController) WorkerTrackingEnabled() bool { return true }
func (c *fakeController) LoggingEnabled() bool        { return c.logging }
func (c *fakeController) ProcessorCount() int         { return c.processors }
