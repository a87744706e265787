// Package work holds the opaque work-item handle shared by the deque,
// queue and assignment packages, so none of them needs to import the root
// dispatch package (which re-exports Item as WorkItem).
package work

// Item is a unit of dispatchable work: one method, executed exactly once
// by whichever worker dequeues it. Concrete callers should make their Item
// implementation comparable (e.g. a pointer) if they intend to ever cancel
// a pending item via LocalFindAndPop/FindAndRemove, which match by identity.
type Item interface {
	Execute()
}

// Func adapts a plain function to Item, mirroring the function-pointer-pair
// shape instead of a class hierarchy: most callers never need more than this.
type Func func()

// Execute calls f.
func (f Func) Execute() { f() }
