package assign

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountBelowThresholdIsZero(t *testing.T) {
	require.Equal(t, 0, Count(1))
	require.Equal(t, 0, Count(32))
}

func TestCountScalesWithSoftCap(t *testing.T) {
	require.Equal(t, 3, Count(33))
	require.Equal(t, 4, Count(64))
	require.Equal(t, 5, Count(65))
}

func TestAssignFillsQueuesBeforeOverflowing(t *testing.T) {
	table := New(2)
	for w := 0; w < softCap; w++ {
		idx := table.Assign(w)
		require.Equal(t, 0, idx) // first queue fills before the second is touched
	}
	// queue 0 is now at the soft cap; the next worker goes to queue 1.
	idx := table.Assign(softCap)
	require.Equal(t, 1, idx)
	require.Equal(t, softCap, table.Load(0))
	require.Equal(t, 1, table.Load(1))
}

func TestAssignOverflowsToLeastLoaded(t *testing.T) {
	table := New(2)
	for w := 0; w < 2*softCap; w++ {
		table.Assign(w)
	}
	require.Equal(t, softCap, table.Load(0))
	require.Equal(t, softCap, table.Load(1))

	// both queues are at the cap: the next worker still gets bound,
	// falling through to least-loaded (a tie resolves to queue 0).
	idx := table.Assign(2 * softCap)
	require.Equal(t, 0, idx)
	require.Equal(t, softCap+1, table.Load(0))
}

func TestUnassignFreesCapacity(t *testing.T) {
	table := New(1)
	table.Assign(1)
	table.Assign(2)
	require.Equal(t, 2, table.Load(0))

	table.Unassign(1)
	require.Equal(t, 1, table.Load(0))

	table.Unassign(1) // already gone, no-op
	require.Equal(t, 1, table.Load(0))
}

func TestTryReassignMovesToLessLoadedQueue(t *testing.T) {
	table := New(2)
	for w := 0; w < softCap; w++ {
		table.Assign(w)
	}
	// queue 0 is full; a fresh worker should land on queue 1 via
	// try-reassign exactly as Assign would place it.
	idx, ok := table.TryReassign(999)
	require.True(t, ok)
	require.Equal(t, 1, idx)
}
