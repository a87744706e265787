package deque

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type intItem int

func (intItem) Execute() {}

func TestPushPopIsLIFO(t *testing.T) {
	d := New()
	for i := 0; i < 10; i++ {
		d.Push(intItem(i))
	}
	for i := 9; i >= 0; i-- {
		item, ok := d.Pop()
		require.True(t, ok)
		require.Equal(t, intItem(i), item)
	}
	_, ok := d.Pop()
	require.False(t, ok)
}

func TestStealIsFIFO(t *testing.T) {
	d := New()
	for i := 0; i < 10; i++ {
		d.Push(intItem(i))
	}
	for i := 0; i < 10; i++ {
		item, ok, missed := d.Steal()
		require.True(t, ok)
		require.False(t, missed)
		require.Equal(t, intItem(i), item)
	}
	_, ok, missed := d.Steal()
	require.False(t, ok)
	require.False(t, missed)
}

func TestGrowthPreservesOrderAndContents(t *testing.T) {
	d := New()
	n := initialCapacity * 3
	for i := 0; i < n; i++ {
		d.Push(intItem(i))
	}
	require.GreaterOrEqual(t, len(d.buffer), n)

	var got []int
	for {
		item, ok := d.Pop()
		if !ok {
			break
		}
		got = append(got, int(item.(intItem)))
	}
	require.Len(t, got, n)
	for i, v := range got {
		require.Equal(t, n-1-i, v) // LIFO: last pushed first out
	}
}

func TestFindAndRemoveFastPath(t *testing.T) {
	d := New()
	d.Push(intItem(1))
	d.Push(intItem(2))
	d.Push(intItem(3))

	require.True(t, d.FindAndRemove(intItem(3))) // tail-adjacent
	item, ok := d.Pop()
	require.True(t, ok)
	require.Equal(t, intItem(2), item)
}

func TestFindAndRemoveSlowPath(t *testing.T) {
	d := New()
	d.Push(intItem(1))
	d.Push(intItem(2))
	d.Push(intItem(3))
	d.Push(intItem(4))

	require.True(t, d.FindAndRemove(intItem(2)))
	require.False(t, d.FindAndRemove(intItem(2))) // already gone

	var got []int
	for {
		item, ok := d.Pop()
		if !ok {
			break
		}
		got = append(got, int(item.(intItem)))
	}
	require.ElementsMatch(t, []int{1, 3, 4}, got)
}

func TestFindAndRemoveMissingReturnsFalse(t *testing.T) {
	d := New()
	d.Push(intItem(1))
	require.False(t, d.FindAndRemove(intItem(99)))
}

func TestOverflowRebaseIsTransparent(t *testing.T) {
	d := New()
	d.head.StoreRelease(overflowSentinel)
	d.tail.StoreRelease(overflowSentinel)

	d.Push(intItem(1))
	d.Push(intItem(2))
	d.Push(intItem(3))

	require.NotEqual(t, uint64(overflowSentinel), d.tail.LoadAcquire())

	var got []int
	for {
		item, ok := d.Pop()
		if !ok {
			break
		}
		got = append(got, int(item.(intItem)))
	}
	require.Equal(t, []int{3, 2, 1}, got)
}

func TestConcurrentOwnerPopAndThievesSteal(t *testing.T) {
	d := New()
	const total = 5000
	for i := 0; i < total; i++ {
		d.Push(intItem(i))
	}

	var seen sync.Map
	var mu sync.Mutex
	var dupErr error
	record := func(v int) {
		if _, loaded := seen.LoadOrStore(v, true); loaded {
			mu.Lock()
			if dupErr == nil {
				dupErr = fmt.Errorf("item %d observed twice", v)
			}
			mu.Unlock()
		}
	}

	var g errgroup.Group
	g.Go(func() error {
		for {
			item, ok := d.Pop()
			if !ok {
				return nil
			}
			record(int(item.(intItem)))
		}
	})
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			for {
				item, ok, missed := d.Steal()
				if ok {
					record(int(item.(intItem)))
					continue
				}
				if missed {
					continue
				}
				if d.Len() == 0 {
					return nil
				}
			}
		})
	}
	require.NoError(t, g.Wait())
	require.Nil(t, dupErr)

	count := 0
	seen.Range(func(_, _ any) bool { count++; return true })
	require.Equal(t, total, count)
}
