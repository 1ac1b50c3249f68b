package pool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockTableAcquireRelease(t *testing.T) {
	lt := NewLockTable(false)
	ctx := context.Background()

	require.NoError(t, lt.Acquire(ctx, "kiro/1"))
	assert.True(t, lt.Busy("kiro/1"))

	lt.Release("kiro/1")
	assert.False(t, lt.Busy("kiro/1"))
}

func TestLockTableFIFOOrder(t *testing.T) {
	lt := NewLockTable(false)
	ctx := context.Background()
	require.NoError(t, lt.Acquire(ctx, "kiro/1"))

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	ready := make(chan struct{})

	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			// Stagger enqueue so the waiter queue order is deterministic.
			time.Sleep(time.Duration(n) * 20 * time.Millisecond)
			if n == 1 {
				close(ready)
			}
			require.NoError(t, lt.Acquire(ctx, "kiro/1"))
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			lt.Release("kiro/1")
		}(i)
	}

	<-ready
	time.Sleep(100 * time.Millisecond)
	lt.Release("kiro/1")
	wg.Wait()

	assert.Equal(t, []int{1, 2, 3}, order)
	assert.False(t, lt.Busy("kiro/1"))
}

func TestLockTableAcquireCancelled(t *testing.T) {
	lt := NewLockTable(false)
	require.NoError(t, lt.Acquire(context.Background(), "kiro/1"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- lt.Acquire(ctx, "kiro/1")
	}()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, lt.Waiters("kiro/1"))
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, lt.Waiters("kiro/1"))

	// The holder still owns the lock and can release it normally.
	lt.Release("kiro/1")
	assert.False(t, lt.Busy("kiro/1"))
}

func TestLockTableDisabled(t *testing.T) {
	lt := NewLockTable(true)
	require.NoError(t, lt.Acquire(context.Background(), "kiro/1"))
	require.NoError(t, lt.Acquire(context.Background(), "kiro/1"))
	assert.False(t, lt.Busy("kiro/1"))
	lt.Release("kiro/1")
}
