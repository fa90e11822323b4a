package queue

import (
	"github.com/stretchr/testify/require"
	"sync"
	"testing"
)

// TestQueue_Init verifies queue initialization.
func TestQueue_Init(t *testing.T) {
	var q Queue[int]
	q.Init(10)

	require.Equal(t, 10, len(q.buf))
	require.Equal(t, 0, q.head)
	require.Equal(t, 0, q.tail)
	require.Equal(t, 0, q.Len())
}

// TestQueue_Init_MinSize verifies that Init enforces minimum size.
func TestQueue_Init_MinSize(t *testing.T) {
	var q Queue[int]
	q.Init(1)

	require.GreaterOrEqual(t, len(q.buf), 2)
}

// TestQueue_PushTryPop verifies FIFO order of push/pop operations.
func TestQueue_PushTryPop(t *testing.T) {
	var q Queue[string]
	q.Init(10)

	q.Push("a")
	q.Push("b")
	q.Push("c")

	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.TryPop()
		require.True(t, ok)
		require.Equal(t, want, got)
	}

	_, ok := q.TryPop()
	require.False(t, ok)
}

// TestQueue_GrowsWhenFull verifies that Push never drops values and keeps order after growing.
func TestQueue_GrowsWhenFull(t *testing.T) {
	var q Queue[int]
	q.Init(2)

	for i := 0; i < 100; i++ {
		q.Push(i)
	}
	require.Equal(t, 100, q.Len())

	for i := 0; i < 100; i++ {
		v, ok := q.TryPop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
}

// TestQueue_WrapAround verifies circular buffer behavior across a grow.
func TestQueue_WrapAround(t *testing.T) {
	var q Queue[int]
	q.Init(4)

	q.Push(1)
	q.Push(2)
	v, _ := q.TryPop()
	require.Equal(t, 1, v)

	q.Push(3)
	q.Push(4)
	q.Push(5)
	q.Push(6) // forces grow while wrapped

	for _, want := range []int{2, 3, 4, 5, 6} {
		v, ok := q.TryPop()
		require.True(t, ok)
		require.Equal(t, want, v)
	}
}

// TestQueue_ZeroValueUsable verifies that an uninitialized queue grows on first push.
func TestQueue_ZeroValueUsable(t *testing.T) {
	var q Queue[int]
	q.Push(7)

	v, ok := q.TryPop()
	require.True(t, ok)
	require.Equal(t, 7, v)
}

// TestQueue_Concurrent verifies thread-safety.
func TestQueue_Concurrent(t *testing.T) {
	var q Queue[int]
	q.Init(4)

	const numGoroutines = 10
	const opsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				q.Push(j)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, numGoroutines*opsPerGoroutine, q.Len())
}
