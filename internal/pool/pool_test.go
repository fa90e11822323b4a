package pool

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestPool(size int, idle time.Duration) *Pool {
	return New(size, idle, slog.New(slog.DiscardHandler))
}

// TestPool_RunsAll verifies every submitted task runs exactly once.
func TestPool_RunsAll(t *testing.T) {
	p := newTestPool(4, time.Second)
	var n atomic.Int64
	for i := 0; i < 1000; i++ {
		require.NoError(t, p.Submit(func() { n.Add(1) }))
	}
	require.NoError(t, p.Close(context.Background()))
	require.EqualValues(t, 1000, n.Load())
	require.EqualValues(t, 1000, p.PoolMetrics().Completed)
}

// TestPool_BoundsConcurrency verifies no more than size tasks run at once.
func TestPool_BoundsConcurrency(t *testing.T) {
	const size = 3
	p := newTestPool(size, time.Second)

	var cur, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			c := cur.Add(1)
			for {
				old := peak.Load()
				if c <= old || peak.CompareAndSwap(old, c) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			cur.Add(-1)
		}))
	}
	wg.Wait()
	require.LessOrEqual(t, peak.Load(), int64(size))
	require.LessOrEqual(t, p.PoolMetrics().Workers, size)
	require.NoError(t, p.Close(context.Background()))
}

// TestPool_FIFO verifies a single worker runs tasks in submission order.
func TestPool_FIFO(t *testing.T) {
	p := newTestPool(1, time.Second)
	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 50; i++ {
		require.NoError(t, p.Submit(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	require.NoError(t, p.Close(context.Background()))
	for i, v := range got {
		require.Equal(t, i, v)
	}
	require.Len(t, got, 50)
}

// TestPool_IdleWorkersExit verifies workers leave after the idle timeout and come back on demand.
func TestPool_IdleWorkersExit(t *testing.T) {
	p := newTestPool(2, 20*time.Millisecond)
	done := make(chan struct{})
	require.NoError(t, p.Submit(func() { close(done) }))
	<-done

	require.Eventually(t, func() bool { return p.PoolMetrics().Workers == 0 }, time.Second, 5*time.Millisecond)

	again := make(chan struct{})
	require.NoError(t, p.Submit(func() { close(again) }))
	<-again
	require.GreaterOrEqual(t, p.PoolMetrics().Spawned, int64(2))
	require.NoError(t, p.Close(context.Background()))
}

// TestPool_RecoversPanics verifies a panicking task does not kill the pool.
func TestPool_RecoversPanics(t *testing.T) {
	p := newTestPool(1, time.Second)
	require.NoError(t, p.Submit(func() { panic("boom") }))
	ran := make(chan struct{})
	require.NoError(t, p.Submit(func() { close(ran) }))
	<-ran
	require.NoError(t, p.Close(context.Background()))
	require.EqualValues(t, 1, p.PoolMetrics().Panicked)
}

// TestPool_SubmitAfterClose verifies closed pools reject work.
func TestPool_SubmitAfterClose(t *testing.T) {
	p := newTestPool(1, time.Second)
	require.NoError(t, p.Close(context.Background()))
	require.ErrorIs(t, p.Submit(func() {}), ErrClosed)
	require.NoError(t, p.Close(context.Background()))
}

// TestPool_CloseTimeout verifies Close gives up when ctx expires.
func TestPool_CloseTimeout(t *testing.T) {
	p := newTestPool(1, time.Second)
	release := make(chan struct{})
	require.NoError(t, p.Submit(func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, p.Close(ctx), context.DeadlineExceeded)
	close(release)
}
