// Package pool runs load tasks on a bounded set of goroutines fed by an unbounded FIFO queue.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Borislavv/go-subbox/internal/shared/queue"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("pool: closed")

// Pool keeps at most size workers alive. Workers are started on demand and
// exit after idleTimeout without work. Tasks are never rejected for capacity
// reasons; they wait in the queue instead.
type Pool struct {
	size        int
	idleTimeout time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	queue   queue.Queue[func()]
	running int
	closed  bool
	wake    chan struct{}
	wg      sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
	spawned   atomic.Int64
}

// Metrics is a point-in-time snapshot of pool activity.
type Metrics struct {
	Workers   int
	Queued    int
	Submitted int64
	Completed int64
	Panicked  int64
	Spawned   int64
}

// New creates a pool. size < 1 is treated as 1; idleTimeout <= 0 keeps workers forever.
func New(size int, idleTimeout time.Duration, logger *slog.Logger) *Pool {
	p := &Pool{
		size:        max(size, 1),
		idleTimeout: idleTimeout,
		logger:      logger.With("component", "pool"),
		wake:        make(chan struct{}, max(size, 1)),
	}
	p.queue.Init(p.size * 2)
	return p
}

// Submit enqueues task. It never blocks on capacity.
func (p *Pool) Submit(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	p.queue.Push(task)
	p.submitted.Add(1)
	if p.running < p.size {
		p.running++
		p.spawned.Add(1)
		p.wg.Go(p.work)
		return nil
	}

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close stops accepting tasks and waits until queued tasks are done or ctx expires.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.wake)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("pool is stopped", "completed", p.completed.Load())
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pool close: %w", ctx.Err())
	}
}

// PoolMetrics returns a snapshot of the pool state.
func (p *Pool) PoolMetrics() Metrics {
	p.mu.Lock()
	workers := p.running
	p.mu.Unlock()
	return Metrics{
		Workers:   workers,
		Queued:    p.queue.Len(),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
		Spawned:   p.spawned.Load(),
	}
}

func (p *Pool) work() {
	var timer *time.Timer
	if p.idleTimeout > 0 {
		timer = time.NewTimer(p.idleTimeout)
		defer timer.Stop()
	}

	for {
		if task, ok := p.queue.TryPop(); ok {
			p.run(task)
			continue
		}

		if timer != nil {
			timer.Reset(p.idleTimeout)
		}
		if !p.await(timer) {
			return
		}
	}
}

// await blocks until new work may be available. It returns false after
// deregistering the worker, which happens on close or idle timeout once
// the queue is confirmed empty under the lock.
func (p *Pool) await(timer *time.Timer) bool {
	var idle <-chan time.Time
	if timer != nil {
		idle = timer.C
	}

	select {
	case _, ok := <-p.wake:
		if ok {
			return true
		}
	case <-idle:
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue.Len() > 0 {
		return true
	}
	p.running--
	return false
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			p.logger.Error("task panicked", "panic", r, "stack", string(debug.Stack()))
		}
		p.completed.Add(1)
	}()
	task()
}
