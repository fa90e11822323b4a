// Package future provides single-assignment result handles shared by concurrent waiters.
package future

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrPending is returned by TryGet while the result is not ready.
var ErrPending = errors.New("future: result is not ready")

// Future is a read-only handle to a value produced asynchronously.
// Any number of goroutines may wait on the same Future.
type Future[T any] struct {
	done   chan struct{}
	once   sync.Once
	failed atomic.Bool
	val    T
	err    error
}

// New returns an unresolved future. The producer completes it with Complete.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns an already completed future.
func Resolved[T any](v T, err error) *Future[T] {
	f := New[T]()
	f.Complete(v, err)
	return f
}

// Complete stores the result and wakes all waiters. Only the first call has an
// effect; it reports whether this call completed the future.
func (f *Future[T]) Complete(v T, err error) bool {
	completed := false
	f.once.Do(func() {
		f.val, f.err = v, err
		f.failed.Store(err != nil)
		close(f.done)
		completed = true
	})
	return completed
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// IsDone reports whether the result is available.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Failed reports whether the future completed with an error.
func (f *Future[T]) Failed() bool { return f.IsDone() && f.failed.Load() }

// Get waits for the result. ctx bounds the wait only; the producer keeps running.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryGet returns the result without blocking, or ErrPending.
func (f *Future[T]) TryGet() (T, error) {
	if !f.IsDone() {
		var zero T
		return zero, ErrPending
	}
	return f.val, f.err
}
