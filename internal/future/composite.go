package future

import "context"

// Composite joins several futures. It is done when every inner future is done.
// Cancelling a composite is not supported: the inner loads are shared with
// other callers and keep running regardless of any single waiter.
type Composite[T any] struct {
	futures []*Future[T]
}

// All joins futures, preserving their order.
func All[T any](futures []*Future[T]) *Composite[T] {
	return &Composite[T]{futures: futures}
}

// Len returns the number of joined futures.
func (c *Composite[T]) Len() int { return len(c.futures) }

// Futures returns the inner handles in input order.
func (c *Composite[T]) Futures() []*Future[T] { return c.futures }

// IsDone reports whether every inner future is done.
func (c *Composite[T]) IsDone() bool {
	for _, f := range c.futures {
		if !f.IsDone() {
			return false
		}
	}
	return true
}

// Cancel has no effect and always reports false.
func (c *Composite[T]) Cancel() bool { return false }

// IsCancelled always reports false.
func (c *Composite[T]) IsCancelled() bool { return false }

// Get waits for all inner futures and returns their values in input order.
// If any of them failed, the error of the first failed one in input order is returned.
func (c *Composite[T]) Get(ctx context.Context) ([]T, error) {
	out := make([]T, 0, len(c.futures))
	for _, f := range c.futures {
		v, err := f.Get(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
