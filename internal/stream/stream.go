// Package stream defines the pull-based lazy sequence used across the service.
package stream

import (
	"context"
	"errors"
)

// ErrExhausted is returned by Next once a sequence has no more elements.
var ErrExhausted = errors.New("stream: exhausted")

// Iterator is a lazy, single-pass sequence. HasNext may perform I/O; when it
// reports false the caller must check Err to tell a drained sequence from a
// failed one. Iterators are not safe for concurrent use.
type Iterator[T any] interface {
	HasNext() bool
	Next() (T, error)
	Err() error
}

type sliceIterator[T any] struct {
	items []T
	pos   int
}

// FromSlice iterates over items in order. The slice is not copied.
func FromSlice[T any](items []T) Iterator[T] {
	return &sliceIterator[T]{items: items}
}

func (s *sliceIterator[T]) HasNext() bool { return s.pos < len(s.items) }

func (s *sliceIterator[T]) Next() (T, error) {
	if s.pos >= len(s.items) {
		var zero T
		return zero, ErrExhausted
	}
	v := s.items[s.pos]
	s.pos++
	return v, nil
}

func (s *sliceIterator[T]) Err() error { return nil }

// Empty returns a sequence without elements.
func Empty[T any]() Iterator[T] { return &sliceIterator[T]{} }

// Collect drains it into a slice. ctx is checked between elements.
func Collect[T any](ctx context.Context, it Iterator[T]) ([]T, error) {
	var out []T
	for it.HasNext() {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		v, err := it.Next()
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, it.Err()
}

// Page skips the first skip elements and returns up to limit of the following ones.
// Elements after the page are never pulled.
func Page[T any](it Iterator[T], skip, limit int) ([]T, error) {
	for ; skip > 0 && it.HasNext(); skip-- {
		if _, err := it.Next(); err != nil {
			return nil, err
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	out := make([]T, 0, max(limit, 0))
	for len(out) < limit && it.HasNext() {
		v, err := it.Next()
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, it.Err()
}

// Count drains it and returns the number of elements seen.
func Count[T any](it Iterator[T]) (int, error) {
	n := 0
	for it.HasNext() {
		if _, err := it.Next(); err != nil {
			return n, err
		}
		n++
	}
	return n, it.Err()
}
